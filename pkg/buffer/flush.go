package buffer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"storemy/pkg/primitives"
)

// FlushAllPages writes every resident page to disk, dirty or not, fanning the
// flushes out concurrently with errgroup and returning the first error
// encountered.
func (p *Pool) FlushAllPages(ctx context.Context) error {
	p.mu.Lock()
	pids := make([]primitives.PageID, 0, len(p.pageTbl))
	for pid := range p.pageTbl {
		pids = append(pids, pid)
	}
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, pid := range pids {
		pid := pid
		g.Go(func() error {
			return p.FlushPage(pid)
		})
	}
	return g.Wait()
}
