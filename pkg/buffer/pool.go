// Package buffer implements the buffer pool manager: the fixed-size frame
// cache that mediates every page access between the B+tree and the disk
// manager. It owns pin-count accounting, the free-frame list, the
// page-to-frame table, and delegates victim selection to an LRUReplacer.
package buffer

import (
	"sync"

	"storemy/pkg/dberr"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/disk"
	"storemy/pkg/storage/page"
)

// Pool is the buffer pool manager. A single mutex guards the frame array,
// the free list, and the page table together rather than striping them —
// contention here is expected to be dominated by disk I/O and page-latch
// waits, not pool bookkeeping.
type Pool struct {
	mu sync.Mutex

	disk     *disk.Manager
	replacer *LRUReplacer

	frames   []*page.Page
	pageTbl  map[primitives.PageID]primitives.FrameID
	freeList []primitives.FrameID
}

// NewPool constructs a pool of size frames backed by dm.
func NewPool(size int, dm *disk.Manager) *Pool {
	frames := make([]*page.Page, size)
	free := make([]primitives.FrameID, size)
	for i := range frames {
		free[i] = primitives.FrameID(i) // FIFO, so frame 0 is handed out first
	}
	return &Pool{
		disk:     dm,
		replacer: NewLRUReplacer(size),
		frames:   frames,
		pageTbl:  make(map[primitives.PageID]primitives.FrameID, size),
		freeList: free,
	}
}

// Size returns the pool's total frame capacity.
func (p *Pool) Size() int { return len(p.frames) }

// FetchPage returns the page for pid, pinned once, reading it from disk
// into a free or evicted frame if it is not already resident. Callers
// must call UnpinPage exactly once for each successful FetchPage/NewPage.
func (p *Pool) FetchPage(pid primitives.PageID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fid, ok := p.pageTbl[pid]; ok {
		pg := p.frames[fid]
		if pg.PinCount() == 0 {
			p.replacer.Pin(fid)
		}
		pg.Pin()
		return pg, nil
	}

	fid, ok := p.allocateFrame()
	if !ok {
		return nil, dberr.OutOfMemory("buffer.Pool")
	}

	pg := page.NewPage(pid)
	if err := p.disk.ReadPage(pid, pg.Data()); err != nil {
		p.freeList = append(p.freeList, fid)
		return nil, err
	}
	pg.Pin()
	p.frames[fid] = pg
	p.pageTbl[pid] = fid
	logging.WithPage(pid).Debug("page fetched from disk", "frame_id", fid)
	return pg, nil
}

// NewPage allocates a fresh page on disk and returns it pinned once,
// resident in a frame. It never touches the replacer's LRU order for the
// new frame until the caller unpins it.
func (p *Pool) NewPage() (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.allocateFrame()
	if !ok {
		return nil, dberr.OutOfMemory("buffer.Pool")
	}

	pid := p.disk.AllocatePage()
	pg := page.NewPage(pid)
	pg.Pin()
	p.frames[fid] = pg
	p.pageTbl[pid] = fid
	logging.WithPage(pid).Debug("new page allocated", "frame_id", fid)
	return pg, nil
}

// allocateFrame returns a frame id ready to host a new page, preferring
// the free list (oldest entry first) and falling back to evicting the
// replacer's victim. Caller must hold p.mu.
func (p *Pool) allocateFrame() (primitives.FrameID, bool) {
	if len(p.freeList) > 0 {
		fid := p.freeList[0]
		p.freeList = p.freeList[1:]
		return fid, true
	}

	fid, ok := p.replacer.Victim()
	if !ok {
		return 0, false
	}
	victim := p.frames[fid]
	if victim != nil {
		if victim.IsDirty() {
			if err := p.disk.WritePage(victim.ID(), victim.Data()); err != nil {
				logging.WithPage(victim.ID()).Warn("flush of evicted page failed", "err", err)
			}
		}
		delete(p.pageTbl, victim.ID())
		logging.WithFrame(fid).Debug("evicted victim frame", "evicted_page", victim.ID())
	}
	return fid, true
}

// UnpinPage decrements pid's pin count and reports whether the caller's
// write made the page dirty. When the pin count reaches zero the frame
// becomes an eviction candidate in the replacer.
func (p *Pool) UnpinPage(pid primitives.PageID, isDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTbl[pid]
	if !ok {
		return nil
	}
	pg := p.frames[fid]
	if isDirty {
		pg.MarkDirty(true)
	}
	if pg.Unpin() {
		p.replacer.Unpin(fid)
	}
	return nil
}

// FlushPage writes pid's current contents to disk regardless of its dirty
// flag, clearing the flag on success.
func (p *Pool) FlushPage(pid primitives.PageID) error {
	p.mu.Lock()
	fid, ok := p.pageTbl[pid]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	pg := p.frames[fid]
	p.mu.Unlock()

	if err := p.disk.WritePage(pid, pg.Data()); err != nil {
		return err
	}
	pg.MarkDirty(false)
	return nil
}

// DeletePage removes pid from the pool and returns its page id to the disk
// manager's free list. It fails if the page is still pinned.
func (p *Pool) DeletePage(pid primitives.PageID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTbl[pid]
	if !ok {
		return true, nil
	}
	pg := p.frames[fid]
	if pg.PinCount() > 0 {
		return false, nil
	}

	p.replacer.Pin(fid) // drop from eviction candidates, it's no longer resident
	delete(p.pageTbl, pid)
	p.frames[fid] = nil
	p.freeList = append(p.freeList, fid)
	p.disk.DeallocatePage(pid)
	return true, nil
}

// GetPinCount is a diagnostic accessor used by tests to assert "every
// fetch has a matching unpin".
func (p *Pool) GetPinCount(pid primitives.PageID) (int32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, ok := p.pageTbl[pid]
	if !ok {
		return 0, false
	}
	return p.frames[fid].PinCount(), true
}
