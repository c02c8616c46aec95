package execution

import (
	"storemy/pkg/primitives"
	"storemy/pkg/storage/tuple"
)

// Limit returns at most n rows and stops pulling from its child after
// that, without draining it; the child is closed when Limit's own Close
// is called. Locks taken for rows the child produced are left as the
// child took them.
type Limit struct {
	child Iterator
	n     int64
	seen  int64
}

func NewLimit(child Iterator, n int64) *Limit {
	return &Limit{child: child, n: n}
}

func (l *Limit) Init() error { return l.child.Init() }

func (l *Limit) Next() (primitives.RID, *tuple.Tuple, bool, error) {
	if l.seen >= l.n {
		return primitives.RID{}, nil, false, nil
	}
	rid, t, ok, err := l.child.Next()
	if err != nil || !ok {
		return rid, t, ok, err
	}
	l.seen++
	return rid, t, true, nil
}

func (l *Limit) Close() error { return l.child.Close() }
