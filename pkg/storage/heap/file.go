package heap

import (
	"storemy/pkg/buffer"
	"storemy/pkg/dberr"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/tuple"
)

// File is an unordered collection of pages holding tuples, backed by a
// buffer.Pool. It tracks its own page ids so a sequential scan doesn't
// need to probe the disk manager for the file's extent.
type File struct {
	pool    *buffer.Pool
	pageIDs []primitives.PageID
}

func NewFile(pool *buffer.Pool) *File {
	return &File{pool: pool}
}

// Insert appends t to the first page with room, allocating a fresh page
// if every existing one is full. Returns the RID the tuple now lives at.
func (f *File) Insert(t *tuple.Tuple) (primitives.RID, error) {
	for _, pid := range f.pageIDs {
		pg, err := f.pool.FetchPage(pid)
		if err != nil {
			return primitives.RID{}, err
		}
		pg.Latch.Lock()
		hp := decodeHeapPage(pg.Data())
		slot, ok := hp.insertRecord(t)
		if !ok {
			pg.Latch.Unlock()
			f.pool.UnpinPage(pid, false)
			continue
		}
		hp.encode(pg.Data())
		pg.Latch.Unlock()
		pg.MarkDirty(true)
		f.pool.UnpinPage(pid, true)
		return primitives.NewRID(pid, slot), nil
	}

	pg, err := f.pool.NewPage()
	if err != nil {
		return primitives.RID{}, err
	}
	hp := newHeapPage()
	slot, ok := hp.insertRecord(t)
	if !ok {
		f.pool.UnpinPage(pg.ID(), false)
		return primitives.RID{}, dberr.OutOfSpace("heap.File")
	}
	pg.Latch.Lock()
	hp.encode(pg.Data())
	pg.Latch.Unlock()
	pg.MarkDirty(true)
	pid := pg.ID()
	f.pageIDs = append(f.pageIDs, pid)
	f.pool.UnpinPage(pid, true)
	logging.WithPage(pid).Debug("heap page allocated", "file_pages", len(f.pageIDs))
	return primitives.NewRID(pid, slot), nil
}

// Get fetches the tuple at rid, returning a nil tuple and nil error if the
// slot is empty.
func (f *File) Get(rid primitives.RID) (*tuple.Tuple, error) {
	pg, err := f.pool.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	defer f.pool.UnpinPage(rid.PageID, false)

	pg.Latch.RLock()
	hp := decodeHeapPage(pg.Data())
	pg.Latch.RUnlock()

	t, ok := hp.getRecord(rid.Slot)
	if !ok {
		return nil, nil
	}
	return t, nil
}

// Delete tombstones the slot at rid. Returns false if it was already empty.
func (f *File) Delete(rid primitives.RID) (bool, error) {
	pg, err := f.pool.FetchPage(rid.PageID)
	if err != nil {
		return false, err
	}
	defer f.pool.UnpinPage(rid.PageID, true)

	pg.Latch.Lock()
	hp := decodeHeapPage(pg.Data())
	ok := hp.deleteRecord(rid.Slot)
	if ok {
		hp.encode(pg.Data())
		pg.MarkDirty(true)
	}
	pg.Latch.Unlock()
	return ok, nil
}

// Scan returns an iterator over every live tuple in the file, in page
// then slot order.
func (f *File) Scan() *ScanIterator {
	return &ScanIterator{file: f}
}

// ScanIterator walks every page in the file's extent, yielding one live
// tuple at a time. It holds at most one page's read latch at a time.
type ScanIterator struct {
	file     *File
	pageIdx  int
	slotIdx  int
	slots    []primitives.SlotID
	curPID   primitives.PageID
	loaded   bool
}

// Next advances the iterator and reports whether a tuple is available.
func (it *ScanIterator) Next() (primitives.RID, *tuple.Tuple, bool) {
	for {
		if !it.loaded {
			if it.pageIdx >= len(it.file.pageIDs) {
				return primitives.RID{}, nil, false
			}
			it.curPID = it.file.pageIDs[it.pageIdx]
			pg, err := it.file.pool.FetchPage(it.curPID)
			if err != nil {
				it.pageIdx++
				continue
			}
			pg.Latch.RLock()
			hp := decodeHeapPage(pg.Data())
			pg.Latch.RUnlock()
			it.file.pool.UnpinPage(it.curPID, false)
			it.slots = hp.occupiedSlots()
			it.slotIdx = 0
			it.loaded = true
		}

		if it.slotIdx >= len(it.slots) {
			it.pageIdx++
			it.loaded = false
			continue
		}

		slot := it.slots[it.slotIdx]
		it.slotIdx++
		t, err := it.file.Get(primitives.NewRID(it.curPID, slot))
		if err != nil || t == nil {
			continue
		}
		return primitives.NewRID(it.curPID, slot), t, true
	}
}
