// Package disk is the external disk manager: the only component in the
// engine that issues raw file I/O. Everything above it (the buffer pool,
// the B+tree) addresses pages by primitives.PageID and never touches an
// *os.File directly.
package disk

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"storemy/pkg/dberr"
	"storemy/pkg/primitives"
)

// PageSize is the fixed size of every page, in bytes.
const PageSize = 4096

// Manager owns a single backing file and hands out fixed-size pages by
// PageID. Allocation is a monotonic counter plus a free list of
// deallocated ids available for reuse, keyed directly on PageID instead
// of a composite TableID/PageNumber pair.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	nextID   int32
	freeList []primitives.PageID

	reads  int64
	writes int64
}

// New opens (creating if necessary) the backing file at path.
func New(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(err, "DISK_OPEN_FAILED", "New", "disk.Manager")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.Wrap(err, "DISK_STAT_FAILED", "New", "disk.Manager")
	}
	return &Manager{
		file:   f,
		nextID: int32(info.Size() / PageSize),
	}, nil
}

// AllocatePage reserves a fresh page id, preferring a deallocated id from
// the free list before growing the file.
func (m *Manager) AllocatePage() primitives.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.freeList); n > 0 {
		pid := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return pid
	}
	pid := primitives.PageID(m.nextID)
	m.nextID++
	return pid
}

// DeallocatePage returns a page id to the free list for reuse. It does not
// truncate or zero the underlying file region; the slot is reused whole on
// the next AllocatePage.
func (m *Manager) DeallocatePage(pid primitives.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeList = append(m.freeList, pid)
}

// ReadPage reads exactly PageSize bytes for pid into buf.
func (m *Manager) ReadPage(pid primitives.PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("disk: buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	atomic.AddInt64(&m.reads, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	offset := int64(pid) * PageSize
	n, err := m.file.ReadAt(buf, offset)
	if err != nil {
		// A page that was allocated but never written reads as a short
		// read past EOF; treat it as a zero page rather than an error.
		if n < PageSize {
			for i := n; i < PageSize; i++ {
				buf[i] = 0
			}
			return nil
		}
		return dberr.Wrap(err, "DISK_READ_FAILED", "ReadPage", "disk.Manager")
	}
	return nil
}

// WritePage persists exactly PageSize bytes of data for pid.
func (m *Manager) WritePage(pid primitives.PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("disk: data must be %d bytes, got %d", PageSize, len(data))
	}
	atomic.AddInt64(&m.writes, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	offset := int64(pid) * PageSize
	if _, err := m.file.WriteAt(data, offset); err != nil {
		return dberr.Wrap(err, "DISK_WRITE_FAILED", "WritePage", "disk.Manager")
	}
	return nil
}

// Close flushes and closes the backing file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return err
	}
	return m.file.Close()
}

// Stats returns the cumulative read/write counts, reported by the
// benchmark driver and checked by this package's tests.
func (m *Manager) Stats() (reads, writes int64) {
	return atomic.LoadInt64(&m.reads), atomic.LoadInt64(&m.writes)
}
