package heap

import (
	"path/filepath"
	"testing"

	"storemy/pkg/buffer"
	"storemy/pkg/storage/disk"
	"storemy/pkg/storage/tuple"
)

func newTestFile(t *testing.T) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heap.db")
	dm, err := disk.New(path)
	if err != nil {
		t.Fatalf("disk.New: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	pool := buffer.NewPool(32, dm)
	return NewFile(pool)
}

func TestInsertThenGet(t *testing.T) {
	f := newTestFile(t)
	rid, err := f.Insert(tuple.New(1, []byte("hello")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := f.Get(rid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Key != 1 || string(got.Payload) != "hello" {
		t.Fatalf("got %+v, want key=1 payload=hello", got)
	}
}

func TestDeleteThenGetReturnsNil(t *testing.T) {
	f := newTestFile(t)
	rid, _ := f.Insert(tuple.New(1, []byte("x")))

	ok, err := f.Delete(rid)
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	got, err := f.Get(rid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}
}

func TestScanVisitsEveryInsertedTuple(t *testing.T) {
	f := newTestFile(t)
	const n = 200
	for i := int64(0); i < n; i++ {
		if _, err := f.Insert(tuple.New(i, []byte("row"))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	seen := make(map[int64]bool)
	it := f.Scan()
	for {
		_, tup, ok := it.Next()
		if !ok {
			break
		}
		seen[tup.Key] = true
	}
	if len(seen) != n {
		t.Fatalf("scan visited %d tuples, want %d", len(seen), n)
	}
}

func TestScanSkipsDeletedTuples(t *testing.T) {
	f := newTestFile(t)
	rid1, _ := f.Insert(tuple.New(1, []byte("a")))
	f.Insert(tuple.New(2, []byte("b")))
	f.Delete(rid1)

	count := 0
	it := f.Scan()
	for {
		_, _, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 1 {
		t.Fatalf("got %d live tuples after one delete, want 1", count)
	}
}

func TestInsertSpansMultiplePages(t *testing.T) {
	f := newTestFile(t)
	const n = 2000
	payload := make([]byte, 100)
	for i := int64(0); i < n; i++ {
		if _, err := f.Insert(tuple.New(i, payload)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if len(f.pageIDs) < 2 {
		t.Fatalf("expected insert volume to span multiple pages, got %d pages", len(f.pageIDs))
	}
}
