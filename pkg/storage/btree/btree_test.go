package btree

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"storemy/pkg/buffer"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/disk"
)

func newTestTree(t *testing.T, internalMax, leafMax int32) *BTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.db")
	dm, err := disk.New(path)
	if err != nil {
		t.Fatalf("disk.New: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	pool := buffer.NewPool(256, dm)
	return New(pool, internalMax, leafMax)
}

func TestInsertAndGetValue(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	for i := int64(0); i < 50; i++ {
		ok, err := tr.Insert(i, primitives.NewRID(primitives.PageID(i), 0))
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("Insert(%d) reported duplicate on a fresh key", i)
		}
	}

	for i := int64(0); i < 50; i++ {
		rid, found := tr.GetValue(i)
		if !found {
			t.Fatalf("GetValue(%d): not found", i)
		}
		if rid.PageID != primitives.PageID(i) {
			t.Fatalf("GetValue(%d) = %v, want page %d", i, rid, i)
		}
	}
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	tr.Insert(1, primitives.NewRID(1, 0))
	ok, err := tr.Insert(1, primitives.NewRID(2, 0))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ok {
		t.Fatalf("expected duplicate insert to report false")
	}
}

func TestGetValueMissingKey(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	tr.Insert(1, primitives.NewRID(1, 0))
	if _, found := tr.GetValue(99); found {
		t.Fatalf("expected key 99 to be missing")
	}
}

func TestRemoveThenGetValueMisses(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	for i := int64(0); i < 30; i++ {
		tr.Insert(i, primitives.NewRID(primitives.PageID(i), 0))
	}
	for i := int64(0); i < 30; i += 2 {
		ok, err := tr.Remove(i)
		if err != nil {
			t.Fatalf("Remove(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("Remove(%d) reported not-found for an existing key", i)
		}
	}
	for i := int64(0); i < 30; i++ {
		_, found := tr.GetValue(i)
		if i%2 == 0 && found {
			t.Fatalf("key %d should have been removed", i)
		}
		if i%2 == 1 && !found {
			t.Fatalf("key %d should still be present", i)
		}
	}
}

func TestRemoveMissingKeyIsNotError(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	tr.Insert(1, primitives.NewRID(1, 0))
	ok, err := tr.Remove(42)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok {
		t.Fatalf("expected Remove of an absent key to report false")
	}
}

func TestSeekRangeVisitsKeysInOrder(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	for i := int64(0); i < 40; i++ {
		tr.Insert(i, primitives.NewRID(primitives.PageID(i), 0))
	}

	it := tr.SeekRange(10, 19)
	defer it.Close()
	var got []int64
	for it.Valid() {
		got = append(got, it.Key())
		it.Next()
	}
	if len(got) != 10 {
		t.Fatalf("got %d keys, want 10", len(got))
	}
	for i, k := range got {
		if k != int64(10+i) {
			t.Fatalf("got key %d at position %d, want %d", k, i, 10+i)
		}
	}
}

func TestConcurrentInsertsAllSucceed(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(k int64) {
			defer wg.Done()
			if _, err := tr.Insert(k, primitives.NewRID(primitives.PageID(k), 0)); err != nil {
				t.Errorf("Insert(%d): %v", k, err)
			}
		}(int64(i))
	}
	wg.Wait()

	for i := int64(0); i < n; i++ {
		if _, found := tr.GetValue(i); !found {
			t.Errorf("key %d missing after concurrent inserts", i)
		}
	}
}

func TestVerifyIntegrityAfterManyOperations(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	for i := int64(0); i < 100; i++ {
		tr.Insert(i, primitives.NewRID(primitives.PageID(i), 0))
	}
	for i := int64(0); i < 100; i += 3 {
		tr.Remove(i)
	}
	if err := tr.VerifyIntegrity(context.Background()); err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
}

func TestDebugStringOnEmptyTree(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	if got := tr.DebugString(); got != "<empty>" {
		t.Fatalf("got %q, want <empty>", got)
	}
}

func TestDebugStringMentionsInsertedKeys(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	for i := int64(0); i < 10; i++ {
		tr.Insert(i, primitives.NewRID(primitives.PageID(i), 0))
	}
	got := tr.DebugString()
	if got == "<empty>" || got == "" {
		t.Fatalf("expected a non-trivial dump, got %q", got)
	}
	if !containsDigit(got) {
		t.Fatalf("expected dump to mention key values, got %q", fmt.Sprintf("%.80s", got))
	}
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
