package buffer

import (
	"testing"
)

func TestVictimReturnsLeastRecentlyUnpinned(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	fid, ok := r.Victim()
	if !ok || fid != 1 {
		t.Fatalf("got (%v, %v), want (1, true)", fid, ok)
	}
	fid, ok = r.Victim()
	if !ok || fid != 2 {
		t.Fatalf("got (%v, %v), want (2, true)", fid, ok)
	}
}

func TestPinRemovesFromCandidates(t *testing.T) {
	r := NewLRUReplacer(2)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	fid, ok := r.Victim()
	if !ok || fid != 2 {
		t.Fatalf("got (%v, %v), want (2, true)", fid, ok)
	}
	if _, ok := r.Victim(); ok {
		t.Fatalf("expected no more victims after pinning 1 and evicting 2")
	}
}

func TestUnpinIsIdempotent(t *testing.T) {
	r := NewLRUReplacer(2)
	r.Unpin(1)
	r.Unpin(1)
	if r.Size() != 1 {
		t.Fatalf("got size %d, want 1 after double-unpin", r.Size())
	}
}

func TestVictimOnEmptyReplacer(t *testing.T) {
	r := NewLRUReplacer(1)
	if _, ok := r.Victim(); ok {
		t.Fatalf("expected no victim from an empty replacer")
	}
}

func TestSizeTracksCandidateCount(t *testing.T) {
	r := NewLRUReplacer(3)
	if r.Size() != 0 {
		t.Fatalf("new replacer should start empty")
	}
	r.Unpin(1)
	r.Unpin(2)
	if r.Size() != 2 {
		t.Fatalf("got size %d, want 2", r.Size())
	}
	r.Victim()
	if r.Size() != 1 {
		t.Fatalf("got size %d, want 1 after one victim taken", r.Size())
	}
}
