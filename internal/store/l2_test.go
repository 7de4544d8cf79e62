package store

import (
	"path/filepath"
	"testing"

	"github.com/kittclouds/recall/internal/types"
)

func TestL2_PutThenGet(t *testing.T) {
	dir := t.TempDir()
	l2, err := OpenL2(filepath.Join(dir, "state.json"), 2)
	if err != nil {
		t.Fatalf("OpenL2: %v", err)
	}
	l2.Put(types.Memory{ID: "mem-1", Content: "hello"})

	m, ok := l2.Get("mem-1")
	if !ok || m.Content != "hello" {
		t.Fatalf("expected mem-1 resident, got %+v ok=%v", m, ok)
	}
}

func TestL2_EvictsLRUTailOnOverflow(t *testing.T) {
	dir := t.TempDir()
	l2, err := OpenL2(filepath.Join(dir, "state.json"), 2)
	if err != nil {
		t.Fatalf("OpenL2: %v", err)
	}
	l2.Put(types.Memory{ID: "mem-1"})
	l2.Put(types.Memory{ID: "mem-2"})
	l2.Get("mem-1") // touch mem-1 so mem-2 becomes the LRU tail
	evicted := l2.Put(types.Memory{ID: "mem-3"})

	if len(evicted) != 1 || evicted[0].ID != "mem-2" {
		t.Fatalf("expected mem-2 evicted, got %+v", evicted)
	}
	if _, ok := l2.Get("mem-2"); ok {
		t.Fatal("mem-2 should no longer be resident")
	}
}

func TestL2_FlushAndReopenRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	l2, err := OpenL2(path, 10)
	if err != nil {
		t.Fatalf("OpenL2: %v", err)
	}
	l2.Put(types.Memory{ID: "mem-1", Content: "persisted"})
	if err := l2.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reopened, err := OpenL2(path, 10)
	if err != nil {
		t.Fatalf("reopen OpenL2: %v", err)
	}
	m, ok := reopened.Get("mem-1")
	if !ok || m.Content != "persisted" {
		t.Fatalf("expected mem-1 restored, got %+v ok=%v", m, ok)
	}
}
