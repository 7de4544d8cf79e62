package indexes

import "testing"

func TestInverted_QueryFindsMatchingToken(t *testing.T) {
	idx := NewInverted()
	idx.Add("mem-1", "the quick brown fox")
	idx.Add("mem-2", "a lazy dog sleeps")

	results := idx.Query("fox", 10)
	if len(results) != 1 || results[0].MemoryID != "mem-1" {
		t.Fatalf("expected mem-1 only, got %+v", results)
	}
}

func TestInverted_RemoveClearsPostings(t *testing.T) {
	idx := NewInverted()
	idx.Add("mem-1", "alpha beta")
	if err := idx.Remove("mem-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if results := idx.Query("alpha", 10); len(results) != 0 {
		t.Fatalf("expected no results after remove, got %+v", results)
	}
}

func TestInverted_TopKTruncation(t *testing.T) {
	idx := NewInverted()
	for i := 0; i < 5; i++ {
		idx.Add(string(rune('a'+i)), "shared term")
	}
	if results := idx.Query("shared", 2); len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestInverted_SnapshotLoadRoundTrip(t *testing.T) {
	idx := NewInverted()
	idx.Add("mem-1", "persisted content here")

	data, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := NewInverted()
	if err := restored.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if results := restored.Query("persisted", 10); len(results) != 1 {
		t.Fatalf("expected 1 result after load, got %+v", results)
	}
	if err := restored.Remove("mem-1"); err != nil {
		t.Fatalf("Remove after Load: %v", err)
	}
	if results := restored.Query("persisted", 10); len(results) != 0 {
		t.Fatalf("expected reverse map to be rebuilt on Load, got %+v", results)
	}
}
