package indexes

import "testing"

func TestNGram_ExactMatchScoresHighest(t *testing.T) {
	idx := NewNGram()
	idx.Add("mem-1", "hello world")
	idx.Add("mem-2", "goodbye moon")

	results := idx.Query("hello world", 10)
	if len(results) == 0 || results[0].MemoryID != "mem-1" {
		t.Fatalf("expected mem-1 top result, got %+v", results)
	}
}

func TestNGram_RemoveClearsPostings(t *testing.T) {
	idx := NewNGram()
	idx.Add("mem-1", "unique phrase")
	if err := idx.Remove("mem-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	results := idx.Query("unique phrase", 10)
	for _, r := range results {
		if r.MemoryID == "mem-1" {
			t.Fatalf("mem-1 should have been removed, got %+v", results)
		}
	}
}

func TestNGram_SnapshotLoadRoundTrip(t *testing.T) {
	idx := NewNGram()
	idx.Add("mem-1", "persisted phrase here")

	data, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := NewNGram()
	if err := restored.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
	results := restored.Query("persisted phrase here", 10)
	if len(results) == 0 {
		t.Fatal("expected results after Load")
	}
}
