package indexes

import "testing"

func TestBM25_QueryRanksMoreFrequentTermHigher(t *testing.T) {
	idx := NewBM25(0, 0)
	idx.Add("mem-1", "dog dog dog cat")
	idx.Add("mem-2", "dog cat cat cat")

	resultsDog := idx.Query("dog", 10)
	if len(resultsDog) != 2 || resultsDog[0].MemoryID != "mem-1" {
		t.Fatalf("expected mem-1 to rank highest for 'dog', got %+v", resultsDog)
	}
}

func TestBM25_RemoveExcludesDocument(t *testing.T) {
	idx := NewBM25(0, 0)
	idx.Add("mem-1", "unique content here")
	if err := idx.Remove("mem-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if results := idx.Query("unique", 10); len(results) != 0 {
		t.Fatalf("expected no results after remove, got %+v", results)
	}
}

func TestBM25_ScoreZeroForNoOverlap(t *testing.T) {
	idx := NewBM25(0, 0)
	idx.Add("mem-1", "alpha beta gamma")
	if score := idx.Score("mem-1", "delta"); score != 0 {
		t.Fatalf("expected 0 score for no overlap, got %v", score)
	}
}

func TestBM25_SnapshotLoadRoundTrip(t *testing.T) {
	idx := NewBM25(0, 0)
	idx.Add("mem-1", "persisted content")

	data, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := NewBM25(0, 0)
	if err := restored.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if results := restored.Query("persisted", 10); len(results) != 1 {
		t.Fatalf("expected 1 result after load, got %+v", results)
	}
}
