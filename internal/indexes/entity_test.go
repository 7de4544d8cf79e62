package indexes

import (
	"testing"

	"github.com/kittclouds/recall/internal/types"
)

func TestEntity_QueryScoresByFractionMatched(t *testing.T) {
	idx := NewEntity()
	idx.Add("mem-1", []types.EntityRef{
		{Name: "Alice", Type: types.EntityPerson},
		{Name: "Acme", Type: types.EntityOrg},
	})
	idx.Add("mem-2", []types.EntityRef{{Name: "Alice", Type: types.EntityPerson}})

	results := idx.Query([]types.EntityRef{
		{Name: "Alice", Type: types.EntityPerson},
		{Name: "Acme", Type: types.EntityOrg},
	}, 10)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if results[0].MemoryID != "mem-1" || results[0].Score != 1.0 {
		t.Fatalf("expected mem-1 to score 1.0 first, got %+v", results[0])
	}
}

func TestEntity_RemoveClearsPostings(t *testing.T) {
	idx := NewEntity()
	refs := []types.EntityRef{{Name: "Bob", Type: types.EntityPerson}}
	idx.Add("mem-1", refs)
	if err := idx.Remove("mem-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if results := idx.Query(refs, 10); len(results) != 0 {
		t.Fatalf("expected no results after remove, got %+v", results)
	}
}
