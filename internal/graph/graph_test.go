package graph

import (
	"path/filepath"
	"testing"

	"github.com/kittclouds/recall/internal/types"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "kg.json"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	n := 0
	manager := NewContradictionManager(StrategyRule, nil, func() string {
		n++
		return "c" + string(rune('0'+n))
	})
	return New(backend, manager)
}

func int64Ptr(v int64) *int64 { return &v }

func TestGraph_UpsertEntityMergesAliasesAndBumpsMentionCount(t *testing.T) {
	g := newTestGraph(t)
	first := types.Entity{Name: "Alice", Type: types.EntityPerson, Aliases: []string{"Al"}}
	if _, err := g.UpsertEntity(first); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	second := types.Entity{Name: "Alice", Type: types.EntityPerson, Aliases: []string{"Ally"}}
	key, err := g.UpsertEntity(second)
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}

	got, found, err := g.GetEntity(key)
	if err != nil || !found {
		t.Fatalf("GetEntity: found=%v err=%v", found, err)
	}
	if got.MentionCount != 2 {
		t.Fatalf("expected mention count 2, got %d", got.MentionCount)
	}
	if len(got.Aliases) != 2 {
		t.Fatalf("expected merged aliases, got %v", got.Aliases)
	}
}

func TestGraph_UpsertRelationNoConflictInsertsDirectly(t *testing.T) {
	g := newTestGraph(t)
	rel := types.Relation{
		ID:        "r1",
		Subject:   types.EntityRef{Name: "Alice", Type: types.EntityPerson},
		Predicate: "lives_in",
		Object:    types.EntityRef{Name: "Paris", Type: types.EntityPlace},
	}
	contradiction, err := g.UpsertRelation(rel)
	if err != nil {
		t.Fatalf("UpsertRelation: %v", err)
	}
	if contradiction != nil {
		t.Fatalf("expected no contradiction on first insert, got %+v", contradiction)
	}
}

func TestGraph_UpsertRelationTimelineSupersedesOlder(t *testing.T) {
	g := newTestGraph(t)
	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	paris := types.EntityRef{Name: "Paris", Type: types.EntityPlace}
	london := types.EntityRef{Name: "London", Type: types.EntityPlace}

	old := types.Relation{ID: "r1", Subject: alice, Predicate: "lives_in", Object: paris, FactTime: int64Ptr(100)}
	if _, err := g.UpsertRelation(old); err != nil {
		t.Fatalf("UpsertRelation old: %v", err)
	}

	newer := types.Relation{ID: "r2", Subject: alice, Predicate: "lives_in", Object: london, FactTime: int64Ptr(200)}
	contradiction, err := g.UpsertRelation(newer)
	if err != nil {
		t.Fatalf("UpsertRelation newer: %v", err)
	}
	if contradiction == nil {
		t.Fatal("expected a contradiction record for conflicting triple")
	}
	if contradiction.Strategy != types.ResolveSupersede {
		t.Fatalf("expected SUPERSEDE, got %s", contradiction.Strategy)
	}

	active, found, err := g.backend.FindActiveByTriple(newer.Triple())
	if err != nil || !found || active.ID != "r2" {
		t.Fatalf("expected r2 active, got %+v found=%v err=%v", active, found, err)
	}
}

func TestGraph_TraverseRespectsDepthAndDirection(t *testing.T) {
	g := newTestGraph(t)
	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	bob := types.EntityRef{Name: "Bob", Type: types.EntityPerson}
	carol := types.EntityRef{Name: "Carol", Type: types.EntityPerson}

	if _, err := g.UpsertRelation(types.Relation{ID: "r1", Subject: alice, Predicate: "friend_of", Object: bob}); err != nil {
		t.Fatalf("UpsertRelation: %v", err)
	}
	if _, err := g.UpsertRelation(types.Relation{ID: "r2", Subject: bob, Predicate: "friend_of", Object: carol}); err != nil {
		t.Fatalf("UpsertRelation: %v", err)
	}

	oneHop, err := g.Traverse([]string{alice.Key()}, 1, DirBoth, nil, nil, nil)
	if err != nil {
		t.Fatalf("Traverse depth 1: %v", err)
	}
	if containsKey(oneHop, carol.Key()) {
		t.Fatalf("carol should not be reachable at depth 1, got %+v", oneHop)
	}

	twoHop, err := g.Traverse([]string{alice.Key()}, 2, DirBoth, nil, nil, nil)
	if err != nil {
		t.Fatalf("Traverse depth 2: %v", err)
	}
	if !containsKey(twoHop, carol.Key()) {
		t.Fatalf("carol should be reachable at depth 2, got %+v", twoHop)
	}
}

func containsKey(nodes []PathNode, key string) bool {
	for _, n := range nodes {
		if n.Key == key {
			return true
		}
	}
	return false
}

func TestGraph_QueryAtTimeExcludesFutureAndSupersededFacts(t *testing.T) {
	g := newTestGraph(t)
	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	paris := types.EntityRef{Name: "Paris", Type: types.EntityPlace}
	london := types.EntityRef{Name: "London", Type: types.EntityPlace}

	if _, err := g.UpsertRelation(types.Relation{ID: "r1", Subject: alice, Predicate: "lives_in", Object: paris, FactTime: int64Ptr(100)}); err != nil {
		t.Fatalf("UpsertRelation: %v", err)
	}
	if _, err := g.UpsertRelation(types.Relation{ID: "r2", Subject: alice, Predicate: "lives_in", Object: london, FactTime: int64Ptr(200)}); err != nil {
		t.Fatalf("UpsertRelation: %v", err)
	}

	atEarly, err := g.QueryAtTime(150)
	if err != nil {
		t.Fatalf("QueryAtTime(150): %v", err)
	}
	if len(atEarly) != 1 || atEarly[0].ID != "r1" {
		t.Fatalf("expected only r1 active at t=150, got %+v", atEarly)
	}

	atLate, err := g.QueryAtTime(250)
	if err != nil {
		t.Fatalf("QueryAtTime(250): %v", err)
	}
	if len(atLate) != 1 || atLate[0].ID != "r2" {
		t.Fatalf("expected only r2 active at t=250, got %+v", atLate)
	}
}

func TestGraph_CommunitiesGroupsConnectedEntities(t *testing.T) {
	g := newTestGraph(t)
	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	bob := types.EntityRef{Name: "Bob", Type: types.EntityPerson}
	zed := types.EntityRef{Name: "Zed", Type: types.EntityPerson}

	if _, err := g.UpsertRelation(types.Relation{ID: "r1", Subject: alice, Predicate: "friend_of", Object: bob}); err != nil {
		t.Fatalf("UpsertRelation: %v", err)
	}

	communities, err := g.Communities(AlgoConnected)
	if err != nil {
		t.Fatalf("Communities: %v", err)
	}
	if communities[alice.Key()] != communities[bob.Key()] {
		t.Fatalf("expected alice and bob in the same community: %+v", communities)
	}
	if _, present := communities[zed.Key()]; present {
		t.Fatalf("zed has no relations and should not appear: %+v", communities)
	}
}
