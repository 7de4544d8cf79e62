package recall

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kittclouds/recall/internal/engine"
	"github.com/kittclouds/recall/internal/store"
	"github.com/kittclouds/recall/internal/types"
)

// openTestService boots a real Service against a scratch data root. Load
// defaults every env-backed setting, so this never touches the network:
// the cases below only exercise facade methods that stay on the graph and
// store paths, never the embedder or chatter.
func openTestService(t *testing.T) *Service {
	t.Helper()
	s, err := Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_ReturnsUsableService(t *testing.T) {
	s := openTestService(t)
	if s.eng == nil || s.cfg == nil {
		t.Fatal("Open returned a Service missing its engine or config")
	}
}

func TestService_UpsertFactFlagsAndLogsContradiction(t *testing.T) {
	s := openTestService(t)

	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	paris := types.EntityRef{Name: "Paris", Type: types.EntityPlace}
	london := types.EntityRef{Name: "London", Type: types.EntityPlace}

	first := types.Relation{ID: "f1", Subject: alice, Predicate: "lives_in", Object: paris, Status: types.FactActive, KnowledgeTime: 100}
	if _, err := s.UpsertFact(first); err != nil {
		t.Fatalf("UpsertFact first: %v", err)
	}

	// lives_in is a singular predicate, so the rule layer supersedes f1
	// with f2 outright instead of leaving the pair for manual resolution.
	second := types.Relation{ID: "f2", Subject: alice, Predicate: "lives_in", Object: london, Status: types.FactActive, KnowledgeTime: 200}
	contradiction, err := s.UpsertFact(second)
	if err != nil {
		t.Fatalf("UpsertFact second: %v", err)
	}
	if contradiction == nil {
		t.Fatal("expected a contradiction between the two lives_in facts")
	}

	logged := s.ListContradictions()
	if len(logged) != 1 || !logged[0].Resolved {
		t.Fatalf("expected one auto-resolved contradiction, got %+v", logged)
	}

	facts, err := s.AllRelations()
	if err != nil {
		t.Fatalf("AllRelations: %v", err)
	}
	var gotF1, gotF2 types.Relation
	for _, r := range facts {
		switch r.ID {
		case "f1":
			gotF1 = r
		case "f2":
			gotF2 = r
		}
	}
	if gotF1.Status != types.FactSuperseded || gotF1.SupersededBy != "f2" {
		t.Fatalf("expected f1 superseded by f2, got %+v", gotF1)
	}
	if gotF2.Status != types.FactActive {
		t.Fatalf("expected f2 active, got %+v", gotF2)
	}

	// An unknown contradiction id is a safe no-op, not an error.
	if err := s.ResolveContradiction("no-such-id", "f2"); err != nil {
		t.Fatalf("ResolveContradiction on unknown id: %v", err)
	}
}

func TestService_EntitiesAndGraphReads(t *testing.T) {
	s := openTestService(t)

	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	bob := types.EntityRef{Name: "Bob", Type: types.EntityPerson}
	rel := types.Relation{ID: "r1", Subject: alice, Predicate: "friend_of", Object: bob, Status: types.FactActive}
	if _, err := s.UpsertFact(rel); err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}

	// UpsertFact only writes the relation; entity records come from Add's
	// entity-recognition pass, so a bare fact insert leaves the graph's
	// entity index empty.
	if _, found, err := s.GetEntity(alice.Key()); err != nil || found {
		t.Fatalf("GetEntity: found=%v err=%v, expected no entity record yet", found, err)
	}

	all, err := s.AllRelations()
	if err != nil || len(all) != 1 {
		t.Fatalf("AllRelations: %+v err=%v", all, err)
	}
}

func TestService_ForeshadowingLifecycle(t *testing.T) {
	s := openTestService(t)

	f := s.PlantForeshadowing("char1", "a locked door", 0.8, nil, 1000)
	if f.State != types.ForeshadowingPlanted {
		t.Fatalf("expected PLANTED, got %s", f.State)
	}

	if err := s.AddForeshadowingHint(f.ID, "a key appears", 2000); err != nil {
		t.Fatalf("AddForeshadowingHint: %v", err)
	}

	active := s.ActiveForeshadowings("char1")
	if len(active) != 1 || active[0].State != types.ForeshadowingDeveloping {
		t.Fatalf("expected one DEVELOPING item, got %+v", active)
	}

	if err := s.ResolveForeshadowing(f.ID, "the door opens", 3000); err != nil {
		t.Fatalf("ResolveForeshadowing: %v", err)
	}
	if remaining := s.ActiveForeshadowings("char1"); len(remaining) != 0 {
		t.Fatalf("expected no active foreshadowings after resolution, got %+v", remaining)
	}
}

func TestService_PersistentContextUpsertAndTouch(t *testing.T) {
	s := openTestService(t)

	item := types.PersistentContextItem{
		Type:       types.PCRelationship,
		Content:    "Alice and Bob are rivals",
		Confidence: 1,
		LastSeenAt: 1000,
	}
	id, evicted, err := s.UpsertPersistentContext(item)
	if err != nil {
		t.Fatalf("UpsertPersistentContext: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty id")
	}
	if len(evicted) != 0 {
		t.Fatalf("did not expect evictions on first insert, got %+v", evicted)
	}

	s.TouchPersistentContext(id, 2000)

	active := s.ActivePersistentContext(types.PCRelationship)
	found := false
	for _, it := range active {
		if it.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s among active relationship items, got %+v", id, active)
	}
}

func TestService_ListOnEmptyStoreAndDeleteUnknown(t *testing.T) {
	s := openTestService(t)

	listed := s.List(engine.ListFilters{UserID: "u1"}, engine.Page{Limit: 10})
	if len(listed) != 0 {
		t.Fatalf("expected no memories in a fresh store, got %+v", listed)
	}

	if err := s.Delete("does-not-exist", store.DeleteLogical); err != nil {
		t.Fatalf("Delete should no-op for an unknown memory id, got: %v", err)
	}
}

func TestService_StatsAndMode(t *testing.T) {
	s := openTestService(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.MemoriesTotal != 0 {
		t.Fatalf("expected an empty store, got %+v", stats)
	}

	mode := s.Mode()
	if mode.RecallMode == "" {
		t.Fatalf("expected a resolved mode, got %+v", mode)
	}
}

func TestService_RunMaintenanceDoesNotPanic(t *testing.T) {
	s := openTestService(t)
	s.RunMaintenance(context.Background())
}
