package graph

import (
	"testing"

	"github.com/kittclouds/recall/internal/types"
)

func TestEmbeddedBackend_UpsertAndGetEntity(t *testing.T) {
	b, err := NewEmbeddedBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewEmbeddedBackend: %v", err)
	}
	defer b.Close()

	entity := types.Entity{Name: "Alice", Type: types.EntityPerson}
	if err := b.UpsertEntity(entity); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	got, found, err := b.GetEntity(entity.Key())
	if err != nil || !found || got.Name != "Alice" {
		t.Fatalf("GetEntity: got=%+v found=%v err=%v", got, found, err)
	}
}

func TestEmbeddedBackend_FindActiveByTripleIgnoresSuperseded(t *testing.T) {
	b, err := NewEmbeddedBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewEmbeddedBackend: %v", err)
	}
	defer b.Close()

	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	paris := types.EntityRef{Name: "Paris", Type: types.EntityPlace}
	old := types.Relation{ID: "r1", Subject: alice, Predicate: "lives_in", Object: paris, Status: types.FactSuperseded}
	if err := b.UpsertRelation(old); err != nil {
		t.Fatalf("UpsertRelation old: %v", err)
	}

	_, found, err := b.FindActiveByTriple(old.Triple())
	if err != nil {
		t.Fatalf("FindActiveByTriple: %v", err)
	}
	if found {
		t.Fatal("superseded fact should not be returned as active")
	}

	london := types.EntityRef{Name: "London", Type: types.EntityPlace}
	fresh := types.Relation{ID: "r2", Subject: alice, Predicate: "lives_in", Object: london, Status: types.FactActive}
	if err := b.UpsertRelation(fresh); err != nil {
		t.Fatalf("UpsertRelation fresh: %v", err)
	}
	got, found, err := b.FindActiveByTriple(fresh.Triple())
	if err != nil || !found || got.ID != "r2" {
		t.Fatalf("expected fresh active relation, got %+v found=%v err=%v", got, found, err)
	}
}

func TestEmbeddedBackend_FindActiveBySubjectPredicateSurvivesSupersession(t *testing.T) {
	b, err := NewEmbeddedBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewEmbeddedBackend: %v", err)
	}
	defer b.Close()

	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	paris := types.EntityRef{Name: "Paris", Type: types.EntityPlace}
	london := types.EntityRef{Name: "London", Type: types.EntityPlace}

	old := types.Relation{ID: "r1", Subject: alice, Predicate: "lives_in", Object: paris, Status: types.FactActive}
	if err := b.UpsertRelation(old); err != nil {
		t.Fatalf("UpsertRelation old: %v", err)
	}
	got, found, err := b.FindActiveBySubjectPredicate(alice.Key(), "lives_in")
	if err != nil || !found || got.ID != "r1" {
		t.Fatalf("expected r1 active, got %+v found=%v err=%v", got, found, err)
	}

	old.Status = types.FactSuperseded
	old.SupersededBy = "r2"
	if err := b.UpsertRelation(old); err != nil {
		t.Fatalf("UpsertRelation superseded old: %v", err)
	}
	newer := types.Relation{ID: "r2", Subject: alice, Predicate: "lives_in", Object: london, Status: types.FactActive}
	if err := b.UpsertRelation(newer); err != nil {
		t.Fatalf("UpsertRelation newer: %v", err)
	}

	got, found, err = b.FindActiveBySubjectPredicate(alice.Key(), "lives_in")
	if err != nil || !found || got.ID != "r2" {
		t.Fatalf("expected r2 active after supersession, got %+v found=%v err=%v", got, found, err)
	}

	if _, found, err := b.FindActiveBySubjectPredicate(alice.Key(), "works_at"); err != nil || found {
		t.Fatalf("expected no match for a different predicate, found=%v err=%v", found, err)
	}
}

func TestEmbeddedBackend_RelationsByEntityAndAllRelations(t *testing.T) {
	b, err := NewEmbeddedBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewEmbeddedBackend: %v", err)
	}
	defer b.Close()

	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	bob := types.EntityRef{Name: "Bob", Type: types.EntityPerson}
	rel := types.Relation{ID: "r1", Subject: alice, Predicate: "friend_of", Object: bob, Status: types.FactActive}
	if err := b.UpsertRelation(rel); err != nil {
		t.Fatalf("UpsertRelation: %v", err)
	}

	forAlice, err := b.RelationsByEntity(alice.Key())
	if err != nil || len(forAlice) != 1 {
		t.Fatalf("RelationsByEntity(alice): %+v err=%v", forAlice, err)
	}
	forBob, err := b.RelationsByEntity(bob.Key())
	if err != nil || len(forBob) != 1 {
		t.Fatalf("RelationsByEntity(bob): %+v err=%v", forBob, err)
	}

	all, err := b.AllRelations()
	if err != nil || len(all) != 1 {
		t.Fatalf("AllRelations: %+v err=%v", all, err)
	}
}
