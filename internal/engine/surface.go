package engine

import (
	"github.com/kittclouds/recall/internal/graph"
	"github.com/kittclouds/recall/internal/types"
)

// GetEntity looks up one entity by its (type, name) key.
func (e *Engine) GetEntity(key string) (types.Entity, bool, error) {
	return e.kgraph.GetEntity(key)
}

// UpsertEntity registers or refreshes one entity record. Add's own
// entity-recognition pass calls the graph directly for the same effect;
// this is the entry point for entities a caller has recognized some other
// way (an LLM extraction pass, a manual note) and wants registered without
// going through a full memory ingest.
func (e *Engine) UpsertEntity(entity types.Entity) (string, error) {
	return e.kgraph.UpsertEntity(entity)
}

// ListEntities returns every entity whose key starts with prefix ("" for
// all of them).
func (e *Engine) ListEntities(prefix string) ([]types.Entity, error) {
	return e.kgraph.ListEntities(prefix)
}

// AllRelations returns every relation regardless of status.
func (e *Engine) AllRelations() ([]types.Relation, error) {
	return e.kgraph.AllRelations()
}

// Traverse runs a budgeted BFS from seed entity keys.
func (e *Engine) Traverse(seeds []string, depth int, direction graph.Direction, predicateFilter func(string) bool, since, until *int64) ([]graph.PathNode, error) {
	return e.kgraph.Traverse(seeds, depth, direction, predicateFilter, since, until)
}

// FactsAsOf returns every relation active at time t.
func (e *Engine) FactsAsOf(t int64) ([]types.Relation, error) {
	return e.kgraph.QueryAtTime(t)
}

// PlantForeshadowing manually creates a PLANTED item.
func (e *Engine) PlantForeshadowing(characterID, content string, importance float64, related []types.EntityRef, now int64) types.Foreshadowing {
	return e.foreshadow.Plant(characterID, content, importance, related, now)
}

// AddForeshadowingHint appends a hint, moving PLANTED to DEVELOPING.
func (e *Engine) AddForeshadowingHint(id, hint string, now int64) error {
	return e.foreshadow.AddHint(id, hint, now)
}

// ResolveForeshadowing marks an item RESOLVED.
func (e *Engine) ResolveForeshadowing(id, evidence string, now int64) error {
	return e.foreshadow.Resolve(id, evidence, now)
}

// AbandonForeshadowing marks an item ABANDONED.
func (e *Engine) AbandonForeshadowing(id string, now int64) error {
	return e.foreshadow.Abandon(id, now)
}

// ActiveForeshadowings returns characterID's PLANTED and DEVELOPING items.
func (e *Engine) ActiveForeshadowings(characterID string) []types.Foreshadowing {
	return e.foreshadow.GetActive(characterID)
}

// UpsertPersistentContext inserts or refreshes a persistent-context item,
// enforcing the per-type and total caps.
func (e *Engine) UpsertPersistentContext(item types.PersistentContextItem) (string, []string, error) {
	return e.persistent.Upsert(item)
}

// TouchPersistentContext resets an item's decay clock.
func (e *Engine) TouchPersistentContext(id string, now int64) {
	e.persistent.Touch(id, now)
}

// ActivePersistentContext returns every active item of the given type.
func (e *Engine) ActivePersistentContext(pcType types.PersistentContextType) []types.PersistentContextItem {
	return e.persistent.GetActive(pcType)
}
