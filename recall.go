// Package recall is the transport-neutral public surface: one Service
// wrapping the engine, grouped the way a caller actually uses it (ingest,
// search, facts, foreshadowing, persistent context, entities, episodes,
// stats, maintenance). Whatever sits in front of it — an HTTP handler, a
// gRPC server, a CLI, a WASM binding — talks to this package, never to
// internal/engine directly.
package recall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kittclouds/recall/internal/analyzers"
	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/engine"
	"github.com/kittclouds/recall/internal/graph"
	"github.com/kittclouds/recall/internal/store"
	"github.com/kittclouds/recall/internal/types"
)

// Service is Recall: one engine plus the configuration it was opened with.
type Service struct {
	eng *engine.Engine
	cfg *config.Config
}

// Open loads config from dataRoot and wires every subsystem into a ready
// Service. Close must be called to release the store/graph file handles.
func Open(dataRoot string, log zerolog.Logger) (*Service, error) {
	cfg, err := config.Load(dataRoot)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Service{eng: eng, cfg: cfg}, nil
}

// Close releases the store and graph file handles.
func (s *Service) Close() error { return s.eng.Close() }

// =============================================================================
// Ingest
// =============================================================================

// Add stores one turn through the full ingest pipeline: tokenize, embed,
// dedup, store, index, and hand off to the async analyzer pass.
func (s *Service) Add(ctx context.Context, in engine.AddInput) (engine.AddResult, error) {
	return s.eng.Add(ctx, in)
}

// AddBatch runs Add once per item, best-effort, returning every result
// plus the first error encountered.
func (s *Service) AddBatch(ctx context.Context, items []engine.AddInput) ([]engine.AddResult, error) {
	return s.eng.AddBatch(ctx, items)
}

// AddTurn stores a user message and its assistant reply as two ordinary
// turns in the same session, returning both memory ids.
func (s *Service) AddTurn(ctx context.Context, userText, assistantText, userID, sessionID string) (userMemoryID, assistantMemoryID string, err error) {
	return s.eng.AddTurn(ctx, userText, assistantText, userID, sessionID)
}

// Delete removes a memory. Logical mode drops it from the L2 working set
// only; it stays in the search indexes, L1 and the archive, and no
// tombstone is kept. Physical mode also removes it from L1, the address
// index and every search index, and forgets it in the deduper.
func (s *Service) Delete(memoryID string, mode store.DeleteMode) error {
	return s.eng.Delete(memoryID, mode)
}

// List runs a filtered, paginated scan over stored memories.
func (s *Service) List(filters engine.ListFilters, page engine.Page) []types.Memory {
	return s.eng.List(filters, page)
}

// =============================================================================
// Search and context
// =============================================================================

// Search runs the retrieval funnel and assembles the ranked context block
// ready to hand to a generation call.
func (s *Service) Search(ctx context.Context, in engine.SearchInput) (engine.SearchResult, error) {
	return s.eng.Search(ctx, in)
}

// BuildContext runs the same retrieval Search does but renders with a
// caller-supplied token budget instead of the configured default.
func (s *Service) BuildContext(ctx context.Context, query, userID, sessionID string, budgetTokens int) (string, error) {
	return s.eng.BuildContext(ctx, query, userID, sessionID, budgetTokens)
}

// CheckConsistency runs a candidate output against the compiled absolute
// rules, for callers that want to validate generated text before showing it.
func (s *Service) CheckConsistency(output string) analyzers.CheckResult {
	return s.eng.CheckConsistency(output)
}

// =============================================================================
// Facts and contradictions
// =============================================================================

// UpsertFact inserts or supersedes a caller-supplied structured fact,
// returning the contradiction record if the new fact conflicted with an
// existing active one.
func (s *Service) UpsertFact(fact types.Relation) (*types.Contradiction, error) {
	return s.eng.UpsertFact(fact)
}

// ExtractFacts runs one LLM extraction pass over text, registers every
// entity it recognizes, and upserts every relation it recognizes as a
// fact. It does not store content as a Memory; call Add first if the
// text itself should also be retrievable.
func (s *Service) ExtractFacts(ctx context.Context, content string) ([]types.Relation, []*types.Contradiction, error) {
	return s.eng.ExtractFacts(ctx, content)
}

// ListContradictions returns every contradiction logged since Open.
func (s *Service) ListContradictions() []types.Contradiction {
	return s.eng.ListContradictions()
}

// ResolveContradiction applies a human's pick of winner for a previously
// logged contradiction, superseding the other fact.
func (s *Service) ResolveContradiction(contradictionID, keepFactID string) error {
	return s.eng.ResolveContradiction(contradictionID, keepFactID)
}

// FactsAsOf returns every relation active at time t.
func (s *Service) FactsAsOf(t int64) ([]types.Relation, error) {
	return s.eng.FactsAsOf(t)
}

// =============================================================================
// Entities and graph
// =============================================================================

// GetEntity looks up one entity by its (type, name) key.
func (s *Service) GetEntity(key string) (types.Entity, bool, error) {
	return s.eng.GetEntity(key)
}

// ListEntities returns every entity whose key starts with prefix.
func (s *Service) ListEntities(prefix string) ([]types.Entity, error) {
	return s.eng.ListEntities(prefix)
}

// AllRelations returns every relation regardless of status.
func (s *Service) AllRelations() ([]types.Relation, error) {
	return s.eng.AllRelations()
}

// Traverse runs a budgeted BFS from seed entity keys.
func (s *Service) Traverse(seeds []string, depth int, direction graph.Direction, predicateFilter func(string) bool, since, until *int64) ([]graph.PathNode, error) {
	return s.eng.Traverse(seeds, depth, direction, predicateFilter, since, until)
}

// =============================================================================
// Foreshadowing
// =============================================================================

// PlantForeshadowing manually creates a PLANTED item.
func (s *Service) PlantForeshadowing(characterID, content string, importance float64, related []types.EntityRef, now int64) types.Foreshadowing {
	return s.eng.PlantForeshadowing(characterID, content, importance, related, now)
}

// AddForeshadowingHint appends a hint, moving PLANTED to DEVELOPING.
func (s *Service) AddForeshadowingHint(id, hint string, now int64) error {
	return s.eng.AddForeshadowingHint(id, hint, now)
}

// ResolveForeshadowing marks an item RESOLVED.
func (s *Service) ResolveForeshadowing(id, evidence string, now int64) error {
	return s.eng.ResolveForeshadowing(id, evidence, now)
}

// AbandonForeshadowing marks an item ABANDONED.
func (s *Service) AbandonForeshadowing(id string, now int64) error {
	return s.eng.AbandonForeshadowing(id, now)
}

// ActiveForeshadowings returns characterID's PLANTED and DEVELOPING items.
func (s *Service) ActiveForeshadowings(characterID string) []types.Foreshadowing {
	return s.eng.ActiveForeshadowings(characterID)
}

// =============================================================================
// Persistent context
// =============================================================================

// UpsertPersistentContext inserts or refreshes a persistent-context item,
// enforcing the per-type and total caps.
func (s *Service) UpsertPersistentContext(item types.PersistentContextItem) (id string, evicted []string, err error) {
	return s.eng.UpsertPersistentContext(item)
}

// TouchPersistentContext resets an item's decay clock.
func (s *Service) TouchPersistentContext(id string, now int64) {
	s.eng.TouchPersistentContext(id, now)
}

// ActivePersistentContext returns every active item of the given type.
func (s *Service) ActivePersistentContext(pcType types.PersistentContextType) []types.PersistentContextItem {
	return s.eng.ActivePersistentContext(pcType)
}

// =============================================================================
// Episodes, stats, mode
// =============================================================================

// Episodes returns the closed episodes tracked for one (user, session) pair.
func (s *Service) Episodes(userID, sessionID string) []engine.Episode {
	return s.eng.Episodes(userID, sessionID)
}

// Stats assembles the ten-counter report across store, graph, dedup and
// the controller's own contradiction/call counters.
func (s *Service) Stats() (engine.Stats, error) {
	return s.eng.Stats()
}

// Mode reports the resolved recall mode and sub-switch sources.
func (s *Service) Mode() engine.ModeReport {
	return s.eng.Mode()
}

// =============================================================================
// Maintenance
// =============================================================================

// RunMaintenance submits the periodic sweep as background tasks:
// persistent-context decay, plus L1-migration, volume-compaction and
// budget-reset tasks that do no work of their own. It does not retry
// episode summaries or check foreshadowing staleness.
func (s *Service) RunMaintenance(ctx context.Context) {
	s.eng.RunMaintenance(ctx)
}
