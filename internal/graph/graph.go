// Package graph implements the knowledge graph: entities and relations
// from the data model, two interchangeable storage backends (a JSON file
// and an embedded badger-backed store), BFS traversal, time-sliced
// queries, lazy community detection, and the contradiction manager that
// upsert_relation consults before inserting a fact.
package graph

import (
	"sort"
	"sync"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/types"
)

// Direction constrains a traversal to outgoing edges, incoming edges, or
// both.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// Backend is the storage contract both graph backends satisfy. The Graph
// type above it owns locking, contradiction handling, and traversal; a
// Backend only persists and looks up entities/relations.
type Backend interface {
	UpsertEntity(entity types.Entity) error
	GetEntity(key string) (types.Entity, bool, error)
	DeleteEntity(key string) error
	ListEntities(prefix string) ([]types.Entity, error)

	UpsertRelation(rel types.Relation) error
	FindActiveByTriple(triple string) (types.Relation, bool, error)
	FindActiveBySubjectPredicate(subjectKey, predicate string) (types.Relation, bool, error)
	RelationsByEntity(key string) ([]types.Relation, error)
	AllRelations() ([]types.Relation, error)

	Close() error
}

// Graph is the knowledge graph: a Backend plus the contradiction manager,
// its own read-write lock (acquired store-then-graph per the fixed lock
// ordering the concurrency model requires), and a dirty flag gating lazy
// community recomputation.
type Graph struct {
	mu      sync.RWMutex
	backend Backend
	manager *ContradictionManager

	communityDirty bool
	communityCache map[string]int
}

// New wires a Backend and ContradictionManager into a Graph.
func New(backend Backend, manager *ContradictionManager) *Graph {
	return &Graph{backend: backend, manager: manager, communityDirty: true}
}

// Lock/Unlock expose the graph's own read-write lock so the controller can
// hold store-read-lock then graph-write-lock in the fixed order the
// concurrency model requires for upsert_relation.
func (g *Graph) Lock()    { g.mu.Lock() }
func (g *Graph) Unlock()  { g.mu.Unlock() }
func (g *Graph) RLock()   { g.mu.RLock() }
func (g *Graph) RUnlock() { g.mu.RUnlock() }

// UpsertEntity merges by (name, type) key; aliases extend the entity's
// alias list rather than replacing it.
func (g *Graph) UpsertEntity(entity types.Entity) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := entity.Key()
	existing, found, err := g.backend.GetEntity(key)
	if err != nil {
		return "", err
	}
	if found {
		entity.MentionCount = existing.MentionCount + 1
		entity.CreatedAt = existing.CreatedAt
		entity.Aliases = mergeAliases(existing.Aliases, entity.Aliases)
		if entity.Summary == "" {
			entity.Summary = existing.Summary
		}
	} else {
		entity.MentionCount = 1
	}
	if err := g.backend.UpsertEntity(entity); err != nil {
		return "", err
	}
	g.communityDirty = true
	return key, nil
}

func mergeAliases(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string{}, existing...)
	for _, a := range existing {
		seen[a] = struct{}{}
	}
	for _, a := range incoming {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// GetEntity looks up an entity by its (type, name) key.
func (g *Graph) GetEntity(key string) (types.Entity, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend.GetEntity(key)
}

// UpsertRelation looks for an ACTIVE fact sharing the incoming fact's
// subject and predicate; if one exists the contradiction manager judges
// the pair (same object or not) before either superseding, storing the new
// fact ACTIVE beside the existing one for COEXIST (neither fact carries a
// COEXIST label), rejecting the new fact, or leaving it for manual review.
// Otherwise the fact is inserted directly as ACTIVE. The lookup
// deliberately ignores the object: a subject+predicate match with a
// different object is exactly the contradiction the manager exists to
// catch, so keying the lookup on the full triple (as FindActiveByTriple
// does) would never surface it.
func (g *Graph) UpsertRelation(fact types.Relation) (*types.Contradiction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if fact.Status == "" {
		fact.Status = types.FactActive
	}

	existing, found, err := g.backend.FindActiveBySubjectPredicate(fact.Subject.Key(), fact.Predicate)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := g.backend.UpsertRelation(fact); err != nil {
			return nil, err
		}
		g.communityDirty = true
		return nil, nil
	}

	contradiction, err := g.manager.Evaluate(existing, fact)
	if err != nil {
		return nil, err
	}

	switch contradiction.Strategy {
	case types.ResolveSupersede:
		existing.Status = types.FactSuperseded
		existing.SupersededBy = fact.ID
		if err := g.backend.UpsertRelation(existing); err != nil {
			return nil, err
		}
		if err := g.backend.UpsertRelation(fact); err != nil {
			return nil, err
		}
	case types.ResolveCoexist:
		if err := g.backend.UpsertRelation(fact); err != nil {
			return nil, err
		}
	case types.ResolveReject:
		fact.Status = types.FactRejected
		if err := g.backend.UpsertRelation(fact); err != nil {
			return nil, err
		}
	case types.ResolveManual:
		// Left as-is: neither fact's status changes until a human resolves
		// the Contradiction record.
	}

	contradiction.Resolved = contradiction.Strategy != types.ResolveManual
	g.communityDirty = true
	return &contradiction, nil
}

// PathNode is one discovered node plus the path of entity keys taken to
// reach it from a seed, for traverse's return shape.
type PathNode struct {
	Key  string
	Path []string
}

// Traverse runs a budgeted BFS from the seed entities, deduplicating
// visited nodes, optionally filtered by edge predicate and/or a
// [since,until] fact_time window.
func (g *Graph) Traverse(seeds []string, depth int, direction Direction, predicateFilter func(string) bool, since, until *int64) ([]PathNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string][]string, len(seeds))
	var frontier []PathNode
	for _, s := range seeds {
		visited[s] = []string{s}
		frontier = append(frontier, PathNode{Key: s, Path: []string{s}})
	}

	var out []PathNode
	out = append(out, frontier...)

	for step := 0; step < depth && len(frontier) > 0; step++ {
		var next []PathNode
		for _, node := range frontier {
			rels, err := g.backend.RelationsByEntity(node.Key)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				if predicateFilter != nil && !predicateFilter(rel.Predicate) {
					continue
				}
				if !withinTimeWindow(rel, since, until) {
					continue
				}
				neighbor, ok := neighborOf(rel, node.Key, direction)
				if !ok {
					continue
				}
				if _, seen := visited[neighbor]; seen {
					continue
				}
				path := append(append([]string{}, node.Path...), neighbor)
				visited[neighbor] = path
				pn := PathNode{Key: neighbor, Path: path}
				next = append(next, pn)
				out = append(out, pn)
			}
		}
		frontier = next
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func withinTimeWindow(rel types.Relation, since, until *int64) bool {
	if since == nil && until == nil {
		return true
	}
	if rel.FactTime == nil {
		return false
	}
	t := *rel.FactTime
	if since != nil && t < *since {
		return false
	}
	if until != nil && t > *until {
		return false
	}
	return true
}

func neighborOf(rel types.Relation, from string, direction Direction) (string, bool) {
	subjectKey := rel.Subject.Key()
	objectKey := rel.Object.Key()
	switch {
	case subjectKey == from && (direction == DirOut || direction == DirBoth):
		if objectKey == ":" {
			return "", false
		}
		return objectKey, true
	case objectKey == from && (direction == DirIn || direction == DirBoth):
		return subjectKey, true
	}
	return "", false
}

// QueryAtTime returns every relation whose fact_time interval contains t:
// concretely, every ACTIVE-as-of-t fact, meaning fact_time <= t and not
// yet superseded by a fact whose own fact_time is also <= t.
func (g *Graph) QueryAtTime(t int64) ([]types.Relation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	all, err := g.backend.AllRelations()
	if err != nil {
		return nil, err
	}

	bySuperseding := make(map[string]types.Relation, len(all))
	for _, r := range all {
		bySuperseding[r.ID] = r
	}

	var out []types.Relation
	for _, r := range all {
		if r.FactTime == nil || *r.FactTime > t {
			continue
		}
		if r.Status == types.FactSuperseded {
			if newer, ok := bySuperseding[r.SupersededBy]; ok && newer.FactTime != nil && *newer.FactTime <= t {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Communities algorithm names.
const (
	AlgoLouvain    = "louvain"
	AlgoLabelProp  = "label-prop"
	AlgoConnected  = "connected"
)

// Communities groups every entity that appears in at least one ACTIVE
// relation into a community id using the given algorithm (entities with no
// ACTIVE relation are absent from the map), recomputing only when the graph
// has changed since the last call (the dirty flag).
func (g *Graph) Communities(algorithm string) (map[string]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.communityDirty && g.communityCache != nil {
		return g.communityCache, nil
	}

	rels, err := g.backend.AllRelations()
	if err != nil {
		return nil, err
	}
	communities := detectCommunities(rels, algorithm)
	g.communityCache = communities
	g.communityDirty = false
	return communities, nil
}

// ListEntities returns every entity whose key has the given prefix ("" lists
// all of them), for callers that need to rebuild a derived structure (the
// tokenizer's entity dictionary, the engine's stats counters).
func (g *Graph) ListEntities(prefix string) ([]types.Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend.ListEntities(prefix)
}

// AllRelations returns every relation regardless of status, for stats and
// for rebuilding the entity dictionary's relation-aware callers.
func (g *Graph) AllRelations() ([]types.Relation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend.AllRelations()
}

// DeleteEntity removes an entity node outright, for the cascading physical
// delete path.
func (g *Graph) DeleteEntity(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.communityDirty = true
	return g.backend.DeleteEntity(key)
}

// SupersedeFact applies a human's MANUAL-contradiction resolution: keepID
// stays (or becomes) ACTIVE, loserID is marked SUPERSEDED by it. Used by
// the controller's contradiction-resolution entrypoint once a caller has
// picked a winner out of a RULE/LLM verdict of ResolveManual.
func (g *Graph) SupersedeFact(loserID, keepID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	relations, err := g.backend.AllRelations()
	if err != nil {
		return err
	}

	var loser, keep *types.Relation
	for i := range relations {
		switch relations[i].ID {
		case loserID:
			loser = &relations[i]
		case keepID:
			keep = &relations[i]
		}
	}
	if loser == nil || keep == nil {
		return errs.New(errs.NotFound, "contradiction resolution references an unknown fact")
	}

	loser.Status = types.FactSuperseded
	loser.SupersededBy = keep.ID
	if err := g.backend.UpsertRelation(*loser); err != nil {
		return err
	}
	keep.Status = types.FactActive
	keep.SupersededBy = ""
	if err := g.backend.UpsertRelation(*keep); err != nil {
		return err
	}
	g.communityDirty = true
	return nil
}

// Close releases the backend's resources.
func (g *Graph) Close() error { return g.backend.Close() }
