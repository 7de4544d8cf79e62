package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/types"
)

// fileGraphDoc is the on-disk shape of a FileBackend: the whole graph in
// one JSON document, rewritten on every mutating call.
type fileGraphDoc struct {
	Entities  map[string]types.Entity   `json:"entities"`
	Relations map[string]types.Relation `json:"relations"`
}

// FileBackend is the default, zero-dependency graph backend: entities and
// relations held in memory and mirrored to a single knowledge_graph.json
// file after every write, the simplest backend that satisfies Backend.
type FileBackend struct {
	mu        sync.RWMutex
	path      string
	entities  map[string]types.Entity
	relations map[string]types.Relation
}

// NewFileBackend loads (or creates) the JSON graph document at path.
func NewFileBackend(path string) (*FileBackend, error) {
	b := &FileBackend{
		path:      path,
		entities:  make(map[string]types.Entity),
		relations: make(map[string]types.Relation),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, errs.Wrap(errs.Storage, "read knowledge graph file", err)
	}
	var doc fileGraphDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.IndexCorrupted, "decode knowledge graph file", err)
	}
	if doc.Entities != nil {
		b.entities = doc.Entities
	}
	if doc.Relations != nil {
		b.relations = doc.Relations
	}
	return b, nil
}

func (b *FileBackend) flushLocked() error {
	if b.path == "" {
		return nil
	}
	doc := fileGraphDoc{Entities: b.entities, Relations: b.relations}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Storage, "marshal knowledge graph", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return errs.Wrap(errs.Storage, "create knowledge graph directory", err)
	}
	return os.WriteFile(b.path, data, 0o644)
}

func (b *FileBackend) UpsertEntity(entity types.Entity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entities[entity.Key()] = entity
	return b.flushLocked()
}

func (b *FileBackend) GetEntity(key string) (types.Entity, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entities[key]
	return e, ok, nil
}

func (b *FileBackend) DeleteEntity(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entities, key)
	return b.flushLocked()
}

func (b *FileBackend) ListEntities(prefix string) ([]types.Entity, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.Entity
	for key, e := range b.entities {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *FileBackend) UpsertRelation(rel types.Relation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relations[rel.ID] = rel
	return b.flushLocked()
}

func (b *FileBackend) FindActiveByTriple(triple string) (types.Relation, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.relations {
		if r.Status == types.FactActive && r.Triple() == triple {
			return r, true, nil
		}
	}
	return types.Relation{}, false, nil
}

// FindActiveBySubjectPredicate returns an ACTIVE relation sharing subject
// and predicate with the caller's, regardless of object, so the
// contradiction judge can compare the two objects itself. Returns the
// first match; subject+predicate is expected to carry at most one ACTIVE
// fact once conflicts are resolved.
func (b *FileBackend) FindActiveBySubjectPredicate(subjectKey, predicate string) (types.Relation, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.relations {
		if r.Status == types.FactActive && r.Predicate == predicate && r.Subject.Key() == subjectKey {
			return r, true, nil
		}
	}
	return types.Relation{}, false, nil
}

func (b *FileBackend) RelationsByEntity(key string) ([]types.Relation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.Relation
	for _, r := range b.relations {
		if r.Subject.Key() == key || r.Object.Key() == key {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *FileBackend) AllRelations() ([]types.Relation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Relation, 0, len(b.relations))
	for _, r := range b.relations {
		out = append(out, r)
	}
	return out, nil
}

func (b *FileBackend) Close() error { return nil }
