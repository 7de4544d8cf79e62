package indexes

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kittclouds/recall/internal/types"
)

// Entity maps an entity key ("TYPE:name") to the memory ids that mention
// it, backing retrieval stage L4 and the graph's source-memory tracking.
type Entity struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{} // entity key -> set<memory-id>
	memories map[string]map[string]struct{} // memory-id -> set<entity key>, for Remove
}

// NewEntity builds an empty entity index.
func NewEntity() *Entity {
	return &Entity{
		postings: make(map[string]map[string]struct{}),
		memories: make(map[string]map[string]struct{}),
	}
}

// Add posts memoryID under every entity ref it mentions.
func (idx *Entity) Add(memoryID string, refs []types.EntityRef) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := idx.memories[memoryID]
	if set == nil {
		set = make(map[string]struct{})
		idx.memories[memoryID] = set
	}
	for _, ref := range refs {
		key := (types.Entity{Name: ref.Name, Type: ref.Type}).Key()
		set[key] = struct{}{}
		posting := idx.postings[key]
		if posting == nil {
			posting = make(map[string]struct{})
			idx.postings[key] = posting
		}
		posting[memoryID] = struct{}{}
	}
}

// Remove deletes memoryID from every entity posting list it appears in.
func (idx *Entity) Remove(memoryID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for key := range idx.memories[memoryID] {
		if posting, ok := idx.postings[key]; ok {
			delete(posting, memoryID)
			if len(posting) == 0 {
				delete(idx.postings, key)
			}
		}
	}
	delete(idx.memories, memoryID)
	return nil
}

// Query returns every memory mentioning any of the given entity refs, each
// scored by how many of the refs it mentions.
func (idx *Entity) Query(refs []types.EntityRef, k int) []Scored {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make(map[string]int)
	for _, ref := range refs {
		key := (types.Entity{Name: ref.Name, Type: ref.Type}).Key()
		for id := range idx.postings[key] {
			hits[id]++
		}
	}
	out := make([]Scored, 0, len(hits))
	total := len(refs)
	if total == 0 {
		total = 1
	}
	for id, count := range hits {
		out = append(out, Scored{MemoryID: id, Score: float64(count) / float64(total)})
	}
	sortScoredDesc(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

type entitySnapshot struct {
	Postings map[string][]string
}

// Snapshot serializes the entity posting lists.
func (idx *Entity) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	snap := entitySnapshot{Postings: make(map[string][]string, len(idx.postings))}
	for key, set := range idx.postings {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		snap.Postings[key] = ids
	}
	return msgpack.Marshal(snap)
}

// Load restores the index from a Snapshot.
func (idx *Entity) Load(data []byte) error {
	var snap entitySnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = make(map[string]map[string]struct{}, len(snap.Postings))
	idx.memories = make(map[string]map[string]struct{})
	for key, ids := range snap.Postings {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
			if idx.memories[id] == nil {
				idx.memories[id] = make(map[string]struct{})
			}
			idx.memories[id][key] = struct{}{}
		}
		idx.postings[key] = set
	}
	return nil
}
