package indexes

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kittclouds/recall/internal/tokenize"
)

// Inverted is a token -> posting-list index giving 100% recall for any
// query whose tokens appear verbatim in a memory's content.
type Inverted struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{} // token -> set<memory-id>
	terms    map[string]map[string]struct{} // memory-id -> set<token>, for Remove
}

// NewInverted builds an empty inverted index.
func NewInverted() *Inverted {
	return &Inverted{
		postings: make(map[string]map[string]struct{}),
		terms:    make(map[string]map[string]struct{}),
	}
}

// Add tokenizes content and posts memoryID under every resulting token.
func (idx *Inverted) Add(memoryID, content string) {
	tokens := tokenize.Normalize(content)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := idx.terms[memoryID]
	if set == nil {
		set = make(map[string]struct{})
		idx.terms[memoryID] = set
	}
	for _, tok := range tokens {
		if _, ok := set[tok]; ok {
			continue
		}
		set[tok] = struct{}{}
		posting := idx.postings[tok]
		if posting == nil {
			posting = make(map[string]struct{})
			idx.postings[tok] = posting
		}
		posting[memoryID] = struct{}{}
	}
}

// Remove deletes memoryID from every posting list it appears in.
func (idx *Inverted) Remove(memoryID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for tok := range idx.terms[memoryID] {
		if posting, ok := idx.postings[tok]; ok {
			delete(posting, memoryID)
			if len(posting) == 0 {
				delete(idx.postings, tok)
			}
		}
	}
	delete(idx.terms, memoryID)
	return nil
}

// Query returns every memory-id whose token set covers at least one token
// of q, scored by the fraction of query tokens matched.
func (idx *Inverted) Query(q string, k int) []Scored {
	tokens := tokenize.Normalize(q)
	if len(tokens) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make(map[string]int)
	for _, tok := range tokens {
		for id := range idx.postings[tok] {
			hits[id]++
		}
	}

	out := make([]Scored, 0, len(hits))
	for id, count := range hits {
		out = append(out, Scored{MemoryID: id, Score: float64(count) / float64(len(tokens))})
	}
	sortScoredDesc(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

type invertedSnapshot struct {
	Postings map[string][]string
}

// Snapshot serializes the posting lists.
func (idx *Inverted) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	snap := invertedSnapshot{Postings: make(map[string][]string, len(idx.postings))}
	for tok, set := range idx.postings {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		snap.Postings[tok] = ids
	}
	return msgpack.Marshal(snap)
}

// Load restores posting lists from a Snapshot, rebuilding the reverse
// memory-id -> token-set map used by Remove.
func (idx *Inverted) Load(data []byte) error {
	var snap invertedSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = make(map[string]map[string]struct{}, len(snap.Postings))
	idx.terms = make(map[string]map[string]struct{})
	for tok, ids := range snap.Postings {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
			if idx.terms[id] == nil {
				idx.terms[id] = make(map[string]struct{})
			}
			idx.terms[id][tok] = struct{}{}
		}
		idx.postings[tok] = set
	}
	return nil
}
