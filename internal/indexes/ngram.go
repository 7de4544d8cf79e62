package indexes

import (
	"sync"

	trie "github.com/derekparker/trie/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kittclouds/recall/internal/tokenize"
)

// NGram is the character 2/3-gram postings index used for fuzzy matching
// (retrieval stage L6). The raw-text fallback scan does not use it: that
// scan matches normalized tokens over the volume archive.
type NGram struct {
	mu       sync.RWMutex
	t        *trie.Trie
	postings map[string]map[string]struct{} // ngram -> set<memory-id>
	grams    map[string]map[string]struct{} // memory-id -> set<ngram>, for Remove
}

// NewNGram builds an empty n-gram index.
func NewNGram() *NGram {
	return &NGram{
		t:        trie.New(),
		postings: make(map[string]map[string]struct{}),
		grams:    make(map[string]map[string]struct{}),
	}
}

// Add computes the character n-grams of content and posts memoryID under
// each.
func (idx *NGram) Add(memoryID, content string) {
	grams := tokenize.NGrams(content)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := idx.grams[memoryID]
	if set == nil {
		set = make(map[string]struct{})
		idx.grams[memoryID] = set
	}
	for _, g := range grams {
		if _, ok := set[g]; ok {
			continue
		}
		set[g] = struct{}{}
		posting := idx.postings[g]
		if posting == nil {
			posting = make(map[string]struct{})
			idx.postings[g] = posting
			idx.t.Add(g, nil)
		}
		posting[memoryID] = struct{}{}
	}
}

// Remove deletes memoryID from every n-gram posting list it appears in.
func (idx *NGram) Remove(memoryID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for g := range idx.grams[memoryID] {
		if posting, ok := idx.postings[g]; ok {
			delete(posting, memoryID)
			if len(posting) == 0 {
				delete(idx.postings, g)
			}
		}
	}
	delete(idx.grams, memoryID)
	return nil
}

// Query scores memories by the fraction of query n-grams they contain,
// using fuzzy trie lookup to also credit near-miss n-grams (typos, partial
// matches) rather than only exact ones.
func (idx *NGram) Query(q string, k int) []Scored {
	queryGrams := tokenize.NGrams(q)
	if len(queryGrams) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make(map[string]float64)
	for _, g := range queryGrams {
		if posting, ok := idx.postings[g]; ok {
			for id := range posting {
				hits[id] += 1.0
			}
			continue
		}
		for _, near := range idx.t.FuzzySearch(g) {
			for id := range idx.postings[near] {
				hits[id] += 0.5
			}
		}
	}

	out := make([]Scored, 0, len(hits))
	for id, score := range hits {
		out = append(out, Scored{MemoryID: id, Score: score / float64(len(queryGrams))})
	}
	sortScoredDesc(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

type ngramSnapshot struct {
	Postings map[string][]string
}

// Snapshot serializes the n-gram posting lists.
func (idx *NGram) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	snap := ngramSnapshot{Postings: make(map[string][]string, len(idx.postings))}
	for g, set := range idx.postings {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		snap.Postings[g] = ids
	}
	return msgpack.Marshal(snap)
}

// Load restores the index, including the fuzzy-search trie, from a
// Snapshot.
func (idx *NGram) Load(data []byte) error {
	var snap ngramSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.t = trie.New()
	idx.postings = make(map[string]map[string]struct{}, len(snap.Postings))
	idx.grams = make(map[string]map[string]struct{})
	for g, ids := range snap.Postings {
		set := make(map[string]struct{}, len(ids))
		idx.t.Add(g, nil)
		for _, id := range ids {
			set[id] = struct{}{}
			if idx.grams[id] == nil {
				idx.grams[id] = make(map[string]struct{})
			}
			idx.grams[id][g] = struct{}{}
		}
		idx.postings[g] = set
	}
	return nil
}
