package indexes

import (
	"math"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kittclouds/recall/internal/tokenize"
)

func logSafe(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log(x)
}

// BM25 is a TF-IDF-style full text scorer with configurable k1/b, used by
// retrieval stage L9's keyword factor.
type BM25 struct {
	mu        sync.RWMutex
	k1        float64
	b         float64
	docLen    map[string]int
	postings  map[string]map[string]int // term -> memory-id -> term frequency
	totalLen  int64
	docCount  int
}

// NewBM25 builds an empty BM25 index with the given k1/b parameters.
func NewBM25(k1, b float64) *BM25 {
	if k1 <= 0 {
		k1 = 1.2
	}
	if b <= 0 {
		b = 0.75
	}
	return &BM25{
		k1:       k1,
		b:        b,
		docLen:   make(map[string]int),
		postings: make(map[string]map[string]int),
	}
}

// Add indexes content under memoryID.
func (idx *BM25) Add(memoryID, content string) {
	tokens := tokenize.Normalize(content)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docLen[memoryID]; !exists {
		idx.docCount++
	}
	idx.totalLen += int64(len(tokens)) - int64(idx.docLen[memoryID])
	idx.docLen[memoryID] = len(tokens)

	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}
	for term, count := range tf {
		posting := idx.postings[term]
		if posting == nil {
			posting = make(map[string]int)
			idx.postings[term] = posting
		}
		posting[memoryID] = count
	}
}

// Remove deletes memoryID from the index.
func (idx *BM25) Remove(memoryID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	length, ok := idx.docLen[memoryID]
	if !ok {
		return nil
	}
	idx.totalLen -= int64(length)
	idx.docCount--
	delete(idx.docLen, memoryID)
	for term, posting := range idx.postings {
		delete(posting, memoryID)
		if len(posting) == 0 {
			delete(idx.postings, term)
		}
	}
	return nil
}

func (idx *BM25) avgDocLen() float64 {
	if idx.docCount == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(idx.docCount)
}

// Score returns the BM25 score of memoryID against query q, 0 if no
// overlap.
func (idx *BM25) Score(memoryID, q string) float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.scoreLocked(memoryID, tokenize.Normalize(q))
}

func (idx *BM25) scoreLocked(memoryID string, terms []string) float64 {
	length, ok := idx.docLen[memoryID]
	if !ok {
		return 0
	}
	avgLen := idx.avgDocLen()
	if avgLen == 0 {
		avgLen = 1
	}

	var score float64
	n := float64(idx.docCount)
	for _, term := range terms {
		posting := idx.postings[term]
		tf, present := posting[memoryID]
		if !present {
			continue
		}
		df := float64(len(posting))
		idf := logSafe((n-df+0.5)/(df+0.5) + 1)
		numerator := float64(tf) * (idx.k1 + 1)
		denominator := float64(tf) + idx.k1*(1-idx.b+idx.b*float64(length)/avgLen)
		score += idf * numerator / denominator
	}
	return score
}

// Query scores every memory containing at least one query term, returning
// the top k.
func (idx *BM25) Query(q string, k int) []Scored {
	terms := tokenize.Normalize(q)
	if len(terms) == 0 {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := make(map[string]struct{})
	for _, term := range terms {
		for id := range idx.postings[term] {
			candidates[id] = struct{}{}
		}
	}
	out := make([]Scored, 0, len(candidates))
	for id := range candidates {
		out = append(out, Scored{MemoryID: id, Score: idx.scoreLocked(id, terms)})
	}
	sortScoredDesc(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

type bm25Snapshot struct {
	K1       float64
	B        float64
	DocLen   map[string]int
	Postings map[string]map[string]int
	TotalLen int64
	DocCount int
}

// Snapshot serializes the index state.
func (idx *BM25) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return msgpack.Marshal(bm25Snapshot{
		K1: idx.k1, B: idx.b, DocLen: idx.docLen, Postings: idx.postings,
		TotalLen: idx.totalLen, DocCount: idx.docCount,
	})
}

// Load restores the index from a Snapshot.
func (idx *BM25) Load(data []byte) error {
	var snap bm25Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.k1, idx.b = snap.K1, snap.B
	idx.docLen, idx.postings = snap.DocLen, snap.Postings
	idx.totalLen, idx.docCount = snap.TotalLen, snap.DocCount
	return nil
}
