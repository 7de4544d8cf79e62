// Package indexes implements the retrieval indexes backing the funnel
// retriever: Bloom, inverted keyword, entity, n-gram, temporal, vector
// (flat and HNSW), and BM25 full text. Every index exposes the same
// add/remove/query/snapshot/load shape so the retriever and the store's
// migration path can treat them uniformly.
package indexes

import "sort"

// Scored is one (memory-id, score) result from an index query.
type Scored struct {
	MemoryID string
	Score    float64
}

// Index is the common contract every retrieval index satisfies.
type Index interface {
	Remove(memoryID string) error
	Snapshot() ([]byte, error)
	Load(data []byte) error
}

// sortScoredDesc orders results by descending score, a tie broken by id for
// determinism across runs.
func sortScoredDesc(s []Scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score == s[j].Score {
			return s[i].MemoryID < s[j].MemoryID
		}
		return s[i].Score > s[j].Score
	})
}
