package retriever

import (
	"math"
	"sort"

	"github.com/kittclouds/recall/internal/types"
)

const msPerDay = float64(24 * 60 * 60 * 1000)

// rerankMultiFactor applies L9's score = w_vector·cosine + w_keyword·bm25_norm
// + w_entity·entity_match − w_recency·decay(age), then sorts descending.
func (r *Retriever) rerankMultiFactor(q Query, scored []ScoredMemory) {
	weights := r.cfg.RerankWeights
	now := types.NowMillis()

	for i := range scored {
		mem := scored[i].Memory

		var vectorScore float64
		if len(q.Embedding) > 0 && len(mem.Embedding) > 0 {
			vectorScore = float64(cosine32(q.Embedding, mem.Embedding))
		}

		var keywordScore float64
		if r.bm25 != nil && q.Text != "" {
			keywordScore = normalizeBM25(r.bm25.Score(mem.ID, q.Text))
		}

		entityScore := entityOverlap(q.Entities, mem.Entities)

		age := float64(now-mem.CreatedAt) / msPerDay
		if age < 0 {
			age = 0
		}
		decay := math.Exp(-r.cfg.TemporalDecayRate * age)

		scored[i].Score = weights.Vector*vectorScore + weights.Keyword*keywordScore +
			weights.Entity*entityScore - weights.Recency*decay
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
}

// normalizeBM25 squashes an unbounded BM25 score into (0,1) so it can be
// combined linearly with the cosine and entity-match factors.
func normalizeBM25(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + 1)
}

func entityOverlap(query, candidate []types.EntityRef) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	set := make(map[string]bool, len(query))
	for _, ref := range query {
		set[ref.Key()] = true
	}
	matched := 0
	for _, ref := range candidate {
		if set[ref.Key()] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

