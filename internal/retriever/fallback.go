package retriever

import (
	"context"
	"sort"
	"sync"

	"github.com/kittclouds/recall/internal/tokenize"
	"github.com/kittclouds/recall/internal/types"
)

// fallbackScan runs the raw-text scan over the volume archive, guaranteeing
// recall for any memory ever written even if it never reached any index.
// It runs when the fused L3-L7 result is empty after the other stages. When
// cfg.FallbackParallel is set it scores candidates with a worker pool fed
// by the archive's single sequential walk, rather than parallelizing the
// walk itself.
func (r *Retriever) fallbackScan(ctx context.Context, q Query) []fusedCandidate {
	queryTokens := tokenize.Normalize(q.Text)
	if len(queryTokens) == 0 {
		return nil
	}
	queryTokenSet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		queryTokenSet[t] = true
	}

	topK := r.topK("fallback", 50)
	workers := r.cfg.FallbackWorkers
	if !r.cfg.FallbackParallel || workers < 1 {
		workers = 1
	}

	work := make(chan types.Memory, workers*4)
	results := make(chan fusedCandidate, workers*4)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for mem := range work {
				if score := matchScore(queryTokenSet, len(queryTokens), mem.Content); score > 0 {
					results <- fusedCandidate{id: mem.ID, score: score, stages: []string{"fallback"}}
				}
			}
		}()
	}

	go func() {
		_ = r.st.ScanArchive(func(mem types.Memory) bool {
			if ctx.Err() != nil {
				return false
			}
			work <- mem
			return true
		})
		close(work)
		wg.Wait()
		close(results)
	}()

	var out []fusedCandidate
	for c := range results {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score == out[j].score {
			return out[i].id < out[j].id
		}
		return out[i].score > out[j].score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func matchScore(queryTokenSet map[string]bool, queryTokenCount int, content string) float64 {
	tokens := tokenize.Normalize(content)
	matched := 0
	for _, t := range tokens {
		if queryTokenSet[t] {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) / float64(queryTokenCount)
}
