// Package retriever implements Recall's eleven-stage funnel: a bloom
// negative filter, a temporal range gate, three recall arms (keyword,
// entity, graph) run concurrently with n-gram fuzzy and coarse vector
// recall and all fused by Reciprocal Rank Fusion, a fine vector rerank, a
// multi-factor rerank, and two optional deep stages,
// with a raw-text fallback scan guaranteeing recall for anything ever
// written.
package retriever

import (
	"context"
	"sort"
	"strings"

	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/graph"
	"github.com/kittclouds/recall/internal/indexes"
	"github.com/kittclouds/recall/internal/store"
	"github.com/kittclouds/recall/internal/types"
)

// Query is one search request against the funnel.
type Query struct {
	Text        string
	Embedding   []float32
	Entities    []types.EntityRef
	Since       *int64
	Until       *int64
	UserID      string
	SessionID   string
}

// ScoredMemory is one result with its fused/reranked score and the stages
// that contributed to it.
type ScoredMemory struct {
	Memory types.Memory
	Score  float64
	Stages []string
}

// Result is the funnel's final output.
type Result struct {
	Memories     []ScoredMemory
	StagesRun    []string
	UsedFallback bool
}

// CrossEncoder is the optional L10 deep pairwise scorer.
type CrossEncoder interface {
	Score(ctx context.Context, query, candidate string) (float64, error)
}

// RelevanceFilter is the optional L11 yes/no LLM relevance judge.
type RelevanceFilter interface {
	IsRelevant(ctx context.Context, query, candidate string) (bool, error)
}

// Retriever wires every index, the graph and the store behind the funnel.
type Retriever struct {
	bloom        *indexes.Bloom
	temporal     *indexes.Temporal
	inverted     *indexes.Inverted
	entity       *indexes.Entity
	ngram        *indexes.NGram
	vectorCoarse indexes.VectorIndex
	bm25         *indexes.BM25
	kgraph       *graph.Graph
	st           *store.Store

	crossEncoder CrossEncoder
	relevance    RelevanceFilter

	cfg *config.Config
}

// Deps groups the Retriever's collaborators.
type Deps struct {
	Bloom        *indexes.Bloom
	Temporal     *indexes.Temporal
	Inverted     *indexes.Inverted
	Entity       *indexes.Entity
	NGram        *indexes.NGram
	VectorCoarse indexes.VectorIndex
	BM25         *indexes.BM25
	Graph        *graph.Graph
	Store        *store.Store
	CrossEncoder CrossEncoder
	Relevance    RelevanceFilter
}

// New builds a Retriever from its collaborators and the resolved config.
func New(deps Deps, cfg *config.Config) *Retriever {
	return &Retriever{
		bloom:        deps.Bloom,
		temporal:     deps.Temporal,
		inverted:     deps.Inverted,
		entity:       deps.Entity,
		ngram:        deps.NGram,
		vectorCoarse: deps.VectorCoarse,
		bm25:         deps.BM25,
		kgraph:       deps.Graph,
		st:           deps.Store,
		crossEncoder: deps.CrossEncoder,
		relevance:    deps.Relevance,
		cfg:          cfg,
	}
}

func (r *Retriever) stageEnabled(name string) bool {
	if r.cfg.StageEnabled == nil {
		return true
	}
	v, ok := r.cfg.StageEnabled[name]
	return !ok || v
}

func (r *Retriever) topK(name string, def int) int {
	if r.cfg.StageTopK == nil {
		return def
	}
	if v, ok := r.cfg.StageTopK[name]; ok && v > 0 {
		return v
	}
	return def
}

// Search runs the full funnel and returns the ranked, budgeted result.
func (r *Retriever) Search(ctx context.Context, q Query) (Result, error) {
	var stagesRun []string

	// L2: temporal range gate. When the query carries no window, every
	// candidate is allowed through; otherwise only ids in range survive.
	var allowed map[string]bool
	if r.stageEnabled("L2") && (q.Since != nil || q.Until != nil) {
		since, until := int64(0), int64(1<<62)
		if q.Since != nil {
			since = *q.Since
		}
		if q.Until != nil {
			until = *q.Until
		}
		hits := r.temporal.Range(since, until, r.topK("L2", 500))
		allowed = make(map[string]bool, len(hits))
		for _, h := range hits {
			allowed[h.MemoryID] = true
		}
		stagesRun = append(stagesRun, "L2")
	}

	lists, arms, err := r.runArms(ctx, q, allowed)
	if err != nil {
		return Result{}, err
	}
	stagesRun = append(stagesRun, arms...)

	fused := fuseRRF(lists, rrfK(r.cfg.RRFK))

	// L1: bloom negative filter over the fused candidate set, a cheap
	// guard before the store fetches below.
	if r.stageEnabled("L1") && r.bloom != nil {
		filtered := fused[:0]
		for _, c := range fused {
			if r.bloom.MightContain(c.id) {
				filtered = append(filtered, c)
			}
		}
		fused = filtered
		stagesRun = append(stagesRun, "L1")
	}

	usedFallback := false
	if len(fused) == 0 && r.cfg.FallbackEnabled {
		fused = r.fallbackScan(ctx, q)
		usedFallback = true
		stagesRun = append(stagesRun, "fallback")
	}

	scored := r.hydrate(fused)

	if r.stageEnabled("L8") && len(q.Embedding) > 0 {
		r.rerankVectorFine(q.Embedding, scored)
		stagesRun = append(stagesRun, "L8")
	}

	if r.stageEnabled("L9") {
		r.rerankMultiFactor(q, scored)
		stagesRun = append(stagesRun, "L9")
	} else {
		sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	}

	threshold := r.topK("L9", 100)
	if len(scored) > threshold {
		scored = scored[:threshold]
	}

	if r.stageEnabled("L10") && r.crossEncoder != nil {
		scored, err = r.rerankCrossEncoder(ctx, q, scored)
		if err != nil && ctx.Err() == nil {
			return Result{}, err
		}
		stagesRun = append(stagesRun, "L10")
	}

	if r.stageEnabled("L11") && r.relevance != nil {
		scored, err = r.filterRelevance(ctx, q, scored)
		if err != nil && ctx.Err() == nil {
			return Result{}, err
		}
		stagesRun = append(stagesRun, "L11")
	}

	finalTopK := r.cfg.FinalTopK
	if finalTopK <= 0 {
		finalTopK = 20
	}
	if len(scored) > finalTopK {
		scored = scored[:finalTopK]
	}

	return Result{Memories: scored, StagesRun: stagesRun, UsedFallback: usedFallback}, nil
}

// rankedList is one stage's ranked candidate ids, for RRF fusion.
type rankedList struct {
	stage string
	ids   []string
}

func (r *Retriever) runArms(ctx context.Context, q Query, allowed map[string]bool) ([]rankedList, []string, error) {
	type armResult struct {
		stage string
		ids   []string
	}

	arms := []struct {
		stage string
		run   func() []string
	}{
		{"L3", func() []string {
			if q.Text == "" {
				return nil
			}
			return idsOf(r.inverted.Query(q.Text, r.topK("L3", 100)))
		}},
		{"L4", func() []string {
			if len(q.Entities) == 0 {
				return nil
			}
			return idsOf(r.entity.Query(q.Entities, r.topK("L4", 50)))
		}},
		{"L5", func() []string {
			if len(q.Entities) == 0 || r.kgraph == nil {
				return nil
			}
			return r.graphArm(q)
		}},
		{"L6", func() []string {
			if q.Text == "" {
				return nil
			}
			return idsOf(r.ngram.Query(q.Text, r.topK("L6", 30)))
		}},
		{"L7", func() []string {
			if len(q.Embedding) == 0 || r.vectorCoarse == nil {
				return nil
			}
			return idsOf(r.vectorCoarse.Search(q.Embedding, r.topK("L7", 200)))
		}},
	}

	results := make([]armResult, len(arms))
	g, _ := errgroup.WithContext(ctx)
	for i, arm := range arms {
		i, arm := i, arm
		if !r.stageEnabled(arm.stage) {
			continue
		}
		g.Go(func() error {
			results[i] = armResult{stage: arm.stage, ids: arm.run()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var lists []rankedList
	var ran []string
	for _, res := range results {
		if res.stage == "" || len(res.ids) == 0 {
			continue
		}
		ids := res.ids
		if allowed != nil {
			filtered := ids[:0]
			for _, id := range ids {
				if allowed[id] {
					filtered = append(filtered, id)
				}
			}
			ids = filtered
		}
		if len(ids) == 0 {
			continue
		}
		lists = append(lists, rankedList{stage: res.stage, ids: ids})
		ran = append(ran, res.stage)
	}
	return lists, ran, nil
}

func (r *Retriever) graphArm(q Query) []string {
	seeds := make([]string, 0, len(q.Entities))
	for _, ref := range q.Entities {
		seeds = append(seeds, ref.Key())
	}
	nodes, err := r.kgraph.Traverse(seeds, 2, graph.DirBoth, nil, q.Since, q.Until)
	if err != nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, n := range nodes {
		ref := parseEntityKey(n.Key)
		for _, scored := range r.entity.Query([]types.EntityRef{ref}, r.topK("L5", 100)) {
			if !seen[scored.MemoryID] {
				seen[scored.MemoryID] = true
				out = append(out, scored.MemoryID)
			}
		}
	}
	return out
}

func parseEntityKey(key string) types.EntityRef {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return types.EntityRef{Type: types.EntityType(key[:i]), Name: key[i+1:]}
	}
	return types.EntityRef{Name: key}
}

func idsOf(scored []indexes.Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.MemoryID
	}
	return out
}

func rrfK(k int) int {
	if k <= 0 {
		return 60
	}
	return k
}

// fusedCandidate is one id surviving RRF fusion, with its contributing
// stages for the final report.
type fusedCandidate struct {
	id     string
	score  float64
	stages []string
}

func fuseRRF(lists []rankedList, k int) []fusedCandidate {
	scores := make(map[string]float64)
	stages := make(map[string][]string)
	for _, list := range lists {
		for rank, id := range list.ids {
			scores[id] += 1.0 / float64(k+rank+1)
			stages[id] = append(stages[id], list.stage)
		}
	}
	out := make([]fusedCandidate, 0, len(scores))
	for id, score := range scores {
		out = append(out, fusedCandidate{id: id, score: score, stages: stages[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score == out[j].score {
			return out[i].id < out[j].id
		}
		return out[i].score > out[j].score
	})
	return out
}

func (r *Retriever) hydrate(fused []fusedCandidate) []ScoredMemory {
	out := make([]ScoredMemory, 0, len(fused))
	for _, c := range fused {
		mem, err := r.st.Get(c.id)
		if err != nil {
			continue
		}
		out = append(out, ScoredMemory{Memory: mem, Score: c.score, Stages: c.stages})
	}
	return out
}

func (r *Retriever) rerankVectorFine(query []float32, scored []ScoredMemory) {
	for i := range scored {
		if len(scored[i].Memory.Embedding) == 0 {
			continue
		}
		scored[i].Score = float64(cosine32(query, scored[i].Memory.Embedding))
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
}

func cosine32(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math32.Sqrt(na) * math32.Sqrt(nb))
}

func (r *Retriever) rerankCrossEncoder(ctx context.Context, q Query, scored []ScoredMemory) ([]ScoredMemory, error) {
	topK := r.topK("L10", 50)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	for i := range scored {
		if ctx.Err() != nil {
			return scored, nil
		}
		s, err := r.crossEncoder.Score(ctx, q.Text, scored[i].Memory.Content)
		if err != nil {
			return scored, err
		}
		scored[i].Score = s
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

func (r *Retriever) filterRelevance(ctx context.Context, q Query, scored []ScoredMemory) ([]ScoredMemory, error) {
	topK := r.topK("L11", 20)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	var out []ScoredMemory
	for _, sm := range scored {
		if ctx.Err() != nil {
			out = append(out, sm)
			continue
		}
		ok, err := r.relevance.IsRelevant(ctx, q.Text, sm.Memory.Content)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, sm)
		}
	}
	return out, nil
}

