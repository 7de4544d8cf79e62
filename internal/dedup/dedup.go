package dedup

import (
	"context"
	"sync"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/indexes"
	"github.com/kittclouds/recall/internal/llmbackend"
)

// Outcome is the final disposition of a dedup candidate.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeMerged   Outcome = "merged"
)

// Stage names the deciding stage, for observability and the ≤5% LLM
// invocation budget the design aims for.
type Stage int

const (
	StageMinHashLSH Stage = 1
	StageSemantic   Stage = 2
	StageLLM        Stage = 3
)

// Decision is the result of evaluating one candidate memory.
type Decision struct {
	Outcome Outcome
	AliasOf string
	Score   float64
	Stage   Stage
}

// Stats accumulates dedup activity across the lifetime of a Deduplicator,
// letting the controller verify the "LLM invoked on ≤5% of candidates"
// design target in practice.
type Stats struct {
	Considered          int
	DuplicatesDetected  int
	LLMInvocations      int
}

// Options configures the three stages' thresholds and optional LLM
// confirmation.
type Options struct {
	JaccardHi  float64
	SemHi      float64
	SemLo      float64
	LLMEnabled bool
	Chatter    llmbackend.Chatter
	Vectors    indexes.VectorIndex
}

// Deduplicator runs the three-stage check: MinHash+LSH Jaccard, semantic
// cosine similarity, and — only for the narrow grey band between SemLo and
// SemHi — an optional LLM restatement judgment.
type Deduplicator struct {
	mu sync.Mutex

	jaccardHi  float64
	semHi      float64
	semLo      float64
	llmEnabled bool
	chatter    llmbackend.Chatter
	vectors    indexes.VectorIndex

	lsh      *lshIndex
	contents map[string]string

	stats Stats
}

// New builds a Deduplicator; Vectors is required (stage 2 runs over
// whatever vector index the caller wires — Flat or HNSW, matching corpus
// scale), Chatter may be nil when LLMEnabled is false.
func New(opts Options) *Deduplicator {
	return &Deduplicator{
		jaccardHi:  opts.JaccardHi,
		semHi:      opts.SemHi,
		semLo:      opts.SemLo,
		llmEnabled: opts.LLMEnabled,
		chatter:    opts.Chatter,
		vectors:    opts.Vectors,
		lsh:        newLSHIndex(),
		contents:   make(map[string]string),
	}
}

// Evaluate checks whether content/embedding is a near-duplicate of any
// previously-accepted memory. On OutcomeAccepted the caller is expected to
// insert the memory and then call Record so later candidates can be
// compared against it; on OutcomeMerged the caller aliases the new id to
// Decision.AliasOf and bumps that memory's mention_count instead of
// inserting a new row.
func (d *Deduplicator) Evaluate(ctx context.Context, content string, embedding []float32) (Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Considered++

	sig := signature(content)
	if best, score, ok := d.bestLSHMatch(sig); ok && score >= d.jaccardHi {
		d.stats.DuplicatesDetected++
		return Decision{Outcome: OutcomeMerged, AliasOf: best, Score: score, Stage: StageMinHashLSH}, nil
	}

	if d.vectors == nil || len(embedding) == 0 {
		return Decision{Outcome: OutcomeAccepted, Stage: StageSemantic}, nil
	}

	matches := d.vectors.Search(embedding, 1)
	if len(matches) == 0 {
		return Decision{Outcome: OutcomeAccepted, Stage: StageSemantic}, nil
	}
	top := matches[0]

	switch {
	case top.Score >= d.semHi:
		d.stats.DuplicatesDetected++
		return Decision{Outcome: OutcomeMerged, AliasOf: top.MemoryID, Score: top.Score, Stage: StageSemantic}, nil
	case top.Score < d.semLo:
		return Decision{Outcome: OutcomeAccepted, Score: top.Score, Stage: StageSemantic}, nil
	}

	if !d.llmEnabled {
		// Conservative default for the grey band without an LLM available:
		// accept as new rather than silently merging on an unconfirmed guess.
		return Decision{Outcome: OutcomeAccepted, Score: top.Score, Stage: StageSemantic}, nil
	}

	d.stats.LLMInvocations++
	isRestatement, err := confirmRestatement(ctx, d.chatter, d.contents[top.MemoryID], content)
	if err != nil {
		return Decision{}, err
	}
	if isRestatement {
		d.stats.DuplicatesDetected++
		return Decision{Outcome: OutcomeMerged, AliasOf: top.MemoryID, Score: top.Score, Stage: StageLLM}, nil
	}
	return Decision{Outcome: OutcomeAccepted, Score: top.Score, Stage: StageLLM}, nil
}

// bestLSHMatch returns the highest-Jaccard LSH candidate, if any.
func (d *Deduplicator) bestLSHMatch(sig []uint64) (string, float64, bool) {
	candidates := d.lsh.candidates(sig)
	best, bestScore, found := "", 0.0, false
	for _, id := range candidates {
		score := estimateJaccard(sig, d.lsh.signatures[id])
		if !found || score > bestScore {
			best, bestScore, found = id, score, true
		}
	}
	return best, bestScore, found
}

// Record registers an accepted memory's content and embedding so future
// candidates are compared against it. Call this only after the caller has
// actually inserted the memory (Decision.Outcome == OutcomeAccepted).
func (d *Deduplicator) Record(memoryID, content string, embedding []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lsh.insert(memoryID, signature(content))
	d.contents[memoryID] = content
	if d.vectors != nil && len(embedding) > 0 {
		d.vectors.Upsert(memoryID, embedding)
	}
}

// Forget removes a memory from both the LSH index and the content cache,
// for when a memory is physically deleted.
func (d *Deduplicator) Forget(memoryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lsh.remove(memoryID)
	delete(d.contents, memoryID)
	if d.vectors != nil {
		if err := d.vectors.Remove(memoryID); err != nil {
			return errs.Wrap(errs.Storage, "remove memory from dedup vector index", err)
		}
	}
	return nil
}

// Stats returns a snapshot of dedup activity.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
