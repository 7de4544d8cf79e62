package analyzers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/llmbackend"
	"github.com/kittclouds/recall/internal/types"
)

// semanticDedupThreshold is the cosine threshold the LLM analyzer checks
// a freshly-proposed foreshadowing against the active set before planting
// it, per the design's stated 0.85 figure.
const semanticDedupThreshold = 0.85

// ForeshadowingAnalysis is the structured shape the LLM analyzer prompt
// asks for.
type ForeshadowingAnalysis struct {
	NewForeshadowings   []NewForeshadowing   `json:"new_foreshadowings"`
	PotentiallyResolved []PotentialResolution `json:"potentially_resolved"`
}

// NewForeshadowing is one candidate item the LLM analyzer proposes.
type NewForeshadowing struct {
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
}

// PotentialResolution flags an active item the analyzer believes has
// played out.
type PotentialResolution struct {
	ID       string `json:"id"`
	Evidence string `json:"evidence"`
}

// ForeshadowingTracker holds planted narrative threads per character,
// through the {PLANTED, DEVELOPING, RESOLVED, ABANDONED} lifecycle.
// Manual operations are always available; an optional LLM analyzer can
// also plant/flag-resolve items on a fixed turn cadence.
type ForeshadowingTracker struct {
	mu    sync.Mutex
	items map[string]types.Foreshadowing

	chatter  llmbackend.Chatter
	embedder Embedder
	idSeq    func() string
}

// Embedder is the minimal embedding surface the tracker needs for
// semantic dedup of LLM-proposed items against the active set.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewForeshadowingTracker builds an empty tracker. chatter and embedder may
// be nil: without a chatter RunAnalysis returns an error; without an
// embedder it skips the semantic dedup against the active set.
func NewForeshadowingTracker(chatter llmbackend.Chatter, embedder Embedder, idSeq func() string) *ForeshadowingTracker {
	return &ForeshadowingTracker{
		items:    make(map[string]types.Foreshadowing),
		chatter:  chatter,
		embedder: embedder,
		idSeq:    idSeq,
	}
}

func (t *ForeshadowingTracker) nextID() string {
	if t.idSeq != nil {
		return t.idSeq()
	}
	return "foreshadow"
}

// Plant manually creates a new PLANTED item for characterID.
func (t *ForeshadowingTracker) Plant(characterID, content string, importance float64, related []types.EntityRef, now int64) types.Foreshadowing {
	t.mu.Lock()
	defer t.mu.Unlock()
	item := types.Foreshadowing{
		ID:              t.nextID(),
		CharacterID:     characterID,
		Content:         content,
		Importance:      importance,
		State:           types.ForeshadowingPlanted,
		RelatedEntities: related,
		CreatedAt:       now,
		LastUpdateAt:    now,
	}
	t.items[item.ID] = item
	return item
}

// AddHint appends a hint to an existing item and moves it to DEVELOPING if
// it was only PLANTED.
func (t *ForeshadowingTracker) AddHint(id, hint string, now int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return errs.New(errs.NotFound, "foreshadowing not found: "+id)
	}
	item.Hints = append(item.Hints, hint)
	if item.State == types.ForeshadowingPlanted {
		item.State = types.ForeshadowingDeveloping
	}
	item.LastUpdateAt = now
	t.items[id] = item
	return nil
}

// Resolve marks an item RESOLVED with the given evidence.
func (t *ForeshadowingTracker) Resolve(id, evidence string, now int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return errs.New(errs.NotFound, "foreshadowing not found: "+id)
	}
	item.State = types.ForeshadowingResolved
	item.Evidence = evidence
	item.LastUpdateAt = now
	t.items[id] = item
	return nil
}

// Abandon marks an item ABANDONED.
func (t *ForeshadowingTracker) Abandon(id string, now int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return errs.New(errs.NotFound, "foreshadowing not found: "+id)
	}
	item.State = types.ForeshadowingAbandoned
	item.LastUpdateAt = now
	t.items[id] = item
	return nil
}

// GetActive returns characterID's PLANTED and DEVELOPING items.
func (t *ForeshadowingTracker) GetActive(characterID string) []types.Foreshadowing {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []types.Foreshadowing
	for _, item := range t.items {
		if item.CharacterID != characterID {
			continue
		}
		if item.State == types.ForeshadowingPlanted || item.State == types.ForeshadowingDeveloping {
			out = append(out, item)
		}
	}
	return out
}

// AnalysisOutcome is what RunAnalysis actually did, for the caller to log
// or surface to a human reviewer.
type AnalysisOutcome struct {
	Planted          []types.Foreshadowing
	AutoResolved     []string
	PendingResolution []PotentialResolution
	Skipped          []NewForeshadowing // deduped against the active set, or not planted because autoPlant was false
}

// RunAnalysis runs the optional LLM analyzer: it reads the recent turns
// and the character's currently-active items, asks the model for new
// foreshadowings and candidates that may have resolved, then applies
// auto_plant/auto_resolve policy.
func (t *ForeshadowingTracker) RunAnalysis(ctx context.Context, characterID string, recentTurns []types.Memory, autoPlant, autoResolve bool, now int64) (AnalysisOutcome, error) {
	if t.chatter == nil {
		return AnalysisOutcome{}, errs.New(errs.InvalidArgument, "foreshadowing analyzer requires a configured chatter")
	}

	active := t.GetActive(characterID)
	prompt := buildForeshadowingPrompt(recentTurns, active)
	result, err := t.chatter.Chat(ctx, []llmbackend.Message{{Role: "user", Content: prompt}}, 512)
	if err != nil {
		return AnalysisOutcome{}, err
	}

	var analysis ForeshadowingAnalysis
	if err := unmarshalLLMJSON(result.Text, &analysis); err != nil {
		return AnalysisOutcome{}, err
	}

	var outcome AnalysisOutcome
	for _, candidate := range analysis.NewForeshadowings {
		isDup, err := t.isDuplicateOfActive(ctx, candidate.Content, active)
		if err != nil {
			return outcome, err
		}
		if isDup {
			outcome.Skipped = append(outcome.Skipped, candidate)
			continue
		}
		if !autoPlant {
			outcome.Skipped = append(outcome.Skipped, candidate)
			continue
		}
		planted := t.Plant(characterID, candidate.Content, candidate.Importance, nil, now)
		outcome.Planted = append(outcome.Planted, planted)
	}

	for _, resolution := range analysis.PotentiallyResolved {
		if autoResolve {
			if err := t.Resolve(resolution.ID, resolution.Evidence, now); err != nil {
				return outcome, err
			}
			outcome.AutoResolved = append(outcome.AutoResolved, resolution.ID)
		} else {
			outcome.PendingResolution = append(outcome.PendingResolution, resolution)
		}
	}

	return outcome, nil
}

func (t *ForeshadowingTracker) isDuplicateOfActive(ctx context.Context, content string, active []types.Foreshadowing) (bool, error) {
	if t.embedder == nil {
		return false, nil
	}
	vec, err := t.embedder.Embed(ctx, content)
	if err != nil {
		return false, err
	}
	for _, item := range active {
		if len(item.Embedding) == 0 {
			continue
		}
		if cosine(vec, item.Embedding) >= semanticDedupThreshold {
			return true, nil
		}
	}
	return false, nil
}

func buildForeshadowingPrompt(recentTurns []types.Memory, active []types.Foreshadowing) string {
	var b strings.Builder
	b.WriteString("Recent turns:\n")
	for _, m := range recentTurns {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	b.WriteString("\nActive foreshadowings:\n")
	for _, item := range active {
		fmt.Fprintf(&b, "- (%s) %s\n", item.ID, item.Content)
	}
	b.WriteString("\nIdentify any new narrative threads worth planting and any active " +
		"foreshadowings the recent turns appear to have resolved. Respond with a single " +
		"JSON object: {\"new_foreshadowings\":[{\"content\":...,\"importance\":0-1}], " +
		"\"potentially_resolved\":[{\"id\":...,\"evidence\":...}]}.")
	return b.String()
}
