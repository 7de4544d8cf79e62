package engine

import (
	"context"

	"github.com/kittclouds/recall/internal/dedup"
	"github.com/kittclouds/recall/internal/taskmgr"
	"github.com/kittclouds/recall/internal/tokenize"
	"github.com/kittclouds/recall/internal/types"
)

// AddInput is everything a caller supplies about one new turn.
type AddInput struct {
	Content     string
	Role        types.Role
	UserID      string
	SessionID   string
	CharacterID string
	Source      string
	Tags        []string
	Category    string
	ContentType string
	Priority    types.Priority
	Extras      map[string]string
}

// AddResult is what ingest produced: the stored memory, the dedup verdict
// that decided whether it was stored standalone or merged into an
// existing one, and the turn number assigned for episode tracking.
type AddResult struct {
	Memory  types.Memory
	Decision dedup.Decision
	TurnSeq int64
}

// Add runs the full ingest pipeline: tokenize and recognize entities,
// embed (cached), three-stage dedup, store (L2 + archive), index under the
// batch lock, upsert the recognized entities into the graph, then hand off
// to the async analyzer pass and episode tracker. The store write (Put)
// completes and releases its own lock before any graph call begins, which
// is how the fixed store-then-graph ordering the concurrency model
// requires is realized across these two independently-locked packages.
func (e *Engine) Add(ctx context.Context, in AddInput) (AddResult, error) {
	now := types.NowMillis()

	tokens := tokenize.Normalize(in.Content)
	entities := e.recognizeEntities(in.Content)

	embedding, err := e.embed(ctx, in.Content)
	if err != nil {
		return AddResult{}, err
	}

	decision, err := e.deduper.Evaluate(ctx, in.Content, embedding)
	if err != nil {
		return AddResult{}, err
	}
	if decision.Outcome == dedup.OutcomeMerged {
		e.counterMu.Lock()
		e.duplicatesDetected++
		e.counterMu.Unlock()
	}

	priority := in.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}

	memory := types.Memory{
		Role:        in.Role,
		Content:     in.Content,
		UserID:      in.UserID,
		SessionID:   in.SessionID,
		CharacterID: in.CharacterID,
		Embedding:   embedding,
		Tokens:      tokens,
		Entities:    entities,
		Source:      in.Source,
		Tags:        in.Tags,
		Category:    in.Category,
		ContentType: in.ContentType,
		Priority:    priority,
		CreatedAt:   now,
		Extras:      in.Extras,
	}
	if decision.Outcome == dedup.OutcomeMerged {
		memory.AliasOf = decision.AliasOf
	}

	turn := e.trackTurn(in.UserID, in.SessionID, now)
	memory.TurnSeq = turn

	memoryID, err := e.st.Put(memory)
	if err != nil {
		return AddResult{}, err
	}
	memory.ID = memoryID

	e.deduper.Record(memoryID, in.Content, embedding)
	e.indexAdd(memory)

	for _, ref := range entities {
		if _, err := e.kgraph.UpsertEntity(types.Entity{
			Name:            ref.Name,
			Type:            ref.Type,
			CreatedAt:       now,
			LastMentionedAt: now,
		}); err != nil {
			e.log.Warn().Err(err).Str("entity", ref.Name).Msg("failed to upsert entity")
		}
	}
	if len(entities) > 0 {
		e.tasks.Submit(ctx, taskmgr.KindIndexRebuild, in.UserID, in.SessionID, func(taskCtx context.Context) error {
			return e.rebuildDictionary()
		})
	}

	e.tasks.Submit(ctx, taskmgr.KindUnifiedAnalysis, in.UserID, in.SessionID, func(taskCtx context.Context) error {
		return e.runAnalyzers(taskCtx, in)
	})

	return AddResult{Memory: memory, Decision: decision, TurnSeq: turn}, nil
}

// UpsertFact inserts or supersedes a fact the caller has already extracted
// — by hand, or via ExtractFacts. The contradiction manager runs as part
// of the graph's own UpsertRelation.
func (e *Engine) UpsertFact(fact types.Relation) (*types.Contradiction, error) {
	contradiction, err := e.kgraph.UpsertRelation(fact)
	if err != nil {
		return nil, err
	}
	if contradiction != nil {
		e.logContradiction(*contradiction)
	}
	return contradiction, nil
}

// ExtractFacts runs one LLM extraction call over text, registers every
// recognized entity in the graph, and upserts every recognized relation
// as a fact, returning whichever contradictions that produced. It does
// not store text as a Memory the way Add does — callers that want both an
// ingested memory and its extracted facts call Add first, then
// ExtractFacts over the same content.
func (e *Engine) ExtractFacts(ctx context.Context, content string) ([]types.Relation, []*types.Contradiction, error) {
	known, err := e.kgraph.ListEntities("")
	if err != nil {
		return nil, nil, err
	}
	knownNames := make([]string, 0, len(known))
	for _, ent := range known {
		knownNames = append(knownNames, ent.Name)
	}

	result, err := e.extractor.FromText(ctx, content, knownNames)
	if err != nil {
		return nil, nil, err
	}

	now := types.NowMillis()
	entities, relations := result.ToEngineInputs(now, e.idSeq)

	for _, ent := range entities {
		if _, err := e.kgraph.UpsertEntity(ent); err != nil {
			e.log.Warn().Err(err).Str("entity", ent.Name).Msg("failed to upsert extracted entity")
		}
	}

	contradictions := make([]*types.Contradiction, 0, len(relations))
	for _, rel := range relations {
		contradiction, err := e.UpsertFact(rel)
		if err != nil {
			e.log.Warn().Err(err).Str("predicate", rel.Predicate).Msg("failed to upsert extracted fact")
			continue
		}
		contradictions = append(contradictions, contradiction)
	}

	return relations, contradictions, nil
}
