package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/kittclouds/recall/internal/llmbackend"
	"github.com/kittclouds/recall/internal/types"
)

// Service coordinates entity and relation extraction from text. It
// composes with an llmbackend.Chatter for the actual completion call, the
// same Chatter interface guardedChatter/dedup/contradiction-judging use
// for their own LLM calls, so extraction shares the retry, breaker and
// budget behavior every other LLM-backed component gets.
type Service struct {
	chat llmbackend.Chatter
}

// NewService creates an extraction service backed by the given chatter.
func NewService(chat llmbackend.Chatter) *Service {
	return &Service{chat: chat}
}

// FromText performs a single LLM call to extract both entities and
// relations from text. knownEntities primes the model with entity labels
// already registered in the graph.
func (s *Service) FromText(ctx context.Context, text string, knownEntities []string) (*Result, error) {
	if s.chat == nil {
		return nil, fmt.Errorf("extraction: chat backend not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return &Result{}, nil
	}

	messages := []llmbackend.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(text, knownEntities)},
	}

	res, err := s.chat.Chat(ctx, messages, 2048)
	if err != nil {
		return nil, fmt.Errorf("extraction: LLM call failed: %w", err)
	}

	result, err := parseResponse(res.Text)
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}
	return result, nil
}

// ToEntity converts one extracted Entity into the graph's Entity record.
func ToEntity(e Entity, now int64) types.Entity {
	return types.Entity{
		Name:            e.Label,
		Type:            e.Kind.ToEntityType(),
		Aliases:         e.Aliases,
		CreatedAt:       now,
		LastMentionedAt: now,
	}
}

// ToRelation converts one extracted Relation into a types.Relation, given
// the id to assign and the knowledge time it was learned at. The object
// is recorded as an EntityRef; extraction never produces literal objects
// since every relation it emits links two recognized entities.
func ToRelation(r Relation, id string, subjectKind, objectKind Kind, knowledgeTime int64) types.Relation {
	return types.Relation{
		ID:            id,
		Subject:       types.EntityRef{Name: r.Subject, Type: subjectKind.ToEntityType()},
		Predicate:     strings.ToLower(r.RelationType),
		Object:        types.EntityRef{Name: r.Object, Type: objectKind.ToEntityType()},
		KnowledgeTime: knowledgeTime,
		SystemTime:    knowledgeTime,
		Confidence:    r.Confidence,
		Status:        types.FactActive,
	}
}

// ToEngineInputs converts a whole Result into the entity and relation
// records engine.UpsertEntity/engine.UpsertFact expect. newID mints one
// id per relation (callers pass uuid.NewString, matching the id scheme
// engine.New wires up for memories). A relation whose subject or object
// wasn't also extracted as an entity in the same pass falls back to
// EntityCustom rather than being dropped, since the model sometimes
// names an entity only in passing inside a relation.
func (r *Result) ToEngineInputs(now int64, newID func() string) ([]types.Entity, []types.Relation) {
	kindByLabel := make(map[string]Kind, len(r.Entities))
	for _, e := range r.Entities {
		kindByLabel[e.Label] = e.Kind
	}
	kindOf := func(label string) Kind {
		if k, ok := kindByLabel[label]; ok {
			return k
		}
		return ""
	}

	entities := make([]types.Entity, 0, len(r.Entities))
	for _, e := range r.Entities {
		entities = append(entities, ToEntity(e, now))
	}

	relations := make([]types.Relation, 0, len(r.Relations))
	for _, rel := range r.Relations {
		relations = append(relations, ToRelation(rel, newID(), kindOf(rel.Subject), kindOf(rel.Object), now))
	}

	return entities, relations
}
