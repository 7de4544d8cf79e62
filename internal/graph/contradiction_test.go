package graph

import (
	"context"
	"testing"

	"github.com/kittclouds/recall/internal/llmbackend"
	"github.com/kittclouds/recall/internal/types"
)

func TestRuleJudge_AttributeConflictSupersedesOnNewerKnowledge(t *testing.T) {
	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	existing := types.Relation{Subject: alice, Predicate: "favorite_color", ObjectLiteral: "blue", KnowledgeTime: 10}
	incoming := types.Relation{Subject: alice, Predicate: "favorite_color", ObjectLiteral: "green", KnowledgeTime: 20}

	kind, strategy := ruleJudge(existing, incoming)
	if kind != types.ContradictionAttribute {
		t.Fatalf("expected ATTRIBUTE, got %s", kind)
	}
	if strategy != types.ResolveSupersede {
		t.Fatalf("expected SUPERSEDE, got %s", strategy)
	}
}

func TestRuleJudge_SingularRelationshipSupersedes(t *testing.T) {
	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	bob := types.EntityRef{Name: "Bob", Type: types.EntityPerson}
	carol := types.EntityRef{Name: "Carol", Type: types.EntityPerson}

	existing := types.Relation{Subject: alice, Predicate: "spouse_of", Object: bob}
	incoming := types.Relation{Subject: alice, Predicate: "spouse_of", Object: carol}

	kind, strategy := ruleJudge(existing, incoming)
	if kind != types.ContradictionRelationship || strategy != types.ResolveSupersede {
		t.Fatalf("expected RELATIONSHIP/SUPERSEDE, got %s/%s", kind, strategy)
	}
}

func TestRuleJudge_PluralRelationshipCoexistsButLowConfidence(t *testing.T) {
	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	bob := types.EntityRef{Name: "Bob", Type: types.EntityPerson}
	carol := types.EntityRef{Name: "Carol", Type: types.EntityPerson}

	existing := types.Relation{Subject: alice, Predicate: "friend_of", Object: bob}
	incoming := types.Relation{Subject: alice, Predicate: "friend_of", Object: carol}

	_, _, confident := ruleJudgeConfident(existing, incoming)
	if confident {
		t.Fatal("expected low confidence for a non-whitelisted many-valued predicate")
	}
}

type fakeChatter struct {
	response string
}

func (f fakeChatter) Chat(ctx context.Context, messages []llmbackend.Message, maxTokens int) (llmbackend.Result, error) {
	return llmbackend.Result{Text: f.response}, nil
}

func TestContradictionManager_LLMStrategyParsesJSONVerdict(t *testing.T) {
	chatter := fakeChatter{response: `{"kind":"RELATIONSHIP","strategy":"COEXIST","reasoning":"both can be true"}`}
	manager := NewContradictionManager(StrategyLLM, chatter, func() string { return "c1" })

	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	bob := types.EntityRef{Name: "Bob", Type: types.EntityPerson}
	carol := types.EntityRef{Name: "Carol", Type: types.EntityPerson}
	existing := types.Relation{ID: "r1", Subject: alice, Predicate: "friend_of", Object: bob}
	incoming := types.Relation{ID: "r2", Subject: alice, Predicate: "friend_of", Object: carol}

	c, err := manager.Evaluate(existing, incoming)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if c.Kind != types.ContradictionRelationship || c.Strategy != types.ResolveCoexist {
		t.Fatalf("expected RELATIONSHIP/COEXIST from the verdict, got %s/%s", c.Kind, c.Strategy)
	}
}

func TestContradictionManager_LLMStrategyRepairsMalformedJSON(t *testing.T) {
	// Trailing comma and an unquoted-looking fence, both of which
	// json.Unmarshal rejects outright but jsonrepair can fix.
	chatter := fakeChatter{response: "```json\n{\"kind\":\"ATTRIBUTE\",\"strategy\":\"SUPERSEDE\",}\n```"}
	manager := NewContradictionManager(StrategyLLM, chatter, func() string { return "c1" })

	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	existing := types.Relation{ID: "r1", Subject: alice, Predicate: "favorite_color", ObjectLiteral: "blue"}
	incoming := types.Relation{ID: "r2", Subject: alice, Predicate: "favorite_color", ObjectLiteral: "green"}

	c, err := manager.Evaluate(existing, incoming)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if c.Kind != types.ContradictionAttribute || c.Strategy != types.ResolveSupersede {
		t.Fatalf("expected ATTRIBUTE/SUPERSEDE after repair, got %s/%s", c.Kind, c.Strategy)
	}
}

func TestContradictionManager_MixedFallsBackToLLMWhenRuleUnconfident(t *testing.T) {
	chatter := fakeChatter{response: `{"kind":"RELATIONSHIP","strategy":"MANUAL","reasoning":"ambiguous"}`}
	manager := NewContradictionManager(StrategyMixed, chatter, func() string { return "c1" })

	alice := types.EntityRef{Name: "Alice", Type: types.EntityPerson}
	bob := types.EntityRef{Name: "Bob", Type: types.EntityPerson}
	carol := types.EntityRef{Name: "Carol", Type: types.EntityPerson}
	existing := types.Relation{ID: "r1", Subject: alice, Predicate: "friend_of", Object: bob}
	incoming := types.Relation{ID: "r2", Subject: alice, Predicate: "friend_of", Object: carol}

	c, err := manager.Evaluate(existing, incoming)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if c.Strategy != types.ResolveManual {
		t.Fatalf("expected the LLM fallback verdict to apply, got %s", c.Strategy)
	}
}
