package extraction

import (
	"context"
	"testing"

	"github.com/kittclouds/recall/internal/llmbackend"
	"github.com/kittclouds/recall/internal/types"
)

func TestParseResponse_ValidJSON(t *testing.T) {
	raw := `{
		"entities": [
			{"label": "Aria", "kind": "CHARACTER", "confidence": 0.95},
			{"label": "Windhaven", "kind": "LOCATION", "confidence": 0.9, "aliases": ["the old port"]}
		],
		"relations": [
			{
				"subject": "Aria",
				"object": "Windhaven",
				"verb": "traveled to",
				"relationType": "TRAVELED_TO",
				"confidence": 0.85,
				"sourceSentence": "Aria traveled to Windhaven."
			}
		]
	}`

	result, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 2 || len(result.Relations) != 1 {
		t.Fatalf("expected 2 entities and 1 relation, got %+v", result)
	}
	if result.Entities[0].Kind != KindCharacter {
		t.Errorf("expected CHARACTER, got %q", result.Entities[0].Kind)
	}
	if len(result.Entities[1].Aliases) != 1 || result.Entities[1].Aliases[0] != "the old port" {
		t.Errorf("expected one alias, got %v", result.Entities[1].Aliases)
	}
}

func TestParseResponse_StripsCodeFence(t *testing.T) {
	raw := "```json\n{\"entities\":[{\"label\":\"Bram\",\"kind\":\"CHARACTER\",\"confidence\":0.9}],\"relations\":[]}\n```"
	result, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Label != "Bram" {
		t.Fatalf("expected one entity named Bram, got %+v", result.Entities)
	}
}

func TestParseResponse_RepairsTrailingComma(t *testing.T) {
	// A trailing comma is invalid JSON but jsonrepair fixes it, the same
	// tolerance every other LLM-backed parse in this tree gets.
	raw := `{"entities":[{"label":"Cael","kind":"NPC","confidence":0.8},],"relations":[]}`
	result, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("expected jsonrepair to recover, got error: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Label != "Cael" {
		t.Fatalf("expected one entity named Cael, got %+v", result.Entities)
	}
}

func TestParseResponse_DropsUnknownKindAndBlankLabel(t *testing.T) {
	raw := `{"entities":[
		{"label":"","kind":"CHARACTER","confidence":0.9},
		{"label":"Ghost Faction","kind":"NOT_A_KIND","confidence":0.9},
		{"label":"Valid","kind":"FACTION","confidence":0.9}
	],"relations":[]}`
	result, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Label != "Valid" {
		t.Fatalf("expected only the valid entity to survive, got %+v", result.Entities)
	}
}

func TestParseResponse_DefaultsMissingConfidence(t *testing.T) {
	raw := `{"entities":[{"label":"Default","kind":"ITEM"}],"relations":[{"subject":"A","object":"B","relationType":"KNOWS"}]}`
	result, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Entities[0].Confidence != 0.8 {
		t.Errorf("expected default entity confidence 0.8, got %v", result.Entities[0].Confidence)
	}
	if result.Relations[0].Confidence != 0.7 {
		t.Errorf("expected default relation confidence 0.7, got %v", result.Relations[0].Confidence)
	}
	if result.Relations[0].Verb != "knows" {
		t.Errorf("expected verb defaulted from relationType, got %q", result.Relations[0].Verb)
	}
}

type fakeChatter struct {
	text string
	err  error
}

func (f *fakeChatter) Chat(ctx context.Context, messages []llmbackend.Message, maxTokens int) (llmbackend.Result, error) {
	if f.err != nil {
		return llmbackend.Result{}, f.err
	}
	return llmbackend.Result{Text: f.text}, nil
}

func TestService_FromText_ParsesChatResponse(t *testing.T) {
	svc := NewService(&fakeChatter{text: `{"entities":[{"label":"Dara","kind":"CHARACTER","confidence":0.9}],"relations":[]}`})

	result, err := svc.FromText(context.Background(), "Dara walked into the hall.", nil)
	if err != nil {
		t.Fatalf("FromText: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Label != "Dara" {
		t.Fatalf("expected one entity named Dara, got %+v", result.Entities)
	}
}

func TestService_FromText_EmptyTextShortCircuits(t *testing.T) {
	svc := NewService(&fakeChatter{text: "should not be reached"})
	result, err := svc.FromText(context.Background(), "   ", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 0 || len(result.Relations) != 0 {
		t.Fatalf("expected an empty result for blank text, got %+v", result)
	}
}

func TestResult_ToEngineInputs(t *testing.T) {
	result := &Result{
		Entities: []Entity{
			{Label: "Aria", Kind: KindCharacter, Confidence: 0.9},
			{Label: "Windhaven", Kind: KindLocation, Confidence: 0.9},
		},
		Relations: []Relation{
			{Subject: "Aria", Object: "Windhaven", RelationType: RelLivesIn, Confidence: 0.8},
		},
	}

	ids := []string{"rel-1"}
	i := 0
	entities, relations := result.ToEngineInputs(1000, func() string {
		id := ids[i]
		i++
		return id
	})

	if len(entities) != 2 || len(relations) != 1 {
		t.Fatalf("expected 2 entities and 1 relation, got %+v / %+v", entities, relations)
	}
	if entities[0].Type != types.EntityPerson {
		t.Errorf("expected Aria to fold to EntityPerson, got %v", entities[0].Type)
	}
	if entities[1].Type != types.EntityPlace {
		t.Errorf("expected Windhaven to fold to EntityPlace, got %v", entities[1].Type)
	}
	rel := relations[0]
	if rel.ID != "rel-1" || rel.Predicate != "lives_in" {
		t.Fatalf("expected id rel-1 and predicate lives_in, got %+v", rel)
	}
	if rel.Subject.Type != types.EntityPerson || rel.Object.Type != types.EntityPlace {
		t.Fatalf("expected subject/object kinds resolved from the entities list, got %+v", rel)
	}
}
