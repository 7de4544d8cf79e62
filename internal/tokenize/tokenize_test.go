package tokenize

import (
	"testing"

	"github.com/kittclouds/recall/internal/types"
)

func TestCanonicalize_PreservesJoiners(t *testing.T) {
	got := Canonicalize("Monkey D. Luffy")
	want := "monkey d. luffy"
	if got != want {
		t.Errorf("Canonicalize() = %q, want %q", got, want)
	}
}

func TestCanonicalize_CollapsesSeparators(t *testing.T) {
	got := Canonicalize("Jean-Luc,  Picard!!")
	want := "jean-luc picard"
	if got != want {
		t.Errorf("Canonicalize() = %q, want %q", got, want)
	}
}

func TestTokenizeWithOffsets_RoundTrips(t *testing.T) {
	text := "Luffy sailed to Marineford."
	toks := TokenizeWithOffsets(text)
	if len(toks) != 4 {
		t.Fatalf("expected 4 tokens, got %d", len(toks))
	}
	for _, tok := range toks {
		if Canonicalize(text[tok.Start:tok.End]) != tok.Text {
			t.Fatalf("offsets do not round trip for %q", tok.Text)
		}
	}
	if toks[0].Text != "luffy" {
		t.Errorf("expected first token 'luffy', got %q", toks[0].Text)
	}
}

func TestNormalize_DropsStopWords(t *testing.T) {
	got := Normalize("The quick fox is at the dock")
	for _, w := range got {
		if w == "the" || w == "is" || w == "at" {
			t.Errorf("expected stop word %q to be removed, got %v", w, got)
		}
	}
}

func TestDictionary_ScanFindsRegisteredEntity(t *testing.T) {
	dict, err := Compile([]RegisteredEntity{
		{Name: "Monkey D. Luffy", Type: types.EntityPerson, Aliases: []string{"Straw Hat"}},
		{Name: "Marineford", Type: types.EntityPlace},
	})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	matches := dict.Scan("Luffy and the Straw Hat crew sailed to Marineford.")
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}

	foundPlace := false
	for _, m := range matches {
		for _, ref := range m.Refs {
			if ref.Name == "Marineford" && ref.Type == types.EntityPlace {
				foundPlace = true
			}
		}
	}
	if !foundPlace {
		t.Error("expected Marineford to be matched")
	}
}

func TestDictionary_IsKnownEntity(t *testing.T) {
	dict, err := Compile([]RegisteredEntity{{Name: "Nami", Type: types.EntityPerson}})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if !dict.IsKnownEntity("Nami") {
		t.Error("expected Nami to be known")
	}
	if dict.IsKnownEntity("Zoro") {
		t.Error("expected Zoro to be unknown")
	}
}

func TestSelectBest_PrefersHigherPriorityKind(t *testing.T) {
	refs := []types.EntityRef{
		{Name: "Sabaody", Type: types.EntityConcept},
		{Name: "Sabaody", Type: types.EntityPlace},
	}
	best, ok := SelectBest(refs)
	if !ok {
		t.Fatal("expected a best match")
	}
	if best.Type != types.EntityPlace {
		t.Errorf("expected PLACE to win, got %v", best.Type)
	}
}

func TestNGrams_TwoRuneStringYieldsOnlyItsBigram(t *testing.T) {
	grams := NGrams("ab")
	if len(grams) != 1 || grams[0] != "ab" {
		t.Errorf("expected single bigram 'ab', got %v", grams)
	}
}
