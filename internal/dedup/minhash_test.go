package dedup

import "testing"

func TestEstimateJaccard_IdenticalTextScoresHigh(t *testing.T) {
	a := signature("Alice lives in Paris and works at a bakery")
	b := signature("Alice lives in Paris and works at a bakery")
	if score := estimateJaccard(a, b); score < 0.99 {
		t.Fatalf("expected near-1.0 for identical text, got %f", score)
	}
}

func TestEstimateJaccard_WhitespaceAndPunctuationNoiseStillMatches(t *testing.T) {
	a := signature("Alice住在北京")
	b := signature("Alice 住在 北京。")
	if score := estimateJaccard(a, b); score < 0.85 {
		t.Fatalf("expected whitespace/punctuation variants to score >= 0.85, got %f", score)
	}
}

func TestEstimateJaccard_UnrelatedTextScoresLow(t *testing.T) {
	a := signature("Alice lives in Paris and works at a bakery")
	b := signature("The quarterly revenue report shows a decline in exports")
	if score := estimateJaccard(a, b); score > 0.3 {
		t.Fatalf("expected unrelated text to score low, got %f", score)
	}
}

func TestLSHIndex_CandidatesFindsSharedBandMatches(t *testing.T) {
	idx := newLSHIndex()
	sigA := signature("Alice lives in Paris and works at a bakery")
	idx.insert("mem-a", sigA)

	sigB := signature("Alice lives in Paris and works at a bakery.")
	candidates := idx.candidates(sigB)
	found := false
	for _, c := range candidates {
		if c == "mem-a" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected near-identical text to share an LSH bucket, got %v", candidates)
	}
}

func TestLSHIndex_Remove(t *testing.T) {
	idx := newLSHIndex()
	sig := signature("some memory content")
	idx.insert("mem-a", sig)
	idx.remove("mem-a")
	if len(idx.candidates(sig)) != 0 {
		t.Fatal("expected no candidates after removal")
	}
}
