package retriever

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/indexes"
	"github.com/kittclouds/recall/internal/store"
	"github.com/kittclouds/recall/internal/types"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{
		DataRoot:        t.TempDir(),
		L2Capacity:      50,
		L1ShardCapacity: 50,
		VolumeMaxBytes:  1024 * 1024,
		BatchSize:       10,
		Log:             zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func baseConfig() *config.Config {
	return &config.Config{
		RRFK:      60,
		FinalTopK: 20,
		RerankWeights: config.RerankWeights{
			Vector: 1, Keyword: 1, Entity: 1, Recency: 0.1,
		},
		TemporalDecayRate: 0.01,
		StageTopK:         map[string]int{},
		StageEnabled:      map[string]bool{},
	}
}

func TestRetriever_InvertedOnlyReturnsExactKeywordMatches(t *testing.T) {
	st := testStore(t)
	inverted := indexes.NewInverted()

	id1, _ := st.Put(types.Memory{Content: "the dragon sleeps in the cave", UserID: "u1"})
	inverted.Add(id1, "the dragon sleeps in the cave")
	id2, _ := st.Put(types.Memory{Content: "the weather was fine today", UserID: "u1"})
	inverted.Add(id2, "the weather was fine today")

	cfg := baseConfig()
	cfg.StageEnabled = map[string]bool{
		"L1": false, "L2": false, "L4": false, "L5": false, "L6": false,
		"L7": false, "L8": false, "L9": false, "L10": false, "L11": false,
	}

	r := New(Deps{Store: st, Inverted: inverted}, cfg)
	result, err := r.Search(context.Background(), Query{Text: "dragon cave"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Memories) != 1 || result.Memories[0].Memory.ID != id1 {
		t.Fatalf("expected exactly the dragon memory, got %+v", result.Memories)
	}
}

func TestRetriever_FallbackScanFindsUnindexedText(t *testing.T) {
	st := testStore(t)
	// Write directly to the archive without ever indexing it, to exercise
	// the raw-text fallback guarantee.
	id, err := st.Put(types.Memory{Content: "the lighthouse keeper vanished one winter", UserID: "u1"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	cfg := baseConfig()
	cfg.FallbackEnabled = true
	cfg.StageEnabled = map[string]bool{
		"L1": false, "L2": false, "L3": false, "L4": false, "L5": false,
		"L6": false, "L7": false, "L8": false, "L9": false, "L10": false, "L11": false,
	}

	r := New(Deps{Store: st, Inverted: indexes.NewInverted()}, cfg)
	result, err := r.Search(context.Background(), Query{Text: "lighthouse keeper vanished"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !result.UsedFallback {
		t.Fatal("expected the fallback scan to have run")
	}
	found := false
	for _, m := range result.Memories {
		if m.Memory.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the fallback scan to surface the unindexed memory, got %+v", result.Memories)
	}
}

func TestRetriever_MultiFactorRerankOrdersByComputedScore(t *testing.T) {
	st := testStore(t)
	inverted := indexes.NewInverted()

	idHigh, _ := st.Put(types.Memory{Content: "a dragon and a knight duel at dawn", UserID: "u1", CreatedAt: types.NowMillis()})
	inverted.Add(idHigh, "a dragon and a knight duel at dawn")
	idLow, _ := st.Put(types.Memory{Content: "a dragon flies over the village", UserID: "u1", CreatedAt: types.NowMillis()})
	inverted.Add(idLow, "a dragon flies over the village")

	cfg := baseConfig()
	cfg.StageEnabled = map[string]bool{
		"L1": false, "L2": false, "L4": false, "L5": false, "L6": false,
		"L7": false, "L8": false, "L10": false, "L11": false,
	}
	bm25 := indexes.NewBM25(1.2, 0.75)
	bm25.Add(idHigh, "a dragon and a knight duel at dawn")
	bm25.Add(idLow, "a dragon flies over the village")

	r := New(Deps{Store: st, Inverted: inverted, BM25: bm25}, cfg)
	result, err := r.Search(context.Background(), Query{Text: "dragon knight duel"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Memories) < 2 {
		t.Fatalf("expected both candidates scored, got %+v", result.Memories)
	}
	if result.Memories[0].Memory.ID != idHigh {
		t.Fatalf("expected the closer keyword match ranked first, got %+v", result.Memories)
	}
}

func TestRetriever_EntityArmRespectsEmptyQuery(t *testing.T) {
	st := testStore(t)
	cfg := baseConfig()
	r := New(Deps{Store: st, Inverted: indexes.NewInverted()}, cfg)
	result, err := r.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Memories) != 0 {
		t.Fatalf("expected no results for an empty query with nothing indexed, got %+v", result.Memories)
	}
}
