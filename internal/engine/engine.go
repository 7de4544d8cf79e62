// Package engine is the controller: it wires the store, graph, indexes,
// dedup, retriever, context builder, analyzers and background task manager
// into the two operations callers actually need, ingest and search, plus
// the maintenance, episode, stats and mode surfaces spec section 9
// describes. Every other package in the tree is a component; this is the
// one that knows how they fit together.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kittclouds/recall/internal/analyzers"
	"github.com/kittclouds/recall/internal/config"
	recallcontext "github.com/kittclouds/recall/internal/context"
	"github.com/kittclouds/recall/internal/dedup"
	"github.com/kittclouds/recall/internal/embedbackend"
	"github.com/kittclouds/recall/internal/extraction"
	"github.com/kittclouds/recall/internal/graph"
	"github.com/kittclouds/recall/internal/indexes"
	"github.com/kittclouds/recall/internal/llmbackend"
	"github.com/kittclouds/recall/internal/retriever"
	"github.com/kittclouds/recall/internal/store"
	"github.com/kittclouds/recall/internal/taskmgr"
	"github.com/kittclouds/recall/internal/tokenize"
	"github.com/kittclouds/recall/internal/types"
)

// Engine holds every wired subsystem plus the controller-level state none
// of them own individually: the index batch lock, the entity dictionary,
// episode tracking, and the hourly call counters Stats reports.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	st         *store.Store
	kgraph     *graph.Graph
	deduper    *dedup.Deduplicator
	retr       *retriever.Retriever
	ctxBuilder *recallcontext.Builder
	tasks      *taskmgr.Manager

	embedder  embedbackend.Embedder
	chatter   llmbackend.Chatter
	budget    *llmbackend.Budget
	extractor *extraction.Service

	bloom     *indexes.Bloom
	temporal  *indexes.Temporal
	inverted  *indexes.Inverted
	entityIdx *indexes.Entity
	ngram     *indexes.NGram
	vector    indexes.VectorIndex
	bm25      *indexes.BM25

	// idxMu serializes every index add/remove so a reader can never observe
	// a memory indexed in some structures but not others, per the
	// concurrency model's index-batch-lock requirement.
	idxMu sync.Mutex

	dictMu sync.RWMutex
	dict   *tokenize.Dictionary

	foreshadow  *analyzers.ForeshadowingTracker
	persistent  *analyzers.PersistentContextTracker
	consistency *analyzers.ConsistencyChecker

	idSeq func() string

	episodesMu  sync.Mutex
	active      map[string]*episodeState
	lastSession map[string]string
	closed      []Episode
	globalTurn  int64

	counterMu          sync.Mutex
	duplicatesDetected int
	contradictions     int
	contradictionLog   []types.Contradiction
	llmCalls           hourlyCounter
	embeddingCalls     hourlyCounter
}

// New opens the store, wires every component from cfg, rebuilds the entity
// dictionary from whatever the graph already knows, and returns a ready
// Engine. Close must be called to release the store/graph file handles.
func New(cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	st, err := store.Open(store.Options{
		DataRoot:        cfg.DataRoot,
		L2Capacity:      cfg.L2Capacity,
		L1ShardCapacity: cfg.L1ShardCapacity,
		VolumeMaxBytes:  cfg.VolumeMaxBytes,
		BatchSize:       cfg.BatchSize,
		Log:             log,
	})
	if err != nil {
		return nil, err
	}

	idSeq := newIDSeq()

	budget := llmbackend.NewBudget(cfg.BudgetHourlyLimit, cfg.BudgetDailyLimit, cfg.BudgetReserve)
	chatter, err := llmbackend.New(cfg, budget)
	if err != nil {
		st.Close()
		return nil, err
	}

	cache := embedbackend.NewCache(cfg.DataRoot+"/cache/embeddings", 10000, nil, 0)
	limiter := embedbackend.NewRateLimiter(cfg.EmbeddingRateLimit, time.Duration(cfg.EmbeddingRateWindowSeconds)*time.Second)
	embedder, err := embedbackend.New(cfg, cache, limiter)
	if err != nil {
		st.Close()
		return nil, err
	}

	backend, err := openGraphBackend(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	manager := graph.NewContradictionManager(graph.ContradictionStrategy(cfg.ContradictionStrategy), chatter, idSeq)
	kgraph := graph.New(backend, manager)

	vector, err := newVectorIndex(context.Background(), cfg, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	bloom := indexes.NewBloom(1_000_000, 0.01)
	temporal := indexes.NewTemporal()
	inverted := indexes.NewInverted()
	entityIdx := indexes.NewEntity()
	ngram := indexes.NewNGram()
	bm25 := indexes.NewBM25(1.2, 0.75)

	deduper := dedup.New(dedup.Options{
		JaccardHi:  cfg.DedupJaccardHi,
		SemHi:      cfg.DedupSemHi,
		SemLo:      cfg.DedupSemLo,
		LLMEnabled: cfg.DedupLLMEnabled,
		Chatter:    chatter,
		Vectors:    vector,
	})

	retr := retriever.New(retriever.Deps{
		Bloom:        bloom,
		Temporal:     temporal,
		Inverted:     inverted,
		Entity:       entityIdx,
		NGram:        ngram,
		VectorCoarse: vector,
		BM25:         bm25,
		Graph:        kgraph,
		Store:        st,
	}, cfg)

	e := &Engine{
		cfg:         cfg,
		log:         log,
		st:          st,
		kgraph:      kgraph,
		deduper:     deduper,
		retr:        retr,
		ctxBuilder:  recallcontext.New(cfg),
		tasks:       taskmgr.New(log, 4, idSeq),
		embedder:    embedder,
		chatter:     chatter,
		budget:      budget,
		extractor:   extraction.NewService(chatter),
		bloom:       bloom,
		temporal:    temporal,
		inverted:    inverted,
		entityIdx:   entityIdx,
		ngram:       ngram,
		vector:      vector,
		bm25:        bm25,
		foreshadow:  analyzers.NewForeshadowingTracker(chatter, embedder, idSeq),
		persistent:  analyzers.NewPersistentContextTracker(cfg.PersistentContextDecayDays, cfg.PersistentContextMinConfidence, idSeq),
		consistency: analyzers.NewConsistencyChecker(st.CoreSettings()),
		idSeq:       idSeq,
		active:      make(map[string]*episodeState),
		lastSession: make(map[string]string),
	}

	if err := e.rebuildDictionary(); err != nil {
		st.Close()
		return nil, err
	}

	return e, nil
}

func newIDSeq() func() string {
	return func() string { return uuid.NewString() }
}

// openGraphBackend selects the file or embedded backend per the resolved
// config, matching the store's own "one Options struct, one Open" shape.
func openGraphBackend(cfg *config.Config) (graph.Backend, error) {
	switch cfg.GraphBackend {
	case config.GraphEmbedded:
		return graph.NewEmbeddedBackend(cfg.DataRoot + "/data/graph")
	default:
		return graph.NewFileBackend(cfg.DataRoot + "/data/graph/graph.json")
	}
}

// newVectorIndex picks the configured vector backend: Qdrant when the
// deployment points at a standalone server, otherwise an embedded index —
// HNSW when the config carries tuned parameters, falling back to the
// brute-force Flat index otherwise (small corpora, or tests that never set
// HNSW).
func newVectorIndex(ctx context.Context, cfg *config.Config, log zerolog.Logger) (indexes.VectorIndex, error) {
	if cfg.VectorBackend == config.VectorQdrant {
		return indexes.NewQdrant(ctx, cfg.Qdrant.Addr, cfg.Qdrant.Collection, cfg.Qdrant.Dimension, log)
	}
	if cfg.HNSW.M > 0 {
		return indexes.NewHNSW(cfg.HNSW.M, cfg.HNSW.EfConstruction, cfg.HNSW.EfSearch), nil
	}
	return indexes.NewFlat(), nil
}

// rebuildDictionary recompiles the entity scanner from every entity the
// graph currently knows. Called once at startup and again whenever the
// entity set changes enough to be worth an index_rebuild task.
func (e *Engine) rebuildDictionary() error {
	entities, err := e.kgraph.ListEntities("")
	if err != nil {
		return err
	}
	registered := make([]tokenize.RegisteredEntity, 0, len(entities))
	for _, ent := range entities {
		registered = append(registered, tokenize.RegisteredEntity{
			Name:    ent.Name,
			Type:    ent.Type,
			Aliases: ent.Aliases,
		})
	}
	dict, err := tokenize.Compile(registered)
	if err != nil {
		return err
	}
	e.dictMu.Lock()
	e.dict = dict
	e.dictMu.Unlock()
	return nil
}

// recognizeEntities scans text against the current dictionary, keeping the
// single best-priority ref per surface form (SelectBest resolves a name
// that is both e.g. a place and a person).
func (e *Engine) recognizeEntities(content string) []types.EntityRef {
	e.dictMu.RLock()
	dict := e.dict
	e.dictMu.RUnlock()
	if dict == nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []types.EntityRef
	for _, m := range dict.Scan(content) {
		best, ok := tokenize.SelectBest(m.Refs)
		if !ok {
			continue
		}
		key := best.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, best)
	}
	return out
}

// indexAdd applies a memory to every index under the batch lock, so a
// concurrent search never sees it present in some structures and absent
// from others.
func (e *Engine) indexAdd(m types.Memory) {
	e.idxMu.Lock()
	defer e.idxMu.Unlock()

	e.bloom.Add(m.ID)
	e.temporal.Add(m.ID, m.CreatedAt)
	e.inverted.Add(m.ID, m.Content)
	e.entityIdx.Add(m.ID, m.Entities)
	e.ngram.Add(m.ID, m.Content)
	if len(m.Embedding) > 0 {
		e.vector.Upsert(m.ID, m.Embedding)
	}
	e.bm25.Add(m.ID, m.Content)
}

// indexRemove is the inverse of indexAdd, used by the physical delete path.
func (e *Engine) indexRemove(memoryID string) {
	e.idxMu.Lock()
	defer e.idxMu.Unlock()

	_ = e.bloom.Remove(memoryID)
	_ = e.temporal.Remove(memoryID)
	_ = e.inverted.Remove(memoryID)
	_ = e.entityIdx.Remove(memoryID)
	_ = e.ngram.Remove(memoryID)
	_ = e.vector.Remove(memoryID)
	_ = e.bm25.Remove(memoryID)
}

// embed runs the configured embedder and bumps the hourly embedding-call
// counter Stats reports, so ingest and search embeddings are accounted for
// in one place. The foreshadowing tracker holds the raw embedder, so its
// dedup embeddings are not counted.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, text)
	if err == nil {
		e.embeddingCalls.bump(types.NowMillis())
	}
	return vec, err
}

// chat runs the configured chatter and bumps the hourly LLM-call counter.
func (e *Engine) chat(ctx context.Context, messages []llmbackend.Message, maxTokens int) (llmbackend.Result, error) {
	res, err := e.chatter.Chat(ctx, messages, maxTokens)
	if err == nil {
		e.llmCalls.bump(types.NowMillis())
	}
	return res, err
}

func sessionKey(userID, sessionID string) string { return userID + "\x1f" + sessionID }

// Delete removes a memory. Logical mode drops it from the L2 working set
// only; it stays in the search indexes, L1 and the archive, and no
// tombstone is kept. Physical mode also removes it from L1, the address
// index and every search index, and forgets it in the deduper.
func (e *Engine) Delete(memoryID string, mode store.DeleteMode) error {
	if err := e.st.Delete(memoryID, mode); err != nil {
		return err
	}
	if mode == store.DeletePhysical {
		e.indexRemove(memoryID)
		_ = e.deduper.Forget(memoryID)
	}
	return nil
}

// CheckConsistency runs a candidate output against the compiled absolute
// rules, for callers that want to validate generated text before it is
// shown to the user.
func (e *Engine) CheckConsistency(output string) analyzers.CheckResult {
	return e.consistency.Check(output)
}

// Close releases the store and graph file handles, plus the Qdrant gRPC
// connection when that's the configured vector backend.
func (e *Engine) Close() error {
	if closer, ok := e.vector.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			e.log.Warn().Err(err).Msg("failed to close vector index")
		}
	}
	if err := e.kgraph.Close(); err != nil {
		return err
	}
	return e.st.Close()
}
