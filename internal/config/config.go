// Package config loads Recall's environment-variable configuration surface
// (spec ยง6) from config/api_keys.env plus the process environment, validates
// enums, and exposes the result as an immutable snapshot behind an atomic
// pointer for hot-reload.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// RecallMode selects the derived defaults for the domain-specific switches.
type RecallMode string

const (
	ModeRoleplay     RecallMode = "roleplay"
	ModeGeneral      RecallMode = "general"
	ModeKnowledgeBase RecallMode = "knowledge_base"
)

// EmbeddingMode picks which embedding dialect to auto-detect towards.
type EmbeddingMode string

const (
	EmbedAuto  EmbeddingMode = "auto"
	EmbedLite  EmbeddingMode = "lite"
	EmbedLocal EmbeddingMode = "local"
	EmbedCloud EmbeddingMode = "cloud"
)

// GraphBackend selects the knowledge-graph persistence backend.
type GraphBackend string

const (
	GraphFile     GraphBackend = "file"
	GraphEmbedded GraphBackend = "embedded"
)

// VectorBackend selects the vector index implementation memories are
// embedded into: an in-process index, or a standalone Qdrant server for
// deployments that want the index to outlive and scale past one process.
type VectorBackend string

const (
	VectorEmbedded VectorBackend = "embedded"
	VectorQdrant   VectorBackend = "qdrant"
)

// Switch records a boolean plus whether it came from a mode default or an
// explicit override (ยง6 precedence rule, tested by I8).
type Switch struct {
	Value    bool
	Overridden bool
}

// Config is the fully-resolved, immutable configuration snapshot.
type Config struct {
	DataRoot string
	LogLevel string

	RecallMode RecallMode

	ForeshadowingEnabled       Switch
	CharacterDimensionEnabled  Switch
	RPConsistencyEnabled       Switch
	RPRelationTypes            []string
	RPContextTypes             []string

	// Embedding
	EmbeddingAPIKey     string
	EmbeddingAPIBase    string
	EmbeddingModel      string
	EmbeddingDimension  int
	EmbeddingRateLimit  int
	EmbeddingRateWindowSeconds int
	EmbeddingMode       EmbeddingMode

	// LLM
	LLMAPIKey   string
	LLMAPIBase  string
	LLMModel    string
	LLMTimeoutSeconds int
	LLMMaxTokens map[string]int // per-task budget, e.g. "extraction" -> 512

	// Graph
	GraphBackend         GraphBackend
	TemporalDecayRate    float64
	TemporalMaxHistory   int
	ContradictionStrategy string

	// Retrieval
	StageEnabled map[string]bool // "L1".."L11" -> enabled
	StageTopK    map[string]int
	RRFK         int
	FallbackEnabled  bool
	FallbackParallel bool
	FallbackWorkers  int
	FinalTopK        int
	RerankWeights    RerankWeights
	HNSW             HNSWParams
	VectorBackend    VectorBackend
	Qdrant           QdrantParams

	// Dedup
	DedupJaccardHi float64
	DedupSemHi     float64
	DedupSemLo     float64
	DedupLLMEnabled bool

	// Analyzer trigger intervals / caps
	ForeshadowingTriggerInterval int
	ForeshadowingMaxContextTurns int
	ForeshadowingMaxReturn       int
	PersistentContextDecayDays  int
	PersistentContextMinConfidence float64

	// Context builder
	IncludeRecent               int
	BuildContextMaxTokens       int
	ReminderTurns               int
	ReminderImportanceThreshold float64

	// Episodes
	EpisodeGapTurns int

	// Budget
	BudgetHourlyLimit int
	BudgetDailyLimit  int
	BudgetReserve     int

	// Store
	L2Capacity     int
	L1ShardCapacity int
	VolumeMaxBytes int64
	BatchSize      int

	warnings []string
}

// RerankWeights are the L9 multi-factor weights.
type RerankWeights struct {
	Vector   float64
	Keyword  float64
	Entity   float64
	Recency  float64
}

// HNSWParams configures the HNSW vector index. IVFPartitions is loaded
// from IVF_HNSW_PARTITIONS but no index reads it: there is no IVF-HNSW
// index.
type HNSWParams struct {
	M              int
	EfConstruction int
	EfSearch       int
	IVFPartitions  int
}

// QdrantParams configures the optional Qdrant vector backend, used only
// when VectorBackend is VectorQdrant.
type QdrantParams struct {
	Addr       string
	Collection string
	Dimension  int
}

// Warnings returns the invalid-value / invalid-enum warnings collected while
// loading, so the caller can log them once at startup. Keys the loader does
// not read are ignored without a warning.
func (c *Config) Warnings() []string { return c.warnings }

// Atom holds a hot-reloadable *Config; in-flight requests keep whatever
// snapshot they captured via Load().
type Atom struct {
	ptr atomic.Pointer[Config]
}

// Load returns the current snapshot.
func (a *Atom) Load() *Config { return a.ptr.Load() }

// Store swaps in a new snapshot atomically.
func (a *Atom) Store(c *Config) { a.ptr.Store(c) }

// env is the merged key/value view: real process environment wins over the
// file, per the usual godotenv convention of "don't clobber what's set".
type env map[string]string

func loadEnv(dataRoot string) env {
	e := env{}
	path := filepath.Join(dataRoot, "config", "api_keys.env")
	if m, err := godotenv.Read(path); err == nil {
		for k, v := range m {
			e[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			e[kv[:i]] = kv[i+1:]
		}
	}
	return e
}

func (e env) str(key, def string) string {
	if v, ok := e[key]; ok && v != "" {
		return v
	}
	return def
}

func (e env) intv(key string, def int, warn *[]string) int {
	v, ok := e[key]
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*warn = append(*warn, "invalid integer for "+key+", using default")
		return def
	}
	return n
}

func (e env) floatv(key string, def float64, warn *[]string) float64 {
	v, ok := e[key]
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*warn = append(*warn, "invalid float for "+key+", using default")
		return def
	}
	return f
}

func (e env) boolv(key string, def bool, warn *[]string) bool {
	v, ok := e[key]
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*warn = append(*warn, "invalid bool for "+key+", using default")
		return def
	}
	return b
}

// switchVal resolves a boolean sub-switch: explicit override wins over the
// mode-derived default (ยง6, tested by I8).
func (e env) switchVal(key string, modeDefault bool, warn *[]string) Switch {
	v, ok := e[key]
	if !ok || v == "" {
		return Switch{Value: modeDefault, Overridden: false}
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*warn = append(*warn, "invalid bool for "+key+", using mode default")
		return Switch{Value: modeDefault, Overridden: false}
	}
	return Switch{Value: b, Overridden: true}
}

func (e env) list(key string, def []string) []string {
	v, ok := e[key]
	if !ok || v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// modeDefaults returns the per-mode derived defaults for the sub-switches.
func modeDefaults(mode RecallMode) (foreshadowing, characterDim, rpConsistency bool) {
	switch mode {
	case ModeRoleplay:
		return true, true, true
	case ModeKnowledgeBase:
		return false, false, false
	default: // general
		return false, false, false
	}
}

// Load reads dataRoot/config/api_keys.env plus the environment and returns a
// fully-resolved, validated Config.
func Load(dataRoot string) (*Config, error) {
	e := loadEnv(dataRoot)
	var warn []string

	mode := RecallMode(strings.ToLower(e.str("RECALL_MODE", string(ModeGeneral))))
	switch mode {
	case ModeRoleplay, ModeGeneral, ModeKnowledgeBase:
	default:
		warn = append(warn, "unknown RECALL_MODE, falling back to general")
		mode = ModeGeneral
	}

	fsDefault, cdDefault, rpDefault := modeDefaults(mode)

	embedMode := EmbeddingMode(strings.ToLower(e.str("RECALL_EMBEDDING_MODE", string(EmbedAuto))))
	switch embedMode {
	case EmbedAuto, EmbedLite, EmbedLocal, EmbedCloud:
	default:
		warn = append(warn, "unknown RECALL_EMBEDDING_MODE, falling back to auto")
		embedMode = EmbedAuto
	}

	graphBackend := GraphBackend(strings.ToLower(e.str("TEMPORAL_GRAPH_BACKEND", string(GraphFile))))
	if graphBackend != GraphFile && graphBackend != GraphEmbedded {
		warn = append(warn, "unknown TEMPORAL_GRAPH_BACKEND, falling back to file")
		graphBackend = GraphFile
	}

	vectorBackend := VectorBackend(strings.ToLower(e.str("VECTOR_BACKEND", string(VectorEmbedded))))
	if vectorBackend != VectorEmbedded && vectorBackend != VectorQdrant {
		warn = append(warn, "unknown VECTOR_BACKEND, falling back to embedded")
		vectorBackend = VectorEmbedded
	}

	stages := []string{"L1", "L2", "L3", "L4", "L5", "L6", "L7", "L8", "L9", "L10", "L11"}
	stageEnabled := make(map[string]bool, len(stages))
	stageTopK := make(map[string]int, len(stages))
	defaultTopK := map[string]int{
		"L2": 500, "L3": 100, "L4": 50, "L5": 100, "L6": 30, "L7": 200, "L9": 100, "L10": 50, "L11": 20,
	}
	for _, s := range stages {
		stageEnabled[s] = e.boolv("STAGE_"+s+"_ENABLED", true, &warn)
		stageTopK[s] = e.intv("STAGE_"+s+"_TOPK", defaultTopK[s], &warn)
	}

	maxTokens := map[string]int{
		"extraction":   e.intv("EXTRACTION_MAX_TOKENS", 1024, &warn),
		"contradiction": e.intv("CONTRADICTION_MAX_TOKENS", 256, &warn),
		"summary":      e.intv("SUMMARY_MAX_TOKENS", 512, &warn),
		"foreshadowing": e.intv("FORESHADOWING_MAX_TOKENS", 512, &warn),
		"consistency":  e.intv("CONSISTENCY_MAX_TOKENS", 512, &warn),
	}

	cfg := &Config{
		DataRoot: dataRoot,
		LogLevel: e.str("LOG_LEVEL", "info"),

		RecallMode: mode,
		ForeshadowingEnabled:      e.switchVal("FORESHADOWING_ENABLED", fsDefault, &warn),
		CharacterDimensionEnabled: e.switchVal("CHARACTER_DIMENSION_ENABLED", cdDefault, &warn),
		RPConsistencyEnabled:      e.switchVal("RP_CONSISTENCY_ENABLED", rpDefault, &warn),
		RPRelationTypes:           e.list("RP_RELATION_TYPES", nil),
		RPContextTypes:            e.list("RP_CONTEXT_TYPES", nil),

		EmbeddingAPIKey:     e.str("EMBEDDING_API_KEY", ""),
		EmbeddingAPIBase:    e.str("EMBEDDING_API_BASE", ""),
		EmbeddingModel:      e.str("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension:  e.intv("EMBEDDING_DIMENSION", 1536, &warn),
		EmbeddingRateLimit:  e.intv("EMBEDDING_RATE_LIMIT", 60, &warn),
		EmbeddingRateWindowSeconds: e.intv("EMBEDDING_RATE_WINDOW", 60, &warn),
		EmbeddingMode:       embedMode,

		LLMAPIKey:  e.str("LLM_API_KEY", ""),
		LLMAPIBase: e.str("LLM_API_BASE", ""),
		LLMModel:   e.str("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSeconds: e.intv("LLM_TIMEOUT", 30, &warn),
		LLMMaxTokens: maxTokens,

		GraphBackend:       graphBackend,
		TemporalDecayRate:  e.floatv("TEMPORAL_DECAY_RATE", 0.01, &warn),
		TemporalMaxHistory: e.intv("TEMPORAL_MAX_HISTORY", 1000, &warn),
		ContradictionStrategy: strings.ToUpper(e.str("CONTRADICTION_STRATEGY", "AUTO")),

		StageEnabled: stageEnabled,
		StageTopK:    stageTopK,
		RRFK:         e.intv("TRIPLE_RECALL_RRF_K", 60, &warn),
		FallbackEnabled:  e.boolv("FALLBACK_ENABLED", true, &warn),
		FallbackParallel: e.boolv("FALLBACK_PARALLEL", true, &warn),
		FallbackWorkers:  e.intv("FALLBACK_WORKERS", 4, &warn),
		FinalTopK:        e.intv("FINAL_TOP_K", 20, &warn),
		RerankWeights: RerankWeights{
			Vector:  e.floatv("RERANK_WEIGHT_VECTOR", 0.5, &warn),
			Keyword: e.floatv("RERANK_WEIGHT_KEYWORD", 0.3, &warn),
			Entity:  e.floatv("RERANK_WEIGHT_ENTITY", 0.15, &warn),
			Recency: e.floatv("RERANK_WEIGHT_RECENCY", 0.05, &warn),
		},
		HNSW: HNSWParams{
			M:              e.intv("HNSW_M", 16, &warn),
			EfConstruction: e.intv("HNSW_EF_CONSTRUCTION", 200, &warn),
			EfSearch:       e.intv("HNSW_EF_SEARCH", 64, &warn),
			IVFPartitions:  e.intv("IVF_HNSW_PARTITIONS", 16, &warn),
		},
		VectorBackend: vectorBackend,
		Qdrant: QdrantParams{
			Addr:       e.str("QDRANT_ADDR", "localhost:6334"),
			Collection: e.str("QDRANT_COLLECTION", "recall_memories"),
			Dimension:  e.intv("QDRANT_DIMENSION", 1536, &warn),
		},

		DedupJaccardHi: e.floatv("DEDUP_JACCARD_HI_THRESHOLD", 0.85, &warn),
		DedupSemHi:     e.floatv("DEDUP_SEM_HI_THRESHOLD", 0.90, &warn),
		DedupSemLo:     e.floatv("DEDUP_SEM_LO_THRESHOLD", 0.80, &warn),
		DedupLLMEnabled: e.boolv("DEDUP_LLM_ENABLED", true, &warn),

		ForeshadowingTriggerInterval: e.intv("FORESHADOWING_TRIGGER_INTERVAL", 10, &warn),
		ForeshadowingMaxContextTurns: e.intv("FORESHADOWING_MAX_CONTEXT_TURNS", 20, &warn),
		ForeshadowingMaxReturn:       e.intv("FORESHADOWING_MAX_RETURN", 5, &warn),
		PersistentContextDecayDays:     e.intv("PERSISTENT_CONTEXT_DECAY_DAYS", 30, &warn),
		PersistentContextMinConfidence: e.floatv("PERSISTENT_CONTEXT_MIN_CONFIDENCE", 0.2, &warn),

		IncludeRecent:               e.intv("INCLUDE_RECENT", 10, &warn),
		BuildContextMaxTokens:       e.intv("BUILD_CONTEXT_MAX_TOKENS", 4000, &warn),
		ReminderTurns:               e.intv("REMINDER_TURNS", 15, &warn),
		ReminderImportanceThreshold: e.floatv("REMINDER_IMPORTANCE_THRESHOLD", 0.7, &warn),

		EpisodeGapTurns: e.intv("EPISODE_GAP_TURNS", 20, &warn),

		BudgetHourlyLimit: e.intv("BUDGET_HOURLY_LIMIT", 0, &warn),
		BudgetDailyLimit:  e.intv("BUDGET_DAILY_LIMIT", 0, &warn),
		BudgetReserve:     e.intv("BUDGET_RESERVE", 0, &warn),

		L2Capacity:      e.intv("L2_CAPACITY", 200, &warn),
		L1ShardCapacity: e.intv("L1_SHARD_CAPACITY", 1000, &warn),
		VolumeMaxBytes:  int64(e.intv("VOLUME_MAX_BYTES", 50*1024*1024, &warn)),
		BatchSize:       e.intv("BATCH_SIZE", 50, &warn),

		warnings: warn,
	}

	return cfg, nil
}

// LogWarnings writes every collected warning to the logger at Warn level.
func (c *Config) LogWarnings(log zerolog.Logger) {
	for _, w := range c.warnings {
		log.Warn().Msg("config: " + w)
	}
}
