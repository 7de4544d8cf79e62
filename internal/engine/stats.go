package engine

import (
	"sync"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/types"
)

// hourlyCounter counts events in a fixed one-hour window that restarts on
// the first event after the previous window has run out (value keeps
// reporting the old window's count until then), the same window-reset
// idiom the LLM budget uses for its own hourly limit.
type hourlyCounter struct {
	mu          sync.Mutex
	windowStart int64
	count       int
}

const hourMillis = int64(60 * 60 * 1000)

func (h *hourlyCounter) bump(now int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if now-h.windowStart > hourMillis {
		h.windowStart = now
		h.count = 0
	}
	h.count++
}

func (h *hourlyCounter) value() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Stats is the controller's view across every subsystem, the ten counters
// the design calls for.
type Stats struct {
	MemoriesTotal        int
	EntitiesTotal        int
	RelationsActive      int
	DuplicatesDetected   int
	ContradictionsTotal  int
	L2Size               int
	L1Shards             int
	ArchiveVolumes       int
	LLMCallsHour         int
	EmbeddingCallsHour   int
}

// Stats assembles the ten counters from the store, graph and dedup
// subsystems plus the controller's own contradiction/call counters.
func (e *Engine) Stats() (Stats, error) {
	storeStats := e.st.Stats()

	entities, err := e.kgraph.ListEntities("")
	if err != nil {
		return Stats{}, err
	}
	relations, err := e.kgraph.AllRelations()
	if err != nil {
		return Stats{}, err
	}
	active := 0
	for _, r := range relations {
		if r.Status == types.FactActive {
			active++
		}
	}

	dedupStats := e.deduper.Stats()

	e.counterMu.Lock()
	contradictions := e.contradictions
	e.counterMu.Unlock()

	return Stats{
		MemoriesTotal:       storeStats.L2Resident + storeStats.PendingBatch,
		EntitiesTotal:       len(entities),
		RelationsActive:     active,
		DuplicatesDetected:  dedupStats.DuplicatesDetected,
		ContradictionsTotal: contradictions,
		L2Size:              storeStats.L2Resident,
		L1Shards:            storeStats.L1Shards,
		ArchiveVolumes:      storeStats.ArchiveVolumes,
		LLMCallsHour:        e.llmCalls.value(),
		EmbeddingCallsHour:  e.embeddingCalls.value(),
	}, nil
}

// SwitchReport reports a sub-switch's resolved value and whether it came
// from the recall_mode default or an explicit environment override.
type SwitchReport struct {
	Value  bool
	Source string
}

func reportSwitch(sw config.Switch) SwitchReport {
	source := "default"
	if sw.Overridden {
		source = "override"
	}
	return SwitchReport{Value: sw.Value, Source: source}
}

// ModeReport is the resolved recall mode plus every sub-switch's source,
// for callers (and operators) who need to see what actually took effect.
type ModeReport struct {
	RecallMode         string
	Foreshadowing      SwitchReport
	CharacterDimension SwitchReport
	RPConsistency      SwitchReport
}

// Mode reports the resolved recall mode and sub-switch sources.
func (e *Engine) Mode() ModeReport {
	return ModeReport{
		RecallMode:         string(e.cfg.RecallMode),
		Foreshadowing:      reportSwitch(e.cfg.ForeshadowingEnabled),
		CharacterDimension: reportSwitch(e.cfg.CharacterDimensionEnabled),
		RPConsistency:      reportSwitch(e.cfg.RPConsistencyEnabled),
	}
}
