package analyzers

import (
	"sort"
	"sync"

	"github.com/kittclouds/recall/internal/types"
)

const (
	maxPerType     = 5
	maxTotalActive = 30

	// dailyDecayRate is how much confidence an item loses per day once it
	// has gone unobserved past DECAY_DAYS. The spec names the decay-days
	// threshold but not a rate; 5%/day brings a fresh confidence-1.0 item
	// below a typical 0.2 MIN_CONFIDENCE about 16 days past the DECAY_DAYS
	// threshold (roughly 46 days of silence with the 30-day default), which
	// matches the "durable but eventually stale" behavior the tracker is
	// meant to have.
	dailyDecayRate = 0.05

	msPerDay = int64(24 * 60 * 60 * 1000)
)

// PersistentContextTracker holds durable facts about the user or world
// across the 15 closed PersistentContextType tags, capped at 5 per type
// and 30 active overall, with linear confidence decay and archival below
// MIN_CONFIDENCE.
type PersistentContextTracker struct {
	mu    sync.Mutex
	items map[string]types.PersistentContextItem

	decayDays     int
	minConfidence float64
	idSeq         func() string
}

// NewPersistentContextTracker builds an empty tracker.
func NewPersistentContextTracker(decayDays int, minConfidence float64, idSeq func() string) *PersistentContextTracker {
	return &PersistentContextTracker{
		items:         make(map[string]types.PersistentContextItem),
		decayDays:     decayDays,
		minConfidence: minConfidence,
		idSeq:         idSeq,
	}
}

func (t *PersistentContextTracker) nextID() string {
	if t.idSeq != nil {
		return t.idSeq()
	}
	return "pctx"
}

// Upsert adds a new item, enforcing the per-type and total active caps by
// evicting (archiving) the lowest-confidence active item when a cap would
// be exceeded. Returns the new item's id and any ids archived to make
// room.
func (t *PersistentContextTracker) Upsert(item types.PersistentContextItem) (string, []string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if item.ID == "" {
		item.ID = t.nextID()
	}
	t.items[item.ID] = item

	var evicted []string
	evicted = append(evicted, t.enforceCapLocked(item.Type, maxPerType)...)
	evicted = append(evicted, t.enforceTotalCapLocked()...)
	return item.ID, evicted, nil
}

func (t *PersistentContextTracker) enforceCapLocked(pcType types.PersistentContextType, cap int) []string {
	var ofType []types.PersistentContextItem
	for _, it := range t.items {
		if it.Type == pcType && !it.Archived {
			ofType = append(ofType, it)
		}
	}
	return t.evictOverflowLocked(ofType, cap)
}

func (t *PersistentContextTracker) enforceTotalCapLocked() []string {
	var active []types.PersistentContextItem
	for _, it := range t.items {
		if !it.Archived {
			active = append(active, it)
		}
	}
	return t.evictOverflowLocked(active, maxTotalActive)
}

func (t *PersistentContextTracker) evictOverflowLocked(candidates []types.PersistentContextItem, cap int) []string {
	if len(candidates) <= cap {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence < candidates[j].Confidence
	})
	var evicted []string
	overflow := len(candidates) - cap
	for i := 0; i < overflow; i++ {
		id := candidates[i].ID
		item := t.items[id]
		item.Archived = true
		t.items[id] = item
		evicted = append(evicted, id)
	}
	return evicted
}

// ApplyDecay linearly decays the confidence of every active item that has
// gone unobserved past decayDays, archiving any that fall below
// minConfidence. Returns the ids newly archived.
func (t *PersistentContextTracker) ApplyDecay(now int64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var archived []string
	for id, item := range t.items {
		if item.Archived {
			continue
		}
		daysSinceSeen := (now - item.LastSeenAt) / msPerDay
		overDays := daysSinceSeen - int64(t.decayDays)
		if overDays <= 0 {
			continue
		}
		item.Confidence -= float64(overDays) * dailyDecayRate
		if item.Confidence < t.minConfidence {
			item.Archived = true
			archived = append(archived, id)
		}
		t.items[id] = item
	}
	return archived
}

// Touch records a fresh observation of id, resetting its decay clock.
func (t *PersistentContextTracker) Touch(id string, now int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return
	}
	item.LastSeenAt = now
	t.items[id] = item
}

// GetActive returns every non-archived item, optionally filtered by type
// (pass "" for every type).
func (t *PersistentContextTracker) GetActive(pcType types.PersistentContextType) []types.PersistentContextItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []types.PersistentContextItem
	for _, it := range t.items {
		if it.Archived {
			continue
		}
		if pcType != "" && it.Type != pcType {
			continue
		}
		out = append(out, it)
	}
	return out
}
