package indexes

import (
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

type temporalEntry struct {
	Timestamp int64
	MemoryID  string
}

// Temporal is a sorted-array index of (timestamp, memory-id) supporting
// O(log n + k) range queries over fact_time or created_at.
type Temporal struct {
	mu      sync.RWMutex
	entries []temporalEntry // kept sorted by Timestamp
	byID    map[string]int64
}

// NewTemporal builds an empty temporal index.
func NewTemporal() *Temporal {
	return &Temporal{byID: make(map[string]int64)}
}

// Add inserts memoryID at the given timestamp, keeping entries sorted.
func (idx *Temporal) Add(memoryID string, timestamp int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.insertLocked(memoryID, timestamp)
}

func (idx *Temporal) insertLocked(memoryID string, timestamp int64) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].Timestamp >= timestamp })
	idx.entries = append(idx.entries, temporalEntry{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = temporalEntry{Timestamp: timestamp, MemoryID: memoryID}
	idx.byID[memoryID] = timestamp
}

// Remove deletes memoryID from the sorted array.
func (idx *Temporal) Remove(memoryID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ts, ok := idx.byID[memoryID]
	if !ok {
		return nil
	}
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].Timestamp >= ts })
	for i < len(idx.entries) && idx.entries[i].Timestamp == ts {
		if idx.entries[i].MemoryID == memoryID {
			idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
			break
		}
		i++
	}
	delete(idx.byID, memoryID)
	return nil
}

// Range returns every memory id whose timestamp falls in [since, until],
// newest first, capped at k (k<=0 means unlimited).
func (idx *Temporal) Range(since, until int64, k int) []Scored {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	lo := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].Timestamp >= since })
	hi := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].Timestamp > until })

	out := make([]Scored, 0, hi-lo)
	for i := hi - 1; i >= lo; i-- {
		out = append(out, Scored{MemoryID: idx.entries[i].MemoryID, Score: float64(idx.entries[i].Timestamp)})
		if k > 0 && len(out) >= k {
			break
		}
	}
	return out
}

type temporalSnapshot struct {
	Entries []temporalEntry
}

// Snapshot serializes the sorted array.
func (idx *Temporal) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return msgpack.Marshal(temporalSnapshot{Entries: idx.entries})
}

// Load restores the sorted array from a Snapshot.
func (idx *Temporal) Load(data []byte) error {
	var snap temporalSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = snap.Entries
	idx.byID = make(map[string]int64, len(snap.Entries))
	for _, e := range idx.entries {
		idx.byID[e.MemoryID] = e.Timestamp
	}
	return nil
}
