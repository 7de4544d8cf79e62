package store

import (
	"container/list"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/types"
)

// l2Entry is one resident memory plus its LRU list element.
type l2Entry struct {
	memory types.Memory
	elem   *list.Element
}

// L2 is the working-set cache: capacity-bounded, LRU-evicted, mirrored to
// state.json so a crash doesn't lose resident memories. Eviction hands
// batches of evicted memories to the caller for migration into L1.
type L2 struct {
	mu       sync.Mutex
	capacity int
	path     string
	entries  map[string]*l2Entry
	order    *list.List // front = most recently used
}

// l2State is the JSON shape persisted to disk.
type l2State struct {
	Order []types.Memory `json:"order"` // most-recently-used first
}

// OpenL2 loads the working set from path (if present) under capacity.
func OpenL2(path string, capacity int) (*L2, error) {
	l2 := &L2{capacity: capacity, path: path, entries: make(map[string]*l2Entry), order: list.New()}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l2, nil
		}
		return nil, errs.Wrap(errs.Storage, "read L2 state", err)
	}
	var state l2State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.Wrap(errs.IndexCorrupted, "decode L2 state", err)
	}
	for _, m := range state.Order {
		elem := l2.order.PushBack(m.ID)
		l2.entries[m.ID] = &l2Entry{memory: m, elem: elem}
	}
	return l2, nil
}

// Get returns the memory if resident, marking it most-recently-used.
func (l2 *L2) Get(memoryID string) (types.Memory, bool) {
	l2.mu.Lock()
	defer l2.mu.Unlock()
	e, ok := l2.entries[memoryID]
	if !ok {
		return types.Memory{}, false
	}
	l2.order.MoveToFront(e.elem)
	return e.memory, true
}

// Put inserts or refreshes memory as most-recently-used, returning any
// memories evicted by the insertion for the caller to migrate to L1.
func (l2 *L2) Put(memory types.Memory) (evicted []types.Memory) {
	l2.mu.Lock()
	defer l2.mu.Unlock()

	if e, ok := l2.entries[memory.ID]; ok {
		e.memory = memory
		l2.order.MoveToFront(e.elem)
		return nil
	}

	elem := l2.order.PushFront(memory.ID)
	l2.entries[memory.ID] = &l2Entry{memory: memory, elem: elem}

	for len(l2.entries) > l2.capacity {
		back := l2.order.Back()
		if back == nil {
			break
		}
		id := back.Value.(string)
		evicted = append(evicted, l2.entries[id].memory)
		l2.order.Remove(back)
		delete(l2.entries, id)
	}
	return evicted
}

// Remove deletes memoryID from the working set.
func (l2 *L2) Remove(memoryID string) {
	l2.mu.Lock()
	defer l2.mu.Unlock()
	e, ok := l2.entries[memoryID]
	if !ok {
		return
	}
	l2.order.Remove(e.elem)
	delete(l2.entries, memoryID)
}

// List returns every resident memory, most-recently-used first.
func (l2 *L2) List() []types.Memory {
	l2.mu.Lock()
	defer l2.mu.Unlock()
	out := make([]types.Memory, 0, len(l2.entries))
	for e := l2.order.Front(); e != nil; e = e.Next() {
		out = append(out, l2.entries[e.Value.(string)].memory)
	}
	return out
}

// Len reports the number of resident memories.
func (l2 *L2) Len() int {
	l2.mu.Lock()
	defer l2.mu.Unlock()
	return len(l2.entries)
}

// Flush serializes the working set to state.json.
func (l2 *L2) Flush() error {
	l2.mu.Lock()
	state := l2State{Order: make([]types.Memory, 0, len(l2.entries))}
	for e := l2.order.Front(); e != nil; e = e.Next() {
		state.Order = append(state.Order, l2.entries[e.Value.(string)].memory)
	}
	l2.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l2.path), 0o755); err != nil {
		return errs.Wrap(errs.Storage, "create L2 dir", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "marshal L2 state", err)
	}
	return os.WriteFile(l2.path, data, 0o644)
}
