package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/types"
)

// l1Shard is one sharded JSON file of consolidated memories.
type l1Shard struct {
	Num      int            `json:"-"`
	Memories []types.Memory `json:"memories"`
}

// L1 is the consolidated long-term store: sharded JSON files capped at
// shardCapacity memories each, newest shard under capacity absorbs
// migrated-in batches.
type L1 struct {
	mu       sync.Mutex
	dir      string
	capacity int
	shards   map[int]*l1Shard
	index    map[string]int // memory-id -> shard number
}

// OpenL1 loads every shard file under dir.
func OpenL1(dir string, shardCapacity int) (*L1, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Storage, "create L1 dir", err)
	}
	l1 := &L1{dir: dir, capacity: shardCapacity, shards: make(map[int]*l1Shard), index: make(map[string]int)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "list L1 dir", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "shard-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "shard-"), ".json")
		num, convErr := strconv.Atoi(numStr)
		if convErr != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errs.Wrap(errs.Storage, "read L1 shard", err)
		}
		var shard l1Shard
		if err := json.Unmarshal(data, &shard); err != nil {
			return nil, errs.Wrap(errs.IndexCorrupted, "decode L1 shard", err)
		}
		shard.Num = num
		l1.shards[num] = &shard
		for _, m := range shard.Memories {
			l1.index[m.ID] = num
		}
	}
	return l1, nil
}

// ShardCount returns the number of consolidated shards currently on disk,
// for the controller's stats report.
func (l1 *L1) ShardCount() int {
	l1.mu.Lock()
	defer l1.mu.Unlock()
	return len(l1.shards)
}

func (l1 *L1) shardPath(num int) string {
	return filepath.Join(l1.dir, fmt.Sprintf("shard-%04d.json", num))
}

// Get returns a consolidated memory by id.
func (l1 *L1) Get(memoryID string) (types.Memory, bool) {
	l1.mu.Lock()
	defer l1.mu.Unlock()
	num, ok := l1.index[memoryID]
	if !ok {
		return types.Memory{}, false
	}
	for _, m := range l1.shards[num].Memories {
		if m.ID == memoryID {
			return m, true
		}
	}
	return types.Memory{}, false
}

// Migrate merges a batch of evicted-from-L2 memories into the newest shard
// under capacity, creating a new shard when none qualifies.
func (l1 *L1) Migrate(batch []types.Memory) error {
	if len(batch) == 0 {
		return nil
	}
	l1.mu.Lock()
	defer l1.mu.Unlock()

	target := l1.newestUnderCapacityLocked()
	remaining := batch
	for len(remaining) > 0 {
		space := l1.capacity - len(target.Memories)
		if space <= 0 {
			target = l1.newShardLocked()
			space = l1.capacity
		}
		take := space
		if take > len(remaining) {
			take = len(remaining)
		}
		for _, m := range remaining[:take] {
			target.Memories = append(target.Memories, m)
			l1.index[m.ID] = target.Num
		}
		if err := l1.flushShardLocked(target); err != nil {
			return err
		}
		remaining = remaining[take:]
	}
	return nil
}

func (l1 *L1) newestUnderCapacityLocked() *l1Shard {
	var nums []int
	for n := range l1.shards {
		nums = append(nums, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))
	for _, n := range nums {
		if len(l1.shards[n].Memories) < l1.capacity {
			return l1.shards[n]
		}
	}
	return l1.newShardLocked()
}

func (l1 *L1) newShardLocked() *l1Shard {
	next := 0
	for n := range l1.shards {
		if n >= next {
			next = n + 1
		}
	}
	shard := &l1Shard{Num: next}
	l1.shards[next] = shard
	return shard
}

func (l1 *L1) flushShardLocked(shard *l1Shard) error {
	data, err := json.Marshal(shard)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "marshal L1 shard", err)
	}
	return os.WriteFile(l1.shardPath(shard.Num), data, 0o644)
}

// MergeEntitySummary appends text to the running summary of an entity
// tracked across consolidated memories; entities accumulate summaries in
// L1 as the spec requires. Summaries are stored in a small sidecar file
// rather than inline per-shard, since one entity can span many shards.
func (l1 *L1) MergeEntitySummary(entityKey, text string) error {
	l1.mu.Lock()
	defer l1.mu.Unlock()

	path := filepath.Join(l1.dir, "entity-summaries.json")
	summaries := make(map[string]string)
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &summaries)
	}
	if existing, ok := summaries[entityKey]; ok && existing != "" {
		summaries[entityKey] = existing + "\n" + text
	} else {
		summaries[entityKey] = text
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "marshal entity summaries", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// RemoveCascade deletes memoryID from whichever shard holds it, used by
// physical delete.
func (l1 *L1) RemoveCascade(memoryID string) error {
	l1.mu.Lock()
	defer l1.mu.Unlock()
	num, ok := l1.index[memoryID]
	if !ok {
		return nil
	}
	shard := l1.shards[num]
	for i, m := range shard.Memories {
		if m.ID == memoryID {
			shard.Memories = append(shard.Memories[:i], shard.Memories[i+1:]...)
			break
		}
	}
	delete(l1.index, memoryID)
	return l1.flushShardLocked(shard)
}
