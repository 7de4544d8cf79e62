package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kittclouds/recall/internal/types"
)

// DeleteMode selects between a logical delete, which drops the memory from
// the L2 working set only, and a physical, cascading one.
type DeleteMode string

const (
	DeleteLogical  DeleteMode = "logical"
	DeletePhysical DeleteMode = "physical"
)

// Store is the layered store: L0 core settings, L1 consolidated shards, L2
// working set, and the volume-managed archive, unified behind one global
// write lock that serialises mutations the way the concurrency model
// requires. Reads take the lock's read side and are never blocked by other
// readers.
type Store struct {
	mu sync.RWMutex

	log zerolog.Logger

	core    types.CoreSettings
	l1      *L1
	l2      *L2
	volumes *VolumeManager
	addr    *AddressIndex

	batchSize int
	pending   []types.Memory

	seq int64
}

// Options configures Open.
type Options struct {
	DataRoot       string
	L2Capacity     int
	L1ShardCapacity int
	VolumeMaxBytes int64
	BatchSize      int
	Log            zerolog.Logger
}

// Open loads or initializes every layer under opts.DataRoot/data.
func Open(opts Options) (*Store, error) {
	dataDir := filepath.Join(opts.DataRoot, "data")

	core, err := LoadCoreSettings(filepath.Join(opts.DataRoot, "config", "core_settings.json"))
	if err != nil {
		return nil, err
	}

	l2, err := OpenL2(filepath.Join(dataDir, "L2_working", "state.json"), opts.L2Capacity)
	if err != nil {
		return nil, err
	}
	l1, err := OpenL1(filepath.Join(dataDir, "L1_consolidated"), opts.L1ShardCapacity)
	if err != nil {
		return nil, err
	}
	volumes, err := OpenVolumeManager(filepath.Join(dataDir, "archive"), opts.VolumeMaxBytes, opts.Log)
	if err != nil {
		return nil, err
	}
	addr, err := OpenAddressIndex(filepath.Join(opts.DataRoot, "index", "address"))
	if err != nil {
		return nil, err
	}

	return &Store{
		log:       opts.Log,
		core:      core,
		l1:        l1,
		l2:        l2,
		volumes:   volumes,
		addr:      addr,
		batchSize: opts.BatchSize,
	}, nil
}

// CoreSettings returns L0, loaded once and read-only for the process
// lifetime.
func (s *Store) CoreSettings() types.CoreSettings {
	return s.core
}

// NewMemoryID mints a monotonic + random-suffix id unique across the
// entire store, as the invariant requires.
func (s *Store) NewMemoryID() string {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return fmt.Sprintf("mem-%d-%s", seq, uuid.NewString()[:8])
}

// Put appends memory to the current volume, inserts it into L2, and
// records its address. If the archive append fails the call is atomic:
// no L2 update occurs.
func (s *Store) Put(memory types.Memory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if memory.ID == "" {
		s.seq++
		memory.ID = fmt.Sprintf("mem-%d-%s", s.seq, uuid.NewString()[:8])
	}
	if memory.CreatedAt == 0 {
		memory.CreatedAt = time.Now().UnixMilli()
	}

	addr, err := s.volumes.Append(memory)
	if err != nil {
		return "", err
	}
	if err := s.addr.Put(memory.ID, addr); err != nil {
		return "", err
	}

	evicted := s.l2.Put(memory)
	if err := s.l2.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("failed to flush L2 state after put")
	}

	if len(evicted) > 0 {
		s.pending = append(s.pending, evicted...)
		if len(s.pending) >= s.batchSize {
			if err := s.migrateLocked(s.pending); err != nil {
				return memory.ID, err
			}
			s.pending = nil
		}
	}

	return memory.ID, nil
}

// Get resolves memoryID in O(1) via the address index, preferring the L2
// working set and falling back to the archive.
func (s *Store) Get(memoryID string) (types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.l2.Get(memoryID); ok {
		return m, nil
	}
	if m, ok := s.l1.Get(memoryID); ok {
		return m, nil
	}

	addr, err := s.addr.Get(memoryID)
	if err != nil {
		return types.Memory{}, err
	}
	return s.volumes.Read(addr)
}

// List returns memories for (userID, sessionID) created at or after since,
// newest turn_seq first, capped at limit (limit<=0 means unlimited). Only
// memories resident in the L2 working set are listed; memories evicted to
// L1 or held only in the archive are not.
func (s *Store) List(userID, sessionID string, since int64, limit int) []types.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Memory
	for _, m := range s.l2.List() {
		if matchesListFilter(m, userID, sessionID, since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnSeq > out[j].TurnSeq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matchesListFilter(m types.Memory, userID, sessionID string, since int64) bool {
	if userID != "" && m.UserID != userID {
		return false
	}
	if sessionID != "" && m.SessionID != sessionID {
		return false
	}
	if m.CreatedAt < since {
		return false
	}
	return true
}

// Delete removes memoryID. Logical delete removes it from the L2 working
// set only: L1, the address-index entry and the archive copy stay, so Get
// still resolves it, and no tombstone is kept (the flag set on the L2 copy
// is dropped with that copy). Physical delete additionally removes it from
// L1 and drops its address-index entry, and is only intended for reset.
func (s *Store) Delete(memoryID string, mode DeleteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.l2.Get(memoryID); ok {
		m.Tombstoned = true
		s.l2.Put(m)
	}
	s.l2.Remove(memoryID)

	if mode == DeletePhysical {
		if err := s.l1.RemoveCascade(memoryID); err != nil {
			return err
		}
		return s.addr.Delete(memoryID)
	}
	return nil
}

// MigrateToL1 merges a batch of evicted memories into L1, selecting the
// newest shard under capacity or creating a new one.
func (s *Store) MigrateToL1(batch []types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrateLocked(batch)
}

func (s *Store) migrateLocked(batch []types.Memory) error {
	if err := s.l1.Migrate(batch); err != nil {
		return err
	}
	for _, m := range batch {
		for _, ref := range m.Entities {
			key := string(ref.Type) + ":" + ref.Name
			_ = s.l1.MergeEntitySummary(key, m.Content)
		}
	}
	return nil
}

// ScanArchive iterates every memory ever written, across every volume, for
// the raw-text fallback retrieval stage.
func (s *Store) ScanArchive(visit func(types.Memory) bool) error {
	return s.volumes.ScanAll(visit)
}

// Close flushes L2 and closes the archive and address index handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.l2.Flush(); err != nil {
		return err
	}
	if err := s.volumes.Close(); err != nil {
		return err
	}
	return s.addr.Close()
}

// Stats reports sizes the controller surfaces through its own Stats call.
type Stats struct {
	L2Resident     int
	PendingBatch   int
	L1Shards       int
	ArchiveVolumes int
}

// Stats returns a snapshot of the store's current sizes. ArchiveVolumes is
// a best-effort directory listing rather than an in-memory counter, since
// the archive's volume count changes rarely enough that a stat call is not
// worth tracking on every append.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	volumes, _ := s.volumes.Count()
	return Stats{
		L2Resident:     s.l2.Len(),
		PendingBatch:   len(s.pending),
		L1Shards:       s.l1.ShardCount(),
		ArchiveVolumes: volumes,
	}
}
