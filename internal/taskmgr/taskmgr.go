// Package taskmgr runs and tracks the background work spawned by ingest and
// maintenance: analyzers, index upkeep, decay sweeps. Every task has one of
// 14 named kinds and moves through a single lifecycle: submitted, running,
// then done, failed or cancelled. Progress is published on a channel rather
// than polled.
package taskmgr

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Kind is one of the 14 closed background task kinds the controller runs.
type Kind string

const (
	KindUnifiedAnalysis          Kind = "unified_analysis"
	KindPersistentContextExtract Kind = "persistent_context_extract"
	KindForeshadowingAnalysis    Kind = "foreshadowing_analysis"
	KindConsistencyCheck         Kind = "consistency_check"
	KindDedupCheck               Kind = "dedup_check"
	KindEntityExtraction         Kind = "entity_extraction"
	KindRelationExtraction       Kind = "relation_extraction"
	KindEmbeddingGeneration      Kind = "embedding_generation"
	KindIndexRebuild             Kind = "index_rebuild"
	KindL1Migration              Kind = "l1_migration"
	KindVolumeCompaction         Kind = "volume_compaction"
	KindEpisodeSummarization     Kind = "episode_summarization"
	KindDecayMaintenance         Kind = "decay_maintenance"
	KindBudgetReset              Kind = "budget_reset"
)

// AllKinds lists the 14 named kinds, mainly for validation and tests.
var AllKinds = []Kind{
	KindUnifiedAnalysis, KindPersistentContextExtract, KindForeshadowingAnalysis,
	KindConsistencyCheck, KindDedupCheck, KindEntityExtraction, KindRelationExtraction,
	KindEmbeddingGeneration, KindIndexRebuild, KindL1Migration, KindVolumeCompaction,
	KindEpisodeSummarization, KindDecayMaintenance, KindBudgetReset,
}

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is a tracked unit of background work.
type Task struct {
	ID        string
	Kind      Kind
	Status    Status
	UserID    string
	SessionID string
	Err       string
}

// Event is published on every status transition.
type Event struct {
	TaskID string
	Kind   Kind
	Status Status
	Err    string
}

// Func is the work a task performs. It must observe ctx cancellation
// promptly and return the error that determines done vs failed.
type Func func(ctx context.Context) error

// Manager runs tasks on a bounded pool and publishes lifecycle events to
// subscribers. The subscription map and task table are process-wide and
// safe for concurrent use, matching the rest of the engine's shared-state
// discipline.
type Manager struct {
	log zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*Task
	subs  map[string]chan Event
	seq   func() string

	sem chan struct{}
}

// New builds a Manager whose worker pool admits at most maxConcurrent
// simultaneously running tasks. idSeq generates task ids (the engine wires
// its monotonic+random id generator here); with a nil idSeq every task id
// is "task".
func New(log zerolog.Logger, maxConcurrent int, idSeq func() string) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		log:   log,
		tasks: make(map[string]*Task),
		subs:  make(map[string]chan Event),
		seq:   idSeq,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (m *Manager) nextID() string {
	if m.seq != nil {
		return m.seq()
	}
	return "task"
}

// Subscribe returns a channel of lifecycle events for every task the
// Manager runs from this point on, and an unsubscribe func. The channel is
// buffered; a slow subscriber drops events rather than blocking task
// execution.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID()
	ch := make(chan Event, 64)
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Submit registers a task and runs it on its own goroutine, which waits on
// the pool semaphore while the pool is at capacity. Submit itself returns
// immediately with the task id; lifecycle progress arrives via Subscribe.
func (m *Manager) Submit(ctx context.Context, kind Kind, userID, sessionID string, fn Func) string {
	id := m.nextID()
	task := &Task{ID: id, Kind: kind, Status: StatusSubmitted, UserID: userID, SessionID: sessionID}

	m.mu.Lock()
	m.tasks[id] = task
	m.mu.Unlock()
	m.publish(Event{TaskID: id, Kind: kind, Status: StatusSubmitted})

	go m.run(ctx, task, fn)
	return id
}

func (m *Manager) run(ctx context.Context, task *Task, fn Func) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		m.finish(task, StatusCancelled, ctx.Err())
		return
	}
	defer func() { <-m.sem }()

	m.setStatus(task, StatusRunning)
	m.publish(Event{TaskID: task.ID, Kind: task.Kind, Status: StatusRunning})

	err := fn(ctx)
	switch {
	case ctx.Err() != nil:
		m.finish(task, StatusCancelled, ctx.Err())
	case err != nil:
		m.finish(task, StatusFailed, err)
	default:
		m.finish(task, StatusDone, nil)
	}
}

func (m *Manager) setStatus(task *Task, status Status) {
	m.mu.Lock()
	task.Status = status
	m.mu.Unlock()
}

func (m *Manager) finish(task *Task, status Status, err error) {
	m.mu.Lock()
	task.Status = status
	if err != nil {
		task.Err = err.Error()
	}
	m.mu.Unlock()

	ev := Event{TaskID: task.ID, Kind: task.Kind, Status: status}
	if err != nil {
		ev.Err = err.Error()
		m.log.Warn().Str("task_id", task.ID).Str("kind", string(task.Kind)).Err(err).Msg("task did not complete")
	}
	m.publish(ev)
}

// Get returns a snapshot of a task's current state.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns a snapshot of every tracked task.
func (m *Manager) List() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out
}
