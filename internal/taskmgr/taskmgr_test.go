package taskmgr

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func idSeqFor(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func waitForStatus(t *testing.T, events <-chan Event, want Status, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if ev.Status == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func TestManager_SubmitRunsAndPublishesLifecycle(t *testing.T) {
	m := New(zerolog.Nop(), 2, idSeqFor("t"))
	events, unsub := m.Subscribe()
	defer unsub()

	id := m.Submit(context.Background(), KindEmbeddingGeneration, "u1", "s1", func(ctx context.Context) error {
		return nil
	})

	waitForStatus(t, events, StatusRunning, time.Second)
	waitForStatus(t, events, StatusDone, time.Second)

	task, ok := m.Get(id)
	if !ok {
		t.Fatalf("expected task %s to be tracked", id)
	}
	if task.Status != StatusDone {
		t.Fatalf("expected done, got %s", task.Status)
	}
}

func TestManager_FailedTaskRecordsError(t *testing.T) {
	m := New(zerolog.Nop(), 2, idSeqFor("t"))
	events, unsub := m.Subscribe()
	defer unsub()

	id := m.Submit(context.Background(), KindDedupCheck, "u1", "s1", func(ctx context.Context) error {
		return errors.New("boom")
	})

	waitForStatus(t, events, StatusFailed, time.Second)

	task, _ := m.Get(id)
	if task.Status != StatusFailed || task.Err != "boom" {
		t.Fatalf("expected failed with error boom, got %+v", task)
	}
}

func TestManager_CancelledContextMarksTaskCancelled(t *testing.T) {
	m := New(zerolog.Nop(), 2, idSeqFor("t"))
	events, unsub := m.Subscribe()
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	id := m.Submit(ctx, KindIndexRebuild, "u1", "s1", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	cancel()
	waitForStatus(t, events, StatusCancelled, time.Second)

	task, _ := m.Get(id)
	if task.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", task.Status)
	}
}

func TestManager_PoolBoundsConcurrency(t *testing.T) {
	m := New(zerolog.Nop(), 1, idSeqFor("t"))
	var concurrent int32
	var maxSeen int32
	release := make(chan struct{})

	work := func(ctx context.Context) error {
		n := atomic.AddInt32(&concurrent, 1)
		if n > atomic.LoadInt32(&maxSeen) {
			atomic.StoreInt32(&maxSeen, n)
		}
		<-release
		atomic.AddInt32(&concurrent, -1)
		return nil
	}

	m.Submit(context.Background(), KindIndexRebuild, "u1", "s1", work)
	m.Submit(context.Background(), KindIndexRebuild, "u1", "s1", work)

	time.Sleep(50 * time.Millisecond)
	close(release)
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&maxSeen) > 1 {
		t.Fatalf("expected pool of size 1 to cap concurrency at 1, saw %d", maxSeen)
	}
}

func TestManager_ListReturnsAllTrackedTasks(t *testing.T) {
	m := New(zerolog.Nop(), 4, idSeqFor("t"))
	for i := 0; i < 3; i++ {
		m.Submit(context.Background(), KindBudgetReset, "u1", "s1", func(ctx context.Context) error {
			return nil
		})
	}
	time.Sleep(50 * time.Millisecond)
	if len(m.List()) != 3 {
		t.Fatalf("expected 3 tracked tasks, got %d", len(m.List()))
	}
}
