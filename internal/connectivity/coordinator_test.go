// Package connectivity provides unit tests for the coordinator.
package connectivity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kimhsiao/opsync/internal/models"
	"github.com/kimhsiao/opsync/internal/processor"
)

// fakeRunner counts runs and can simulate an in-flight run.
type fakeRunner struct {
	runs   atomic.Int64
	busy   atomic.Bool
	notify chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{notify: make(chan struct{}, 16)}
}

func (r *fakeRunner) Run(ctx context.Context) (*models.SyncRunResult, error) {
	if r.busy.Load() {
		return nil, processor.ErrRunInProgress
	}
	r.runs.Add(1)
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return &models.SyncRunResult{}, nil
}

func waitForRun(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a triggered run")
	}
}

// TestOnlineTransitionTriggersRun verifies an offline-to-online
// transition starts a run.
func TestOnlineTransitionTriggersRun(t *testing.T) {
	runner := newFakeRunner()
	c := New(runner, nil, Config{RunTimeout: time.Second})

	c.SetOnline(false)
	if c.IsOnline() {
		t.Fatal("expected offline")
	}

	c.SetOnline(true)
	waitForRun(t, runner)

	if runner.runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runner.runs.Load())
	}
}

// TestOnlineRepeatedSignalNoRun verifies a repeated online signal without
// a transition does not trigger extra runs.
func TestOnlineRepeatedSignalNoRun(t *testing.T) {
	runner := newFakeRunner()
	c := New(runner, nil, Config{RunTimeout: time.Second})

	// Already online at construction; no transition happens.
	c.SetOnline(true)
	c.SetOnline(true)

	time.Sleep(50 * time.Millisecond)
	if runner.runs.Load() != 0 {
		t.Errorf("runs = %d, want 0 without a transition", runner.runs.Load())
	}
}

// TestTriggerSyncSuppressedWhileDraining verifies a trigger during an
// in-flight run reports false and is otherwise harmless.
func TestTriggerSyncSuppressedWhileDraining(t *testing.T) {
	runner := newFakeRunner()
	c := New(runner, nil, Config{RunTimeout: time.Second})

	runner.busy.Store(true)
	if c.TriggerSync(context.Background()) {
		t.Error("TriggerSync should report false while a run is draining")
	}

	runner.busy.Store(false)
	if !c.TriggerSync(context.Background()) {
		t.Error("TriggerSync should report true when the run succeeds")
	}
}

// TestNotifierChanges verifies host events flow through a Notifier.
func TestNotifierChanges(t *testing.T) {
	runner := newFakeRunner()
	ch := make(chan bool, 4)
	notifier := chanNotifier(ch)

	c := New(runner, notifier, Config{RunTimeout: time.Second})
	c.Start(context.Background())
	defer c.Stop()

	ch <- false
	ch <- true
	waitForRun(t, runner)

	if runner.runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runner.runs.Load())
	}
}

// TestBackgroundInterval verifies the periodic best-effort trigger.
func TestBackgroundInterval(t *testing.T) {
	runner := newFakeRunner()
	c := New(runner, nil, Config{
		BackgroundInterval: 20 * time.Millisecond,
		RunTimeout:         time.Second,
	})

	c.Start(context.Background())
	defer c.Stop()

	waitForRun(t, runner)
	if runner.runs.Load() == 0 {
		t.Error("background interval never triggered a run")
	}
}

// TestStartStopIdempotent verifies repeated Start/Stop calls are safe.
func TestStartStopIdempotent(t *testing.T) {
	runner := newFakeRunner()
	c := New(runner, nil, Config{RunTimeout: time.Second})

	ctx := context.Background()
	c.Start(ctx)
	c.Start(ctx)
	if !c.IsRunning() {
		t.Error("expected running after Start")
	}

	c.Stop()
	c.Stop()
	if c.IsRunning() {
		t.Error("expected stopped after Stop")
	}
}

// chanNotifier adapts a channel to the Notifier interface.
type chanNotifier <-chan bool

func (n chanNotifier) Changes() <-chan bool {
	return n
}
