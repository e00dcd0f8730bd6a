// Package connectivity coordinates sync runs with host connectivity
// signals and an optional periodic background trigger.
package connectivity

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/opsync/internal/errors"
	"github.com/kimhsiao/opsync/internal/logging"
	"github.com/kimhsiao/opsync/internal/models"
)

// Runner starts one sync pass. Satisfied by *processor.Processor.
type Runner interface {
	Run(ctx context.Context) (*models.SyncRunResult, error)
}

// Notifier delivers the host platform's online/offline transitions. The
// channel carries true for online, false for offline.
type Notifier interface {
	Changes() <-chan bool
}

// Config holds coordinator configuration.
type Config struct {
	// BackgroundInterval is the best-effort periodic trigger. Zero
	// disables it; the online-transition path works regardless.
	BackgroundInterval time.Duration
	// RunTimeout bounds one triggered run.
	RunTimeout time.Duration
}

// DefaultConfig returns default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		BackgroundInterval: 1 * time.Minute,
		RunTimeout:         5 * time.Minute,
	}
}

// Coordinator triggers sync runs when the host reports the client came
// back online, and opportunistically on a background interval. It is the
// single entry point guaranteeing eventual delivery without manual
// intervention.
type Coordinator struct {
	runner   Runner
	notifier Notifier
	cfg      Config

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu          sync.RWMutex
	isRunning   bool
	isOnline    bool
	lastRunTime time.Time
}

// New creates a Coordinator. notifier may be nil when the host has no
// event source; SetOnline then remains the only signal path.
func New(runner Runner, notifier Notifier, cfg Config) *Coordinator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultConfig().RunTimeout
	}
	return &Coordinator{
		runner:   runner,
		notifier: notifier,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		isOnline: true, // assume online until the host says otherwise
	}
}

// Start begins observing connectivity and the background trigger.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.watchLoop(ctx)

	if c.cfg.BackgroundInterval > 0 {
		c.wg.Add(1)
		go c.backgroundLoop(ctx)
	}

	logging.Info("Connectivity coordinator started", nil)
}

// Stop stops the coordinator gracefully.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	logging.Info("Connectivity coordinator stopped", nil)
}

// watchLoop consumes host online/offline transitions.
func (c *Coordinator) watchLoop(ctx context.Context) {
	defer c.wg.Done()

	if c.notifier == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case online, ok := <-c.notifier.Changes():
			if !ok {
				return
			}
			c.SetOnline(online)
		}
	}
}

// backgroundLoop is the best-effort periodic trigger, attempting delivery
// even without a fresh online transition.
func (c *Coordinator) backgroundLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.BackgroundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.IsOnline() {
				c.runOnce(ctx)
			}
		}
	}
}

// SetOnline records the host's connectivity signal. An offline-to-online
// transition triggers an immediate run; a flaky "online" report is
// harmless because per-item transport failures feed the normal retry
// path.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	wasOnline := c.isOnline
	c.isOnline = online
	c.mu.Unlock()

	if wasOnline != online {
		logging.Info("Online status changed", map[string]interface{}{
			"was_online": wasOnline,
			"is_online":  online,
		})
	}

	if !wasOnline && online {
		go c.runOnce(context.Background())
	}
}

// TriggerSync requests an immediate run. Returns false if a run was
// already draining.
func (c *Coordinator) TriggerSync(ctx context.Context) bool {
	return c.runOnce(ctx)
}

// runOnce starts one bounded run; a run already in flight is a no-op.
func (c *Coordinator) runOnce(ctx context.Context) bool {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	result, err := c.runner.Run(runCtx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			logging.Debug("Sync already draining, trigger suppressed", nil)
			return false
		}
		logging.ErrorWithCode("Triggered sync failed", string(apperrors.ErrSyncFailed), err, nil)
		return false
	}

	c.mu.Lock()
	c.lastRunTime = time.Now()
	c.mu.Unlock()

	logging.Debug("Triggered sync completed", map[string]interface{}{
		"success": result.Success,
		"failed":  result.Failed,
		"skipped": result.Skipped,
	})
	return true
}

// IsOnline returns the last connectivity signal received from the host.
func (c *Coordinator) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isOnline
}

// IsRunning returns whether the coordinator loops are active.
func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isRunning
}

// LastRunTime returns when the last successful triggered run finished.
// The zero time means no run has completed yet.
func (c *Coordinator) LastRunTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRunTime
}
