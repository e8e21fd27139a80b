// Package trigger runs the timer-driven execution path: a polling loop
// that finds sessions whose window has closed and hands them to the
// execution batch processor.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pledgedesk/internal/config"
	"pledgedesk/internal/engine"
	"pledgedesk/internal/logger"
	"pledgedesk/internal/models"
	"pledgedesk/internal/store"
)

// AutoTrigger periodically scans for due sessions and executes their buy
// phase. The sell phase is never automated; operators run it manually.
type AutoTrigger struct {
	sessions store.SessionStore
	executor *engine.Executor
	gate     Gate
	locks    Locker
	cfg      config.EngineConfig
	clock    engine.Clock
	log      *logger.Logger

	mu           sync.Mutex
	stopChan     chan struct{}
	isRunning    bool
	cycleRunning atomic.Bool
}

// NewAutoTrigger creates the automated execution trigger
func NewAutoTrigger(
	sessions store.SessionStore,
	executor *engine.Executor,
	gate Gate,
	locks Locker,
	cfg config.EngineConfig,
) *AutoTrigger {
	return &AutoTrigger{
		sessions: sessions,
		executor: executor,
		gate:     gate,
		locks:    locks,
		cfg:      cfg,
		clock:    time.Now,
		log:      logger.Get(),
	}
}

// WithClock overrides the trigger's clock. Used by tests.
func (t *AutoTrigger) WithClock(clock engine.Clock) *AutoTrigger {
	t.clock = clock
	return t
}

// Start begins the polling loop: an immediate cycle, then one per interval.
func (t *AutoTrigger) Start() {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = true
	t.stopChan = make(chan struct{})
	t.mu.Unlock()

	ticker := time.NewTicker(t.cfg.PollInterval)

	// Run immediately on start
	go t.RunCycle(context.Background())

	go func() {
		for {
			select {
			case <-ticker.C:
				t.RunCycle(context.Background())
			case <-t.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	t.log.WithField("interval", t.cfg.PollInterval.String()).Info("automated trigger started")
}

// Stop terminates the polling loop
func (t *AutoTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isRunning {
		return
	}
	close(t.stopChan)
	t.isRunning = false
	t.log.Info("automated trigger stopped")
}

// RunCycle runs one scan-and-execute pass. A cycle already in flight makes
// this a no-op, so a slow pass is skipped over rather than queued. All
// failures are logged and absorbed; the loop must survive any tick.
func (t *AutoTrigger) RunCycle(ctx context.Context) {
	if !t.cycleRunning.CompareAndSwap(false, true) {
		t.log.Debug("trigger cycle already running, skipping tick")
		return
	}
	defer t.cycleRunning.Store(false)

	enabled, err := t.gate.Enabled(ctx)
	if err != nil {
		t.log.WithError(err).Error("trigger gate check failed")
		return
	}
	if !enabled {
		return
	}

	due, err := t.sessions.ListDueForExecution(ctx, t.clock())
	if err != nil {
		t.log.WithError(err).Error("due-session query failed")
		return
	}

	for _, session := range due {
		t.executeDueSession(ctx, session)
	}
}

// executeDueSession takes the per-session lock, claims the session with a
// conditional active→executing write, and runs the buy phase. Losing
// either the lock or the conditional write means another trigger owns the
// session and this one walks away.
func (t *AutoTrigger) executeDueSession(ctx context.Context, session models.Session) {
	lockKey := fmt.Sprintf("pledgedesk:session_exec:%d", session.ID)
	acquired, err := t.locks.Acquire(ctx, lockKey, t.cfg.LockTTL)
	if err != nil {
		t.log.WithError(err).WithField("session_id", session.ID).Error("session lock failed")
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := t.locks.Release(ctx, lockKey); err != nil {
			t.log.WithError(err).WithField("session_id", session.ID).Warn("session lock release failed")
		}
	}()

	claimed, err := t.sessions.UpdateStatusIf(ctx, session.ID, models.SessionActive, models.SessionExecuting)
	if err != nil {
		t.log.WithError(err).WithField("session_id", session.ID).Error("session claim failed")
		return
	}
	if !claimed {
		return
	}

	current, err := t.sessions.GetByID(ctx, session.ID)
	if err != nil {
		t.log.WithError(err).WithField("session_id", session.ID).Error("session reload failed")
		// Undo the claim so the next cycle can re-select the session;
		// nothing has executed yet.
		if reverted, revertErr := t.sessions.UpdateStatusIf(ctx, session.ID, models.SessionExecuting, models.SessionActive); revertErr != nil || !reverted {
			t.log.WithError(revertErr).WithField("session_id", session.ID).Error("claim revert failed")
		}
		return
	}

	if _, err := t.executor.Execute(ctx, current, models.SideBuy, models.SystemActor); err != nil {
		t.log.WithError(err).WithField("session_id", session.ID).Error("automated execution failed")
	}
}

// Status reports the trigger's current state for the admin console.
func (t *AutoTrigger) Status(ctx context.Context) (map[string]interface{}, error) {
	enabled, err := t.gate.Enabled(ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	running := t.isRunning
	t.mu.Unlock()
	return map[string]interface{}{
		"enabled":       enabled,
		"loop_running":  running,
		"poll_interval": t.cfg.PollInterval.String(),
	}, nil
}

// Enable turns the trigger gate on.
func (t *AutoTrigger) Enable(ctx context.Context) error {
	return t.gate.SetEnabled(ctx, true)
}

// Disable turns the trigger gate off.
func (t *AutoTrigger) Disable(ctx context.Context) error {
	return t.gate.SetEnabled(ctx, false)
}
