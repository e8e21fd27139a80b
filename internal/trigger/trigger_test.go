package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pledgedesk/internal/config"
	"pledgedesk/internal/engine"
	"pledgedesk/internal/models"
	"pledgedesk/internal/store"
)

var testNow = time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)

type triggerFixture struct {
	sessions store.SessionStore
	pledges  store.PledgeStore
	records  store.ExecutionStore
	gate     Gate
	trigger  *AutoTrigger
	executor *engine.Executor
	cfg      config.EngineConfig
}

func setupTriggerTest(t *testing.T) *triggerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	err = db.AutoMigrate(&models.Session{}, &models.Pledge{}, &models.ExecutionRecord{}, &models.AuditLogEntry{})
	if err != nil {
		t.Fatalf("Failed to migrate schema: %v", err)
	}

	sessions := store.NewSessionStore(db)
	pledges := store.NewPledgeStore(db)
	records := store.NewExecutionStore(db)
	audits := store.NewAuditStore(db)

	cfg := config.EngineConfig{
		PollInterval: time.Minute,
		PacingDelay:  time.Millisecond,
		LockTTL:      time.Minute,
		SellPricing:  config.SellPricingReference,
	}
	clock := func() time.Time { return testNow }
	executor := engine.NewExecutor(sessions, pledges, records, audits, nil, cfg).
		WithClock(clock, func(time.Duration) {})

	gate := NewMemoryGate(true)
	autoTrigger := NewAutoTrigger(sessions, executor, gate, NewMemoryLocker(), cfg).WithClock(clock)

	return &triggerFixture{
		sessions: sessions,
		pledges:  pledges,
		records:  records,
		gate:     gate,
		trigger:  autoTrigger,
		executor: executor,
		cfg:      cfg,
	}
}

func (f *triggerFixture) createSession(t *testing.T, status models.SessionStatus, rule models.ExecutionRule, end time.Time) models.Session {
	t.Helper()
	session := models.Session{
		StockSymbol:    "TCS",
		SessionMode:    models.ModeBuyOnly,
		ExecutionRule:  rule,
		ReferencePrice: decimal.NewFromInt(3800),
		SessionStart:   end.Add(-6 * time.Hour),
		SessionEnd:     end,
		Status:         status,
	}
	if err := f.sessions.Create(context.Background(), &session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return session
}

func TestCycleExecutesDueSession(t *testing.T) {
	f := setupTriggerTest(t)
	ctx := context.Background()
	session := f.createSession(t, models.SessionActive, models.RuleSessionEnd, testNow.Add(-time.Minute))
	pledge := models.Pledge{
		SessionID: session.ID, UserID: 1, Side: models.SideBuy,
		Qty: 2, PriceTarget: decimal.NewFromInt(3700), Status: models.PledgeReady,
	}
	f.pledges.Create(ctx, &pledge)

	f.trigger.RunCycle(ctx)

	updated, _ := f.sessions.GetByID(ctx, session.ID)
	if updated.Status != models.SessionCompleted {
		t.Errorf("Expected due session to be executed and completed, got %s", updated.Status)
	}
	records, _ := f.records.ListBySession(ctx, session.ID)
	if len(records) != 1 {
		t.Errorf("Expected 1 execution record, got %d", len(records))
	}
}

func TestCycleSkipsSessionsNotDue(t *testing.T) {
	f := setupTriggerTest(t)
	ctx := context.Background()
	future := f.createSession(t, models.SessionActive, models.RuleSessionEnd, testNow.Add(time.Hour))
	manual := f.createSession(t, models.SessionActive, models.RuleManual, testNow.Add(-time.Hour))

	f.trigger.RunCycle(ctx)

	for _, session := range []models.Session{future, manual} {
		updated, _ := f.sessions.GetByID(ctx, session.ID)
		if updated.Status != models.SessionActive {
			t.Errorf("Expected session %d untouched, got %s", session.ID, updated.Status)
		}
	}
}

func TestCycleDoesNotReenterExecutingSession(t *testing.T) {
	f := setupTriggerTest(t)
	ctx := context.Background()
	session := f.createSession(t, models.SessionExecuting, models.RuleSessionEnd, testNow.Add(-time.Minute))

	f.trigger.RunCycle(ctx)

	updated, _ := f.sessions.GetByID(ctx, session.ID)
	if updated.Status != models.SessionExecuting {
		t.Errorf("Expected executing session to be left alone, got %s", updated.Status)
	}
	records, _ := f.records.ListBySession(ctx, session.ID)
	if len(records) != 0 {
		t.Errorf("Expected no execution records, got %d", len(records))
	}
}

// reloadFailingSessionStore fails GetByID while failGet is set, leaving
// every other store operation intact.
type reloadFailingSessionStore struct {
	store.SessionStore
	failGet bool
}

func (s *reloadFailingSessionStore) GetByID(ctx context.Context, id uint) (models.Session, error) {
	if s.failGet {
		return models.Session{}, errors.New("connection reset")
	}
	return s.SessionStore.GetByID(ctx, id)
}

func TestCycleRevertsClaimWhenReloadFails(t *testing.T) {
	f := setupTriggerTest(t)
	ctx := context.Background()
	session := f.createSession(t, models.SessionActive, models.RuleSessionEnd, testNow.Add(-time.Minute))

	flaky := &reloadFailingSessionStore{SessionStore: f.sessions, failGet: true}
	autoTrigger := NewAutoTrigger(flaky, f.executor, f.gate, NewMemoryLocker(), f.cfg).
		WithClock(func() time.Time { return testNow })

	autoTrigger.RunCycle(ctx)

	updated, _ := f.sessions.GetByID(ctx, session.ID)
	if updated.Status != models.SessionActive {
		t.Fatalf("Expected failed reload to return the session to active, got %s", updated.Status)
	}
	records, _ := f.records.ListBySession(ctx, session.ID)
	if len(records) != 0 {
		t.Errorf("Expected no execution records after aborted cycle, got %d", len(records))
	}

	// The next healthy cycle must still be able to pick the session up.
	flaky.failGet = false
	autoTrigger.RunCycle(ctx)
	updated, _ = f.sessions.GetByID(ctx, session.ID)
	if updated.Status != models.SessionCompleted {
		t.Errorf("Expected session to execute on the next cycle, got %s", updated.Status)
	}
}

func TestCycleRespectsGate(t *testing.T) {
	f := setupTriggerTest(t)
	ctx := context.Background()
	session := f.createSession(t, models.SessionActive, models.RuleSessionEnd, testNow.Add(-time.Minute))

	f.gate.SetEnabled(ctx, false)
	f.trigger.RunCycle(ctx)

	updated, _ := f.sessions.GetByID(ctx, session.ID)
	if updated.Status != models.SessionActive {
		t.Errorf("Expected disabled trigger to leave session alone, got %s", updated.Status)
	}
}

func TestConditionalStatusWriteClosesRace(t *testing.T) {
	f := setupTriggerTest(t)
	ctx := context.Background()
	session := f.createSession(t, models.SessionActive, models.RuleSessionEnd, testNow.Add(-time.Minute))

	// First claim wins, second observes the stale status and no-ops.
	ok, err := f.sessions.UpdateStatusIf(ctx, session.ID, models.SessionActive, models.SessionExecuting)
	if err != nil || !ok {
		t.Fatalf("Expected first claim to win: ok=%v err=%v", ok, err)
	}
	ok, err = f.sessions.UpdateStatusIf(ctx, session.ID, models.SessionActive, models.SessionExecuting)
	if err != nil {
		t.Fatalf("Second claim returned error: %v", err)
	}
	if ok {
		t.Error("Expected second claim to lose the conditional write")
	}
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	ok, _ := locker.Acquire(ctx, "k", time.Minute)
	if !ok {
		t.Fatal("Expected first acquire to succeed")
	}
	ok, _ = locker.Acquire(ctx, "k", time.Minute)
	if ok {
		t.Error("Expected second acquire to fail while held")
	}
	locker.Release(ctx, "k")
	ok, _ = locker.Acquire(ctx, "k", time.Minute)
	if !ok {
		t.Error("Expected acquire to succeed after release")
	}
}
