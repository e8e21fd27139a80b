package services

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
	"pledgedesk/internal/trigger"
)

type serviceFixture struct {
	sessions store.SessionStore
	pledges  store.PledgeStore
	records  store.ExecutionStore
	audits   store.AuditStore
	service  SessionService
	pledgeSv PledgeService
	messages []string
}

func setupServiceTest(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	err = db.AutoMigrate(&models.Session{}, &models.Pledge{}, &models.ExecutionRecord{}, &models.AuditLogEntry{})
	if err != nil {
		t.Fatalf("Failed to migrate schema: %v", err)
	}

	f := &serviceFixture{
		sessions: store.NewSessionStore(db),
		pledges:  store.NewPledgeStore(db),
		records:  store.NewExecutionStore(db),
		audits:   store.NewAuditStore(db),
	}

	cfg := config.EngineConfig{
		PacingDelay: time.Millisecond,
		LockTTL:     time.Minute,
		SellPricing: config.SellPricingReference,
	}
	executor := engine.NewExecutor(f.sessions, f.pledges, f.records, f.audits, nil, cfg).
		WithClock(time.Now, func(time.Duration) {})

	auditService := NewAuditService(f.audits)
	f.service = NewSessionService(
		f.sessions, f.pledges, executor, trigger.NewMemoryLocker(), auditService, time.Minute,
		func(message string) { f.messages = append(f.messages, message) },
	)
	f.pledgeSv = NewPledgeService(f.sessions, f.pledges, auditService)
	return f
}

func (f *serviceFixture) createDraft(t *testing.T, mode models.SessionMode) models.Session {
	t.Helper()
	session, err := f.service.CreateSession(context.Background(), models.Session{
		StockSymbol:    "INFY",
		StockName:      "Infosys Ltd.",
		SessionMode:    mode,
		ExecutionRule:  models.RuleManual,
		MinQty:         1,
		MaxQty:         100,
		Capacity:       10,
		ReferencePrice: decimal.NewFromInt(1500),
		SessionStart:   time.Now().Add(-time.Hour),
		SessionEnd:     time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if session.Status != models.SessionDraft {
		t.Fatalf("Expected draft session, got %s", session.Status)
	}
	return session
}

func TestSessionLifecycle(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)

	if err := f.service.ActivateSession(ctx, session.ID); err != nil {
		t.Fatalf("Failed to activate session: %v", err)
	}
	current, _ := f.service.GetSession(ctx, session.ID)
	if current.Status != models.SessionActive {
		t.Errorf("Expected active session, got %s", current.Status)
	}

	// Re-activating an active session is an illegal edge.
	err := f.service.ActivateSession(ctx, session.ID)
	var invalid engine.ErrInvalidTransition
	if err == nil || !errors.As(err, &invalid) {
		t.Errorf("Expected invalid transition error, got %v", err)
	}

	if err := f.service.CloseSession(ctx, session.ID); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}
	if err := f.service.CancelSession(ctx, session.ID); err != nil {
		t.Fatalf("Failed to cancel session: %v", err)
	}
	current, _ = f.service.GetSession(ctx, session.ID)
	if current.Status != models.SessionCancelled {
		t.Errorf("Expected cancelled session, got %s", current.Status)
	}

	// Cancelled is terminal.
	if err := f.service.CancelSession(ctx, session.ID); err == nil {
		t.Error("Expected cancelling a terminal session to fail")
	}

	entries, _ := f.audits.ListBySession(ctx, session.ID)
	if len(entries) < 3 {
		t.Errorf("Expected audit entries for each transition, got %d", len(entries))
	}
}

func TestDeleteSessionGuard(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)
	f.service.ActivateSession(ctx, session.ID)

	if err := f.service.DeleteSession(ctx, session.ID); !errors.Is(err, ErrNotDeletable) {
		t.Errorf("Expected ErrNotDeletable for active session, got %v", err)
	}

	f.service.CancelSession(ctx, session.ID)
	if err := f.service.DeleteSession(ctx, session.ID); err != nil {
		t.Errorf("Expected delete to succeed from terminal state, got %v", err)
	}
	if _, err := f.service.GetSession(ctx, session.ID); err == nil {
		t.Error("Expected deleted session to be gone")
	}
}

func TestExecuteNowConfirmation(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)
	f.service.ActivateSession(ctx, session.ID)

	if _, err := f.service.ExecuteNow(ctx, session.ID, models.SideSell); !errors.Is(err, ErrConfirmationMismatch) {
		t.Errorf("Expected confirmation mismatch, got %v", err)
	}

	draft := f.createDraft(t, models.ModeBuyOnly)
	if _, err := f.service.ExecuteNow(ctx, draft.ID, models.SideBuy); !errors.Is(err, ErrNotExecutable) {
		t.Errorf("Expected draft session to not be executable, got %v", err)
	}
}

func TestExecuteNowBuyPhase(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)
	f.service.ActivateSession(ctx, session.ID)

	pledge, err := f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID:   session.ID,
		UserID:      7,
		Side:        models.SideBuy,
		Qty:         10,
		PriceTarget: decimal.NewFromInt(1450),
	})
	if err != nil {
		t.Fatalf("Failed to create pledge: %v", err)
	}
	if err := f.pledgeSv.ConfirmPayment(ctx, pledge.ID); err != nil {
		t.Fatalf("Failed to confirm payment: %v", err)
	}

	result, err := f.service.ExecuteNow(ctx, session.ID, models.SideBuy)
	if err != nil {
		t.Fatalf("ExecuteNow returned error: %v", err)
	}
	if result.SuccessCount != 1 || result.FailCount != 0 {
		t.Errorf("Expected 1/0, got %d/%d", result.SuccessCount, result.FailCount)
	}

	current, _ := f.service.GetSession(ctx, session.ID)
	if current.Status != models.SessionCompleted {
		t.Errorf("Expected completed session, got %s", current.Status)
	}

	// The working set tracks the final state.
	for _, cached := range f.service.WorkingSet() {
		if cached.ID == session.ID && cached.Status != models.SessionCompleted {
			t.Errorf("Expected working set to show completed, got %s", cached.Status)
		}
	}
}

func TestRecomputeRollups(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)
	f.service.ActivateSession(ctx, session.ID)

	for i := 0; i < 3; i++ {
		_, err := f.pledgeSv.CreatePledge(ctx, models.Pledge{
			SessionID:   session.ID,
			UserID:      uint(i + 1),
			Side:        models.SideBuy,
			Qty:         5,
			PriceTarget: decimal.NewFromInt(1400),
		})
		if err != nil {
			t.Fatalf("Failed to create pledge: %v", err)
		}
	}

	updated, err := f.service.RecomputeRollups(ctx, session.ID)
	if err != nil {
		t.Fatalf("Failed to recompute rollups: %v", err)
	}
	if updated.TotalPledges != 3 || updated.BuyPledgesCount != 3 {
		t.Errorf("Expected 3 buy pledges, got total=%d buy=%d", updated.TotalPledges, updated.BuyPledgesCount)
	}
	if !updated.TotalPledgeValue.Equal(decimal.NewFromInt(21000)) {
		t.Errorf("Expected total value 21000, got %s", updated.TotalPledgeValue)
	}
}
