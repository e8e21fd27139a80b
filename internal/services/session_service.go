package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pledgedesk/internal/cache"
	"pledgedesk/internal/engine"
	"pledgedesk/internal/models"
	"pledgedesk/internal/store"
	"pledgedesk/internal/trigger"
)

var (
	// ErrSessionBusy means another trigger owns the session right now.
	ErrSessionBusy = errors.New("session is already being executed")
	// ErrNotExecutable means the session's status permits no execution phase.
	ErrNotExecutable = errors.New("session is not in an executable state")
	// ErrConfirmationMismatch means the operator confirmed the wrong side.
	ErrConfirmationMismatch = errors.New("confirmation does not match the side about to execute")
	// ErrNotDeletable guards against deleting a session mid-lifecycle.
	ErrNotDeletable = errors.New("session can only be deleted from draft or a terminal state")
)

// SessionService defines the interface for session lifecycle operations
type SessionService interface {
	CreateSession(ctx context.Context, session models.Session) (models.Session, error)
	GetSession(ctx context.Context, id uint) (models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	UpdateSession(ctx context.Context, id uint, patch models.Session) (models.Session, error)
	ActivateSession(ctx context.Context, id uint) error
	CloseSession(ctx context.Context, id uint) error
	CancelSession(ctx context.Context, id uint) error
	DeleteSession(ctx context.Context, id uint) error
	// ExecuteNow is the manual trigger: it derives the phase from the
	// session's status and runs the execution batch.
	ExecuteNow(ctx context.Context, id uint, confirmSide models.Side) (engine.Result, error)
	RecomputeRollups(ctx context.Context, id uint) (models.Session, error)
	RecomputeAllRollups(ctx context.Context) error
	// WorkingSet exposes the optimistic in-memory collection backing the
	// admin console.
	WorkingSet() []models.Session
}

// sessionService implements the SessionService interface
type sessionService struct {
	sessions store.SessionStore
	pledges  store.PledgeStore
	executor *engine.Executor
	locks    trigger.Locker
	audit    AuditService
	working  *cache.Collection[uint, models.Session]
	lockTTL  time.Duration
}

// NewSessionService creates a new session service. notify receives the
// operator-facing messages produced by optimistic mutations (may be nil).
func NewSessionService(
	sessions store.SessionStore,
	pledges store.PledgeStore,
	executor *engine.Executor,
	locks trigger.Locker,
	audit AuditService,
	lockTTL time.Duration,
	notify func(string),
) SessionService {
	return &sessionService{
		sessions: sessions,
		pledges:  pledges,
		executor: executor,
		locks:    locks,
		audit:    audit,
		working:  cache.New[uint, models.Session](func(s models.Session) uint { return s.ID }, notify),
		lockTTL:  lockTTL,
	}
}

func (s *sessionService) CreateSession(ctx context.Context, session models.Session) (models.Session, error) {
	session.Status = models.SessionDraft
	if session.SessionMode == "" {
		session.SessionMode = models.ModeBuyOnly
	}
	if session.ExecutionRule == "" {
		session.ExecutionRule = models.RuleManual
	}
	if err := s.sessions.Create(ctx, &session); err != nil {
		return models.Session{}, err
	}
	s.reloadWorkingSet(ctx)
	return session, nil
}

func (s *sessionService) GetSession(ctx context.Context, id uint) (models.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

func (s *sessionService) ListSessions(ctx context.Context) ([]models.Session, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	s.working.Load(sessions)
	return sessions, nil
}

// UpdateSession applies the editable fields optimistically, then persists
// them; the working set is rolled back if the store write fails.
func (s *sessionService) UpdateSession(ctx context.Context, id uint, patch models.Session) (models.Session, error) {
	fields := map[string]interface{}{
		"stock_name":             patch.StockName,
		"description":            patch.Description,
		"allow_amo":              patch.AllowAMO,
		"convenience_fee_type":   patch.ConvenienceFeeType,
		"convenience_fee_amount": patch.ConvenienceFeeAmount,
		"min_qty":                patch.MinQty,
		"max_qty":                patch.MaxQty,
		"capacity":               patch.Capacity,
		"reference_price":        patch.ReferencePrice,
		"commission_rate":        patch.CommissionRate,
		"session_start":          patch.SessionStart,
		"session_end":            patch.SessionEnd,
	}

	s.working.Apply(id, func(current models.Session) models.Session {
		current.StockName = patch.StockName
		current.Description = patch.Description
		current.AllowAMO = patch.AllowAMO
		current.ConvenienceFeeType = patch.ConvenienceFeeType
		current.ConvenienceFeeAmount = patch.ConvenienceFeeAmount
		current.MinQty = patch.MinQty
		current.MaxQty = patch.MaxQty
		current.Capacity = patch.Capacity
		current.ReferencePrice = patch.ReferencePrice
		current.CommissionRate = patch.CommissionRate
		current.SessionStart = patch.SessionStart
		current.SessionEnd = patch.SessionEnd
		return current
	}, "Saving session changes")

	if err := s.sessions.Updates(ctx, id, fields); err != nil {
		s.working.Rollback(id, fmt.Sprintf("Failed to save session: %v", err))
		return models.Session{}, err
	}
	s.working.Confirm(id)
	return s.sessions.GetByID(ctx, id)
}

func (s *sessionService) ActivateSession(ctx context.Context, id uint) error {
	return s.transition(ctx, id, models.SessionDraft, models.SessionActive,
		models.ActionSessionActivated, "Session activated, pledge intake open")
}

func (s *sessionService) CloseSession(ctx context.Context, id uint) error {
	return s.transition(ctx, id, models.SessionActive, models.SessionClosed,
		models.ActionSessionClosed, "Session closed to new pledges")
}

func (s *sessionService) CancelSession(ctx context.Context, id uint) error {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return engine.ErrInvalidTransition{From: session.Status, To: models.SessionCancelled}
	}
	return s.transition(ctx, id, session.Status, models.SessionCancelled,
		models.ActionSessionCancelled, "Session cancelled")
}

// DeleteSession performs the logical delete, allowed only from draft or a
// terminal state while pledges may still reference the session.
func (s *sessionService) DeleteSession(ctx context.Context, id uint) error {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != models.SessionDraft && !session.Status.IsTerminal() {
		return ErrNotDeletable
	}

	s.working.Remove(id, "Session deleted")
	if err := s.sessions.Delete(ctx, id); err != nil {
		s.working.Rollback(id, fmt.Sprintf("Failed to delete session: %v", err))
		return err
	}
	s.working.Confirm(id)
	return s.audit.Record(ctx, models.ActionSessionDeleted, id, nil, nil, true)
}

func (s *sessionService) ExecuteNow(ctx context.Context, id uint, confirmSide models.Side) (engine.Result, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return engine.Result{}, err
	}

	phase, ok := engine.PhaseForStatus(session.Status)
	if !ok {
		return engine.Result{}, ErrNotExecutable
	}
	if confirmSide != phase {
		return engine.Result{}, ErrConfirmationMismatch
	}

	lockKey := fmt.Sprintf("pledgedesk:session_exec:%d", id)
	acquired, err := s.locks.Acquire(ctx, lockKey, s.lockTTL)
	if err != nil {
		return engine.Result{}, err
	}
	if !acquired {
		return engine.Result{}, ErrSessionBusy
	}
	defer s.locks.Release(ctx, lockKey)

	if phase == models.SideBuy {
		return s.executeBuyNow(ctx, session)
	}
	return s.executeSellNow(ctx, session)
}

func (s *sessionService) executeBuyNow(ctx context.Context, session models.Session) (engine.Result, error) {
	// Optimistically show the session as executing; the conditional store
	// write decides whether we really own it.
	s.working.Apply(session.ID, func(current models.Session) models.Session {
		current.Status = models.SessionExecuting
		return current
	}, "Executing buy phase")

	claimed, err := s.sessions.UpdateStatusIf(ctx, session.ID, session.Status, models.SessionExecuting)
	if err != nil {
		s.working.Rollback(session.ID, fmt.Sprintf("Execution failed to start: %v", err))
		return engine.Result{}, err
	}
	if !claimed {
		s.working.Rollback(session.ID, "Session was picked up by another trigger")
		return engine.Result{}, ErrSessionBusy
	}
	s.working.Confirm(session.ID)

	current, err := s.sessions.GetByID(ctx, session.ID)
	if err != nil {
		// Undo the claim so the session is not stuck executing with no
		// batch behind it.
		s.sessions.UpdateStatusIf(ctx, session.ID, models.SessionExecuting, session.Status)
		s.refreshWorkingEntry(ctx, session.ID)
		return engine.Result{}, err
	}

	result, err := s.executor.Execute(ctx, current, models.SideBuy, s.actor(ctx))
	s.refreshWorkingEntry(ctx, session.ID)
	return result, err
}

func (s *sessionService) executeSellNow(ctx context.Context, session models.Session) (engine.Result, error) {
	result, err := s.executor.Execute(ctx, session, models.SideSell, s.actor(ctx))
	s.refreshWorkingEntry(ctx, session.ID)
	return result, err
}

func (s *sessionService) RecomputeRollups(ctx context.Context, id uint) (models.Session, error) {
	session, err := recomputeRollups(ctx, s.sessions, s.pledges, id)
	if err != nil {
		return models.Session{}, err
	}
	s.refreshWorkingEntry(ctx, id)
	return session, nil
}

// RecomputeAllRollups recounts every non-terminal session; used by the
// nightly maintenance job.
func (s *sessionService) RecomputeAllRollups(ctx context.Context) error {
	sessions, err := s.sessions.ListByStatus(ctx,
		models.SessionActive, models.SessionClosed,
		models.SessionExecuting, models.SessionAwaitingSell)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if _, err := recomputeRollups(ctx, s.sessions, s.pledges, session.ID); err != nil {
			return fmt.Errorf("recompute rollups for session %d: %w", session.ID, err)
		}
	}
	return nil
}

func (s *sessionService) WorkingSet() []models.Session {
	return s.working.Items()
}

// transition moves a session along one lifecycle edge: validate the edge,
// apply it optimistically, then make the conditional store write.
func (s *sessionService) transition(ctx context.Context, id uint, from, to models.SessionStatus, action, message string) error {
	if err := engine.Transition(from, to); err != nil {
		return err
	}

	s.working.Apply(id, func(current models.Session) models.Session {
		current.Status = to
		return current
	}, message)

	ok, err := s.sessions.UpdateStatusIf(ctx, id, from, to)
	if err != nil {
		s.working.Rollback(id, fmt.Sprintf("Status change failed: %v", err))
		return err
	}
	if !ok {
		s.working.Rollback(id, "Session status changed concurrently")
		return ErrSessionBusy
	}
	s.working.Confirm(id)

	return s.audit.Record(ctx, action, id, nil, map[string]interface{}{"from": from, "to": to}, true)
}

func (s *sessionService) reloadWorkingSet(ctx context.Context) {
	if sessions, err := s.sessions.List(ctx); err == nil {
		s.working.Load(sessions)
	}
}

func (s *sessionService) refreshWorkingEntry(ctx context.Context, id uint) {
	current, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return
	}
	s.working.Apply(id, func(models.Session) models.Session { return current }, "")
	s.working.Confirm(id)
}

func (s *sessionService) actor(ctx context.Context) models.Actor {
	return actorFromContext(ctx)
}
