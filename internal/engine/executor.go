package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pledgedesk/internal/config"
	"pledgedesk/internal/logger"
	"pledgedesk/internal/models"
	"pledgedesk/internal/store"
)

// Clock returns the current time; injectable for deterministic tests.
type Clock func() time.Time

// Sleeper pauses between consecutive pledge executions; injectable so
// tests run without real pacing delays.
type Sleeper func(time.Duration)

// Notifier delivers operator-facing messages, normally the websocket hub.
type Notifier interface {
	Broadcast(msg models.Message)
}

// Result aggregates the outcome of one execution batch. Skipped counts
// sell-phase pledges whose buy record could not be located; they are
// surfaced separately from hard failures.
type Result struct {
	SuccessCount int `json:"success_count"`
	FailCount    int `json:"fail_count"`
	SkippedCount int `json:"skipped_count"`
}

// Executor runs the execution batch for one session phase: it selects the
// eligible pledges, executes each independently, writes one immutable
// ExecutionRecord per attempt, and advances the session when the batch is
// done. A single pledge failure never aborts the batch.
type Executor struct {
	sessions store.SessionStore
	pledges  store.PledgeStore
	records  store.ExecutionStore
	audits   store.AuditStore
	notifier Notifier
	cfg      config.EngineConfig
	clock    Clock
	sleep    Sleeper
	log      *logger.Logger
}

// NewExecutor creates an execution batch processor
func NewExecutor(
	sessions store.SessionStore,
	pledges store.PledgeStore,
	records store.ExecutionStore,
	audits store.AuditStore,
	notifier Notifier,
	cfg config.EngineConfig,
) *Executor {
	return &Executor{
		sessions: sessions,
		pledges:  pledges,
		records:  records,
		audits:   audits,
		notifier: notifier,
		cfg:      cfg,
		clock:    time.Now,
		sleep:    time.Sleep,
		log:      logger.Get(),
	}
}

// WithClock overrides the executor's clock and sleeper. Used by tests.
func (e *Executor) WithClock(clock Clock, sleep Sleeper) *Executor {
	e.clock = clock
	e.sleep = sleep
	return e
}

// Execute runs one phase for a session already holding the executing (or
// awaiting_sell_execution) status, and advances the session to its next
// state. The returned error is non-nil only for phase-level failures, i.e.
// failures before any per-pledge work began; even then the session is moved
// to a terminal state rather than left in flight.
func (e *Executor) Execute(ctx context.Context, session models.Session, phase models.Side, actor models.Actor) (Result, error) {
	e.appendAudit(ctx, actor, models.ActionExecutionStarted, session.ID, nil, true,
		map[string]interface{}{"phase": phase})

	now := e.clock()
	if err := e.sessions.Updates(ctx, session.ID, map[string]interface{}{"last_executed_at": now}); err != nil {
		e.log.WithError(err).WithField("session_id", session.ID).
			Warn("failed to stamp last_executed_at")
	}

	switch phase {
	case models.SideSell:
		return e.executeSellPhase(ctx, session, actor)
	default:
		return e.executeBuyPhase(ctx, session, actor)
	}
}

func (e *Executor) executeBuyPhase(ctx context.Context, session models.Session, actor models.Actor) (Result, error) {
	var result Result

	eligible, err := e.pledges.ListBySession(ctx, session.ID, models.PledgeReady)
	if err != nil {
		// The selection itself failed: nothing was touched, but the session
		// must not stay in executing past this trigger invocation.
		e.forceComplete(ctx, session.ID, fmt.Sprintf("buy phase aborted: pledge query failed: %v", err))
		e.appendAudit(ctx, actor, models.ActionPhaseAborted, session.ID, nil, false,
			map[string]interface{}{"phase": models.SideBuy, "error": err.Error()})
		return result, fmt.Errorf("buy phase pledge query: %w", err)
	}

	for i, pledge := range eligible {
		if err := e.executeBuyPledge(ctx, session, pledge, actor); err != nil {
			e.recordFailure(ctx, session, pledge, models.SideBuy, actor, err)
			result.FailCount++
		} else {
			result.SuccessCount++
		}
		if i < len(eligible)-1 {
			e.sleep(e.cfg.PacingDelay)
		}
	}

	next := NextAfterBuyPhase(session, len(eligible))
	e.advance(ctx, session.ID, models.SessionExecuting, next)
	e.finishPhase(ctx, session.ID, models.SideBuy, next, actor, result)
	return result, nil
}

func (e *Executor) executeSellPhase(ctx context.Context, session models.Session, actor models.Actor) (Result, error) {
	var result Result

	eligible, err := e.pledges.ListBySession(ctx, session.ID, models.PledgeExecuted)
	if err != nil {
		e.forceComplete(ctx, session.ID, fmt.Sprintf("sell phase aborted: pledge query failed: %v", err))
		e.appendAudit(ctx, actor, models.ActionPhaseAborted, session.ID, nil, false,
			map[string]interface{}{"phase": models.SideSell, "error": err.Error()})
		return result, fmt.Errorf("sell phase pledge query: %w", err)
	}

	for i, pledge := range eligible {
		buyRecord, err := e.records.FindBuyRecord(ctx, pledge.ID)
		if err != nil {
			// No matching buy fill; skip rather than fail so a stray pledge
			// cannot block the session from completing.
			e.appendAudit(ctx, actor, models.ActionPledgeSkipped, session.ID, ptr(pledge.ID), false,
				map[string]interface{}{"reason": "no completed buy record"})
			result.SkippedCount++
			continue
		}
		if err := e.executeSellPledge(ctx, session, pledge, buyRecord, actor); err != nil {
			e.recordFailure(ctx, session, pledge, models.SideSell, actor, err)
			result.FailCount++
		} else {
			result.SuccessCount++
		}
		if i < len(eligible)-1 {
			e.sleep(e.cfg.PacingDelay)
		}
	}

	e.advance(ctx, session.ID, models.SessionAwaitingSell, models.SessionCompleted)
	e.finishPhase(ctx, session.ID, models.SideSell, models.SessionCompleted, actor, result)
	return result, nil
}

func (e *Executor) executeBuyPledge(ctx context.Context, session models.Session, pledge models.Pledge, actor models.Actor) error {
	price := pledge.PriceTarget
	if price.IsZero() {
		price = session.ReferencePrice
	}
	qty := decimal.NewFromInt(int64(pledge.Qty))
	value := qty.Mul(price)
	commission := Commission(value, session.CommissionRate)

	record := models.ExecutionRecord{
		RecordRef:           uuid.NewString(),
		PledgeID:            pledge.ID,
		SessionID:           session.ID,
		UserID:              pledge.UserID,
		Side:                models.SideBuy,
		PledgedQty:          pledge.Qty,
		ExecutedQty:         pledge.Qty,
		ExecutedPrice:       price,
		TotalExecutionValue: value,
		PlatformCommission:  commission,
		CommissionRate:      session.CommissionRate,
		NetAmount:           value.Add(commission),
		Status:              models.ExecutionCompleted,
		ExecutedAt:          e.clock(),
	}
	if err := e.records.Create(ctx, &record); err != nil {
		return fmt.Errorf("create execution record: %w", err)
	}
	if err := e.pledges.UpdateStatus(ctx, pledge.ID, models.PledgeExecuted); err != nil {
		return fmt.Errorf("mark pledge executed: %w", err)
	}

	e.appendAudit(ctx, actor, models.ActionPledgeExecuted, session.ID, ptr(pledge.ID), true,
		map[string]interface{}{
			"side":  models.SideBuy,
			"qty":   pledge.Qty,
			"price": price,
			"value": value,
		})
	return nil
}

func (e *Executor) executeSellPledge(ctx context.Context, session models.Session, pledge models.Pledge, buyRecord models.ExecutionRecord, actor models.Actor) error {
	price := e.sellPrice(session, buyRecord)
	qty := decimal.NewFromInt(int64(buyRecord.ExecutedQty))
	value := qty.Mul(price)
	commission := Commission(value, session.CommissionRate)

	record := models.ExecutionRecord{
		RecordRef:           uuid.NewString(),
		PledgeID:            pledge.ID,
		SessionID:           session.ID,
		UserID:              pledge.UserID,
		Side:                models.SideSell,
		PledgedQty:          buyRecord.ExecutedQty,
		ExecutedQty:         buyRecord.ExecutedQty,
		ExecutedPrice:       price,
		TotalExecutionValue: value,
		PlatformCommission:  commission,
		CommissionRate:      session.CommissionRate,
		NetAmount:           value.Sub(commission),
		BuyRecordID:         &buyRecord.ID,
		Status:              models.ExecutionCompleted,
		ExecutedAt:          e.clock(),
	}
	if err := e.records.Create(ctx, &record); err != nil {
		return fmt.Errorf("create execution record: %w", err)
	}

	e.appendAudit(ctx, actor, models.ActionPledgeExecuted, session.ID, ptr(pledge.ID), true,
		map[string]interface{}{
			"side":          models.SideSell,
			"qty":           buyRecord.ExecutedQty,
			"price":         price,
			"value":         value,
			"buy_record_id": buyRecord.ID,
		})
	return nil
}

// sellPrice resolves the sell execution price per the configured pricing
// mode: the session's reference price, or a bounded perturbation of the
// original buy price for simulated settlement.
func (e *Executor) sellPrice(session models.Session, buyRecord models.ExecutionRecord) decimal.Decimal {
	if e.cfg.SellPricing == config.SellPricingSimulated {
		factor := 1 + (rand.Float64()*0.04 - 0.02)
		return buyRecord.ExecutedPrice.Mul(decimal.NewFromFloat(factor)).Round(4)
	}
	if !session.ReferencePrice.IsZero() {
		return session.ReferencePrice
	}
	return buyRecord.ExecutedPrice
}

// recordFailure writes the failed ExecutionRecord, marks the pledge failed,
// and appends a failure audit entry. Each step is best-effort: a broken
// store must not stop the batch from moving to the next pledge.
func (e *Executor) recordFailure(ctx context.Context, session models.Session, pledge models.Pledge, side models.Side, actor models.Actor, cause error) {
	e.log.WithError(cause).WithFields(logrus.Fields{
		"session_id": session.ID,
		"pledge_id":  pledge.ID,
		"side":       side,
	}).Error("pledge execution failed")

	record := models.ExecutionRecord{
		RecordRef:    uuid.NewString(),
		PledgeID:     pledge.ID,
		SessionID:    session.ID,
		UserID:       pledge.UserID,
		Side:         side,
		PledgedQty:   pledge.Qty,
		ExecutedQty:  0,
		Status:       models.ExecutionFailed,
		ErrorMessage: cause.Error(),
		ExecutedAt:   e.clock(),
	}
	if err := e.records.Create(ctx, &record); err != nil {
		e.log.WithError(err).WithField("pledge_id", pledge.ID).
			Error("failed to write failure record")
	}
	if err := e.pledges.UpdateStatus(ctx, pledge.ID, models.PledgeFailed); err != nil {
		e.log.WithError(err).WithField("pledge_id", pledge.ID).
			Error("failed to mark pledge failed")
	}
	e.appendAudit(ctx, actor, models.ActionPledgeFailed, session.ID, ptr(pledge.ID), false,
		map[string]interface{}{"side": side, "error": cause.Error()})
}

// advance moves the session along the expected edge with a conditional
// write; when the status changed underneath us the write is a no-op and the
// race is logged rather than escalated.
func (e *Executor) advance(ctx context.Context, sessionID uint, from, to models.SessionStatus) {
	ok, err := e.sessions.UpdateStatusIf(ctx, sessionID, from, to)
	if err != nil {
		e.log.WithError(err).WithField("session_id", sessionID).
			Errorf("failed to advance session %s -> %s", from, to)
		return
	}
	if !ok {
		e.log.WithField("session_id", sessionID).
			Warnf("session left %s before advance to %s", from, to)
	}
}

// forceComplete ends a session that hit an unrecoverable failure while in
// flight. An executing session must never outlive its trigger invocation.
func (e *Executor) forceComplete(ctx context.Context, sessionID uint, note string) {
	err := e.sessions.Updates(ctx, sessionID, map[string]interface{}{
		"status":         models.SessionCompleted,
		"execution_note": note,
	})
	if err != nil {
		e.log.WithError(err).WithField("session_id", sessionID).
			Error("failed to force-complete session")
	}
}

func (e *Executor) finishPhase(ctx context.Context, sessionID uint, phase models.Side, finalStatus models.SessionStatus, actor models.Actor, result Result) {
	e.appendAudit(ctx, actor, models.ActionPhaseCompleted, sessionID, nil, true,
		map[string]interface{}{
			"phase":   phase,
			"success": result.SuccessCount,
			"failed":  result.FailCount,
			"skipped": result.SkippedCount,
			"status":  finalStatus,
		})

	if e.notifier != nil {
		e.notifier.Broadcast(models.Message{
			Type: "execution_summary",
			Content: models.ExecutionSummary{
				SessionID:    sessionID,
				Phase:        phase,
				SuccessCount: result.SuccessCount,
				FailCount:    result.FailCount,
				SkippedCount: result.SkippedCount,
				FinalStatus:  finalStatus,
			},
		})
	}

	e.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"phase":      phase,
		"success":    result.SuccessCount,
		"failed":     result.FailCount,
		"skipped":    result.SkippedCount,
	}).Info("execution phase finished")
}

func (e *Executor) appendAudit(ctx context.Context, actor models.Actor, action string, sessionID uint, pledgeID *uint, success bool, payload map[string]interface{}) {
	body, _ := json.Marshal(payload)
	entry := models.AuditLogEntry{
		EntryRef:        uuid.NewString(),
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		Action:          action,
		TargetSessionID: sessionID,
		TargetPledgeID:  pledgeID,
		Payload:         string(body),
		Success:         success,
		CreatedAt:       e.clock(),
	}
	if err := e.audits.Append(ctx, &entry); err != nil {
		e.log.WithError(err).WithField("action", action).Error("failed to append audit entry")
	}
}

func ptr(id uint) *uint { return &id }
