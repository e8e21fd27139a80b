package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pledgedesk/internal/engine"
	"pledgedesk/internal/models"
	"pledgedesk/internal/store"
)

var (
	// ErrSessionNotOpen means the session is not accepting pledges.
	ErrSessionNotOpen = errors.New("session is not open for pledges")
	// ErrSideNotAllowed means the pledge side conflicts with the session mode.
	ErrSideNotAllowed = errors.New("pledge side is not allowed by the session mode")
	// ErrQtyOutOfRange means the pledge quantity is outside the session's limits.
	ErrQtyOutOfRange = errors.New("pledge quantity is outside the session's limits")
	// ErrSessionFull means the session has reached its pledge capacity.
	ErrSessionFull = errors.New("session has reached its pledge capacity")
	// ErrPaymentNotPending means the pledge is past the payment stage.
	ErrPaymentNotPending = errors.New("pledge is not awaiting payment")
)

// PledgeService defines the interface for pledge intake and payment flow
type PledgeService interface {
	CreatePledge(ctx context.Context, pledge models.Pledge) (models.Pledge, error)
	GetPledge(ctx context.Context, id uint) (models.Pledge, error)
	ListSessionPledges(ctx context.Context, sessionID uint) ([]models.Pledge, error)
	ListUserPledges(ctx context.Context, userID uint) ([]models.Pledge, error)
	// ConfirmPayment moves a pledge from pending to ready_for_execution.
	// The payment itself is handled by an external gateway; this is the
	// callback side of that flow.
	ConfirmPayment(ctx context.Context, id uint) error
}

// pledgeService implements the PledgeService interface
type pledgeService struct {
	sessions store.SessionStore
	pledges  store.PledgeStore
	audit    AuditService
	clock    func() time.Time
}

// NewPledgeService creates a new pledge service
func NewPledgeService(sessions store.SessionStore, pledges store.PledgeStore, audit AuditService) PledgeService {
	return &pledgeService{
		sessions: sessions,
		pledges:  pledges,
		audit:    audit,
		clock:    time.Now,
	}
}

// CreatePledge validates an investor's commitment against the session's
// configuration, computes the convenience fee, and records the pledge in
// pending state.
func (s *pledgeService) CreatePledge(ctx context.Context, pledge models.Pledge) (models.Pledge, error) {
	session, err := s.sessions.GetByID(ctx, pledge.SessionID)
	if err != nil {
		return models.Pledge{}, err
	}

	if session.Status != models.SessionActive || s.clock().After(session.SessionEnd) {
		return models.Pledge{}, ErrSessionNotOpen
	}
	if !sideAllowed(session.SessionMode, pledge.Side) {
		return models.Pledge{}, ErrSideNotAllowed
	}
	if pledge.Qty < session.MinQty || (session.MaxQty > 0 && pledge.Qty > session.MaxQty) {
		return models.Pledge{}, ErrQtyOutOfRange
	}
	if session.Capacity > 0 {
		count, err := s.pledges.CountBySession(ctx, session.ID)
		if err != nil {
			return models.Pledge{}, err
		}
		if count >= int64(session.Capacity) {
			return models.Pledge{}, ErrSessionFull
		}
	}

	price := pledge.PriceTarget
	if price.IsZero() {
		price = session.ReferencePrice
	}
	value := decimal.NewFromInt(int64(pledge.Qty)).Mul(price)

	pledge.StockSymbol = session.StockSymbol
	pledge.ConvenienceFee = engine.ConvenienceFee(session.ConvenienceFeeType, session.ConvenienceFeeAmount, value)
	pledge.Status = models.PledgePending

	if err := s.pledges.Create(ctx, &pledge); err != nil {
		return models.Pledge{}, err
	}

	if _, err := recomputeRollups(ctx, s.sessions, s.pledges, session.ID); err != nil {
		return models.Pledge{}, err
	}
	return pledge, nil
}

func (s *pledgeService) GetPledge(ctx context.Context, id uint) (models.Pledge, error) {
	return s.pledges.GetByID(ctx, id)
}

func (s *pledgeService) ListSessionPledges(ctx context.Context, sessionID uint) ([]models.Pledge, error) {
	return s.pledges.ListBySession(ctx, sessionID)
}

func (s *pledgeService) ListUserPledges(ctx context.Context, userID uint) ([]models.Pledge, error) {
	return s.pledges.ListByUser(ctx, userID)
}

func (s *pledgeService) ConfirmPayment(ctx context.Context, id uint) error {
	pledge, err := s.pledges.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if pledge.Status != models.PledgePending {
		return ErrPaymentNotPending
	}
	if err := s.pledges.UpdateStatus(ctx, id, models.PledgeReady); err != nil {
		return err
	}
	return s.audit.Record(ctx, models.ActionPledgePaid, pledge.SessionID, &pledge.ID, nil, true)
}

func sideAllowed(mode models.SessionMode, side models.Side) bool {
	switch mode {
	case models.ModeBuyOnly, models.ModeBuySellCycle:
		return side == models.SideBuy
	case models.ModeSellOnly:
		return side == models.SideSell
	default:
		return false
	}
}
