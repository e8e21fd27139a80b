package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"pledgedesk/internal/models"
)

func TestCreatePledgeValidation(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)

	// Draft sessions accept no pledges.
	_, err := f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID: session.ID, UserID: 1, Side: models.SideBuy, Qty: 5,
	})
	if !errors.Is(err, ErrSessionNotOpen) {
		t.Errorf("Expected ErrSessionNotOpen for draft session, got %v", err)
	}

	f.service.ActivateSession(ctx, session.ID)

	_, err = f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID: session.ID, UserID: 1, Side: models.SideSell, Qty: 5,
	})
	if !errors.Is(err, ErrSideNotAllowed) {
		t.Errorf("Expected ErrSideNotAllowed for sell on buy_only, got %v", err)
	}

	_, err = f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID: session.ID, UserID: 1, Side: models.SideBuy, Qty: 500,
	})
	if !errors.Is(err, ErrQtyOutOfRange) {
		t.Errorf("Expected ErrQtyOutOfRange for oversized pledge, got %v", err)
	}

	pledge, err := f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID: session.ID, UserID: 1, Side: models.SideBuy, Qty: 5,
		PriceTarget: decimal.NewFromInt(1500),
	})
	if err != nil {
		t.Fatalf("Expected valid pledge to be accepted, got %v", err)
	}
	if pledge.Status != models.PledgePending {
		t.Errorf("Expected pending pledge, got %s", pledge.Status)
	}
	if pledge.StockSymbol != "INFY" {
		t.Errorf("Expected symbol copied from session, got %s", pledge.StockSymbol)
	}

	// Rollups pick up the new pledge immediately.
	updated, _ := f.service.GetSession(ctx, session.ID)
	if updated.TotalPledges != 1 {
		t.Errorf("Expected rollup count 1, got %d", updated.TotalPledges)
	}
}

func TestCreatePledgeCapacity(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)

	// Shrink capacity to 1 while still in draft.
	session.Capacity = 1
	if _, err := f.service.UpdateSession(ctx, session.ID, session); err != nil {
		t.Fatalf("Failed to update session: %v", err)
	}
	f.service.ActivateSession(ctx, session.ID)

	_, err := f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID: session.ID, UserID: 1, Side: models.SideBuy, Qty: 5,
		PriceTarget: decimal.NewFromInt(1500),
	})
	if err != nil {
		t.Fatalf("First pledge should fit: %v", err)
	}

	_, err = f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID: session.ID, UserID: 2, Side: models.SideBuy, Qty: 5,
		PriceTarget: decimal.NewFromInt(1500),
	})
	if !errors.Is(err, ErrSessionFull) {
		t.Errorf("Expected ErrSessionFull, got %v", err)
	}
}

func TestConvenienceFeeOnIntake(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)

	session.ConvenienceFeeType = models.FeeTypePercent
	session.ConvenienceFeeAmount = decimal.NewFromInt(2)
	if _, err := f.service.UpdateSession(ctx, session.ID, session); err != nil {
		t.Fatalf("Failed to update session: %v", err)
	}
	f.service.ActivateSession(ctx, session.ID)

	pledge, err := f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID: session.ID, UserID: 1, Side: models.SideBuy, Qty: 10,
		PriceTarget: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("Failed to create pledge: %v", err)
	}
	// 2% of 10 × 1000.
	if !pledge.ConvenienceFee.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected convenience fee 200, got %s", pledge.ConvenienceFee)
	}
}

func TestConfirmPayment(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	session := f.createDraft(t, models.ModeBuyOnly)
	f.service.ActivateSession(ctx, session.ID)

	pledge, err := f.pledgeSv.CreatePledge(ctx, models.Pledge{
		SessionID: session.ID, UserID: 1, Side: models.SideBuy, Qty: 5,
		PriceTarget: decimal.NewFromInt(1500),
	})
	if err != nil {
		t.Fatalf("Failed to create pledge: %v", err)
	}

	if err := f.pledgeSv.ConfirmPayment(ctx, pledge.ID); err != nil {
		t.Fatalf("Failed to confirm payment: %v", err)
	}
	updated, _ := f.pledgeSv.GetPledge(ctx, pledge.ID)
	if updated.Status != models.PledgeReady {
		t.Errorf("Expected ready_for_execution, got %s", updated.Status)
	}

	// A second confirmation is rejected.
	if err := f.pledgeSv.ConfirmPayment(ctx, pledge.ID); !errors.Is(err, ErrPaymentNotPending) {
		t.Errorf("Expected ErrPaymentNotPending, got %v", err)
	}
}
