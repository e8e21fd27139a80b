package engine

import (
	"testing"

	"pledgedesk/internal/models"
)

func TestLegalTransitions(t *testing.T) {
	legal := []struct {
		from, to models.SessionStatus
	}{
		{models.SessionDraft, models.SessionActive},
		{models.SessionActive, models.SessionClosed},
		{models.SessionActive, models.SessionExecuting},
		{models.SessionClosed, models.SessionExecuting},
		{models.SessionExecuting, models.SessionCompleted},
		{models.SessionExecuting, models.SessionAwaitingSell},
		{models.SessionAwaitingSell, models.SessionCompleted},
		{models.SessionDraft, models.SessionCancelled},
		{models.SessionActive, models.SessionCancelled},
		{models.SessionExecuting, models.SessionCancelled},
		{models.SessionAwaitingSell, models.SessionCancelled},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be legal", tc.from, tc.to)
		}
		if err := Transition(tc.from, tc.to); err != nil {
			t.Errorf("Transition(%s, %s) returned error: %v", tc.from, tc.to, err)
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	illegal := []struct {
		from, to models.SessionStatus
	}{
		{models.SessionDraft, models.SessionExecuting},
		{models.SessionDraft, models.SessionCompleted},
		{models.SessionCompleted, models.SessionActive},
		{models.SessionCompleted, models.SessionCancelled},
		{models.SessionCancelled, models.SessionActive},
		{models.SessionActive, models.SessionAwaitingSell},
		{models.SessionAwaitingSell, models.SessionExecuting},
		{models.SessionExecuting, models.SessionActive},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be illegal", tc.from, tc.to)
		}
		if err := Transition(tc.from, tc.to); err == nil {
			t.Errorf("Transition(%s, %s) should have returned an error", tc.from, tc.to)
		}
	}
}

func TestNextAfterBuyPhase(t *testing.T) {
	cycle := models.Session{SessionMode: models.ModeBuySellCycle}
	if got := NextAfterBuyPhase(cycle, 2); got != models.SessionAwaitingSell {
		t.Errorf("Expected cycle session with pledges to await sell, got %s", got)
	}
	if got := NextAfterBuyPhase(cycle, 0); got != models.SessionCompleted {
		t.Errorf("Expected cycle session with zero pledges to complete, got %s", got)
	}
	buyOnly := models.Session{SessionMode: models.ModeBuyOnly}
	if got := NextAfterBuyPhase(buyOnly, 3); got != models.SessionCompleted {
		t.Errorf("Expected buy_only session to complete, got %s", got)
	}
}

func TestPhaseForStatus(t *testing.T) {
	if phase, ok := PhaseForStatus(models.SessionActive); !ok || phase != models.SideBuy {
		t.Errorf("Expected active session to derive buy phase, got %s/%v", phase, ok)
	}
	if phase, ok := PhaseForStatus(models.SessionAwaitingSell); !ok || phase != models.SideSell {
		t.Errorf("Expected awaiting session to derive sell phase, got %s/%v", phase, ok)
	}
	if _, ok := PhaseForStatus(models.SessionCompleted); ok {
		t.Error("Expected completed session to not be executable")
	}
	if _, ok := PhaseForStatus(models.SessionDraft); ok {
		t.Error("Expected draft session to not be executable")
	}
}
