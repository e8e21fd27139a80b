package engine

import (
	"fmt"

	"pledgedesk/internal/models"
)

// ErrInvalidTransition reports an attempt to move a session along an edge
// the lifecycle does not allow.
type ErrInvalidTransition struct {
	From, To models.SessionStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}

// transitions holds the legal session lifecycle edges:
//
//	draft -> active -> {closed | executing} -> {completed | awaiting_sell_execution} -> completed
//
// with cancelled reachable from every non-terminal state.
var transitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionDraft: {
		models.SessionActive,
		models.SessionCancelled,
	},
	models.SessionActive: {
		models.SessionClosed,
		models.SessionExecuting,
		models.SessionCancelled,
	},
	models.SessionClosed: {
		models.SessionExecuting,
		models.SessionCompleted,
		models.SessionCancelled,
	},
	models.SessionExecuting: {
		models.SessionCompleted,
		models.SessionAwaitingSell,
		models.SessionCancelled,
	},
	models.SessionAwaitingSell: {
		models.SessionCompleted,
		models.SessionCancelled,
	},
}

// CanTransition reports whether moving a session from one status to another
// follows a legal lifecycle edge.
func CanTransition(from, to models.SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a status change, returning ErrInvalidTransition for
// illegal edges.
func Transition(from, to models.SessionStatus) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition{From: from, To: to}
	}
	return nil
}

// NextAfterBuyPhase decides where a session goes once its buy phase has run.
// Cycle sessions with at least one eligible pledge move on to the sell
// phase; everything else is done.
func NextAfterBuyPhase(session models.Session, eligibleCount int) models.SessionStatus {
	if session.SessionMode == models.ModeBuySellCycle && eligibleCount > 0 {
		return models.SessionAwaitingSell
	}
	return models.SessionCompleted
}

// PhaseForStatus derives the execution phase the manual trigger should run
// for a session in the given status. The second return is false when the
// session is not in an executable state.
func PhaseForStatus(status models.SessionStatus) (models.Side, bool) {
	switch status {
	case models.SessionActive, models.SessionClosed:
		return models.SideBuy, true
	case models.SessionAwaitingSell:
		return models.SideSell, true
	default:
		return "", false
	}
}
