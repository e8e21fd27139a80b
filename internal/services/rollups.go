package services

import (
	"context"

	"github.com/shopspring/decimal"

	"pledgedesk/internal/models"
	"pledgedesk/internal/store"
)

// recomputeRollups rebuilds a session's derived counters from its pledges.
// The counters are a convenience for dashboards, never authoritative, so a
// full recount is always safe.
func recomputeRollups(ctx context.Context, sessions store.SessionStore, pledges store.PledgeStore, sessionID uint) (models.Session, error) {
	session, err := sessions.GetByID(ctx, sessionID)
	if err != nil {
		return models.Session{}, err
	}

	all, err := pledges.ListBySession(ctx, sessionID)
	if err != nil {
		return models.Session{}, err
	}

	var (
		total      = len(all)
		totalValue = decimal.Zero
		buyCount   int
		sellCount  int
		buyValue   = decimal.Zero
		sellValue  = decimal.Zero
	)
	for _, pledge := range all {
		price := pledge.PriceTarget
		if price.IsZero() {
			price = session.ReferencePrice
		}
		value := decimal.NewFromInt(int64(pledge.Qty)).Mul(price)
		totalValue = totalValue.Add(value)
		switch pledge.Side {
		case models.SideSell:
			sellCount++
			sellValue = sellValue.Add(value)
		default:
			buyCount++
			buyValue = buyValue.Add(value)
		}
	}

	fields := map[string]interface{}{
		"total_pledges":      total,
		"total_pledge_value": totalValue,
		"buy_pledges_count":  buyCount,
		"sell_pledges_count": sellCount,
		"buy_pledges_value":  buyValue,
		"sell_pledges_value": sellValue,
	}
	if err := sessions.Updates(ctx, sessionID, fields); err != nil {
		return models.Session{}, err
	}

	return sessions.GetByID(ctx, sessionID)
}
