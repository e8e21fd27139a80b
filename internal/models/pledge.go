package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the buy/sell direction of a pledge, and doubles as the
// execution phase name.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PledgeStatus is the lifecycle state of a single pledge.
type PledgeStatus string

const (
	PledgePending  PledgeStatus = "pending"
	PledgeReady    PledgeStatus = "ready_for_execution"
	PledgePaid     PledgeStatus = "paid"
	PledgeExecuted PledgeStatus = "executed"
	PledgeFailed   PledgeStatus = "failed"
)

// Pledge represents one investor's commitment within a session.
type Pledge struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	SessionID      uint            `gorm:"index" json:"session_id"`
	UserID         uint            `gorm:"index" json:"user_id"`
	DematAccountID string          `json:"demat_account_id"`
	StockSymbol    string          `json:"stock_symbol"`
	Side           Side            `json:"side"`
	Qty            int             `json:"qty"`
	PriceTarget    decimal.Decimal `gorm:"type:decimal(20,8)" json:"price_target"`
	ConvenienceFee decimal.Decimal `gorm:"type:decimal(20,8)" json:"convenience_fee"`
	Status         PledgeStatus    `gorm:"index;default:pending" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
