package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SessionStatus is the lifecycle state of a pledge session.
type SessionStatus string

const (
	SessionDraft        SessionStatus = "draft"
	SessionActive       SessionStatus = "active"
	SessionClosed       SessionStatus = "closed"
	SessionExecuting    SessionStatus = "executing"
	SessionAwaitingSell SessionStatus = "awaiting_sell_execution"
	SessionCompleted    SessionStatus = "completed"
	SessionCancelled    SessionStatus = "cancelled"
)

// SessionMode controls which sides a session trades.
type SessionMode string

const (
	ModeBuyOnly      SessionMode = "buy_only"
	ModeSellOnly     SessionMode = "sell_only"
	ModeBuySellCycle SessionMode = "buy_sell_cycle"
)

// ExecutionRule controls when a session's pledges are executed.
type ExecutionRule string

const (
	RuleImmediate  ExecutionRule = "immediate"
	RuleSessionEnd ExecutionRule = "session_end"
	RuleManual     ExecutionRule = "manual"
)

// Fee types for the per-pledge convenience fee.
const (
	FeeTypeFlat    = "flat"
	FeeTypePercent = "percent"
)

// Session represents one time-boxed trading round for a single instrument.
// The rollup counters are derived from pledges and recomputable on demand;
// they are not authoritative.
type Session struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	StockSymbol string `gorm:"index" json:"stock_symbol"`
	StockName   string `json:"stock_name"`
	Description string `json:"description"`

	SessionMode          SessionMode     `json:"session_mode"`
	ExecutionRule        ExecutionRule   `json:"execution_rule"`
	AllowAMO             bool            `json:"allow_amo"`
	ConvenienceFeeType   string          `json:"convenience_fee_type"`
	ConvenienceFeeAmount decimal.Decimal `gorm:"type:decimal(20,8)" json:"convenience_fee_amount"`
	MinQty               int             `json:"min_qty"`
	MaxQty               int             `json:"max_qty"`
	Capacity             int             `json:"capacity"`
	ReferencePrice       decimal.Decimal `gorm:"type:decimal(20,8)" json:"reference_price"`
	CommissionRate       decimal.Decimal `gorm:"type:decimal(10,4)" json:"commission_rate"`

	SessionStart time.Time     `json:"session_start"`
	SessionEnd   time.Time     `gorm:"index" json:"session_end"`
	Status       SessionStatus `gorm:"index;default:draft" json:"status"`

	TotalPledges     int             `json:"total_pledges"`
	TotalPledgeValue decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_pledge_value"`
	BuyPledgesCount  int             `json:"buy_pledges_count"`
	SellPledgesCount int             `json:"sell_pledges_count"`
	BuyPledgesValue  decimal.Decimal `gorm:"type:decimal(20,8)" json:"buy_pledges_value"`
	SellPledgesValue decimal.Decimal `gorm:"type:decimal(20,8)" json:"sell_pledges_value"`

	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
	ExecutionNote  string     `json:"execution_note,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsTerminal reports whether the session can no longer change state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}
