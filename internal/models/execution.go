package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the outcome of one execution attempt.
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionRecord is the immutable ledger entry produced by one execution
// attempt on one pledge. A failed attempt still yields a record, so the
// full history is replayable. Rows are create-only.
type ExecutionRecord struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RecordRef string `gorm:"uniqueIndex" json:"record_ref"`
	PledgeID  uint   `gorm:"index" json:"pledge_id"`
	SessionID uint   `gorm:"index" json:"session_id"`
	UserID    uint   `gorm:"index" json:"user_id"`
	Side      Side   `json:"side"`

	PledgedQty          int             `json:"pledged_qty"`
	ExecutedQty         int             `json:"executed_qty"`
	ExecutedPrice       decimal.Decimal `gorm:"type:decimal(20,8)" json:"executed_price"`
	TotalExecutionValue decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_execution_value"`
	PlatformCommission  decimal.Decimal `gorm:"type:decimal(20,8)" json:"platform_commission"`
	CommissionRate      decimal.Decimal `gorm:"type:decimal(10,4)" json:"commission_rate"`
	NetAmount           decimal.Decimal `gorm:"type:decimal(20,8)" json:"net_amount"`

	// BuyRecordID links a sell record back to the buy it unwinds.
	BuyRecordID *uint `json:"buy_record_id,omitempty"`

	Status       ExecutionStatus `gorm:"index" json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ExecutedAt   time.Time       `json:"executed_at"`
}
