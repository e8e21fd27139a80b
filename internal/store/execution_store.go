package store

import (
	"context"

	"gorm.io/gorm"

	"pledgedesk/internal/models"
)

// ExecutionStore defines the storage interface for execution records.
// Records are an immutable ledger: the interface is create-and-read only.
type ExecutionStore interface {
	Create(ctx context.Context, record *models.ExecutionRecord) error
	ListBySession(ctx context.Context, sessionID uint) ([]models.ExecutionRecord, error)
	ListByPledge(ctx context.Context, pledgeID uint) ([]models.ExecutionRecord, error)
	// FindBuyRecord locates the completed buy-side record for a pledge,
	// used by the sell phase to link its unwind back to the original fill.
	FindBuyRecord(ctx context.Context, pledgeID uint) (models.ExecutionRecord, error)
}

// executionStore implements the ExecutionStore interface
type executionStore struct {
	db *gorm.DB
}

// NewExecutionStore creates a new execution record store
func NewExecutionStore(db *gorm.DB) ExecutionStore {
	return &executionStore{db: db}
}

func (s *executionStore) Create(ctx context.Context, record *models.ExecutionRecord) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *executionStore) ListBySession(ctx context.Context, sessionID uint) ([]models.ExecutionRecord, error) {
	var records []models.ExecutionRecord
	result := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id asc").
		Find(&records)
	return records, result.Error
}

func (s *executionStore) ListByPledge(ctx context.Context, pledgeID uint) ([]models.ExecutionRecord, error) {
	var records []models.ExecutionRecord
	result := s.db.WithContext(ctx).
		Where("pledge_id = ?", pledgeID).
		Order("id asc").
		Find(&records)
	return records, result.Error
}

func (s *executionStore) FindBuyRecord(ctx context.Context, pledgeID uint) (models.ExecutionRecord, error) {
	var record models.ExecutionRecord
	result := s.db.WithContext(ctx).
		Where("pledge_id = ? AND side = ? AND status = ?",
			pledgeID, models.SideBuy, models.ExecutionCompleted).
		First(&record)
	return record, result.Error
}
