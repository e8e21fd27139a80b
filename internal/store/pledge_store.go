package store

import (
	"context"

	"gorm.io/gorm"

	"pledgedesk/internal/models"
)

// PledgeStore defines the storage interface for pledges
type PledgeStore interface {
	GetByID(ctx context.Context, id uint) (models.Pledge, error)
	ListBySession(ctx context.Context, sessionID uint, statuses ...models.PledgeStatus) ([]models.Pledge, error)
	CountBySession(ctx context.Context, sessionID uint) (int64, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Pledge, error)
	Create(ctx context.Context, pledge *models.Pledge) error
	UpdateStatus(ctx context.Context, id uint, status models.PledgeStatus) error
}

// pledgeStore implements the PledgeStore interface
type pledgeStore struct {
	db *gorm.DB
}

// NewPledgeStore creates a new pledge store
func NewPledgeStore(db *gorm.DB) PledgeStore {
	return &pledgeStore{db: db}
}

func (s *pledgeStore) GetByID(ctx context.Context, id uint) (models.Pledge, error) {
	var pledge models.Pledge
	result := s.db.WithContext(ctx).First(&pledge, id)
	return pledge, result.Error
}

// ListBySession returns a session's pledges, optionally narrowed to the
// given statuses. Rows come back in creation order, which fixes the batch
// processing order.
func (s *pledgeStore) ListBySession(ctx context.Context, sessionID uint, statuses ...models.PledgeStatus) ([]models.Pledge, error) {
	var pledges []models.Pledge
	query := s.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	result := query.Order("id asc").Find(&pledges)
	return pledges, result.Error
}

func (s *pledgeStore) CountBySession(ctx context.Context, sessionID uint) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&models.Pledge{}).
		Where("session_id = ?", sessionID).
		Count(&count)
	return count, result.Error
}

func (s *pledgeStore) ListByUser(ctx context.Context, userID uint) ([]models.Pledge, error) {
	var pledges []models.Pledge
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Find(&pledges)
	return pledges, result.Error
}

func (s *pledgeStore) Create(ctx context.Context, pledge *models.Pledge) error {
	return s.db.WithContext(ctx).Create(pledge).Error
}

func (s *pledgeStore) UpdateStatus(ctx context.Context, id uint, status models.PledgeStatus) error {
	return s.db.WithContext(ctx).
		Model(&models.Pledge{}).
		Where("id = ?", id).
		Update("status", status).Error
}
