package store

import (
	"context"

	"gorm.io/gorm"

	"pledgedesk/internal/models"
)

// AuditStore defines the append-only storage interface for audit entries
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	ListBySession(ctx context.Context, sessionID uint) ([]models.AuditLogEntry, error)
}

// auditStore implements the AuditStore interface
type auditStore struct {
	db *gorm.DB
}

// NewAuditStore creates a new audit log store
func NewAuditStore(db *gorm.DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *auditStore) ListBySession(ctx context.Context, sessionID uint) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	result := s.db.WithContext(ctx).
		Where("target_session_id = ?", sessionID).
		Order("id asc").
		Find(&entries)
	return entries, result.Error
}
