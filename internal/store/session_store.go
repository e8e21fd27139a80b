package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"pledgedesk/internal/models"
)

// SessionStore defines the storage interface for sessions
type SessionStore interface {
	GetByID(ctx context.Context, id uint) (models.Session, error)
	List(ctx context.Context) ([]models.Session, error)
	ListByStatus(ctx context.Context, statuses ...models.SessionStatus) ([]models.Session, error)
	// ListDueForExecution returns active sessions with the session_end
	// execution rule whose window has closed.
	ListDueForExecution(ctx context.Context, now time.Time) ([]models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Updates(ctx context.Context, id uint, fields map[string]interface{}) error
	// UpdateStatusIf performs a conditional status write: the row is updated
	// only if its current status equals from. Returns (false, nil) when the
	// condition did not hold, so callers can treat a lost race as a no-op.
	UpdateStatusIf(ctx context.Context, id uint, from, to models.SessionStatus) (bool, error)
	Delete(ctx context.Context, id uint) error
}

// sessionStore implements the SessionStore interface
type sessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a new session store
func NewSessionStore(db *gorm.DB) SessionStore {
	return &sessionStore{db: db}
}

func (s *sessionStore) GetByID(ctx context.Context, id uint) (models.Session, error) {
	var session models.Session
	result := s.db.WithContext(ctx).First(&session, id)
	return session, result.Error
}

func (s *sessionStore) List(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	result := s.db.WithContext(ctx).Order("session_end desc").Find(&sessions)
	return sessions, result.Error
}

func (s *sessionStore) ListByStatus(ctx context.Context, statuses ...models.SessionStatus) ([]models.Session, error) {
	var sessions []models.Session
	result := s.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("session_end asc").
		Find(&sessions)
	return sessions, result.Error
}

func (s *sessionStore) ListDueForExecution(ctx context.Context, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	result := s.db.WithContext(ctx).
		Where("status = ? AND execution_rule = ? AND session_end <= ?",
			models.SessionActive, models.RuleSessionEnd, now).
		Order("session_end asc").
		Find(&sessions)
	return sessions, result.Error
}

func (s *sessionStore) Create(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *sessionStore) Updates(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (s *sessionStore) UpdateStatusIf(ctx context.Context, id uint, from, to models.SessionStatus) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *sessionStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Session{}, id).Error
}
