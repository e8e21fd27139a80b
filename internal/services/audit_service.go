package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"pledgedesk/internal/models"
	"pledgedesk/internal/store"
	"pledgedesk/internal/utils"
)

// AuditService defines the interface for action-log operations
type AuditService interface {
	Record(ctx context.Context, action string, sessionID uint, pledgeID *uint, payload interface{}, success bool) error
	ListSessionAudit(ctx context.Context, sessionID uint) ([]models.AuditLogEntry, error)
}

// auditService implements the AuditService interface
type auditService struct {
	audits store.AuditStore
}

// NewAuditService creates a new audit service
func NewAuditService(audits store.AuditStore) AuditService {
	return &auditService{audits: audits}
}

// Record appends one audit entry, attributing it to the actor carried in
// the context.
func (s *auditService) Record(ctx context.Context, action string, sessionID uint, pledgeID *uint, payload interface{}, success bool) error {
	actor := utils.ActorFromContext(ctx)
	body, _ := json.Marshal(payload)
	return s.audits.Append(ctx, &models.AuditLogEntry{
		EntryRef:        uuid.NewString(),
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		Action:          action,
		TargetSessionID: sessionID,
		TargetPledgeID:  pledgeID,
		Payload:         string(body),
		Success:         success,
		CreatedAt:       time.Now(),
	})
}

// ListSessionAudit returns a session's audit trail in append order
func (s *auditService) ListSessionAudit(ctx context.Context, sessionID uint) ([]models.AuditLogEntry, error) {
	return s.audits.ListBySession(ctx, sessionID)
}

func actorFromContext(ctx context.Context) models.Actor {
	return utils.ActorFromContext(ctx)
}
