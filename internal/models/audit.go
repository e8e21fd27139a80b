package models

import "time"

// Audit actions recorded by the engine and the admin surface.
const (
	ActionSessionActivated = "session_activated"
	ActionSessionClosed    = "session_closed"
	ActionSessionCancelled = "session_cancelled"
	ActionSessionDeleted   = "session_deleted"
	ActionPledgePaid       = "pledge_payment_confirmed"
	ActionExecutionStarted = "execution_started"
	ActionPledgeExecuted   = "pledge_executed"
	ActionPledgeFailed     = "pledge_execution_failed"
	ActionPledgeSkipped    = "pledge_execution_skipped"
	ActionPhaseCompleted   = "phase_completed"
	ActionPhaseAborted     = "phase_aborted"
)

// Actor identifies who caused a state change. Engine-internal work that no
// operator initiated is attributed to SystemActor.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// SystemActor is the attribution for timer-driven engine work.
var SystemActor = Actor{ID: "system", Role: "system"}

// AuditLogEntry is an append-only action log row, one per meaningful
// state change.
type AuditLogEntry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	EntryRef        string    `gorm:"uniqueIndex" json:"entry_ref"`
	ActorID         string    `gorm:"index" json:"actor_id"`
	ActorRole       string    `json:"actor_role"`
	Action          string    `gorm:"index" json:"action"`
	TargetSessionID uint      `gorm:"index" json:"target_session_id"`
	TargetPledgeID  *uint     `gorm:"index" json:"target_pledge_id,omitempty"`
	Payload         string    `json:"payload,omitempty"`
	Success         bool      `json:"success"`
	CreatedAt       time.Time `json:"created_at"`
}
