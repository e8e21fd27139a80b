package models

// Message represents a WebSocket message broadcast to operator consoles.
type Message struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

// ExecuteSessionRequest is the request body for manually triggering a
// session's execution. ConfirmSide must name the side about to execute.
type ExecuteSessionRequest struct {
	ConfirmSide Side `json:"confirm_side"`
}

// ExecutionSummary is the per-batch summary surfaced to operators.
type ExecutionSummary struct {
	SessionID    uint          `json:"session_id"`
	Phase        Side          `json:"phase"`
	SuccessCount int           `json:"success_count"`
	FailCount    int           `json:"fail_count"`
	SkippedCount int           `json:"skipped_count"`
	FinalStatus  SessionStatus `json:"final_status"`
}
