package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pledgedesk/internal/engine"
	"pledgedesk/internal/models"
	"pledgedesk/internal/services"
)

// SessionHandler handles session lifecycle requests from the admin console
type SessionHandler struct {
	sessionService services.SessionService
	auditService   services.AuditService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService services.SessionService, auditService services.AuditService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		auditService:   auditService,
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	router.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	router.HandleFunc("/sessions/working-set", h.WorkingSet).Methods("GET")
	router.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/sessions/{id}", h.UpdateSession).Methods("PUT")
	router.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	router.HandleFunc("/sessions/{id}/activate", h.ActivateSession).Methods("POST")
	router.HandleFunc("/sessions/{id}/close", h.CloseSession).Methods("POST")
	router.HandleFunc("/sessions/{id}/cancel", h.CancelSession).Methods("POST")
	router.HandleFunc("/sessions/{id}/execute", h.ExecuteSession).Methods("POST")
	router.HandleFunc("/sessions/{id}/rollups", h.RecomputeRollups).Methods("POST")
	router.HandleFunc("/sessions/{id}/audit", h.SessionAudit).Methods("GET")
}

// ListSessions returns all sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.ListSessions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sessions)
}

// WorkingSet returns the optimistic in-memory session collection
func (h *SessionHandler) WorkingSet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.sessionService.WorkingSet())
}

// CreateSession creates a new draft session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var session models.Session
	if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	created, err := h.sessionService.CreateSession(r.Context(), session)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, created)
}

// GetSession returns a specific session by ID
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(r.Context(), id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, session)
}

// UpdateSession updates a session's editable configuration
func (h *SessionHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var patch models.Session
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	updated, err := h.sessionService.UpdateSession(r.Context(), id, patch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, updated)
}

// DeleteSession logically deletes a draft or finished session
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.sessionService.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrNotDeletable) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateSession opens a draft session for pledge intake
func (h *SessionHandler) ActivateSession(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.sessionService.ActivateSession)
}

// CloseSession closes an active session to new pledges
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.sessionService.CloseSession)
}

// CancelSession aborts a session from any non-terminal state
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.sessionService.CancelSession)
}

// ExecuteSession is the manual execution trigger. The request must confirm
// the side about to execute.
func (h *SessionHandler) ExecuteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req models.ExecuteSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	result, err := h.sessionService.ExecuteNow(r.Context(), id, req.ConfirmSide)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConfirmationMismatch), errors.Is(err, services.ErrNotExecutable):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrSessionBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, result)
}

// RecomputeRollups recounts a session's derived counters
func (h *SessionHandler) RecomputeRollups(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.RecomputeRollups(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, session)
}

// SessionAudit returns a session's audit trail
func (h *SessionHandler) SessionAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	entries, err := h.auditService.ListSessionAudit(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

// lifecycle runs one status-transition operation and maps its errors to
// HTTP statuses.
func (h *SessionHandler) lifecycle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uint) error) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := fn(r.Context(), id); err != nil {
		var invalid engine.ErrInvalidTransition
		switch {
		case errors.As(err, &invalid):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, services.ErrSessionBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
