package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"pledgedesk/internal/store"
)

// ExecutionHandler serves the execution-record ledger
type ExecutionHandler struct {
	records store.ExecutionStore
}

// NewExecutionHandler creates a new execution record handler
func NewExecutionHandler(records store.ExecutionStore) *ExecutionHandler {
	return &ExecutionHandler{records: records}
}

// RegisterRoutes registers execution record routes
func (h *ExecutionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions/{id}/executions", h.ListSessionExecutions).Methods("GET")
	router.HandleFunc("/pledges/{id}/executions", h.ListPledgeExecutions).Methods("GET")
}

// ListSessionExecutions returns a session's execution records in ledger order
func (h *ExecutionHandler) ListSessionExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	records, err := h.records.ListBySession(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// ListPledgeExecutions returns every execution attempt for one pledge
func (h *ExecutionHandler) ListPledgeExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	records, err := h.records.ListByPledge(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}
