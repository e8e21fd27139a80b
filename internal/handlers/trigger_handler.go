package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"pledgedesk/internal/trigger"
)

// TriggerHandler controls the automated execution trigger
type TriggerHandler struct {
	autoTrigger *trigger.AutoTrigger
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(autoTrigger *trigger.AutoTrigger) *TriggerHandler {
	return &TriggerHandler{autoTrigger: autoTrigger}
}

// RegisterRoutes registers trigger control routes
func (h *TriggerHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/trigger/status", h.Status).Methods("GET")
	router.HandleFunc("/trigger/enable", h.Enable).Methods("POST")
	router.HandleFunc("/trigger/disable", h.Disable).Methods("POST")
	router.HandleFunc("/trigger/run", h.RunNow).Methods("POST")
}

// Status reports the trigger gate and loop state
func (h *TriggerHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.autoTrigger.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, status)
}

// Enable turns the automated trigger on
func (h *TriggerHandler) Enable(w http.ResponseWriter, r *http.Request) {
	if err := h.autoTrigger.Enable(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Disable turns the automated trigger off
func (h *TriggerHandler) Disable(w http.ResponseWriter, r *http.Request) {
	if err := h.autoTrigger.Disable(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunNow kicks one trigger cycle outside the regular interval
func (h *TriggerHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	// The cycle outlives the request, so it runs on its own context.
	go h.autoTrigger.RunCycle(context.Background())
	w.WriteHeader(http.StatusAccepted)
}
