package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pledgedesk/internal/models"
	"pledgedesk/internal/services"
)

// PledgeHandler handles pledge intake and payment-confirmation requests
type PledgeHandler struct {
	pledgeService services.PledgeService
}

// NewPledgeHandler creates a new pledge handler
func NewPledgeHandler(pledgeService services.PledgeService) *PledgeHandler {
	return &PledgeHandler{pledgeService: pledgeService}
}

// RegisterRoutes registers pledge routes
func (h *PledgeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/pledges", h.CreatePledge).Methods("POST")
	router.HandleFunc("/pledges/{id}", h.GetPledge).Methods("GET")
	router.HandleFunc("/pledges/{id}/payment", h.ConfirmPayment).Methods("POST")
	router.HandleFunc("/sessions/{id}/pledges", h.ListSessionPledges).Methods("GET")
	router.HandleFunc("/users/{id}/pledges", h.ListUserPledges).Methods("GET")
}

// CreatePledge records a new pledge on an active session
func (h *PledgeHandler) CreatePledge(w http.ResponseWriter, r *http.Request) {
	var pledge models.Pledge
	if err := json.NewDecoder(r.Body).Decode(&pledge); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	created, err := h.pledgeService.CreatePledge(r.Context(), pledge)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotOpen),
			errors.Is(err, services.ErrSideNotAllowed),
			errors.Is(err, services.ErrQtyOutOfRange):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrSessionFull):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, created)
}

// GetPledge returns a specific pledge by ID
func (h *PledgeHandler) GetPledge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	pledge, err := h.pledgeService.GetPledge(r.Context(), id)
	if err != nil {
		http.Error(w, "Pledge not found", http.StatusNotFound)
		return
	}
	writeJSON(w, pledge)
}

// ConfirmPayment marks a pledge's payment as settled, readying it for
// execution
func (h *PledgeHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.pledgeService.ConfirmPayment(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrPaymentNotPending) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessionPledges returns all pledges for a session
func (h *PledgeHandler) ListSessionPledges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	pledges, err := h.pledgeService.ListSessionPledges(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, pledges)
}

// ListUserPledges returns one investor's pledges across sessions
func (h *PledgeHandler) ListUserPledges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	pledges, err := h.pledgeService.ListUserPledges(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, pledges)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}
