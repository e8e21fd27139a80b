package handlers

import (
	"encoding/json"
	"net/http"

	"pledgedesk/internal/logger"
	"pledgedesk/internal/models"
	"pledgedesk/internal/services"
)

// AuthHandler issues operator tokens for the authenticated API surface.
type AuthHandler struct {
	authService  services.AuthService
	jwtSecretKey []byte
	log          *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService services.AuthService, jwtSecretKey []byte) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		jwtSecretKey: jwtSecretKey,
		log:          logger.Get(),
	}
}

// Login authenticates an operator and returns a bearer token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Authenticate(loginReq.Username, loginReq.Password)
	if err != nil {
		h.log.WithField("username", loginReq.Username).Warn("login rejected")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	tokenString, err := h.authService.GenerateToken(user, h.jwtSecretKey)
	if err != nil {
		h.log.WithError(err).Error("token generation failed")
		http.Error(w, "Could not generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, models.TokenResponse{
		AccessToken: tokenString,
		TokenType:   "bearer",
	})
}
