// Package handler translates HTTP requests into service calls and
// domain errors back into HTTP responses.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mbriand/grimoire/internal/apperror"
	"github.com/mbriand/grimoire/internal/service"
	"github.com/mbriand/grimoire/internal/validate"
)

// AuthHandler serves the signup and login endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// HandleSignup registers a new account.
//
// POST /api/auth/signup
// Body: {"email": "...", "password": "..."}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var creds validate.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, apperror.ValidationFailed("request body must be valid JSON"))
		return
	}

	user, err := h.auth.Signup(r.Context(), creds)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"userId":  user.ID,
		"message": "account created",
	})
}

// HandleLogin verifies credentials and returns a bearer token.
//
// POST /api/auth/login
// Body: {"email": "...", "password": "..."}
// Response: {"userId": "...", "token": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds validate.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, apperror.ValidationFailed("request body must be valid JSON"))
		return
	}

	result, err := h.auth.Login(r.Context(), creds)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
