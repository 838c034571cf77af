package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/tradepost/internal/auth"
	"github.com/alanyoungcy/tradepost/internal/domain"
	"github.com/alanyoungcy/tradepost/internal/server/middleware"
)

// AuthHandler serves the token lifecycle endpoints.
type AuthHandler struct {
	svc    *auth.Service
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger.With(slog.String("handler", "auth"))}
}

type loginRequest struct {
	Ticket string `json:"ticket"`
	Name   string `json:"name"`
	Client string `json:"client,omitempty"`
}

type loginResponse struct {
	Token  string        `json:"token"`
	Claims domain.Claims `json:"claims"`
}

// Login verifies the platform ticket and issues a bearer token.
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	token, claims, err := h.svc.Issue(r.Context(), auth.Credentials{
		Ticket: req.Ticket,
		Name:   req.Name,
		Client: req.Client,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "ticket rejected")
			return
		}
		h.logger.Error("login failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, Claims: claims})
}

// Logout revokes the presented bearer token.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrTokenMalformed.Error())
		return
	}

	if err := h.svc.Revoke(r.Context(), token); err != nil {
		if domain.TokenRejection(err) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// Validate echoes the claims attached by the auth middleware. Reaching the
// handler means the token already validated (and its expiry slid forward).
// GET /auth/validate
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrTokenUnknown.Error())
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// bearerToken extracts the raw token from the Authorization header, or
// returns "" when the header is absent or not a Bearer scheme.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
