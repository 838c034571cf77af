package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradepost/internal/domain"
	"github.com/alanyoungcy/tradepost/internal/sweeper"
)

// activityWindow bounds how far back a session's activity may be for its
// identity to count as an active user.
const activityWindow = 30 * time.Minute

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	sweep    *sweeper.Sweeper
	sessions domain.SessionStore
	tokens   domain.TokenStore
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(sweep *sweeper.Sweeper, sessions domain.SessionStore, tokens domain.TokenStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		sweep:    sweep,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger.With(slog.String("handler", "admin")),
	}
}

type activeUser struct {
	IdentityID   string    `json:"identity_id"`
	Name         string    `json:"name"`
	LastActivity time.Time `json:"last_activity"`
	LiveTokens   int64     `json:"live_tokens"`
}

// ActiveUsers lists identities with session activity in the last half hour,
// with their live token counts.
// GET /api/admin/users
func (h *AdminHandler) ActiveUsers(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActiveSince(r.Context(), time.Now().UTC().Add(-activityWindow))
	if err != nil {
		h.logger.Error("active users failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	users := make([]activeUser, 0, len(sessions))
	seen := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		if seen[sess.IdentityID] {
			continue
		}
		seen[sess.IdentityID] = true

		live, err := h.tokens.CountUnrevoked(r.Context(), sess.IdentityID)
		if err != nil {
			h.logger.Error("token count failed",
				slog.String("identity", sess.IdentityID),
				slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		users = append(users, activeUser{
			IdentityID:   sess.IdentityID,
			Name:         sess.Name,
			LastActivity: sess.LastActivity,
			LiveTokens:   live,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

type sessionView struct {
	domain.PresenceSession
	Duration float64 `json:"duration_seconds"`
}

// Sessions lists recent presence sessions with their durations.
// GET /api/admin/sessions?limit=N
func (h *AdminHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	sessions, err := h.sessions.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list sessions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]sessionView, 0, len(sessions))
	now := time.Now().UTC()
	for _, sess := range sessions {
		end := now
		if sess.EndedAt != nil {
			end = *sess.EndedAt
		}
		views = append(views, sessionView{
			PresenceSession: sess,
			Duration:        end.Sub(sess.StartedAt).Seconds(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": views,
		"count":    len(views),
	})
}

// Sweep runs one reconciliation pass immediately.
// POST /api/admin/sweep
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sweep.SweepOnce(r.Context()))
}
