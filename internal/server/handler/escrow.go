package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradepost/internal/domain"
	"github.com/alanyoungcy/tradepost/internal/market"
	"github.com/alanyoungcy/tradepost/internal/server/middleware"
)

// EscrowHandler serves the pending-sale endpoints.
type EscrowHandler struct {
	svc    *market.Service
	logger *slog.Logger
}

// NewEscrowHandler creates an EscrowHandler.
func NewEscrowHandler(svc *market.Service, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{svc: svc, logger: logger.With(slog.String("handler", "escrow"))}
}

// Pending lists the caller's unclaimed sale proceeds.
// GET /api/sales/pending
func (h *EscrowHandler) Pending(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	entries, err := h.svc.PendingEscrow(r.Context(), claims)
	if err != nil {
		h.logger.Error("pending escrow failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []domain.EscrowEntry{}
	}

	total := 0
	for _, e := range entries {
		total += e.Total
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

// Claim collects and clears all pending proceeds in one step. Claiming with
// nothing pending succeeds with a zero total.
// POST /api/sales/claim
func (h *EscrowHandler) Claim(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	total, count, err := h.svc.Claim(r.Context(), claims)
	if err != nil {
		h.logger.Error("claim failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"entries": count,
	})
}
