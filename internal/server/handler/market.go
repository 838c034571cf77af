package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradepost/internal/domain"
	"github.com/alanyoungcy/tradepost/internal/market"
	"github.com/alanyoungcy/tradepost/internal/server/middleware"
)

// MarketHandler serves the listing and purchase endpoints.
type MarketHandler struct {
	svc    *market.Service
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *market.Service, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, logger: logger.With(slog.String("handler", "market"))}
}

// ListListings returns every active listing.
// GET /api/market/listings
func (h *MarketHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.svc.Listings(r.Context())
	if err != nil {
		h.logger.Error("list listings failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": emptyIfNil(listings)})
}

// Buy runs a purchase batch.
// POST /api/market/buy
func (h *MarketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	var req market.BuyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.svc.Buy(r.Context(), claims, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrItemUnavailable),
			errors.Is(err, domain.ErrInsufficientStock):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusPaymentRequired, err.Error())
		default:
			h.logger.Error("buy failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

type sellRequest struct {
	Items []market.SellItem `json:"items"`
}

// Sell posts a batch of listings.
// POST /api/market/sell
func (h *MarketHandler) Sell(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	var req sellRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}

	listings, err := h.svc.Sell(r.Context(), claims, req.Items)
	if err != nil {
		h.logger.Error("sell failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"listings": listings})
}

// MyListings returns the caller's active listings.
// GET /api/market/mine
func (h *MarketHandler) MyListings(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	listings, err := h.svc.MyListings(r.Context(), claims)
	if err != nil {
		h.logger.Error("list own listings failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": emptyIfNil(listings)})
}

// Remove deletes the caller's listing by ID.
// DELETE /api/market/listings/{id}
func (h *MarketHandler) Remove(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	id := r.PathValue("id")
	if err := h.svc.Remove(r.Context(), claims, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.logger.Error("remove listing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type removeByIndexRequest struct {
	Index int `json:"index"`
}

// RemoveByIndex deletes the caller's listing by position in retrieval
// order, for clients that predate listing IDs.
// POST /api/market/remove
func (h *MarketHandler) RemoveByIndex(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	var req removeByIndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	removed, err := h.svc.RemoveByIndex(r.Context(), claims, req.Index)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidIndex):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "listing not found")
		default:
			h.logger.Error("remove by index failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "removed", "listing": removed})
}

// UserInfo summarizes the caller's marketplace footprint.
// GET /api/user/info
func (h *MarketHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	info, err := h.svc.UserInfo(r.Context(), claims)
	if err != nil {
		h.logger.Error("user info failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Stats returns the public marketplace snapshot.
// GET /api/market/stats
func (h *MarketHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// emptyIfNil keeps empty list responses as [] instead of null.
func emptyIfNil(listings []domain.Listing) []domain.Listing {
	if listings == nil {
		return []domain.Listing{}
	}
	return listings
}
