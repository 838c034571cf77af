// Package market implements the settlement engine: listings, two-phase
// purchases, escrow claims, and the read endpoints built over them.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// Service orchestrates the marketplace stores and publishes listing/sale
// events to the bus.
type Service struct {
	listings     domain.ListingStore
	escrow       domain.EscrowStore
	transactions domain.TransactionStore
	settlement   domain.SettlementStore
	bus          domain.EventBus
	logger       *slog.Logger

	now func() time.Time
}

// NewService creates the market service.
func NewService(
	listings domain.ListingStore,
	escrow domain.EscrowStore,
	transactions domain.TransactionStore,
	settlement domain.SettlementStore,
	bus domain.EventBus,
	logger *slog.Logger,
) *Service {
	return &Service{
		listings:     listings,
		escrow:       escrow,
		transactions: transactions,
		settlement:   settlement,
		bus:          bus,
		logger:       logger.With(slog.String("component", "market")),
		now:          time.Now,
	}
}

// BuyRequest is a purchase batch. ClientFunds is the buyer's silver balance
// as asserted by the game client; the server has no ledger of its own and
// only checks affordability against this figure.
type BuyRequest struct {
	Lines       []domain.PurchaseLine `json:"items"`
	ClientFunds int                   `json:"client_funds"`
}

// SellItem is one offer in a sell batch.
type SellItem struct {
	ItemKind  string `json:"item_kind"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
	Quality   string `json:"quality,omitempty"`
}

// Buy runs the two-phase purchase. The validate phase checks every line
// against current listings and rejects the whole batch on the first
// problem, with nothing applied. The commit phase then settles inside one
// store transaction, re-resolving each line; lines lost to a concurrent
// buyer between the phases are dropped from the receipt rather than
// failing the batch.
func (s *Service) Buy(ctx context.Context, claims domain.Claims, req BuyRequest) (domain.PurchaseReceipt, error) {
	if len(req.Lines) == 0 {
		return domain.PurchaseReceipt{}, fmt.Errorf("market: empty purchase: %w", domain.ErrItemUnavailable)
	}

	total := 0
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return domain.PurchaseReceipt{}, fmt.Errorf("market: line %s x%d: %w",
				line.ItemKind, line.Quantity, domain.ErrInsufficientStock)
		}

		l, err := s.listings.Resolve(ctx, line.ItemKind, line.SellerName)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PurchaseReceipt{}, fmt.Errorf("market: %s from %s: %w",
				line.ItemKind, line.SellerName, domain.ErrItemUnavailable)
		}
		if err != nil {
			return domain.PurchaseReceipt{}, fmt.Errorf("market: resolve %s: %w", line.ItemKind, err)
		}

		if l.Quantity < line.Quantity {
			return domain.PurchaseReceipt{}, fmt.Errorf("market: %s has %d of %d requested: %w",
				line.ItemKind, l.Quantity, line.Quantity, domain.ErrInsufficientStock)
		}
		total += l.UnitPrice * line.Quantity
	}

	if total > req.ClientFunds {
		return domain.PurchaseReceipt{}, fmt.Errorf("market: cost %d exceeds funds %d: %w",
			total, req.ClientFunds, domain.ErrInsufficientFunds)
	}

	receipt, err := s.settlement.CommitPurchase(ctx, claims.IdentityID, claims.Name, req.Lines)
	if err != nil {
		return domain.PurchaseReceipt{}, fmt.Errorf("market: commit purchase: %w", err)
	}

	s.logger.Info("purchase settled",
		slog.String("buyer", claims.Name),
		slog.Int("lines", len(receipt.Items)),
		slog.Int("total", receipt.TotalCost))

	s.publish(ctx, domain.ChannelSale, saleEvent{
		Buyer:     claims.Name,
		Items:     receipt.Items,
		TotalCost: receipt.TotalCost,
	})
	return receipt, nil
}

// Sell inserts one listing per offered item, appends a single zero-cost
// listing record for the batch, and announces the new listings on the bus.
func (s *Service) Sell(ctx context.Context, claims domain.Claims, items []SellItem) ([]domain.Listing, error) {
	if len(items) == 0 {
		return nil, errors.New("market: empty sell batch")
	}

	now := s.now().UTC()
	out := make([]domain.Listing, 0, len(items))
	lines := make([]domain.TransactionLine, 0, len(items))

	for _, item := range items {
		if item.ItemKind == "" || item.Quantity < 1 || item.UnitPrice < 0 {
			return nil, fmt.Errorf("market: invalid offer %q x%d @%d", item.ItemKind, item.Quantity, item.UnitPrice)
		}

		l := domain.Listing{
			ID:         uuid.NewString(),
			ItemKind:   item.ItemKind,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			SellerID:   claims.IdentityID,
			SellerName: claims.Name,
			Quality:    item.Quality,
			ListedAt:   now,
		}
		if err := s.listings.Insert(ctx, l); err != nil {
			return nil, fmt.Errorf("market: insert listing: %w", err)
		}

		out = append(out, l)
		lines = append(lines, domain.TransactionLine{
			ItemKind:  item.ItemKind,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Quality:   item.Quality,
		})
	}

	if err := s.transactions.Append(ctx, domain.TransactionRecord{
		ID:        uuid.NewString(),
		Kind:      domain.TransactionListing,
		ActorID:   claims.IdentityID,
		ActorName: claims.Name,
		Lines:     lines,
		TotalCost: 0,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("market: record listing batch: %w", err)
	}

	s.logger.Info("listings posted",
		slog.String("seller", claims.Name),
		slog.Int("count", len(out)))

	s.publish(ctx, domain.ChannelListing, listingEvent{
		Seller:   claims.Name,
		Listings: out,
	})
	return out, nil
}

// Listings returns every active listing, oldest first.
func (s *Service) Listings(ctx context.Context) ([]domain.Listing, error) {
	out, err := s.listings.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("market: list listings: %w", err)
	}
	return out, nil
}

// MyListings returns the caller's active listings in retrieval order.
func (s *Service) MyListings(ctx context.Context, claims domain.Claims) ([]domain.Listing, error) {
	out, err := s.listings.ListBySeller(ctx, claims.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("market: list own listings: %w", err)
	}
	return out, nil
}

// Remove deletes the caller's listing by ID. Removing a listing another
// seller owns, or one that no longer exists, returns ErrNotFound.
func (s *Service) Remove(ctx context.Context, claims domain.Claims, listingID string) error {
	if err := s.listings.DeleteOwned(ctx, claims.IdentityID, listingID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("market: remove listing: %w", err)
	}

	s.logger.Info("listing removed",
		slog.String("seller", claims.Name),
		slog.String("listing", listingID))
	return nil
}

// RemoveByIndex deletes the caller's listing at the given position in the
// current retrieval order. Older game clients address listings this way;
// the index is resolved to a listing ID at call time, so a stale index
// deletes whichever listing currently occupies the position.
func (s *Service) RemoveByIndex(ctx context.Context, claims domain.Claims, index int) (domain.Listing, error) {
	mine, err := s.listings.ListBySeller(ctx, claims.IdentityID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market: list own listings: %w", err)
	}
	if index < 0 || index >= len(mine) {
		return domain.Listing{}, fmt.Errorf("market: index %d of %d listings: %w",
			index, len(mine), domain.ErrInvalidIndex)
	}

	target := mine[index]
	if err := s.Remove(ctx, claims, target.ID); err != nil {
		return domain.Listing{}, err
	}
	return target, nil
}

// PendingEscrow returns the caller's unclaimed sale proceeds.
func (s *Service) PendingEscrow(ctx context.Context, claims domain.Claims) ([]domain.EscrowEntry, error) {
	out, err := s.escrow.ListBySeller(ctx, claims.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("market: list escrow: %w", err)
	}
	return out, nil
}

// Claim atomically collects and clears all of the caller's pending
// proceeds. An empty escrow is a successful zero claim, so the operation
// is idempotent.
func (s *Service) Claim(ctx context.Context, claims domain.Claims) (total int, count int, err error) {
	total, count, err = s.escrow.Claim(ctx, claims.IdentityID)
	if err != nil {
		return 0, 0, fmt.Errorf("market: claim escrow: %w", err)
	}

	if count > 0 {
		s.logger.Info("escrow claimed",
			slog.String("seller", claims.Name),
			slog.Int("entries", count),
			slog.Int("total", total))
	}
	return total, count, nil
}

// UserInfo summarizes the caller's marketplace footprint.
type UserInfo struct {
	IdentityID     string `json:"identity_id"`
	Name           string `json:"name"`
	ActiveListings int    `json:"active_listings"`
	PendingEntries int    `json:"pending_entries"`
	PendingTotal   int    `json:"pending_total"`
	Purchases      int64  `json:"purchases"`
	ListingBatches int64  `json:"listing_batches"`
}

// UserInfo gathers the caller's listings, pending proceeds, and history
// counts.
func (s *Service) UserInfo(ctx context.Context, claims domain.Claims) (UserInfo, error) {
	info := UserInfo{
		IdentityID: claims.IdentityID,
		Name:       claims.Name,
	}

	mine, err := s.listings.ListBySeller(ctx, claims.IdentityID)
	if err != nil {
		return UserInfo{}, fmt.Errorf("market: user info listings: %w", err)
	}
	info.ActiveListings = len(mine)

	pending, err := s.escrow.ListBySeller(ctx, claims.IdentityID)
	if err != nil {
		return UserInfo{}, fmt.Errorf("market: user info escrow: %w", err)
	}
	info.PendingEntries = len(pending)
	for _, e := range pending {
		info.PendingTotal += e.Total
	}

	if info.Purchases, err = s.transactions.CountByActorKind(ctx, claims.IdentityID, domain.TransactionPurchase); err != nil {
		return UserInfo{}, fmt.Errorf("market: user info purchases: %w", err)
	}
	if info.ListingBatches, err = s.transactions.CountByActorKind(ctx, claims.IdentityID, domain.TransactionListing); err != nil {
		return UserInfo{}, fmt.Errorf("market: user info listing batches: %w", err)
	}

	return info, nil
}

// Stats is the public marketplace snapshot.
type Stats struct {
	ActiveListings    int64 `json:"active_listings"`
	ActiveSellers     int64 `json:"active_sellers"`
	TotalTransactions int64 `json:"total_transactions"`
}

// Stats counts active listings, distinct sellers, and lifetime history
// entries.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error

	if st.ActiveListings, err = s.listings.Count(ctx); err != nil {
		return Stats{}, fmt.Errorf("market: stats listings: %w", err)
	}
	if st.ActiveSellers, err = s.listings.CountSellers(ctx); err != nil {
		return Stats{}, fmt.Errorf("market: stats sellers: %w", err)
	}
	if st.TotalTransactions, err = s.transactions.Count(ctx); err != nil {
		return Stats{}, fmt.Errorf("market: stats transactions: %w", err)
	}
	return st, nil
}

// listingEvent and saleEvent are the bus payloads consumed by the live feed.
type listingEvent struct {
	Seller   string           `json:"seller"`
	Listings []domain.Listing `json:"listings"`
}

type saleEvent struct {
	Buyer     string                   `json:"buyer"`
	Items     []domain.TransactionLine `json:"items"`
	TotalCost int                      `json:"total_cost"`
}

// publish sends an event to the bus. Delivery is best effort; a bus outage
// never fails the settlement that triggered the event.
func (s *Service) publish(ctx context.Context, channel string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("event marshal failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.Warn("event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}
