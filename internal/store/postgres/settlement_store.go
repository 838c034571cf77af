package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// SettlementStore implements domain.SettlementStore: the commit phase of a
// purchase runs as one transaction spanning listings, escrow_entries, and
// transactions.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// CommitPurchase re-resolves each requested line against current listing
// state, absorbing any mutation since the caller's validate phase. Lines
// whose listing vanished, or no longer covers the requested quantity, are
// silently skipped: another buyer won that race. Surviving lines decrement
// the listing (deleting it on full consumption, so quantity never reaches
// zero in place) and credit the seller's escrow. Exactly one history record
// is appended for whatever actually settled, even when that is nothing.
func (s *SettlementStore) CommitPurchase(ctx context.Context, buyerID, buyerName string, lines []domain.PurchaseLine) (domain.PurchaseReceipt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.PurchaseReceipt{}, fmt.Errorf("postgres: begin purchase tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	var receipt domain.PurchaseReceipt

	for _, line := range lines {
		var l domain.Listing
		err := tx.QueryRow(ctx, `
			SELECT `+listingSelectCols+` FROM listings
			WHERE item_kind = $1 AND seller_name = $2
			ORDER BY listed_at, id LIMIT 1
			FOR UPDATE`,
			line.ItemKind, line.SellerName,
		).Scan(&l.ID, &l.ItemKind, &l.Quantity, &l.UnitPrice,
			&l.SellerID, &l.SellerName, &l.Quality, &l.ListedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return domain.PurchaseReceipt{}, fmt.Errorf("postgres: resolve purchase line %s/%s: %w",
				line.ItemKind, line.SellerName, err)
		}

		if l.Quantity < line.Quantity {
			continue
		}

		if l.Quantity == line.Quantity {
			if _, err := tx.Exec(ctx, `DELETE FROM listings WHERE id = $1`, l.ID); err != nil {
				return domain.PurchaseReceipt{}, fmt.Errorf("postgres: consume listing %s: %w", l.ID, err)
			}
		} else {
			// The row is locked, so the guard cannot fail here; it is
			// the schema-level backstop against a negative quantity.
			tag, err := tx.Exec(ctx, `
				UPDATE listings SET quantity = quantity - $1
				WHERE id = $2 AND quantity > $1`,
				line.Quantity, l.ID)
			if err != nil {
				return domain.PurchaseReceipt{}, fmt.Errorf("postgres: decrement listing %s: %w", l.ID, err)
			}
			if tag.RowsAffected() == 0 {
				continue
			}
		}

		cost := l.UnitPrice * line.Quantity

		if _, err := tx.Exec(ctx, `
			INSERT INTO escrow_entries (seller_id, buyer_name, item_kind, quantity, unit_price, total, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.SellerID, buyerName, l.ItemKind, line.Quantity, l.UnitPrice, cost, now,
		); err != nil {
			return domain.PurchaseReceipt{}, fmt.Errorf("postgres: credit escrow for %s: %w", l.SellerID, err)
		}

		receipt.Items = append(receipt.Items, domain.TransactionLine{
			ItemKind:   l.ItemKind,
			Quantity:   line.Quantity,
			UnitPrice:  l.UnitPrice,
			SellerName: l.SellerName,
			Quality:    l.Quality,
		})
		receipt.TotalCost += cost
	}

	linesJSON, err := json.Marshal(receipt.Items)
	if err != nil {
		return domain.PurchaseReceipt{}, fmt.Errorf("postgres: marshal receipt: %w", err)
	}
	if receipt.Items == nil {
		linesJSON = []byte("[]")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, kind, actor_id, actor_name, lines, total_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), string(domain.TransactionPurchase), buyerID, buyerName,
		linesJSON, receipt.TotalCost, now,
	); err != nil {
		return domain.PurchaseReceipt{}, fmt.Errorf("postgres: record purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.PurchaseReceipt{}, fmt.Errorf("postgres: commit purchase: %w", err)
	}
	return receipt, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
