package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// EscrowStore implements domain.EscrowStore using PostgreSQL.
type EscrowStore struct {
	pool *pgxpool.Pool
}

// NewEscrowStore creates a new EscrowStore backed by the given pool.
func NewEscrowStore(pool *pgxpool.Pool) *EscrowStore {
	return &EscrowStore{pool: pool}
}

// ListBySeller returns the seller's pending escrow entries, oldest first.
// Read-only; no side effects.
func (s *EscrowStore) ListBySeller(ctx context.Context, sellerID string) ([]domain.EscrowEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, seller_id, buyer_name, item_kind, quantity, unit_price, total, created_at
		FROM escrow_entries WHERE seller_id = $1 ORDER BY created_at, id`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list escrow: %w", err)
	}
	defer rows.Close()

	var entries []domain.EscrowEntry
	for rows.Next() {
		var e domain.EscrowEntry
		if err := rows.Scan(
			&e.ID, &e.SellerID, &e.BuyerName, &e.ItemKind,
			&e.Quantity, &e.UnitPrice, &e.Total, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan escrow: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan escrow: %w", err)
	}
	return entries, nil
}

// Claim deletes all of the seller's pending entries in one statement and
// returns the summed proceeds and entry count. An empty escrow set is a
// successful (0, 0) result, never an error.
func (s *EscrowStore) Claim(ctx context.Context, sellerID string) (int, int, error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM escrow_entries WHERE seller_id = $1 RETURNING total`, sellerID)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: claim escrow: %w", err)
	}
	defer rows.Close()

	var total, count int
	for rows.Next() {
		var t int
		if err := rows.Scan(&t); err != nil {
			return 0, 0, fmt.Errorf("postgres: scan claim: %w", err)
		}
		total += t
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("postgres: claim escrow: %w", err)
	}
	return total, count, nil
}

// Compile-time interface check.
var _ domain.EscrowStore = (*EscrowStore)(nil)
