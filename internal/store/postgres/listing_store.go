package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingSelectCols = `id, item_kind, quantity, unit_price, seller_id, seller_name, quality, listed_at`

func scanListingFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Listing, error) {
	var l domain.Listing
	err := scanner.Scan(
		&l.ID, &l.ItemKind, &l.Quantity, &l.UnitPrice,
		&l.SellerID, &l.SellerName, &l.Quality, &l.ListedAt,
	)
	return l, err
}

func scanListingRows(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListingFromRow(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Insert adds a new listing. Duplicate (seller, item kind, quality) rows are
// allowed and coexist; listings are never merged on insert.
func (s *ListingStore) Insert(ctx context.Context, l domain.Listing) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO listings (id, item_kind, quantity, unit_price, seller_id, seller_name, quality, listed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.ItemKind, l.Quantity, l.UnitPrice, l.SellerID, l.SellerName, l.Quality, l.ListedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert listing %s: %w", l.ID, err)
	}
	return nil
}

// ListAll returns every active listing, oldest first.
func (s *ListingStore) ListAll(ctx context.Context) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings ORDER BY listed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan listings: %w", err)
	}
	return listings, nil
}

// ListBySeller returns the seller's listings in retrieval order (oldest
// first, ties broken by ID so the order is stable).
func (s *ListingStore) ListBySeller(ctx context.Context, sellerID string) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings WHERE seller_id = $1 ORDER BY listed_at, id`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list seller listings: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan seller listings: %w", err)
	}
	return listings, nil
}

// Resolve finds the listing addressed by (item kind, seller display name).
// When duplicates exist the oldest wins, matching the purchase path.
func (s *ListingStore) Resolve(ctx context.Context, itemKind, sellerName string) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE item_kind = $1 AND seller_name = $2
		 ORDER BY listed_at, id LIMIT 1`,
		itemKind, sellerName)

	l, err := scanListingFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: resolve listing %s/%s: %w", itemKind, sellerName, err)
	}
	return l, nil
}

// DeleteOwned removes the listing with the given ID if it belongs to the
// seller.
func (s *ListingStore) DeleteOwned(ctx context.Context, sellerID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM listings WHERE id = $1 AND seller_id = $2`, id, sellerID)
	if err != nil {
		return fmt.Errorf("postgres: delete listing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the number of active listings.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return n, nil
}

// CountSellers returns the number of distinct sellers with active listings.
func (s *ListingStore) CountSellers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT seller_id) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count sellers: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
