package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL. The
// transactions table is append-only: rows are never updated or deleted.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new TransactionStore backed by the given
// pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Append inserts one history record.
func (s *TransactionStore) Append(ctx context.Context, rec domain.TransactionRecord) error {
	lines, err := json.Marshal(rec.Lines)
	if err != nil {
		return fmt.Errorf("postgres: marshal transaction lines: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transactions (id, kind, actor_id, actor_name, lines, total_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, string(rec.Kind), rec.ActorID, rec.ActorName, lines, rec.TotalCost, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append transaction %s: %w", rec.ID, err)
	}
	return nil
}

const transactionSelectCols = `id, kind, actor_id, actor_name, lines, total_cost, created_at`

func scanTransactionRows(rows pgx.Rows) ([]domain.TransactionRecord, error) {
	var recs []domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		var kind string
		var lines []byte
		if err := rows.Scan(&rec.ID, &kind, &rec.ActorID, &rec.ActorName, &lines, &rec.TotalCost, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Kind = domain.TransactionKind(kind)
		if err := json.Unmarshal(lines, &rec.Lines); err != nil {
			return nil, fmt.Errorf("unmarshal lines for %s: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListByActor returns the actor's history, newest first.
func (s *TransactionStore) ListByActor(ctx context.Context, actorID string) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionSelectCols+` FROM transactions
		 WHERE actor_id = $1 ORDER BY created_at DESC`, actorID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	recs, err := scanTransactionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return recs, nil
}

// CountByActorKind counts the actor's records of the given kind.
func (s *TransactionStore) CountByActorKind(ctx context.Context, actorID string, kind domain.TransactionKind) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE actor_id = $1 AND kind = $2`,
		actorID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count transactions: %w", err)
	}
	return n, nil
}

// Count returns the total number of history records.
func (s *TransactionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count transactions: %w", err)
	}
	return n, nil
}

// ListBefore returns records created strictly before the cutoff, oldest
// first, for archival snapshots.
func (s *TransactionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionSelectCols+` FROM transactions
		 WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions before %s: %w", before, err)
	}
	defer rows.Close()

	recs, err := scanTransactionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return recs, nil
}

// Compile-time interface check.
var _ domain.TransactionStore = (*TransactionStore)(nil)
