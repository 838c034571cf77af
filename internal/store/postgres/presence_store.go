package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// PresenceStore implements domain.PresenceStore on top of presence_records.
type PresenceStore struct {
	pool *pgxpool.Pool
}

// NewPresenceStore creates a new PresenceStore backed by the given pool.
func NewPresenceStore(pool *pgxpool.Pool) *PresenceStore {
	return &PresenceStore{pool: pool}
}

func (s *PresenceStore) Upsert(ctx context.Context, rec domain.PresenceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO presence_records (identity_id, name, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id)
		DO UPDATE SET name = EXCLUDED.name, last_seen = EXCLUDED.last_seen`,
		rec.IdentityID, rec.Name, rec.LastSeen)
	if err != nil {
		return fmt.Errorf("postgres: upsert presence: %w", err)
	}
	return nil
}

func (s *PresenceStore) Touch(ctx context.Context, identityID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE presence_records SET last_seen = $1 WHERE identity_id = $2`, at, identityID)
	if err != nil {
		return fmt.Errorf("postgres: touch presence: %w", err)
	}
	return nil
}

func (s *PresenceStore) Get(ctx context.Context, identityID string) (domain.PresenceRecord, error) {
	var rec domain.PresenceRecord
	err := s.pool.QueryRow(ctx, `
		SELECT identity_id, name, last_seen
		FROM presence_records WHERE identity_id = $1`, identityID,
	).Scan(&rec.IdentityID, &rec.Name, &rec.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PresenceRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PresenceRecord{}, fmt.Errorf("postgres: get presence: %w", err)
	}
	return rec, nil
}

func (s *PresenceStore) Delete(ctx context.Context, identityID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM presence_records WHERE identity_id = $1`, identityID)
	if err != nil {
		return fmt.Errorf("postgres: delete presence: %w", err)
	}
	return nil
}

// PurgeIdle deletes presence rows idle beyond the cutoff and, in the same
// transaction, every token owned by the purged identities. An identity that
// drops off the presence table must not keep working credentials.
func (s *PresenceStore) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin presence purge: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM auth_tokens WHERE identity_id IN (
			SELECT identity_id FROM presence_records WHERE last_seen < $1
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("postgres: purge idle tokens: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM presence_records WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge idle presence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit presence purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.PresenceStore = (*PresenceStore)(nil)
