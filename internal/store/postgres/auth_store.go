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

// AuthStore implements domain.AuthStore: login and logout each mutate
// auth_tokens, presence_records, and presence_sessions together, so both run
// as one transaction over the three tables.
type AuthStore struct {
	pool *pgxpool.Pool
}

// NewAuthStore creates a new AuthStore backed by the given pool.
func NewAuthStore(pool *pgxpool.Pool) *AuthStore {
	return &AuthStore{pool: pool}
}

// CommitIssue persists a fresh login atomically. When closePrior is set the
// identity's open sessions are ended before the new one is opened.
func (s *AuthStore) CommitIssue(ctx context.Context, t domain.AuthToken, p domain.PresenceRecord, sess domain.PresenceSession, closePrior bool) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin issue tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO auth_tokens (token, identity_id, name, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.Token, t.IdentityID, t.Name, t.IssuedAt, t.ExpiresAt, t.Revoked,
	); err != nil {
		return 0, fmt.Errorf("postgres: insert token: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO presence_records (identity_id, name, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id)
		DO UPDATE SET name = EXCLUDED.name, last_seen = EXCLUDED.last_seen`,
		p.IdentityID, p.Name, p.LastSeen,
	); err != nil {
		return 0, fmt.Errorf("postgres: upsert presence: %w", err)
	}

	var closed int64
	if closePrior {
		tag, err := tx.Exec(ctx, `
			UPDATE presence_sessions SET active = FALSE, ended_at = $1
			WHERE identity_id = $2 AND active`,
			sess.StartedAt, sess.IdentityID)
		if err != nil {
			return 0, fmt.Errorf("postgres: close prior sessions: %w", err)
		}
		closed = tag.RowsAffected()
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO presence_sessions (identity_id, name, started_at, last_activity, active, client)
		VALUES ($1, $2, $3, $4, TRUE, $5)`,
		sess.IdentityID, sess.Name, sess.StartedAt, sess.LastActivity, sess.Client,
	); err != nil {
		return 0, fmt.Errorf("postgres: open session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit issue: %w", err)
	}
	return closed, nil
}

// CommitRevoke revokes the token and tears down the identity's live state
// atomically. The token row is locked first so two concurrent logouts of the
// same identity serialize on the remaining-token count.
func (s *AuthStore) CommitRevoke(ctx context.Context, token string, at time.Time) (string, int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("postgres: begin revoke tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var identityID string
	err = tx.QueryRow(ctx, `
		SELECT identity_id FROM auth_tokens WHERE token = $1 FOR UPDATE`,
		token).Scan(&identityID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, domain.ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("postgres: load token: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE auth_tokens SET revoked = TRUE WHERE token = $1`, token); err != nil {
		return "", 0, fmt.Errorf("postgres: revoke token: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE presence_sessions SET active = FALSE, ended_at = $1
		WHERE identity_id = $2 AND active`, at, identityID); err != nil {
		return "", 0, fmt.Errorf("postgres: close sessions: %w", err)
	}

	var remaining int64
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM auth_tokens
		WHERE identity_id = $1 AND NOT revoked`, identityID).Scan(&remaining); err != nil {
		return "", 0, fmt.Errorf("postgres: count live tokens: %w", err)
	}

	if remaining == 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM presence_records WHERE identity_id = $1`, identityID); err != nil {
			return "", 0, fmt.Errorf("postgres: clear presence: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, fmt.Errorf("postgres: commit revoke: %w", err)
	}
	return identityID, remaining, nil
}

// Compile-time interface check.
var _ domain.AuthStore = (*AuthStore)(nil)
