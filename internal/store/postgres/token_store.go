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

// TokenStore implements domain.TokenStore on top of the auth_tokens table.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a new TokenStore backed by the given pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

func (s *TokenStore) Insert(ctx context.Context, t domain.AuthToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_tokens (token, identity_id, name, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.Token, t.IdentityID, t.Name, t.IssuedAt, t.ExpiresAt, t.Revoked)
	if err != nil {
		return fmt.Errorf("postgres: insert token: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, token string) (domain.AuthToken, error) {
	var t domain.AuthToken
	err := s.pool.QueryRow(ctx, `
		SELECT token, identity_id, name, issued_at, expires_at, revoked
		FROM auth_tokens WHERE token = $1`, token,
	).Scan(&t.Token, &t.IdentityID, &t.Name, &t.IssuedAt, &t.ExpiresAt, &t.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AuthToken{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AuthToken{}, fmt.Errorf("postgres: get token: %w", err)
	}
	return t, nil
}

func (s *TokenStore) ExtendExpiry(ctx context.Context, token string, until time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auth_tokens SET expires_at = $1 WHERE token = $2`, until, token)
	if err != nil {
		return fmt.Errorf("postgres: extend token expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auth_tokens SET revoked = TRUE WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("postgres: revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *TokenStore) CountUnrevoked(ctx context.Context, identityID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM auth_tokens
		WHERE identity_id = $1 AND NOT revoked`, identityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count unrevoked tokens: %w", err)
	}
	return n, nil
}

func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM auth_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TokenStore = (*TokenStore)(nil)
