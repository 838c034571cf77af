package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// SessionStore implements domain.SessionStore on top of presence_sessions.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new SessionStore backed by the given pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Open(ctx context.Context, sess domain.PresenceSession) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO presence_sessions (identity_id, name, started_at, last_activity, active, client)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING id`,
		sess.IdentityID, sess.Name, sess.StartedAt, sess.LastActivity, sess.Client,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: open session: %w", err)
	}
	return id, nil
}

func (s *SessionStore) CloseActive(ctx context.Context, identityID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE presence_sessions SET active = FALSE, ended_at = $1
		WHERE identity_id = $2 AND active`, at, identityID)
	if err != nil {
		return 0, fmt.Errorf("postgres: close active sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *SessionStore) Touch(ctx context.Context, identityID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE presence_sessions SET last_activity = $1
		WHERE identity_id = $2 AND active`, at, identityID)
	if err != nil {
		return fmt.Errorf("postgres: touch session: %w", err)
	}
	return nil
}

func (s *SessionStore) CloseIdle(ctx context.Context, cutoff, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE presence_sessions SET active = FALSE, ended_at = $1
		WHERE active AND last_activity < $2`, at, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: close idle sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *SessionStore) ListRecent(ctx context.Context, limit int) ([]domain.PresenceSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, identity_id, name, started_at, ended_at, last_activity, active, client
		FROM presence_sessions
		ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent sessions: %w", err)
	}
	return scanSessionRows(rows)
}

func (s *SessionStore) ListActiveSince(ctx context.Context, since time.Time) ([]domain.PresenceSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, identity_id, name, started_at, ended_at, last_activity, active, client
		FROM presence_sessions
		WHERE active AND last_activity > $1
		ORDER BY last_activity DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active sessions: %w", err)
	}
	return scanSessionRows(rows)
}

func scanSessionRows(rows pgx.Rows) ([]domain.PresenceSession, error) {
	defer rows.Close()
	var out []domain.PresenceSession
	for rows.Next() {
		var sess domain.PresenceSession
		if err := rows.Scan(&sess.ID, &sess.IdentityID, &sess.Name, &sess.StartedAt,
			&sess.EndedAt, &sess.LastActivity, &sess.Active, &sess.Client); err != nil {
			return nil, fmt.Errorf("postgres: scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate session rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SessionStore = (*SessionStore)(nil)
