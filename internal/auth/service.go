// Package auth implements the bearer token lifecycle: issuance against the
// identity gateway, validation with sliding expiry, and revocation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradepost/internal/crypto"
	"github.com/alanyoungcy/tradepost/internal/domain"
)

// IdentityResolver verifies a login ticket with the platform and returns the
// stable identity ID it belongs to.
type IdentityResolver interface {
	Resolve(ctx context.Context, ticket string) (string, error)
}

// Config holds the token policy knobs.
type Config struct {
	// TokenTTL is the sliding window: issuance sets expiry to now+TTL and
	// every successful validation pushes it forward again.
	TokenTTL time.Duration

	// SingleSession force-closes an identity's open presence sessions when
	// a new token is issued.
	SingleSession bool
}

// Service orchestrates the token stores, the signer, and the identity
// gateway.
type Service struct {
	cfg      Config
	signer   *crypto.TokenSigner
	identity IdentityResolver
	store    domain.AuthStore
	tokens   domain.TokenStore
	presence domain.PresenceStore
	sessions domain.SessionStore
	logger   *slog.Logger

	now func() time.Time
}

// NewService creates the auth service.
func NewService(
	cfg Config,
	signer *crypto.TokenSigner,
	identity IdentityResolver,
	store domain.AuthStore,
	tokens domain.TokenStore,
	presence domain.PresenceStore,
	sessions domain.SessionStore,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		signer:   signer,
		identity: identity,
		store:    store,
		tokens:   tokens,
		presence: presence,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "auth")),
		now:      time.Now,
	}
}

// Credentials is a login request: the platform ticket plus the display name
// and client string the caller reports.
type Credentials struct {
	Ticket string
	Name   string
	Client string
}

// Issue verifies the login ticket, mints a signed token, and persists the
// login in one transaction: the token row with a fresh expiry, the presence
// record, and an open session either all land or none do.
func (s *Service) Issue(ctx context.Context, creds Credentials) (string, domain.Claims, error) {
	identityID, err := s.identity.Resolve(ctx, creds.Ticket)
	if err != nil {
		return "", domain.Claims{}, fmt.Errorf("auth: resolve identity: %w", err)
	}

	now := s.now().UTC()
	token, tokenID, err := s.signer.Mint(identityID, creds.Name, now)
	if err != nil {
		return "", domain.Claims{}, fmt.Errorf("auth: mint token: %w", err)
	}

	expires := now.Add(s.cfg.TokenTTL)
	closed, err := s.store.CommitIssue(ctx,
		domain.AuthToken{
			Token:      token,
			IdentityID: identityID,
			Name:       creds.Name,
			IssuedAt:   now,
			ExpiresAt:  expires,
		},
		domain.PresenceRecord{
			IdentityID: identityID,
			Name:       creds.Name,
			LastSeen:   now,
		},
		domain.PresenceSession{
			IdentityID:   identityID,
			Name:         creds.Name,
			StartedAt:    now,
			LastActivity: now,
			Active:       true,
			Client:       creds.Client,
		},
		s.cfg.SingleSession,
	)
	if err != nil {
		return "", domain.Claims{}, fmt.Errorf("auth: persist login: %w", err)
	}
	if closed > 0 {
		s.logger.Info("closed prior sessions on login",
			slog.String("identity", identityID),
			slog.Int64("closed", closed))
	}

	s.logger.Info("token issued",
		slog.String("identity", identityID),
		slog.String("name", creds.Name),
		slog.String("token_id", tokenID))

	return token, domain.Claims{
		IdentityID: identityID,
		Name:       creds.Name,
		ExpiresAt:  expires,
	}, nil
}

// Validate checks a bearer token and, on success, slides its expiry forward
// and refreshes the identity's presence. The checks run in a fixed order so
// each failure maps to one rejection reason: unknown row, revoked flag,
// signature, persisted expiry. The persisted expiry is authoritative; the
// signature alone never admits a token.
func (s *Service) Validate(ctx context.Context, token string) (domain.Claims, error) {
	row, err := s.tokens.Get(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Claims{}, domain.ErrTokenUnknown
	}
	if err != nil {
		return domain.Claims{}, fmt.Errorf("auth: load token: %w", err)
	}

	if row.Revoked {
		return domain.Claims{}, domain.ErrTokenRevoked
	}

	if _, err := s.signer.Verify(token); err != nil {
		return domain.Claims{}, domain.ErrTokenMalformed
	}

	now := s.now().UTC()
	if !row.ExpiresAt.After(now) {
		return domain.Claims{}, domain.ErrTokenExpired
	}

	expires := now.Add(s.cfg.TokenTTL)
	if err := s.tokens.ExtendExpiry(ctx, token, expires); err != nil {
		return domain.Claims{}, fmt.Errorf("auth: slide expiry: %w", err)
	}

	// Presence refresh is best effort; the token has already validated.
	if err := s.presence.Touch(ctx, row.IdentityID, now); err != nil {
		s.logger.Warn("presence touch failed",
			slog.String("identity", row.IdentityID),
			slog.String("error", err.Error()))
	}
	if err := s.sessions.Touch(ctx, row.IdentityID, now); err != nil {
		s.logger.Warn("session touch failed",
			slog.String("identity", row.IdentityID),
			slog.String("error", err.Error()))
	}

	return domain.Claims{
		IdentityID: row.IdentityID,
		Name:       row.Name,
		ExpiresAt:  expires,
	}, nil
}

// Authenticate extracts the bearer token from an Authorization header value
// and validates it.
func (s *Service) Authenticate(ctx context.Context, header string) (domain.Claims, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return domain.Claims{}, domain.ErrTokenMalformed
	}
	return s.Validate(ctx, strings.TrimSpace(header[len(prefix):]))
}

// Revoke marks the token revoked, ends the identity's open sessions, and,
// when the identity's last live token is revoked, removes its presence row —
// all in one transaction, so a failure never leaves the token revoked with
// sessions still open. Revoking an unknown token returns ErrTokenUnknown.
func (s *Service) Revoke(ctx context.Context, token string) error {
	identityID, remaining, err := s.store.CommitRevoke(ctx, token, s.now().UTC())
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrTokenUnknown
	}
	if err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}

	s.logger.Info("token revoked",
		slog.String("identity", identityID),
		slog.Int64("remaining_tokens", remaining))
	return nil
}
