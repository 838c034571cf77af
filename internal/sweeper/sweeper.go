// Package sweeper runs the periodic reconciliation pass over tokens,
// sessions, and presence.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// Config holds the sweep cadence and idle thresholds.
type Config struct {
	// Interval between passes.
	Interval time.Duration

	// SessionIdle is how long a session may go without activity before it
	// is closed.
	SessionIdle time.Duration

	// PresenceIdle is how long an identity may go unseen before its
	// presence row and tokens are purged.
	PresenceIdle time.Duration
}

// Report is the outcome of one pass.
type Report struct {
	TokensDeleted  int64 `json:"tokens_deleted"`
	SessionsClosed int64 `json:"sessions_closed"`
	PresencePurged int64 `json:"presence_purged"`
}

// Sweeper expires tokens, closes idle sessions, and purges idle presence on
// a fixed interval.
type Sweeper struct {
	cfg      Config
	tokens   domain.TokenStore
	sessions domain.SessionStore
	presence domain.PresenceStore
	logger   *slog.Logger

	now func() time.Time
}

// New creates a Sweeper.
func New(
	cfg Config,
	tokens domain.TokenStore,
	sessions domain.SessionStore,
	presence domain.PresenceStore,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		tokens:   tokens,
		sessions: sessions,
		presence: presence,
		logger:   logger.With(slog.String("component", "sweeper")),
		now:      time.Now,
	}
}

// Run executes a pass every Interval until the context is cancelled. Pass
// failures are logged and never stop the loop; the next tick always runs.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("session_idle", s.cfg.SessionIdle),
		slog.Duration("presence_idle", s.cfg.PresenceIdle))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs the three cleanup steps. Each step is its own store
// transaction and each failure is logged and swallowed, so one broken step
// never blocks the others.
func (s *Sweeper) SweepOnce(ctx context.Context) Report {
	now := s.now().UTC()
	var rep Report
	var err error

	if rep.TokensDeleted, err = s.tokens.DeleteExpired(ctx, now); err != nil {
		s.logger.Error("expired token cleanup failed", slog.String("error", err.Error()))
	}

	if rep.SessionsClosed, err = s.sessions.CloseIdle(ctx, now.Add(-s.cfg.SessionIdle), now); err != nil {
		s.logger.Error("idle session cleanup failed", slog.String("error", err.Error()))
	}

	if rep.PresencePurged, err = s.presence.PurgeIdle(ctx, now.Add(-s.cfg.PresenceIdle)); err != nil {
		s.logger.Error("idle presence cleanup failed", slog.String("error", err.Error()))
	}

	if rep.TokensDeleted > 0 || rep.SessionsClosed > 0 || rep.PresencePurged > 0 {
		s.logger.Info("sweep complete",
			slog.Int64("tokens_deleted", rep.TokensDeleted),
			slog.Int64("sessions_closed", rep.SessionsClosed),
			slog.Int64("presence_purged", rep.PresencePurged))
	}
	return rep
}
