package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// The stubs embed the store interfaces and override only the methods the
// sweeper calls.

type stubTokens struct {
	domain.TokenStore
	deleted int64
	err     error
	gotNow  time.Time
}

func (s *stubTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.gotNow = now
	return s.deleted, s.err
}

type stubSessions struct {
	domain.SessionStore
	closed    int64
	err       error
	gotCutoff time.Time
}

func (s *stubSessions) CloseIdle(_ context.Context, cutoff, _ time.Time) (int64, error) {
	s.gotCutoff = cutoff
	return s.closed, s.err
}

type stubPresence struct {
	domain.PresenceStore
	purged    int64
	err       error
	gotCutoff time.Time
}

func (s *stubPresence) PurgeIdle(_ context.Context, cutoff time.Time) (int64, error) {
	s.gotCutoff = cutoff
	return s.purged, s.err
}

func newSweeper(tokens *stubTokens, sessions *stubSessions, presence *stubPresence) *Sweeper {
	s := New(Config{
		Interval:     time.Hour,
		SessionIdle:  2 * time.Hour,
		PresenceIdle: 24 * time.Hour,
	}, tokens, sessions, presence, slog.New(slog.DiscardHandler))
	s.now = func() time.Time {
		return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestSweepOnceRunsAllSteps(t *testing.T) {
	tokens := &stubTokens{deleted: 3}
	sessions := &stubSessions{closed: 2}
	presence := &stubPresence{purged: 1}

	rep := newSweeper(tokens, sessions, presence).SweepOnce(context.Background())

	assert.Equal(t, int64(3), rep.TokensDeleted)
	assert.Equal(t, int64(2), rep.SessionsClosed)
	assert.Equal(t, int64(1), rep.PresencePurged)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now, tokens.gotNow)
	assert.Equal(t, now.Add(-2*time.Hour), sessions.gotCutoff)
	assert.Equal(t, now.Add(-24*time.Hour), presence.gotCutoff)
}

func TestSweepOnceContinuesPastFailures(t *testing.T) {
	tokens := &stubTokens{err: errors.New("pg down")}
	sessions := &stubSessions{err: errors.New("pg down")}
	presence := &stubPresence{purged: 4}

	rep := newSweeper(tokens, sessions, presence).SweepOnce(context.Background())

	// Earlier step failures never block later steps.
	assert.Zero(t, rep.TokensDeleted)
	assert.Zero(t, rep.SessionsClosed)
	assert.Equal(t, int64(4), rep.PresencePurged)
	assert.NotZero(t, presence.gotCutoff, "presence purge still ran")
}

func TestRunStopsOnCancellation(t *testing.T) {
	s := New(Config{
		Interval:     time.Millisecond,
		SessionIdle:  2 * time.Hour,
		PresenceIdle: 24 * time.Hour,
	}, &stubTokens{}, &stubSessions{}, &stubPresence{}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancellation")
	}
}
