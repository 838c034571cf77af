package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig(baseURL string) Config {
	return Config{
		APIKey:     "key",
		AppID:      294100,
		BaseURL:    baseURL,
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryPause: time.Millisecond,
	}
}

func TestResolveSuccess(t *testing.T) {
	var gotTicket string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTicket = r.URL.Query().Get("ticket")
		fmt.Fprint(w, `{"response":{"params":{"steamid":"76561198000000001","result":"OK"}}}`)
	}))
	defer srv.Close()

	g := NewGateway(testConfig(srv.URL), testLogger())
	id, err := g.Resolve(context.Background(), "ticket-hex")
	require.NoError(t, err)
	assert.Equal(t, "76561198000000001", id)
	assert.Equal(t, "ticket-hex", gotTicket)
}

func TestResolveRetriesTransient401(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"response":{"params":{"steamid":"76561198000000002","result":"OK"}}}`)
	}))
	defer srv.Close()

	g := NewGateway(testConfig(srv.URL), testLogger())
	id, err := g.Resolve(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "76561198000000002", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResolveExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGateway(testConfig(srv.URL), testLogger())
	_, err := g.Resolve(context.Background(), "t")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResolveSemanticRejectionFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"response":{"error":{"errorcode":101,"errordesc":"Invalid ticket"}}}`)
	}))
	defer srv.Close()

	g := NewGateway(testConfig(srv.URL), testLogger())
	_, err := g.Resolve(context.Background(), "t")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load(), "semantic rejection must not retry")
}

func TestResolveDevFallbackWithoutKey(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.APIKey = ""

	g := NewGateway(cfg, testLogger())
	id, err := g.Resolve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, DevFallbackID, id)
}
