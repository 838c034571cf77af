// Package identity exchanges opaque Steam session tickets for stable account
// identifiers via the Steam Web API.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// DevFallbackID is returned when no Steam API key is configured. It is a
// development convenience only and is deliberately recognizable in logs.
const DevFallbackID = "dev_steam_id_12345"

const authenticatePath = "/ISteamUserAuth/AuthenticateUserTicket/v1/"

// Config holds the verification endpoint parameters. An empty APIKey
// switches the gateway into the development fallback.
type Config struct {
	APIKey     string
	AppID      int
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryPause time.Duration
}

// Gateway resolves auth tickets against the Steam Web API with a fixed
// per-attempt timeout and bounded retry on transient failure.
type Gateway struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewGateway creates a Gateway from the given config.
func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With(slog.String("component", "identity")),
	}
}

// steamResponse mirrors the AuthenticateUserTicket envelope.
type steamResponse struct {
	Response struct {
		Params *struct {
			SteamID string `json:"steamid"`
			Result  string `json:"result"`
		} `json:"params"`
		Error *struct {
			ErrorCode int    `json:"errorcode"`
			ErrorDesc string `json:"errordesc"`
		} `json:"error"`
	} `json:"response"`
}

// Resolve exchanges the opaque ticket for a stable Steam account ID.
// Transport failures and transient 401s are retried up to MaxRetries with a
// fixed pause; a semantic rejection from the API fails immediately. All
// failures surface as domain.ErrUnauthorized.
func (g *Gateway) Resolve(ctx context.Context, ticket string) (string, error) {
	if g.cfg.APIKey == "" {
		g.logger.WarnContext(ctx, "steam api key not configured, using development fallback identity",
			slog.String("identity", DevFallbackID),
		)
		return DevFallbackID, nil
	}

	reqURL := g.cfg.BaseURL + authenticatePath + "?" + url.Values{
		"key":    {g.cfg.APIKey},
		"appid":  {strconv.Itoa(g.cfg.AppID)},
		"ticket": {ticket},
	}.Encode()

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		id, retryable, err := g.attempt(ctx, reqURL)
		if err == nil {
			return id, nil
		}
		if !retryable {
			g.logger.WarnContext(ctx, "steam ticket rejected", slog.String("error", err.Error()))
			return "", fmt.Errorf("identity: ticket rejected: %w", domain.ErrUnauthorized)
		}

		lastErr = err
		g.logger.WarnContext(ctx, "steam verification attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", g.cfg.MaxRetries),
			slog.String("error", err.Error()),
		)

		if attempt < g.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("identity: %w: %w", ctx.Err(), domain.ErrUnauthorized)
			case <-time.After(g.cfg.RetryPause):
			}
		}
	}

	g.logger.ErrorContext(ctx, "steam verification failed after all retries",
		slog.String("error", lastErr.Error()),
	)
	return "", fmt.Errorf("identity: verification failed: %w", domain.ErrUnauthorized)
}

// attempt performs one verification round trip. The second return value
// reports whether the failure is transient and worth retrying.
func (g *Gateway) attempt(ctx context.Context, reqURL string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	// Steam intermittently answers 401 for valid tickets under load;
	// treat it as transient.
	if resp.StatusCode == http.StatusUnauthorized {
		return "", true, fmt.Errorf("steam api returned 401")
	}
	if resp.StatusCode != http.StatusOK {
		return "", true, fmt.Errorf("steam api returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("read body: %w", err)
	}

	var parsed steamResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", true, fmt.Errorf("decode body: %w", err)
	}

	if parsed.Response.Error != nil {
		return "", false, fmt.Errorf("steam rejected ticket: %s (code %d)",
			parsed.Response.Error.ErrorDesc, parsed.Response.Error.ErrorCode)
	}
	if parsed.Response.Params == nil || parsed.Response.Params.SteamID == "" {
		return "", false, fmt.Errorf("steam response missing steamid")
	}

	return parsed.Response.Params.SteamID, false, nil
}
