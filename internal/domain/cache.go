package domain

import (
	"context"
	"time"
)

// RateLimiter enforces a sliding-window request limit per key.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the
	// limit, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventBus carries marketplace events (new listings, completed sales) from
// the settlement engine to live consumers such as the WebSocket hub.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads. The subscription, and
	// the returned channel, close when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Event bus channels.
const (
	ChannelListing = "ch:listing"
	ChannelSale    = "ch:sale"
)
