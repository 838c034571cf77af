package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradepost/internal/auth"
	s3blob "github.com/alanyoungcy/tradepost/internal/blob/s3"
	"github.com/alanyoungcy/tradepost/internal/cache/redis"
	"github.com/alanyoungcy/tradepost/internal/config"
	"github.com/alanyoungcy/tradepost/internal/crypto"
	"github.com/alanyoungcy/tradepost/internal/domain"
	"github.com/alanyoungcy/tradepost/internal/identity"
	"github.com/alanyoungcy/tradepost/internal/market"
	"github.com/alanyoungcy/tradepost/internal/store/postgres"
	"github.com/alanyoungcy/tradepost/internal/sweeper"
)

// Dependencies bundles everything the server and background loops need. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Backends
	Postgres *postgres.Client
	Redis    *redis.Client

	// Stores
	Listings     domain.ListingStore
	Escrow       domain.EscrowStore
	Transactions domain.TransactionStore
	Settlement   domain.SettlementStore
	AuthCommits  domain.AuthStore
	Tokens       domain.TokenStore
	Presence     domain.PresenceStore
	Sessions     domain.SessionStore

	// Caches
	RateLimiter domain.RateLimiter
	EventBus    domain.EventBus

	// Services
	Auth    *auth.Service
	Market  *market.Service
	Sweeper *sweeper.Sweeper

	// Archiver is nil unless archival is enabled in config.
	Archiver domain.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Postgres = pgClient
	deps.Listings = postgres.NewListingStore(pool)
	deps.Escrow = postgres.NewEscrowStore(pool)
	deps.Transactions = postgres.NewTransactionStore(pool)
	deps.Settlement = postgres.NewSettlementStore(pool)
	deps.AuthCommits = postgres.NewAuthStore(pool)
	deps.Tokens = postgres.NewTokenStore(pool)
	deps.Presence = postgres.NewPresenceStore(pool)
	deps.Sessions = postgres.NewSessionStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// --- Token signing ---
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           cfg.Auth.Secret,
		EncryptedSecretPath: cfg.Auth.EncryptedSecretPath,
		Password:            cfg.Auth.SecretPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signing secret: %w", err)
	}
	signer, err := crypto.NewTokenSigner(secret)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: token signer: %w", err)
	}

	// --- Services ---
	gateway := identity.NewGateway(identity.Config{
		APIKey:     cfg.Steam.APIKey,
		AppID:      cfg.Steam.AppID,
		BaseURL:    cfg.Steam.BaseURL,
		Timeout:    cfg.Steam.Timeout.Duration,
		MaxRetries: cfg.Steam.MaxRetries,
		RetryPause: cfg.Steam.RetryPause.Duration,
	}, logger)

	deps.Auth = auth.NewService(auth.Config{
		TokenTTL:      cfg.Auth.TokenTTL.Duration,
		SingleSession: cfg.Auth.SingleSession,
	}, signer, gateway, deps.AuthCommits, deps.Tokens, deps.Presence, deps.Sessions, logger)

	deps.Market = market.NewService(
		deps.Listings, deps.Escrow, deps.Transactions, deps.Settlement,
		deps.EventBus, logger)

	deps.Sweeper = sweeper.New(sweeper.Config{
		Interval:     cfg.Sweeper.Interval.Duration,
		SessionIdle:  cfg.Sweeper.SessionIdle.Duration,
		PresenceIdle: cfg.Sweeper.PresenceIdle.Duration,
	}, deps.Tokens, deps.Sessions, deps.Presence, logger)

	// --- S3 archival (optional) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			postgres.NewTransactionStore(pool),
			cfg.Archive.Prefix,
		)
	}

	return deps, cleanup, nil
}
