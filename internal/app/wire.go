package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/stakeboard/internal/blob/s3"
	"github.com/alanyoungcy/stakeboard/internal/bounty"
	"github.com/alanyoungcy/stakeboard/internal/cache/redis"
	"github.com/alanyoungcy/stakeboard/internal/config"
	"github.com/alanyoungcy/stakeboard/internal/crypto"
	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/engine"
	"github.com/alanyoungcy/stakeboard/internal/ledger"
	"github.com/alanyoungcy/stakeboard/internal/notify"
	"github.com/alanyoungcy/stakeboard/internal/oracle"
	"github.com/alanyoungcy/stakeboard/internal/service"
	"github.com/alanyoungcy/stakeboard/internal/store/postgres"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

// collateralIdentity is folded into derived position IDs so units minted here
// never collide with another deployment's.
const collateralIdentity = "stakeboard:collateral"

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore    domain.MarketStore
	BountyStore    domain.BountyStore
	ConditionStore domain.ConditionStore
	AuditStore     domain.AuditStore

	// Caches
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter   domain.BlobWriter
	BlobReader   domain.BlobReader
	ProofArchive domain.ProofArchive
	Archiver     *s3blob.AuditArchiver

	// Engines
	Vault        *vault.Vault
	EscrowEngine *engine.Engine
	BountyEngine *bounty.Engine
	Ledger       *ledger.Ledger
	OracleHook   *oracle.Hook

	// Services
	Markets   *service.MarketService
	Bounties  *service.BountyService
	Positions *service.LedgerService
	Sweeper   *service.Sweeper

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
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
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.BountyStore = postgres.NewBountyStore(pool)
	deps.ConditionStore = postgres.NewConditionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage ---
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

	deps.BlobWriter = s3blob.NewWriter(s3Client)
	deps.BlobReader = s3blob.NewReader(s3Client)
	deps.ProofArchive = s3blob.NewProofArchive(deps.BlobWriter, deps.BlobReader)
	deps.Archiver = s3blob.NewAuditArchiver(deps.BlobWriter, deps.AuditStore)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Collateral vault and engines ---
	clock := domain.RealClock{}
	deps.Vault = vault.New(vault.NewMemoryLedger())
	deps.EscrowEngine = engine.New(deps.Vault, clock)
	deps.BountyEngine = bounty.New(deps.Vault, clock)
	deps.Ledger = ledger.New(deps.Vault, clock, collateralIdentity)
	deps.OracleHook = oracle.New(deps.Ledger, cfg.Oracle.ReporterAddress, logger)

	// The reporter key is only needed for signing outbound attestations.
	// Resolution failures degrade to report-only operation.
	if cfg.Oracle.ReporterKey != "" || cfg.Oracle.EncryptedKeyPath != "" {
		if _, err := crypto.LoadReporterKey(crypto.ReporterKeyConfig{
			RawKey:           cfg.Oracle.ReporterKey,
			EncryptedKeyPath: cfg.Oracle.EncryptedKeyPath,
			KeyPassword:      cfg.Oracle.KeyPassword,
		}); err != nil {
			logger.Warn("wire: reporter key unavailable",
				slog.String("error", err.Error()),
			)
		}
	}

	// --- Services ---
	pub := service.NewPublisher(deps.SignalBus, deps.AuditStore, logger)
	deps.Markets = service.NewMarketService(
		deps.EscrowEngine, deps.MarketStore, deps.MarketCache,
		deps.LockManager, deps.ProofArchive, pub, deps.Notifier, logger,
	)
	deps.Bounties = service.NewBountyService(
		deps.BountyEngine, deps.BountyStore, deps.LockManager, pub, deps.Notifier, logger,
	)
	deps.Positions = service.NewLedgerService(
		deps.Ledger, deps.OracleHook, deps.ConditionStore, deps.LockManager, pub, logger,
	)
	deps.Sweeper = service.NewSweeper(deps.Markets, clock, cfg.Escrow.SweepInterval.Duration, logger)

	return deps, cleanup, nil
}
