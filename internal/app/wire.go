package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/halcyonlabs/oraclebridge/internal/blob/s3"
	"github.com/halcyonlabs/oraclebridge/internal/builder"
	"github.com/halcyonlabs/oraclebridge/internal/cache/redis"
	"github.com/halcyonlabs/oraclebridge/internal/config"
	"github.com/halcyonlabs/oraclebridge/internal/domain"
	"github.com/halcyonlabs/oraclebridge/internal/notify"
	"github.com/halcyonlabs/oraclebridge/internal/platform/applysvc"
	"github.com/halcyonlabs/oraclebridge/internal/platform/blockfrost"
	"github.com/halcyonlabs/oraclebridge/internal/platform/coingecko"
	"github.com/halcyonlabs/oraclebridge/internal/platform/runtime"
	"github.com/halcyonlabs/oraclebridge/internal/resolver"
	"github.com/halcyonlabs/oraclebridge/internal/scanner"
	"github.com/halcyonlabs/oraclebridge/internal/store/postgres"
	"github.com/halcyonlabs/oraclebridge/internal/wallet"
)

// Dependencies bundles everything a cycle needs. Store, Locks and Archiver
// are nil when the corresponding subsystem is disabled in the configuration.
type Dependencies struct {
	Scanner  *scanner.Scanner
	Resolver *resolver.Resolver
	Builder  *builder.Builder
	Wallet   *wallet.Wallet

	Store    domain.SubmissionStore
	Locks    domain.LockManager
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier
}

// Wire constructs the concrete dependency graph from the configuration and
// returns it with a cleanup function to run on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	rt := runtime.NewClient(cfg.Runtime.BaseURL, cfg.Runtime.PageSize)
	apply := applysvc.NewClient(cfg.Apply.BaseURL)
	provider := blockfrost.NewClient(cfg.ProviderURL(), cfg.Provider.APIKey)
	prices := coingecko.NewClient(coingecko.DefaultBaseURL)

	w, err := wallet.New(cfg.Wallet.Address, cfg.Wallet.SigningKeyHex, cfg.Wallet.SigningKeyPath, provider)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}

	deps := &Dependencies{
		Wallet:   w,
		Scanner:  buildScanner(cfg, rt, provider, w.Address(), logger),
		Resolver: resolver.New(buildRegistry(cfg), prices, provider, logger),
		Builder:  builder.New(rt, provider, apply, w, logger),
	}

	if cfg.Store.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Store.DSN,
			Host:     cfg.Store.Host,
			Port:     cfg.Store.Port,
			Database: cfg.Store.Database,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
			SSLMode:  cfg.Store.SSLMode,
			MaxConns: cfg.Store.PoolMaxConns,
			MinConns: cfg.Store.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		deps.Store = postgres.NewSubmissionStore(pgClient.Pool())
	}

	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.ClientConfig{
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
		closers = append(closers, func() { _ = rdb.Close() })
		deps.Locks = redis.NewLockManager(rdb)
	}

	if cfg.S3.Enabled {
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
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), "reports")
	}

	deps.Notifier = buildNotifier(cfg, logger)

	return deps, cleanup, nil
}

func buildScanner(cfg *config.Config, rt *runtime.Client, provider *blockfrost.Client, ownAddress string, logger *slog.Logger) *scanner.Scanner {
	filter := runtime.ListFilter{Tags: cfg.Runtime.Tags}

	var allowlist []string
	if cfg.Resolve.Address.Enabled {
		allowlist = cfg.Resolve.Address.ChoiceNames
		filter.PartyAddresses = []string{ownAddress}
	}

	roles := make([]scanner.RoleMethod, 0, len(cfg.Resolve.Roles))
	for _, r := range cfg.Resolve.Roles {
		roles = append(roles, scanner.RoleMethod{
			ChoiceName:    r.ChoiceName,
			RoleToken:     r.RoleToken,
			BridgeAddress: r.BridgeAddress,
		})
	}

	return scanner.New(rt, provider, filter, ownAddress, allowlist, roles, logger)
}

// buildRegistry maps every configured choice name to its price source.
// Validation already guarantees each name is claimed exactly once.
func buildRegistry(cfg *config.Config) resolver.Registry {
	registry := make(resolver.Registry)
	for _, s := range cfg.Sources {
		registry[s.ChoiceName] = resolver.RestSource{
			BaseID:  s.BaseID,
			QuoteID: s.QuoteID,
			Invert:  s.Invert,
		}
	}
	for _, r := range cfg.Resolve.Roles {
		switch r.Kind {
		case "charli3":
			registry[r.ChoiceName] = resolver.Charli3Source{
				FeedUnit: r.FeedPolicyID + r.FeedAssetName,
			}
		case "orcfax":
			registry[r.ChoiceName] = resolver.OrcfaxSource{
				FeedAddress: r.FeedAddress,
				PolicyID:    r.FeedPolicyID,
				FeedName:    r.FeedName,
			}
		}
	}
	return registry
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}
