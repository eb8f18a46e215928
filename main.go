package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mt5-signal-bot/config"
	"mt5-signal-bot/internal/api"
	"mt5-signal-bot/internal/auth"
	"mt5-signal-bot/internal/database"
	"mt5-signal-bot/internal/dedup"
	"mt5-signal-bot/internal/dispatch"
	"mt5-signal-bot/internal/engine"
	"mt5-signal-bot/internal/events"
	"mt5-signal-bot/internal/gateway"
	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/logging"
	"mt5-signal-bot/internal/outbox"
	"mt5-signal-bot/internal/review"
	"mt5-signal-bot/internal/rules"
	"mt5-signal-bot/internal/vault"
	"mt5-signal-bot/internal/venue"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Msg("Starting signal bot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Rule catalog. A broken document is fatal at startup; at runtime
	// reloads fail soft and keep the active catalog.
	catalog, err := rules.LoadFile(cfg.RulesConfig.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RulesConfig.Path).Msg("Failed to load rule catalog")
	}
	holder := rules.NewHolder(catalog)
	logger.Info().Str("version", catalog.Version).Int("rules", len(catalog.Rules)).Msg("Rule catalog loaded")

	// Vault is optional. When enabled it supplies the JWT secret and
	// venue credentials; otherwise config/env values are used as-is.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create vault client")
	}
	if vaultClient.IsEnabled() {
		if err := vaultClient.Health(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Vault health check failed")
		}
		if secret, err := vaultClient.JWTSecret(ctx); err == nil && secret != "" {
			cfg.AuthConfig.JWTSecret = secret
		}
		if creds, err := vaultClient.BridgeCredentials(ctx); err == nil && creds.Token != "" {
			cfg.VenueConfig.BridgeToken = creds.Token
		}
		if creds, err := vaultClient.GatewayCredentials(ctx); err == nil && creds.Token != "" {
			cfg.GatewayConfig.Token = creds.Token
		}
	}

	// Persistence. Without a database everything runs on in-memory
	// repositories, which is fine for the mock venue and for tests.
	var (
		db         *database.DB
		groupRepo  ledger.Repository
		reviewRepo review.Repository
		sink       outbox.Sink
	)
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}

		groupRepo = ledger.NewPostgresRepository(db.Pool)
		reviewRepo = review.NewPostgresRepository(db.Pool)
		sink = outbox.NewPostgresOutbox(db.Pool)
	} else {
		logger.Warn().Msg("Database disabled, using in-memory repositories")
		groupRepo = ledger.NewMemoryRepository()
		reviewRepo = review.NewMemoryRepository()
		sink = outbox.NewMemoryOutbox()
	}

	// Event dedup. Redis survives restarts; the memory deduper does not.
	var deduper dedup.Deduper
	if cfg.RedisConfig.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, falling back to in-memory dedup")
			deduper = dedup.NewMemoryDeduper(cfg.RedisConfig.DedupTTL)
		} else {
			defer redisClient.Close()
			deduper = dedup.NewRedisDeduper(redisClient, cfg.RedisConfig.DedupTTL, logger)
		}
	} else {
		deduper = dedup.NewMemoryDeduper(cfg.RedisConfig.DedupTTL)
	}

	eventBus := events.NewEventBus()
	provider := venue.NewProvider(cfg.VenueConfig, logger)

	pool := dispatch.NewPool(
		cfg.RiskFreeConfig.WorkerCount,
		cfg.RiskFreeConfig.WorkerBacklog,
		cfg.RiskFreeConfig.VenueTimeout,
		logging.Component(logger, "pool"),
	)
	pool.Start()

	pips := engine.NewPipTable(cfg.RiskFreeConfig.PipOverrides)
	calc := engine.NewCalculator(groupRepo, pips, cfg.RiskFreeConfig.PipOffset, logging.Component(logger, "riskfree"))
	executor := dispatch.NewExecutor(provider, groupRepo, logging.Component(logger, "executor"))

	dispatcher := dispatch.NewDispatcher(dispatch.Deps{
		Catalog:   holder,
		Deduper:   deduper,
		Executor:  executor,
		Calc:      calc,
		Provider:  provider,
		Repo:      groupRepo,
		Sink:      sink,
		Reviews:   reviewRepo,
		Pool:      pool,
		Bus:       eventBus,
		Engine:    cfg.EngineConfig,
		Whitelist: cfg.GatewayConfig.ChatWhitelist,
		Logger:    logging.Component(logger, "dispatch"),
	})

	// Operator API
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		deps := api.Deps{
			Catalog:  holder,
			RulePath: cfg.RulesConfig.Path,
			Reviews:  reviewRepo,
			Groups:   groupRepo,
			EventBus: eventBus,
		}
		if cfg.AuthConfig.Enabled {
			jwtManager := auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.TokenDuration)
			deps.JWTManager = jwtManager
			deps.Authn = auth.NewAuthenticator(cfg.AuthConfig.OperatorPassHash, jwtManager)
		}
		server = api.NewServer(cfg.ServerConfig, deps, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("API server failed")
			}
		}()
	}

	eventBus.Publish(events.Event{
		Type:      events.EventServiceStarted,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"rule_version": holder.Version()},
	})

	// Message stream. The dispatcher consumes events single-threaded;
	// venue work fans out through the bounded pool.
	if cfg.GatewayConfig.Enabled {
		stream := gateway.NewWSClient(cfg.GatewayConfig.URL, cfg.GatewayConfig.Token, cfg.GatewayConfig.ReconnectWait, logging.Component(logger, "gateway"))
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("Gateway stream stopped")
				stop()
			}
		}()
		dispatcher.Run(ctx, stream)
	} else {
		logger.Warn().Msg("Gateway disabled, nothing to consume")
		<-ctx.Done()
	}

	logger.Info().Msg("Shutting down")

	eventBus.Publish(events.Event{
		Type:      events.EventServiceStopped,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{},
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error shutting down API server")
		}
	}

	pool.Stop()
	provider.Reset()

	logger.Info().Msg("Shutdown complete")
}
