package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/talent-forge/collab-server/internal/analytics"
	"github.com/talent-forge/collab-server/internal/api"
	"github.com/talent-forge/collab-server/internal/config"
	"github.com/talent-forge/collab-server/internal/gateway"
	"github.com/talent-forge/collab-server/internal/integration"
	"github.com/talent-forge/collab-server/internal/notify"
	"github.com/talent-forge/collab-server/internal/ratelimit"
	"github.com/talent-forge/collab-server/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/collab-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Snapshot store: Redis when configured so multiple gateway
	// processes share one metrics cache, in-memory otherwise
	var snapshots analytics.SnapshotStore = analytics.NewMemorySnapshotStore()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, using in-memory snapshot store")
		} else {
			defer rdb.Close()
			snapshots = analytics.NewRedisSnapshotStore(rdb, 10*cfg.Analytics.CacheTTL)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
	}

	// Optional NATS connection for cross-process broadcasts
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Server.Name),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().
					Err(err).
					Str("subject", sub.Subject).
					Msg("NATS error")
			}),
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, broadcasts stay in-process")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")
		}
	}

	// Assemble the collaboration core
	metrics := analytics.NewService(store, snapshots, &cfg.Analytics)
	limiter := ratelimit.New(cfg.RateLimit.Ceiling, cfg.RateLimit.Window)
	forwarder := integration.NewWebhookForwarder(&cfg.Integration)
	notifier := notify.NewDispatcher(store, forwarder)
	coordinator := gateway.NewCoordinator(&cfg.Gateway, metrics, notifier, nc)

	if err := coordinator.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start gateway coordinator")
	}

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, store, coordinator, metrics, limiter, notifier)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		log.Info().Str("addr", addr).Msg("Starting REST API server")
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Error().Err(err).Msg("REST API server stopped")
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	coordinator.Stop()

	wg.Wait()

	log.Info().Msg("Collab server stopped")
}
