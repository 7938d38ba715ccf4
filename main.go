package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"chatengine/server/internal/chat"
	"chatengine/server/internal/config"
	"chatengine/server/internal/database"
	"chatengine/server/internal/handlers"
	"chatengine/server/internal/logger"
	"chatengine/server/internal/presence"
	"chatengine/server/internal/routes"
	"chatengine/server/internal/sanitize"
	"chatengine/server/internal/storage"
	"chatengine/server/internal/store"
	ws "chatengine/server/internal/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := logger.Setup(cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}
	st := store.NewPostgres(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hubOpts := []ws.HubOption{ws.WithMetrics(ws.NewMetrics(registry))}
	var sessions presence.SessionRegistry = presence.NewMemoryRegistry()

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		sessions = presence.NewRedisRegistry(rdb, presence.DefaultSessionTTL)
		hubOpts = append(hubOpts, ws.WithRelay(ws.NewRedisRelay(rdb, ws.DefaultRelayTopic)))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis session registry and relay enabled")
	}

	var engineOpts []chat.Option
	if cfg.S3.Enabled() {
		blobs, err := storage.NewS3Storage(cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up object storage")
		}
		engineOpts = append(engineOpts, chat.WithBlobStore(blobs))
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Attachment storage enabled")
	} else {
		log.Warn().Msg("S3 is not configured, attachments are disabled")
	}

	hub := ws.NewHub(cfg.Gateway, hubOpts...)
	engine := chat.NewEngine(st, sanitize.New(), hub, engineOpts...)
	tracker := presence.NewTracker(st, sessions, hub)
	hub.Configure(ws.WithSessionHooks(tracker), ws.WithThreadGuard(engine))

	if cfg.Presence.ResetOnStart {
		if err := tracker.Recover(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to reset presence")
		}
	}

	go hub.Run(ctx)
	log.Info().Msg("WebSocket hub started")

	app := routes.NewApp(cfg.App.Name, cfg.CORS.Origins)
	routes.SetupRoutes(app, routes.Deps{
		Handler:   handlers.New(engine, tracker, hub, cfg.JWT.Secret),
		JWTSecret: cfg.JWT.Secret,
		Gatherer:  registry,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("Server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
