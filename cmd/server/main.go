package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcoot/soundboard-relay/internal/api"
	"github.com/mcoot/soundboard-relay/internal/factory"
	"github.com/mcoot/soundboard-relay/internal/services/auth"
	"github.com/mcoot/soundboard-relay/internal/services/sound"
	redisstorage "github.com/mcoot/soundboard-relay/internal/storage/redis"
	"github.com/mcoot/soundboard-relay/internal/transport/ws"
)

func main() {
	// A .env file is optional; real environment variables take precedence
	envErr := godotenv.Load()

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warn("could not load .env file", slog.String("error", envErr.Error()))
	}

	// Build factory config from environment
	cfg := factory.Config{
		Logger:      logger,
		StorageType: os.Getenv("STORAGE_TYPE"),
		AuthConfig:  auth.Config{Algorithm: auth.Algorithm(os.Getenv("HASH_ALGORITHM"))},
		SoundConfig: sound.DefaultConfig(),
		WSConfig:    ws.DefaultConfig(),
	}
	cfg.WSConfig.AllowedOrigins = ws.ParseOrigins(os.Getenv("ALLOWED_ORIGINS"))

	if raw := os.Getenv("FETCH_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			logger.Error("invalid FETCH_TIMEOUT", slog.String("value", raw))
			os.Exit(1)
		}
		cfg.SoundConfig.FetchTimeout = timeout
	}

	// Configure Redis if storage type is redis
	if cfg.StorageType == factory.StorageTypeRedis {
		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			logger.Error("REDIS_URL required when STORAGE_TYPE=redis")
			os.Exit(1)
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = redisURL
		cfg.RedisConfig = &redisCfg
	}

	// Create application factory
	app, err := factory.New(cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close application", slog.String("error", err.Error()))
		}
	}()

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Logger: logger,
		Stats:  app.Dispatcher,
		Socket: app.WSHandler,
	})

	// Create server
	serverConfig := api.DefaultServerConfig()
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			logger.Error("invalid PORT", slog.String("value", port))
			os.Exit(1)
		}
		serverConfig.Port = p
	}
	server := api.NewServer(router, serverConfig, logger)
	server.RegisterOnShutdown(app.WSHandler.CloseAll)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("hash_algorithm", string(app.Hasher.Algorithm())),
		slog.Duration("fetch_timeout", cfg.SoundConfig.FetchTimeout))

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}

// parseLevel maps LOG_LEVEL to a slog level, defaulting to info
func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
