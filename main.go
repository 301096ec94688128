package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-prediction-api/config"
	"stock-prediction-api/internal/api"
	"stock-prediction-api/internal/assistant"
	"stock-prediction-api/internal/auth"
	"stock-prediction-api/internal/cache"
	"stock-prediction-api/internal/database"
	"stock-prediction-api/internal/logging"
	"stock-prediction-api/internal/marketdata"
	"stock-prediction-api/internal/predict"
	"stock-prediction-api/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logging is not up yet
		panic("failed to load configuration: " + err.Error())
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Msg("configuration loaded")

	deps := api.Deps{}

	// Database: user store + conversation store. Optional; auth and
	// conversation persistence are disabled without it.
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.New(cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(migrateCtx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		cancel()

		repo = database.NewRepository(db)
		deps.DB = db
		logger.Info().Msg("database connected")
	}

	// Redis forecast cache. Degrades to cold computation when unavailable.
	if cfg.RedisConfig.Enabled {
		cacheSvc, err := cache.New(cfg.RedisConfig, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cache unavailable, continuing without it")
		} else {
			defer cacheSvc.Close()
			deps.Cache = cacheSvc
		}
	}

	// Auth requires both a JWT secret and the user store
	if cfg.AuthConfig.Enabled && cfg.AuthConfig.JWTSecret != "" && repo != nil {
		jwtManager := auth.NewJWTManager(
			cfg.AuthConfig.JWTSecret,
			cfg.AuthConfig.AccessTokenDuration,
			cfg.AuthConfig.RefreshTokenDuration,
		)
		deps.JWT = jwtManager
		deps.Auth = auth.NewHandlers(repo, jwtManager, cfg.AuthConfig.MinPasswordLength, logger)
		logger.Info().Msg("auth enabled")
	} else {
		logger.Warn().Msg("auth disabled")
	}

	source := marketdata.NewClient(
		cfg.MarketDataConfig.BaseURL,
		time.Duration(cfg.MarketDataConfig.RequestTimeout)*time.Second,
	)
	deps.Source = source

	deps.Predict = predict.NewService(source, predict.NewRegistry(), cfg.PredictionConfig.MaxTestWindow, logger)
	deps.Strategy = strategy.NewService(source, strategy.NewRegistry(), logger)

	if cfg.AssistantConfig.Enabled {
		deps.Assistant = assistant.NewService(cfg.AssistantConfig, source, repo, logger)
	}

	server := api.NewServer(cfg, deps, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}

	logger.Info().Msg("stopped")
}
