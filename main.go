package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ict-engine/config"
	"ict-engine/internal/analysis"
	"ict-engine/internal/analytics"
	"ict-engine/internal/api"
	"ict-engine/internal/auth"
	"ict-engine/internal/blackbox"
	"ict-engine/internal/cache"
	"ict-engine/internal/circuit"
	"ict-engine/internal/confluence"
	"ict-engine/internal/database"
	"ict-engine/internal/events"
	"ict-engine/internal/learning"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"
	"ict-engine/internal/memory"
	"ict-engine/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(cfg.Logging("main"))
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized", "mode", cfg.AnalyticsConfig.Mode)

	ctx := context.Background()

	// Resolve secrets, Vault first with config values as fallback
	vaultClient, err := vault.NewClient(cfg.VaultConfig, logger)
	if err != nil {
		logger.Fatal("Failed to create vault client", "error", err)
	}
	secrets, err := vaultClient.ResolveSecrets(ctx, vault.Secrets{
		JWTSecret:            cfg.AuthConfig.JWTSecret,
		OperatorPasswordHash: cfg.AuthConfig.OperatorPasswordHash,
		DBPassword:           cfg.DatabaseConfig.Password,
	})
	if err != nil {
		logger.Warn("Vault secret resolution failed, using configured values", "error", err)
	}
	cfg.AuthConfig.JWTSecret = secrets.JWTSecret
	cfg.AuthConfig.OperatorPasswordHash = secrets.OperatorPasswordHash
	cfg.DatabaseConfig.Password = secrets.DBPassword

	healthChecks := map[string]api.HealthCheck{}
	if vaultClient.IsEnabled() {
		healthChecks["vault"] = vaultClient.Health
	}

	// Learning store: Postgres when enabled, in-process otherwise
	var store learning.Store = learning.NewMemoryStore(cfg.AnalyticsConfig.LearningCapacity)
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(ctx, cfg.Database(), logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}
		repo := database.NewRepository(db)
		store = learning.NewPostgresStore(repo)
		healthChecks["database"] = repo.HealthCheck
	} else {
		logger.Info("Database disabled, learning records are kept in memory")
	}
	learningSystem := learning.NewSystem(store, logger)

	// Event bus with optional Redis relay
	eventBus := events.NewEventBus()

	var memoryBackend memory.Backend
	var candleCache market.SharedCache
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewCacheService(cfg.Cache(), logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", "error", err)
		}
		defer cacheService.Close()

		memoryBackend = cacheService
		candleCache = cacheService
		events.NewRelay(cacheService, cfg.RedisConfig.EventChannel, logger).Attach(eventBus)
		healthChecks["redis"] = cacheService.Ping
	}
	memorySystem := memory.NewSystem(memoryBackend, cfg.AnalyticsConfig.MemoryCapacity, cfg.RedisConfig.MemoryTTL.Std(), logger)

	// Audit log
	var blackBox confluence.BlackBox
	if path := cfg.LoggingConfig.BlackBoxPath; path != "" {
		recorder, err := blackbox.OpenRecorder(path)
		if err != nil {
			logger.Fatal("Failed to open black box", "path", path, "error", err)
		}
		defer recorder.Close()
		blackBox = recorder
	}

	// Signal breaker
	breaker := circuit.NewSignalBreaker(cfg.Breaker())
	breaker.OnTrip(func(reason string) {
		logger.Warn("Signal breaker tripped", "reason", reason)
		eventBus.PublishError(events.ComponentIntegrator, "signal breaker tripped", map[string]interface{}{"reason": reason})
	})
	breaker.OnReset(func() {
		logger.Info("Signal breaker reset")
	})

	// Analytics integrator
	deps := analytics.StandardDependencies(analytics.Services{
		EngineConfig:      cfg.Engine(),
		SynthesizerConfig: cfg.Synthesizer(),
		Structure:         analysis.NewStructureAnalyzer(cfg.AnalyticsConfig.StructureSwingLookback, 0),
		Learning:          learningSystem,
		Bus:               eventBus,
		Memory:            memorySystem,
		BlackBox:          blackBox,
		Breaker:           breaker,
		Logger:            logger,
	})
	integrator := analytics.NewIntegrator(cfg.Analytics(), deps)
	if !integrator.InitializeAnalyticsSystem(ctx) {
		logger.Fatal("Failed to initialize analytics system", "mode", cfg.AnalyticsConfig.Mode)
	}

	// Operator auth
	var jwtManager *auth.JWTManager
	authCfg := cfg.Auth()
	if authCfg.Enabled {
		jwtManager = auth.NewJWTManager(authCfg.JWTSecret, authCfg.TokenTTL)
		logger.Info("Operator authentication enabled", "operator", authCfg.OperatorUser)
	} else {
		logger.Warn("Operator authentication disabled, API is open")
	}

	// HTTP API
	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		ProductionMode: os.Getenv("GIN_MODE") == "release",
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		RateLimit:      cfg.ServerConfig.RateLimit,
		RateBurst:      cfg.ServerConfig.RateBurst,
		ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
		DefaultLimit:   cfg.MarketDataConfig.DefaultLimit,
	}, api.Dependencies{
		Analytics:    integrator,
		Market:       market.NewProvider(market.NewClient(cfg.MarketClient()), candleCache),
		Learning:     learningSystem,
		Memory:       memorySystem,
		Bus:          eventBus,
		JWT:          jwtManager,
		AuthHandlers: auth.NewHandlers(authCfg, jwtManager, logger),
		HealthChecks: healthChecks,
		Logger:       logger,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start web server", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownTimeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down web server", "error", err)
	}
	if err := integrator.ShutdownAnalyticsSystem(); err != nil {
		logger.Error("Error shutting down analytics", "error", err)
	}

	logger.Info("Shutdown complete")
}
