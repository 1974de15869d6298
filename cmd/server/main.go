package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/oesperto/comparador/internal/config"
	"github.com/oesperto/comparador/internal/database"
	"github.com/oesperto/comparador/internal/httpapi"
	"github.com/oesperto/comparador/internal/notifications"
	"github.com/oesperto/comparador/internal/offline"
	"github.com/oesperto/comparador/internal/realtime"
	"github.com/oesperto/comparador/internal/repositories"
	"github.com/oesperto/comparador/internal/scheduler"
	"github.com/oesperto/comparador/internal/services"
	"github.com/oesperto/comparador/internal/session"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := setupLogger("info")

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = setupLogger(cfg.LogLevel)

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Error("failed to create redis client", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	localDB, err := database.OpenLocalDB(cfg.LocalDBPath)
	if err != nil {
		logger.Error("failed to open local store", "path", cfg.LocalDBPath, "error", err)
		os.Exit(1)
	}
	defer localDB.Close()

	// Repositories
	accountRepo := repositories.NewPostgresAccountRepository(postgresPool)
	comparisonRepo := repositories.NewPostgresComparisonRepository(postgresPool)
	contributionRepo := repositories.NewPostgresContributionRepository(postgresPool)
	suggestionRepo := repositories.NewPostgresSuggestionRepository(postgresPool)
	notificationRepo := repositories.NewPostgresNotificationRepository(postgresPool)
	sessionRepo := repositories.NewRedisSessionRepository(redisClient, logger)
	permissionRepo := repositories.NewRedisPermissionRepository(redisClient)

	queue := offline.NewQueue(offline.NewSQLiteKV(localDB), cfg.Queue.MaxRecords).WithLogger(logger)
	realtimeClient := realtime.NewRedisClient(redisClient, logger)
	publisher := realtime.NewRedisPublisher(redisClient)

	// Services
	probe := services.NewConnectivityProbe(postgresPool, 5*time.Second, logger)
	hub := httpapi.NewHub(cfg.AllowedOrigins, logger)

	authService := services.NewAuthService(accountRepo, sessionRepo, cfg.JWTSecret, cfg.JWTExpiry)
	comparisonService := services.NewComparisonService(comparisonRepo, queue, probe, hub, logger)
	offersService := services.NewDailyOffersService(contributionRepo, queue, probe, hub, publisher, logger)
	suggestionService := services.NewSuggestionService(suggestionRepo, publisher, logger)
	syncService := services.NewSyncService(queue, comparisonRepo, contributionRepo, publisher, logger)

	probe.OnReconnect(func(ctx context.Context) {
		if _, err := syncService.SyncOfflineData(ctx); err != nil {
			logger.Error("sync after reconnect failed", "error", err)
		}
	})

	notificationConfig := notifications.Config{
		Policy: realtime.Policy{
			MaxRetries:    cfg.Realtime.MaxRetries,
			BaseDelay:     cfg.Realtime.BaseDelay,
			MaxDelay:      cfg.Realtime.MaxDelay,
			FallbackDelay: cfg.Realtime.FallbackDelay,
		},
		PollInterval: cfg.Realtime.PollInterval,
		Capacity:     cfg.Realtime.NotificationsCap,
	}
	poller := notifications.NewRemotePoller(contributionRepo, suggestionRepo)
	sessions := session.NewRegistry(func() *notifications.Manager {
		return notifications.NewManager(realtimeClient, poller, notificationRepo, permissionRepo, hub, notificationConfig, logger)
	}, cfg.Offers.CacheTTL, logger)
	defer sessions.CloseAll()

	// Background jobs
	probeJob := scheduler.NewScheduler("connectivity", probe, cfg.Sync.ProbeInterval, cfg.Sync.Timeout, logger)
	syncJob := scheduler.NewScheduler("offline-sync", syncService, cfg.Sync.Interval, cfg.Sync.Timeout, logger).
		WhenReady(probe.Online)
	go probeJob.Start(ctx)
	go syncJob.Start(ctx)

	// Initialize HTTP Server
	api := httpapi.NewServer(httpapi.Deps{
		Auth:         authService,
		Comparisons:  comparisonService,
		Offers:       offersService,
		Suggestions:  suggestionService,
		Sync:         syncService,
		Connectivity: probe,
		Sessions:     sessions,
		Hub:          hub,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: api.Router(),
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting agent", "port", cfg.ServerPort, "local_db", cfg.LocalDBPath)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
