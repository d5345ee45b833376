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

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/pong-arena/brackets"
	"github.com/Dosada05/pong-arena/config"
	"github.com/Dosada05/pong-arena/db"
	"github.com/Dosada05/pong-arena/handlers"
	"github.com/Dosada05/pong-arena/hub"
	"github.com/Dosada05/pong-arena/middleware"
	"github.com/Dosada05/pong-arena/repositories"
	api "github.com/Dosada05/pong-arena/routes"
	"github.com/Dosada05/pong-arena/services"
	"github.com/Dosada05/pong-arena/statestore"
	"github.com/Dosada05/pong-arena/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// Match results are only persisted when a database is configured.
	var results repositories.MatchResultRepository
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		}()
		if err := db.EnsureSchema(ctx, dbConn); err != nil {
			logger.Error("failed to prepare database schema", slog.Any("error", err))
			os.Exit(1)
		}
		results = repositories.NewPostgresMatchResultRepository(dbConn)
		logger.Info("database connection established")
	} else {
		logger.Warn("DATABASE_URL is not set, match results will only be logged")
	}

	var store statestore.Store
	if cfg.RedisURL != "" {
		redisStore, err := statestore.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		store = redisStore
		logger.Info("redis state store connected")
	} else {
		store = statestore.NewMemoryStore(clock)
		logger.Info("using in-process state store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close state store", slog.Any("error", err))
		}
	}()

	var archive services.TournamentArchive
	if cfg.R2.Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archive = storage.NewTournamentArchive(uploader)
		logger.Info("Cloudflare R2 tournament archive initialized")
	}

	wsHub := hub.New(logger)
	registry := services.NewRegistry(store, logger)
	bus := services.NewEventBus(store, registry.InstanceID(), logger)
	recorder := services.NewResultRecorder(results, archive, logger)

	matchService := services.NewMatchService(services.MatchServiceParams{
		Registry:  registry,
		Messenger: wsHub,
		Clock:     clock,
		Config:    cfg.Match,
		Game:      cfg.Game,
		Logger:    logger,
	})
	matchService.OnFinish(recorder.RecordMatch)
	matchService.OnFinish(bus.MatchFinished)

	queue := services.NewMatchmakingQueue(registry, matchService, wsHub, logger)

	tournamentService := services.NewTournamentService(services.TournamentServiceParams{
		Registry:  registry,
		Launcher:  matchService,
		Messenger: wsHub,
		Clock:     clock,
		Config:    cfg.Tournament,
		Generator: brackets.NewRoundRobinGenerator(),
		Logger:    logger,
	})
	tournamentService.OnFinish(recorder.ArchiveTournament)
	tournamentService.OnFinish(bus.TournamentFinished)
	logger.Info("Services initialized")

	go func() {
		err := bus.Listen(ctx, func(ev services.Event) {
			logger.Info("remote event received",
				slog.String("type", ev.Type),
				slog.String("instance", ev.Instance),
				slog.String("match_id", ev.MatchID),
				slog.String("tournament_id", ev.TournamentID))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event listener stopped", slog.Any("error", err))
		}
	}()

	authenticator := middleware.NewAuthenticator(cfg.JWTSecretKey, logger)
	healthHandler := handlers.NewHealthHandler(registry, queue)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, matchService, queue, tournamentService, cfg.CORSAllowedOrigins, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, authenticator, cfg.CORSAllowedOrigins, healthHandler, tournamentHandler, webSocketHandler)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
	}
	if err := tournamentService.Shutdown(shutdownCtx); err != nil {
		logger.Error("tournaments did not stop in time", slog.Any("error", err))
	}
	if err := matchService.Shutdown(shutdownCtx); err != nil {
		logger.Error("matches did not stop in time", slog.Any("error", err))
	}
	logger.Info("application exited")
}
