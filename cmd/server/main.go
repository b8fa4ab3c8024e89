package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"alcyxob/setpad/internal/api"
	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/autosave"
	"alcyxob/setpad/internal/coach"
	"alcyxob/setpad/internal/config"
	"alcyxob/setpad/internal/editor"
	"alcyxob/setpad/internal/localstore"
	"alcyxob/setpad/internal/logging"
	"alcyxob/setpad/internal/metrics"
	"alcyxob/setpad/internal/repository"
	"alcyxob/setpad/internal/repository/memory"
	"alcyxob/setpad/internal/repository/mongo"
	"alcyxob/setpad/internal/service"
	"alcyxob/setpad/internal/storage"
	"alcyxob/setpad/internal/syncstatus"
)

// @title SetPad API
// @version 1.0
// @description Training logs with debounced auto-save, AI insights and exports.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogFileName:   cfg.Log.File,
		LogToStdout:   cfg.Log.ToStdout,
		LogLevel:      cfg.Log.Level,
		LogFormatJSON: cfg.Log.JSON,
	})
	log.Info("starting SetPad server")

	if cfg.JWT.Secret == "" {
		log.Fatal("jwt.secret (JWT_SECRET) must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error

	// --- Remote Store ---
	users := auth.ContextProvider{}
	var (
		logRepo  repository.LogRepository
		userRepo repository.UserRepository
		pinger   syncstatus.Pinger
	)
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("using the in-memory store; logs are lost on restart")
		logRepo = memory.NewLogRepository(users, time.Now)
		userRepo = memory.NewUserRepository()
		pinger = syncstatus.PingFunc(func(context.Context) error { return nil })
	case "mongo":
		dbClient, err := mongo.ConnectDB(cfg.Database.URI)
		if err != nil {
			log.Fatalf("could not connect to MongoDB: %v", err)
		}
		closers = append(closers, func() error { return mongo.DisconnectDB(dbClient) })
		appDB := dbClient.Database(cfg.Database.Name)
		log.WithField("database", cfg.Database.Name).Info("database connection established")

		// --- Ensure Indexes ---
		go func() {
			idxCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			err := multierr.Combine(
				mongo.EnsureUserIndexes(idxCtx, mongo.UserCollection(appDB)),
				mongo.EnsureLogIndexes(idxCtx, mongo.LogCollection(appDB)),
			)
			if err != nil {
				log.WithError(err).Error("index creation failed")
				return
			}
			log.Info("index creation completed")
		}()

		logRepo = mongo.NewMongoLogRepository(appDB, users)
		userRepo = mongo.NewMongoUserRepository(appDB)
		pinger = mongo.Pinger{Client: dbClient}
	default:
		log.Fatalf("unknown database.driver %q", cfg.Database.Driver)
	}

	// --- Local Persistence ---
	var kv localstore.KeyValue
	switch cfg.Local.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, rdb.Close)
		kv = localstore.NewRedisKV(rdb, cfg.Local.MaxBytes)
	case "file":
		kv = localstore.NewFileKV(cfg.Local.Dir, cfg.Local.MaxBytes)
	default:
		log.Fatalf("unknown local.driver %q", cfg.Local.Driver)
	}
	activeLog := localstore.NewActiveLog(kv, cfg.Local.Key).PerUser(users)

	// --- Services ---
	metricsManager := metrics.NewManager("setpad", "server", prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	manager := service.NewLogManager(logRepo, activeLog, time.Now)
	registry := editor.NewRegistry(manager, users, metricsManager.AutoSaveHooks(autosave.Options{
		Delay: cfg.AutoSave.Delay,
	}))
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)

	tracker := syncstatus.NewTracker(pinger, cfg.Sync.ProbeInterval, registry)
	metricsManager.WatchSyncStatus(tracker)
	trackerDone := make(chan struct{})
	go func() {
		defer close(trackerDone)
		tracker.Run(ctx)
	}()
	go registry.Run(ctx, 0, cfg.AutoSave.IdleTimeout)

	deps := api.Dependencies{
		Auth:    authService,
		Logs:    manager,
		Editors: registry,
		Sync:    tracker,
		Metrics: metricsManager,
	}

	if cfg.S3.Enabled() {
		fileStorage, err := storage.NewS3Storage(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("failed to initialize S3 storage: %v", err)
		}
		deps.Export = service.NewExportService(logRepo, users, fileStorage, cfg.S3.URLExpiry)
	} else {
		log.Info("s3.bucket_name not set, exports disabled")
	}

	if cfg.Coach.BaseURL != "" {
		deps.Coach = coach.NewClient(cfg.Coach.BaseURL, &http.Client{Timeout: cfg.Coach.Timeout}, coach.Options{
			CacheTTL: cfg.Coach.CacheTTL,
		})
	} else {
		log.Info("coach.base_url not set, insights and import disabled")
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("address", cfg.Server.Address).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	// Unsaved edits are written before the store goes away.
	shutdownErr = multierr.Append(shutdownErr, registry.FlushAll(shutdownCtx))
	<-trackerDone
	for i := len(closers) - 1; i >= 0; i-- {
		shutdownErr = multierr.Append(shutdownErr, closers[i]())
	}

	if shutdownErr != nil {
		log.WithError(shutdownErr).Error("unclean shutdown")
		os.Exit(1)
	}
	log.Info("server exited")
}
