package entrypoint

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

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/cardsync/internal/audit"
	"github.com/mrlokans/cardsync/internal/config"
	"github.com/mrlokans/cardsync/internal/crypto"
	"github.com/mrlokans/cardsync/internal/database"
	auditRepo "github.com/mrlokans/cardsync/internal/database/audit"
	http_controllers "github.com/mrlokans/cardsync/internal/http"
	"github.com/mrlokans/cardsync/internal/scheduler"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
	"github.com/mrlokans/cardsync/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// App holds the components shared by the server and the CLI commands.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *database.Database
	Codec  *crypto.CredentialCodec
	Audit  *audit.Service
	Sync   *services.SyncService
}

// NewApp opens the database and wires the sync service.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.Security.SecretKey == "" {
		return nil, errors.New("SECRET_KEY is not set; generate one with 'cardsync generate-secret'")
	}

	codec, err := crypto.NewCredentialCodec(cfg.Security.SecretKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential codec: %w", err)
	}

	db, err := database.NewDatabase(cfg.Database.Path, database.GormLogLevel(cfg.Database.LogLevel))
	if err != nil {
		return nil, err
	}

	auditService := audit.NewService(auditRepo.NewRepository(db.DB), logger)

	var snapshots syncengine.SnapshotWriter
	if cfg.Sync.SnapshotDir != "" {
		snapshots = audit.NewAuditor(cfg.Sync.SnapshotDir)
	}

	syncService := services.NewSyncService(db.DB, codec, auditService, services.SyncServiceConfig{
		RemoteTimeout:  cfg.Remote.Timeout,
		PageSize:       cfg.Remote.PageSize,
		FuzzyThreshold: cfg.Sync.FuzzyThreshold,
		Snapshots:      snapshots,
		Logger:         logger,
	})

	return &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Codec:  codec,
		Audit:  auditService,
		Sync:   syncService,
	}, nil
}

func (a *App) Close() {
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("error closing database", slog.Any("error", err))
	}
}

// Serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down
// gracefully.
func Serve(router *gin.Engine, cfg *config.Config, logger *slog.Logger, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("shutting down server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work before the listener so in-flight passes finish.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server exiting")
	return nil
}

// Run starts the API server with the scheduler and task queue.
func Run(cfg *config.Config, logger *slog.Logger, version string) error {
	logger.Info("starting cardsync", slog.String("version", version))

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if n, err := app.Sync.FailStaleRuns(context.Background(), cfg.Sync.StaleRunTimeout); err != nil {
		logger.Warn("stale run sweep failed", slog.Any("error", err))
	} else if n > 0 {
		logger.Info("failed stale runs left from a previous process", slog.Int64("count", n))
	}

	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error("error closing task client", slog.Any("error", err))
			}
		}()

		taskClient.Register(tasks.NewSyncQueues(app.Sync, logger)...)
		taskClient.Register(tasks.NewCleanupAuditEventsQueue(app.Audit, logger))

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		if _, err := taskClient.Enqueue(taskCtx, tasks.CleanupAuditEventsTask{RetentionDays: cfg.Audit.RetentionDays}); err != nil {
			logger.Warn("failed to enqueue audit cleanup", slog.Any("error", err))
		}
	}

	var syncScheduler *scheduler.SyncScheduler
	if cfg.Sync.SchedulerEnabled {
		syncScheduler = scheduler.NewSyncScheduler(app.Sync, scheduler.Options{
			StaleRunTimeout: cfg.Sync.StaleRunTimeout,
			RunTimeout:      cfg.Tasks.TaskTimeout,
			Logger:          logger,
		})
		if err := syncScheduler.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	routerCfg := http_controllers.RouterConfig{
		Database:    app.DB,
		Connections: app.Sync,
		Mappings:    app.Sync,
		Runs:        app.Sync,
		Version:     version,
	}
	// Typed nils must not reach the interface fields.
	if syncScheduler != nil {
		routerCfg.Scheduler = syncScheduler
	}
	if taskClient != nil {
		routerCfg.TaskQueue = taskClient
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if syncScheduler != nil {
			syncScheduler.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	return Serve(router, cfg, logger, onShutdown)
}
