// Package app wires the application components together and owns their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/handlers"
	"github.com/ternarybob/mitto/internal/queue"
	"github.com/ternarybob/mitto/internal/services/agents"
	"github.com/ternarybob/mitto/internal/services/auth"
	"github.com/ternarybob/mitto/internal/services/orchestrator"
	badgerstorage "github.com/ternarybob/mitto/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	StorageManager *badgerstorage.Manager

	// Job execution
	QueueManager *queue.Manager
	WorkerPool   *queue.WorkerPool
	Registry     *agents.Registry

	// Services
	Orchestrator *orchestrator.Service
	AuthService  *auth.Service

	// Terminal-job retention sweep
	retention *cron.Cron

	// HTTP handlers
	AgentHandler *handlers.AgentHandler
	APIHandler   *handlers.APIHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	visibilityTimeout, err := time.ParseDuration(cfg.Queue.VisibilityTimeout)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("invalid visibility timeout '%s': %w", cfg.Queue.VisibilityTimeout, err)
	}

	queueManager, err := queue.NewManager(storageManager.Badger(), cfg.Queue.QueueName, visibilityTimeout, cfg.Queue.MaxReceive)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	app.QueueManager = queueManager

	jobs := storageManager.JobStorage()
	events := storageManager.EventStorage()

	producer := queue.NewProducer(queueManager, logger)
	app.Registry = agents.NewRegistry(cfg, logger)
	processor := queue.NewJobProcessor(jobs, events, app.Registry, logger)

	workerPool, err := queue.NewWorkerPool(queueManager, processor, &cfg.Queue, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize worker pool: %w", err)
	}
	app.WorkerPool = workerPool

	app.Orchestrator = orchestrator.NewService(jobs, events, producer, logger)

	authService, err := auth.NewService(&cfg.Auth, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}
	app.AuthService = authService

	if err := app.initRetention(); err != nil {
		storageManager.Close()
		return nil, err
	}

	app.AgentHandler = handlers.NewAgentHandler(app.Orchestrator, logger)
	app.APIHandler = handlers.NewAPIHandler()

	logger.Info().Msg("Application initialized")

	return app, nil
}

// initRetention schedules the terminal-job expiry sweep
func (a *App) initRetention() error {
	ttl, err := time.ParseDuration(a.Config.Retention.TerminalTTL)
	if err != nil {
		return fmt.Errorf("invalid terminal TTL '%s': %w", a.Config.Retention.TerminalTTL, err)
	}

	a.retention = cron.New(cron.WithSeconds())
	_, err = a.retention.AddFunc(a.Config.Retention.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		cutoff := time.Now().UTC().Add(-ttl)
		deleted, err := a.StorageManager.JobStorage().DeleteTerminalBefore(ctx, cutoff)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Terminal job sweep failed")
			return
		}
		if deleted > 0 {
			a.Logger.Info().
				Int("deleted", deleted).
				Str("cutoff", cutoff.Format(time.RFC3339)).
				Msg("Expired terminal jobs removed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule '%s': %w", a.Config.Retention.Schedule, err)
	}

	return nil
}

// Start launches the background components: workers and the retention
// sweep
func (a *App) Start() {
	a.WorkerPool.Start()
	a.retention.Start()
}

// Shutdown stops background work and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application...")

	cronCtx := a.retention.Stop()
	a.WorkerPool.Stop()

	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
		a.Logger.Warn().Msg("Retention sweep did not finish before shutdown deadline")
	}

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
