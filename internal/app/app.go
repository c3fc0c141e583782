// Package app provides the application lifecycle for the reporting service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	httpapi "github.com/expertsure/expertsure/internal/api/http"
	"github.com/expertsure/expertsure/internal/config"
	"github.com/expertsure/expertsure/internal/dataset"
	"github.com/expertsure/expertsure/internal/deck"
	"github.com/expertsure/expertsure/internal/events"
	"github.com/expertsure/expertsure/internal/observability"
	"github.com/expertsure/expertsure/internal/orchestrator"
	"github.com/expertsure/expertsure/internal/planner"
	"github.com/expertsure/expertsure/internal/server"
	"github.com/expertsure/expertsure/internal/storage"
	"github.com/expertsure/expertsure/internal/store"
)

// App wires the reporting service together and manages its lifecycle.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Shared resources
	storage  storage.ObjectStorage
	store    *store.SQLiteStore
	cache    *dataset.Cache
	local    *events.MemoryBroadcaster
	bus      events.Broadcaster
	metrics  *observability.Metrics
	shutdown *server.ShutdownManager

	httpServer *http.Server

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Start initializes shared resources and starts the HTTP server.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	if err := a.startHTTPServer(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info("service started",
		zap.String("addr", a.cfg.HTTP.Addr),
		zap.String("storage", a.cfg.Storage.Type))
	return nil
}

// initSharedResources initializes storage, the project store, the
// dataset cache, event fan-out, and the shutdown manager.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       a.cfg.Storage.S3.Region,
			Endpoint:     a.cfg.Storage.S3.Endpoint,
			UsePathStyle: a.cfg.Storage.S3.UsePathStyle,
		})
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.logger.Info("storage initialized", zap.String("type", a.cfg.Storage.Type))

	a.store, err = store.NewSQLiteStore(a.cfg.StorePath())
	if err != nil {
		return fmt.Errorf("failed to open project store: %w", err)
	}
	a.logger.Info("project store opened", zap.String("path", a.cfg.StorePath()))

	a.cache, err = dataset.NewCache(a.cfg.Analysis.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to initialize dataset cache: %w", err)
	}

	// Local subscribers always go through the in-process broadcaster;
	// the event stream endpoint needs it. NATS, when configured, gets
	// a copy of every event.
	a.local = events.NewMemoryBroadcaster()
	a.bus = a.local
	if a.cfg.Events.NATSURL != "" {
		nc, err := events.NewNATSBroadcaster(a.cfg.Events.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.bus = events.NewFanOut(a.local, nc)
		a.logger.Info("NATS event fan-out enabled", zap.String("url", a.cfg.Events.NATSURL))
	}

	a.metrics = observability.NewDefaultMetrics()
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{})

	// Closing the broadcaster first ends open event streams so the
	// drain phase can finish. Closers run LIFO afterwards.
	a.shutdown.OnShutdownStart(func() {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("broadcaster close", zap.Error(err))
		}
	})
	a.shutdown.RegisterCloser(a.store)

	return nil
}

// startHTTPServer assembles the router and starts serving.
func (a *App) startHTTPServer() error {
	orch := orchestrator.New(a.store, a.storage, a.cache, planner.NewHeuristic(),
		deck.NewWriter(a.storage), a.bus, a.logger, a.metrics)

	mux := httpapi.NewRouter(httpapi.RouterConfig{
		Orchestrator:    orch,
		Store:           a.store,
		Objects:         a.storage,
		Cache:           a.cache,
		Bus:             a.local,
		Logger:          a.logger,
		Metrics:         a.metrics,
		AnalysisTimeout: a.cfg.Analysis.Timeout,
		MaxUploadBytes:  int64(a.cfg.HTTP.MaxUploadSizeMB) << 20,
	})

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      server.ShutdownMiddleware(a.shutdown)(mux),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	graceful := server.NewGracefulHTTPServer(a.httpServer, a.shutdown)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("HTTP server listening", zap.String("addr", a.cfg.HTTP.Addr))
		if err := graceful.ListenAndServe(); err != nil {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received, then
// runs graceful shutdown.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Stop gracefully stops the service and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	a.logger.Info("initiating graceful shutdown")

	if a.cancel != nil {
		a.cancel()
	}

	err := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	select {
	case <-done:
	case <-waitCtx.Done():
		a.logger.Warn("shutdown timeout, some goroutines may not have finished")
	}

	a.cleanup()
	a.logger.Info("service stopped")
	return err
}

// cleanup releases resources that are not registered with the shutdown
// manager, for startup failures.
func (a *App) cleanup() {
	if a.shutdown == nil || !a.shutdown.IsShuttingDown() {
		if a.bus != nil {
			a.bus.Close()
		}
		if a.store != nil {
			a.store.Close()
		}
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}
