package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gifbot/internal/delivery"
	"gifbot/internal/filesystem"
	"gifbot/internal/handlers"
	"gifbot/internal/logging"
	"gifbot/internal/media"
	"gifbot/internal/memory"
	"gifbot/internal/metrics"
	"gifbot/internal/middleware"
	"gifbot/internal/pipeline"
	"gifbot/internal/startup"
	"gifbot/internal/telegram"
	"gifbot/internal/transcoder"
	"gifbot/internal/workspace"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	collectorInterval = 30 * time.Second
	shutdownTimeout   = 30 * time.Second

	// The instance lock is held, so every leftover workspace is orphaned.
	staleWorkspaceAge = 0
)

func run(parent context.Context, configPath string) error {
	startTime := time.Now()

	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	lock, err := startup.AcquireInstanceLock(config.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logging.Warn("Failed to release instance lock: %v", err)
		}
	}()

	metrics.InitializeMetrics()
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	manager, err := workspace.NewManager(config.ScratchDir)
	if err != nil {
		return fmt.Errorf("workspace setup: %w", err)
	}
	sweep := manager.CleanStale(staleWorkspaceAge)
	for _, e := range sweep.Errors {
		logging.Warn("  Failed to remove %s: %v", e.Path, e.Error)
	}
	startup.LogWorkspaceInit(manager.Root(), len(sweep.Removed), len(sweep.Errors))

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable, falling back to the Go decoders: %v", err)
	}
	defer media.ShutdownVips()

	encoderErr := startup.LogTranscoderInit(config.FFmpegPath, config.FFprobePath)

	pol := config.Policy()
	trans := transcoder.New(pol, transcoder.Options{
		FFmpegPath:  config.FFmpegPath,
		FFprobePath: config.FFprobePath,
	})
	deliverer := delivery.New(delivery.DefaultMethods(media.Inspector{})...)
	orchestrator := pipeline.New(pol, manager, trans, deliverer)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	bot, err := telegram.New(telegram.Options{
		Token:         config.Token,
		APIEndpoint:   config.APIEndpoint,
		Policy:        pol,
		MaxConcurrent: config.MaxConcurrent,
		Admission:     monitor,
	}, orchestrator)
	if err != nil {
		return err
	}
	startup.LogBotConnected(bot.Username())

	collector := metrics.NewCollector(manager, collectorInterval)
	collector.Start()
	defer collector.Stop()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case sig := <-sigChan:
			startup.LogShutdownInitiated(sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		if err := bot.Run(gctx); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		startup.LogShutdownStepComplete("Bot stopped")
		return nil
	})

	if config.MetricsEnabled {
		h := handlers.New(bot, manager, trans, encoderErr)
		router := setupRouter(h)
		startup.LogHTTPRoutes(router)
		srv := newOpsServer(config.MetricsPort, router)

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			startup.LogShutdownStep("Shutting down ops server")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.Warn("Ops server shutdown error: %v", err)
				return nil
			}
			startup.LogShutdownStepComplete("Ops server stopped")
			return nil
		})
	}

	startup.LogServerStarted(startup.ServerConfig{
		BotUsername:     bot.Username(),
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		MaxConcurrent:   config.MaxConcurrent,
		Limits:          pol,
		StartupDuration: time.Since(startTime),
	})

	err = g.Wait()

	startup.LogShutdownStep("Cleaning up transcoder")
	trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	if left := manager.Active(); left > 0 {
		logging.Warn("  %d workspace(s) still active at shutdown", left)
	}

	startup.LogShutdownComplete()
	return err
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	r.Use(middleware.Logger(middleware.DefaultLoggingConfig()))

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	r.Handle("/metrics", h.MetricsHandler())

	return r
}

func newOpsServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
