package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"dailypost/internal/config"
	"dailypost/internal/constants"
	"dailypost/internal/events"
	"dailypost/internal/media"
	"dailypost/internal/models"
	"dailypost/internal/queue"
	"dailypost/internal/retry"
	"dailypost/internal/service"
	"dailypost/internal/settings"
	"dailypost/internal/store"
	"dailypost/internal/tracing"
	"dailypost/pkg/circuitbreaker"
	"dailypost/pkg/telegram"
	"dailypost/pkg/twitter"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes chat identifiers)")
	configPath = flag.String("config", "config.json", "Path to configuration file (JSON or YAML)")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("dailypost %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *verbose); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

// application is the wired set of components behind the scheduler and API
type application struct {
	store      store.Store
	queue      *queue.Manager
	settings   *settings.Registry
	dispatcher *service.Dispatcher
	scheduler  *service.Scheduler
	migrator   *service.Migrator
	hub        *events.Hub
	notifier   service.MultiNotifier
}

func run(ctx context.Context, path string, verboseLogging bool) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting dailypost")

	watcher := config.NewConfigWatcher(path, 0, logger)
	cfg, err := watcher.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel := config.ApplyLogLevel(logger)
	if verboseLogging {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - chat identifiers will be logged unmasked")
		ctx = context.WithValue(ctx, service.VerboseContextKey, true)
	} else {
		applyLogLevel(cfg)
		watcher.OnConfigChange(applyLogLevel)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close store")
		}
	}()

	watchCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	go func() {
		if err := watcher.Start(watchCtx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	go app.scheduler.Start(ctx)

	server := NewServer(cfg, ServerDeps{
		Store:      app.store,
		Queue:      app.queue,
		Settings:   app.settings,
		Dispatcher: app.dispatcher,
		Migrator:   app.migrator,
		Hub:        app.hub,
		Notifier:   app.notifier,
	}, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-serverErrCh:
		logger.Error(runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()

	app.scheduler.Stop()
	app.hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	waitDone := make(chan struct{})
	go func() {
		app.scheduler.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for running dispatches")
	}

	logger.Info("Shutdown completed")
	return runErr
}

// newApplication connects the store and wires every component. The store is
// the only resource the caller has to close.
func newApplication(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*application, error) {
	storeBackoffConfig := retry.ConfigFromRetry(cfg.Retry)
	storeBackoffConfig.MaxAttempts = cfg.Store.RetryAttempts
	st, err := store.OpenWithRetry(ctx, cfg.Store, retry.NewBackoff(storeBackoffConfig), logger)
	if err != nil {
		return nil, err
	}

	app, err := wire(st, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return app, nil
}

func wire(st store.Store, cfg *models.Config, logger *logrus.Logger) (*application, error) {
	encryptor, err := settings.NewEncryptorFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential encryption: %w", err)
	}

	registry := settings.NewRegistry(st, encryptor, logger)
	queueManager := queue.NewManager(st, constants.MaxQueueSize, logger)

	breaker := circuitbreaker.New("telegram", circuitbreaker.Config{
		MaxFailures:      constants.CBMaxFailures,
		Timeout:          constants.CBTimeoutSec * time.Second,
		HalfOpenMaxCalls: constants.CBHalfOpenMaxCalls,
	}, logger)
	telegramClient := telegram.NewClient(cfg.Telegram.APIBaseURL, cfg.Telegram.Token,
		&http.Client{Timeout: time.Duration(cfg.Telegram.TimeoutSec) * time.Second}, breaker, logger)
	twitterClient := twitter.NewClient(cfg.Twitter, nil, logger)

	stager, err := media.NewStager(telegramClient, cfg.Media, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media stager: %w", err)
	}
	if removed, err := stager.SweepStale(time.Duration(cfg.Media.StaleHours) * time.Hour); err != nil {
		logger.WithError(err).Warn("Failed to sweep stale attachments")
	} else if removed > 0 {
		logger.WithField("count", removed).Info("Removed stale attachments")
	}

	hub := events.NewHub(logger)
	notifiers := service.MultiNotifier{hub}
	if cfg.Telegram.Token != "" {
		notifiers = append(notifiers, service.NewTextNotifier(telegramClient))
	} else {
		logger.Warn("TELEGRAM_TOKEN not set; notifications only reach event stream subscribers")
	}

	notifyBackoff := retry.NewBackoff(retry.ConfigFromRetry(cfg.Retry))
	dispatcher := service.NewDispatcher(queueManager, registry, twitterClient, stager, notifiers, service.DispatcherConfig{
		Timeout:       config.DispatchTimeout(cfg),
		NotifyBackoff: notifyBackoff,
	}, logger)

	scheduler := service.NewScheduler(registry, dispatcher, service.SchedulerConfig{
		Policy:   cfg.Scheduler.Policy,
		Interval: config.TickInterval(cfg),
		Workers:  cfg.Scheduler.Workers,
	}, logger)

	migrator := service.NewMigrator(st, queueManager, dispatcher, notifiers, notifyBackoff, logger)

	return &application{
		store:      st,
		queue:      queueManager,
		settings:   registry,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		migrator:   migrator,
		hub:        hub,
		notifier:   notifiers,
	}, nil
}
