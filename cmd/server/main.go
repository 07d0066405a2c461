package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stanstork/safeme-sync/internal/alerts"
	"github.com/stanstork/safeme-sync/internal/config"
	"github.com/stanstork/safeme-sync/internal/contacts"
	"github.com/stanstork/safeme-sync/internal/handlers"
	"github.com/stanstork/safeme-sync/internal/metrics"
	"github.com/stanstork/safeme-sync/internal/migration"
	"github.com/stanstork/safeme-sync/internal/network"
	"github.com/stanstork/safeme-sync/internal/notification"
	"github.com/stanstork/safeme-sync/internal/repository"
	"github.com/stanstork/safeme-sync/internal/routes"
	"github.com/stanstork/safeme-sync/internal/scheduler"
	"github.com/stanstork/safeme-sync/internal/store"
	"github.com/stanstork/safeme-sync/internal/temporal"
	"github.com/stanstork/safeme-sync/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
)

type application struct {
	config        *config.Config
	db            *sql.DB
	store         store.AlertStore
	logger        zerolog.Logger
	notifications notification.Service
	monitor       *network.Monitor
	alerts        *alerts.Repository
	scheduler     scheduler.Scheduler
	directory     *contacts.Directory

	temporalClient tc.Client
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	metrics.Init()

	// Remote alert store.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}
	if err := migration.RunMigrations(db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Local alert queue.
	alertStore, err := store.New(store.NewSQLiteConnector(cfg.LocalStore.Path, logger), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open local alert store")
	}
	defer alertStore.Close()

	app := &application{
		config: cfg,
		db:     db,
		store:  alertStore,
		logger: logger,
	}
	app.wire()
	if app.temporalClient != nil {
		defer app.temporalClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start sync scheduler")
	}
	scheduler.Initialize(ctx, app.scheduler, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.monitor.Run(gctx) })
	g.Go(func() error { return app.trackPendingAlerts(gctx) })

	// Initialize the HTTP router and middleware.
	router := app.initRouter()
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(router)

	app.startServer(ctx, corsHandler)

	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Background task failed")
	}
	logger.Info().Msg("Application terminated.")
}

// wire builds the sync pipeline: notifications, dispatcher, repository,
// worker, scheduler and connectivity monitor.
func (app *application) wire() {
	cfg, logger := app.config, app.logger

	pushTokens := repository.NewPushTokenRepository(app.db)
	notifiers := []notification.Notifier{notification.NewLogNotifier(logger)}
	if cfg.Push.Enabled {
		notifiers = append(notifiers, notification.NewFirebaseNotifier(cfg.Push, pushTokens, logger))
	}
	app.notifications = notification.NewService(repository.NewNotificationRepository(app.db), logger, notifiers...)

	sender, err := newEmailSender(cfg.Email, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure email sender")
	}
	dispatcher := notification.NewDispatcher(sender, cfg.Email.Provider, cfg.Sync.EmailWaitTimeout, logger)

	checker := network.NewHTTPChecker(cfg.Network.ProbeURL, cfg.Network.ProbeTimeout)
	app.alerts = alerts.NewRepository(
		app.store,
		repository.NewAlertRepository(app.db),
		checker,
		dispatcher,
		alerts.Config{MaxSyncAttempts: cfg.LocalStore.MaxSyncAttempts, PushTimeout: cfg.Sync.PushTimeout},
		logger,
	)

	app.monitor = network.NewMonitor(network.MonitorConfig{
		Checker:      checker,
		Pending:      app.alerts,
		Notifier:     app.notifications,
		PollInterval: cfg.Network.PollInterval,
		Logger:       logger,
	})

	syncWorker := worker.NewWorker(worker.WorkerConfig{
		Alerts:     app.alerts,
		Network:    app.monitor,
		Dispatcher: dispatcher,
		Notifier:   app.notifications,
		RunTimeout: temporal.DefaultActivityTimeout,
		Logger:     logger,
	})

	app.scheduler = app.newScheduler(syncWorker)
	app.monitor.SetTrigger(app.scheduler)

	app.directory = contacts.NewDirectory(repository.NewContactRepository(app.db), cfg.Contacts.CacheTTL, logger)
}

func (app *application) newScheduler(runner scheduler.SyncRunner) scheduler.Scheduler {
	cfg := app.config
	if cfg.Sync.Backend == config.BackendTemporal {
		temporalClient, err := tc.Dial(tc.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporal.NewSDKLogger(app.logger),
		})
		if err != nil {
			app.logger.Fatal().Err(err).Msg("Unable to create Temporal client")
		}
		app.temporalClient = temporalClient
		return scheduler.NewTemporalScheduler(scheduler.TemporalConfig{
			Client:           temporalClient,
			Runner:           runner,
			Cleaner:          app.alerts,
			Network:          app.monitor,
			PeriodicInterval: cfg.Sync.PeriodicInterval,
			InitialBackoff:   cfg.Sync.InitialBackoff,
			MaxBackoff:       cfg.Sync.MaxBackoff,
			CleanupSchedule:  cfg.Sync.CleanupSchedule,
			RetentionDays:    cfg.LocalStore.RetentionDays,
			Logger:           app.logger,
		})
	}
	return scheduler.NewLocalScheduler(scheduler.LocalConfig{
		Runner:           runner,
		Cleaner:          app.alerts,
		Network:          app.monitor,
		PeriodicInterval: cfg.Sync.PeriodicInterval,
		InitialBackoff:   cfg.Sync.InitialBackoff,
		MaxBackoff:       cfg.Sync.MaxBackoff,
		CleanupSchedule:  cfg.Sync.CleanupSchedule,
		RetentionDays:    cfg.LocalStore.RetentionDays,
		Logger:           app.logger,
	})
}

func newEmailSender(cfg config.EmailConfig, logger zerolog.Logger) (notification.EmailSender, error) {
	if cfg.Provider == config.ProviderSMTP {
		return notification.NewSMTPSender(cfg, logger)
	}
	return notification.NewEmailJSSender(cfg, logger)
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter() http.Handler {
	logger := app.logger
	return routes.NewRouter(routes.Handlers{
		Alerts:        handlers.NewAlertHandler(app.alerts, app.directory, repository.NewAlertRepository(app.db), app.notifications, logger),
		Sync:          handlers.NewSyncHandler(app.monitor, app.scheduler, app.monitor, logger),
		Contacts:      handlers.NewContactHandler(app.directory, logger),
		PushTokens:    handlers.NewPushTokenHandler(repository.NewPushTokenRepository(app.db), logger),
		Notifications: handlers.NewNotificationHandler(app.notifications, logger),
	}, app.config.JWTSecret, logger)
}

// trackPendingAlerts keeps the pending gauge in step with the local queue.
func (app *application) trackPendingAlerts(ctx context.Context) error {
	for n := range app.store.WatchPendingCount(ctx) {
		metrics.PendingAlerts.Set(float64(n))
	}
	return ctx.Err()
}

// startServer runs the HTTP server until ctx is cancelled, then shuts the
// server and the scheduler down.
func (app *application) startServer(ctx context.Context, handler http.Handler) {
	logger := app.logger
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received. Shutting down...")
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	logger.Info().Msg("Stopping sync scheduler...")
	app.scheduler.Stop()
	logger.Info().Msg("Sync scheduler stopped.")
}
