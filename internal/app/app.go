// -----------------------------------------------------------------------
// Application Container
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/browser"
	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/handlers"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
	"github.com/ternarybob/clavis/internal/services/diagnostics"
	"github.com/ternarybob/clavis/internal/services/events"
	"github.com/ternarybob/clavis/internal/services/login"
	"github.com/ternarybob/clavis/internal/services/scheduler"
	"github.com/ternarybob/clavis/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Portal definition everything else keys off
	Profile *models.PortalProfile

	// Event-driven services
	EventService interfaces.EventService

	// Flow services
	BrowserFactory   interfaces.BrowserFactory
	LoginService     interfaces.LoginService
	SchedulerService interfaces.SchedulerService
	SnapshotRecorder *diagnostics.Recorder

	// Log streaming to WebSocket clients
	WSWriter *handlers.WebSocketWriter

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	LoginHandler     *handlers.LoginHandler
	CookieHandler    *handlers.CookieHandler
	SchedulerHandler *handlers.SchedulerHandler
	WSHandler        *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Load the portal profile first; every service keys off it
	profile, err := common.LoadProfile(cfg.Portal.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load portal profile: %w", err)
	}
	app.Profile = profile

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize WebSocket handler early so flow events reach clients from
	// the first login onward. EventService is needed for its subscriptions.
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.Logger, &app.Config.WebSocket)

	// Attach the log stream: arbor batches log events onto the writer's
	// channel, the writer filters and broadcasts them
	app.WSWriter = handlers.NewWebSocketWriter(app.WSHandler, &app.Config.WebSocket, app.Logger)
	app.WSWriter.Start()
	app.Logger.SetChannel("context", app.WSWriter.Channel())

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Start WebSocket background tasks for real-time UI updates
	app.WSHandler.StartStatusBroadcaster()

	logger.Info().
		Str("portal", profile.Name).
		Str("login_url", profile.LoginURL).
		Bool("refresh_enabled", cfg.Refresh.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes the flow services in dependency order
func (a *App) initServices() error {
	// Debug-log every flow event as it is published
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe logger to events: %w", err)
	}

	// Browser factory opens one browsing context per login flow
	a.BrowserFactory = browser.NewFactory(a.Config.Browser, a.Logger)

	// Failure snapshots for selector-drift debugging
	a.SnapshotRecorder = diagnostics.NewRecorder(a.Config.Snapshots, a.Logger)

	machine := login.NewFlowMachine(
		a.Profile,
		a.BrowserFactory,
		a.EventService,
		a.SnapshotRecorder,
		a.Config.Browser,
		a.Logger,
	)

	a.LoginService = login.NewService(
		machine,
		a.StorageManager.CookieStorage(),
		a.EventService,
		a.Config.Portal.MinLoginInterval,
		a.Logger,
	)

	// Scheduled refresh is a no-op unless enabled in config
	a.SchedulerService = scheduler.NewService(a.Config.Refresh, a.Config.Portal, a.LoginService, a.Logger)
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start refresh scheduler: %w", err)
	}

	return nil
}

// initHandlers initializes the HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	a.LoginHandler = handlers.NewLoginHandler(a.LoginService, a.Logger)
	a.CookieHandler = handlers.NewCookieHandler(a.StorageManager.CookieStorage(), a.EventService, a.Profile, a.Config.Portal.CookieMaxAge, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)

	// New WebSocket clients get the current flow status on connect
	a.WSHandler.SetStatusProvider(a.LoginService)

	return nil
}

// Close shuts down application components in reverse dependency order
func (a *App) Close() error {
	// Stop scheduler service first so no refresh starts mid-shutdown
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Stop the WebSocket log writer
	if a.WSWriter != nil {
		if err := a.WSWriter.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop WebSocket log writer")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
