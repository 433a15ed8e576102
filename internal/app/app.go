package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/handlers"
	"github.com/ternarybob/nuntio/internal/services/events"
	"github.com/ternarybob/nuntio/internal/services/sender"
	"github.com/ternarybob/nuntio/internal/services/uploads"
	"github.com/ternarybob/nuntio/internal/services/whatsapp"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Core services
	Registry       *events.Registry
	UploadsService *uploads.Service
	Driver         sender.Driver
	Session        *whatsapp.Session
	Runner         *sender.Runner

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	SendHandler     *handlers.SendHandler
	SSELogsHandler  *handlers.SSELogsHandler
	WhatsAppHandler *handlers.WhatsAppHandler
	WSHandler       *handlers.WebSocketHandler
	LogRelay        *handlers.LogRelay
}

// New wires the full application from configuration. Services are
// constructed bottom-up: registry, staging, driver, runner, handlers.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	a.Registry = events.NewRegistry(logger)

	uploadsService, err := uploads.NewService(config.Uploads, logger)
	if err != nil {
		return nil, fmt.Errorf("uploads service: %w", err)
	}
	a.UploadsService = uploadsService
	a.UploadsService.Start()

	a.Session = whatsapp.NewSession()
	switch config.WhatsApp.Driver {
	case "scripted":
		logger.Warn().Msg("Using scripted driver - no browser will be launched")
		a.Driver = &sender.ScriptedDriver{}
	default:
		a.Driver = whatsapp.NewChromeDriver(
			config.WhatsApp,
			config.Sender.SendEvery(),
			config.IsProduction(),
			a.Session,
			logger,
		)
	}

	a.Runner = sender.NewRunner(a.Registry, a.Driver, a.UploadsService, config.Sender, logger)

	a.APIHandler = handlers.NewAPIHandler(a.Runner)
	a.SendHandler = handlers.NewSendHandler(a.Runner, a.UploadsService, config.Uploads)
	a.SSELogsHandler = handlers.NewSSELogsHandler(a.Registry)
	a.WhatsAppHandler = handlers.NewWhatsAppHandler(a.Session)
	a.WSHandler = handlers.NewWebSocketHandler(a.Registry, &config.WebSocket, logger)

	// Mirror service logs to WebSocket clients through arbor's channel.
	a.LogRelay = handlers.NewLogRelay(a.WSHandler, &config.WebSocket)
	a.LogRelay.Start()
	logger.SetChannel("websocket", a.LogRelay.Channel())

	logger.Info().
		Str("driver", config.WhatsApp.Driver).
		Str("uploads_dir", a.UploadsService.Dir()).
		Msg("Application wired")

	return a, nil
}

// Close stops background services and waits for in-flight jobs to
// drain, bounded by the given timeout.
func (a *App) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.Runner != nil {
		if err := a.Runner.Wait(ctx); err != nil {
			a.Logger.Warn().
				Int("active_jobs", a.Runner.ActiveCount()).
				Msg("Shutdown timeout reached with jobs still running")
		}
	}

	if a.LogRelay != nil {
		a.LogRelay.Close()
	}

	if a.UploadsService != nil {
		a.UploadsService.Stop()
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
