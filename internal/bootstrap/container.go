package bootstrap

import (
	"context"
	"net/http"
	"sync"

	chclient "renamebot/internal/adapters/clickhouse"
	"renamebot/internal/adapters/config"
	"renamebot/internal/adapters/ffmpeg"
	"renamebot/internal/adapters/kafka"
	pgclient "renamebot/internal/adapters/postgres"
	redisclient "renamebot/internal/adapters/redis"
	telegram "renamebot/internal/adapters/telegram"
	"renamebot/internal/api"
	"renamebot/internal/api/health"
	"renamebot/internal/events"
	chrepo "renamebot/internal/repository/clickhouse"
	prefsvc "renamebot/internal/services/preferences"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/internal/workers"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	tg "renamebot/pkg/telegram"
	"renamebot/pkg/telegram/adapters/tgbotapi"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores). CH is nil unless configured.
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	// Domain Layer - Services
	Services *Services

	// External Adapters
	Adapters *Adapters

	// Application Layer
	Application *Application

	// Background Processing
	Background *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Services groups the rename core and the settings store
type Services struct {
	Preferences  *prefsvc.Service
	Registry     *renamesvc.Registry
	Orchestrator *renamesvc.Orchestrator
}

// Adapters groups all external adapters. Kafka and history are optional.
type Adapters struct {
	FFmpeg          *ffmpeg.Client
	KafkaProducer   *kafka.Producer
	HistoryReader   *kafka.Consumer
	OutcomeProducer *events.OutcomePublisher
	History         *chrepo.RenameHistoryRepository
	FileClient      *http.Client
}

// Application groups application layer components
type Application struct {
	HTTPServer      *api.Server
	HealthHandler   *health.Handler
	TelegramBot     *tgbotapi.Bot
	Templates       tg.TemplateRenderer
	EditQueue       *tg.EditQueue
	Commands        *tg.CommandRegistry
	TelegramHandler *telegram.Handler
	Notifier        *telegram.Notifier
	Transport       *telegram.Transport
}

// Background groups long-running loops started by Start
type Background struct {
	Scheduler       *workers.Scheduler
	HistoryConsumer *events.HistoryConsumer
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Services:    &Services{},
		Adapters:    &Adapters{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(0),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Adapters.History != nil {
		c.Adapters.History.Start(c.Context)
	}

	c.goRun("edit_queue", c.Application.EditQueue.Run)
	if err := c.Background.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "start worker scheduler")
	}
	if c.Background.HistoryConsumer != nil {
		c.goRun("history_consumer", c.Background.HistoryConsumer.Run)
	}

	// HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorw("HTTP server failed", "error", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	if err := c.startTelegram(); err != nil {
		return err
	}

	c.announceStartup()

	c.Log.Info("All systems operational")
	return nil
}

// goRun runs a loop in the background until the container context ends
func (c *Container) goRun(name string, run func(context.Context) error) {
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := run(c.Context); err != nil && c.Context.Err() == nil {
			c.Log.Errorw("Background loop failed", "loop", name, "error", err)
		}
	}()
}

// startTelegram registers the webhook or clears it for polling, then starts
// receiving updates
func (c *Container) startTelegram() error {
	bot := c.Application.TelegramBot
	webhookURL := c.Config.Telegram.WebhookURL

	if webhookURL != "" {
		if err := bot.SetWebhook(webhookURL); err != nil {
			return errors.Wrap(err, "set telegram webhook")
		}
		if info, err := bot.GetWebhookInfo(); err == nil {
			c.Log.Infow("Telegram webhook configured",
				"url", info.URL,
				"pending_updates", info.PendingUpdateCount,
			)
		}
	} else if err := bot.DeleteWebhook(false); err != nil {
		// polling fails while a webhook is registered
		return errors.Wrap(err, "delete telegram webhook")
	}

	c.goRun("telegram_bot", bot.Start)
	c.Log.Infow("Telegram bot started", "username", bot.Username(), "webhook", webhookURL != "")
	return nil
}

func (c *Container) announceStartup() {
	if len(c.Config.Telegram.AdminIDs) == 0 {
		return
	}

	err := c.Application.Notifier.SendStartup(c.Context, c.Config.Telegram.AdminIDs, telegram.StartupInfo{
		Name:               c.Config.App.Name,
		Env:                c.Config.App.Env,
		Limit:              c.Services.Orchestrator.SizeLimit(),
		TransformAvailable: c.Adapters.FFmpeg.IsAvailable(),
	})
	if err != nil {
		c.Log.Warnw("Failed to send startup notice", "error", err)
	}
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// stop intake first so no new sessions start while draining
	if c.Application.TelegramBot != nil {
		c.Application.TelegramBot.Stop()
	}

	c.Lifecycle.Shutdown(c, c.Log)
}
