package bootstrap

import (
	"context"
	"net/http"
	"time"

	chclient "renamebot/internal/adapters/clickhouse"
	"renamebot/internal/adapters/config"
	errnoop "renamebot/internal/adapters/errors/noop"
	"renamebot/internal/adapters/errors/sentry"
	"renamebot/internal/adapters/ffmpeg"
	"renamebot/internal/adapters/kafka"
	pgclient "renamebot/internal/adapters/postgres"
	redisclient "renamebot/internal/adapters/redis"
	telegram "renamebot/internal/adapters/telegram"
	"renamebot/internal/api"
	"renamebot/internal/api/health"
	tgapi "renamebot/internal/api/telegram"
	"renamebot/internal/events"
	"renamebot/internal/metrics"
	chrepo "renamebot/internal/repository/clickhouse"
	pgrepo "renamebot/internal/repository/postgres"
	redisrepo "renamebot/internal/repository/redis"
	prefsvc "renamebot/internal/services/preferences"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	tg "renamebot/pkg/telegram"
	"renamebot/pkg/telegram/adapters/tgbotapi"
	"renamebot/pkg/templates"
)

const infraConnectTimeout = 30 * time.Second

// MustInitConfig loads configuration and sets up logging and error tracking
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	c.Lifecycle = NewLifecycle(cfg.HTTP.ShutdownTimeout + 35*time.Second)
}

// MustInitInfrastructure connects the data stores. ClickHouse is optional.
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, infraConnectTimeout)
	defer cancel()

	var err error

	// PostgreSQL
	c.Log.Info("Connecting to PostgreSQL...")
	c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	if err := c.PG.Migrate(ctx); err != nil {
		c.Log.Fatalf("failed to migrate postgres: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	// Redis
	c.Log.Info("Connecting to Redis...")
	c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("failed to connect redis: %v", err)
	}
	c.Log.Info("✓ Redis connected")

	// ClickHouse
	if !c.Config.ClickHouse.Enabled() {
		c.Log.Info("ClickHouse not configured, rename history disabled")
		return
	}
	c.Log.Info("Connecting to ClickHouse...")
	c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
	if err != nil {
		c.Log.Fatalf("failed to connect clickhouse: %v", err)
	}
	if err := c.CH.EnsureSchema(ctx); err != nil {
		c.Log.Fatalf("failed to prepare clickhouse schema: %v", err)
	}
	c.Log.Info("✓ ClickHouse connected")
}

// MustInitAdapters creates external adapters
func (c *Container) MustInitAdapters() {
	cfg := c.Config

	c.Adapters.FFmpeg = ffmpeg.New(cfg.FFmpeg, c.Log)
	if c.Adapters.FFmpeg.IsAvailable() {
		version, _ := c.Adapters.FFmpeg.Version(c.Context)
		c.Log.Infow("✓ ffmpeg available", "version", version)
	} else {
		c.Log.Warn("ffmpeg not found, metadata editing disabled")
	}

	c.Adapters.FileClient = &http.Client{Timeout: cfg.Telegram.FileTimeout}

	if c.CH != nil {
		c.Adapters.History = chrepo.NewRenameHistoryRepository(c.CH.Conn(), chrepo.HistoryOptions{
			BatchSize:     cfg.ClickHouse.BatchSize,
			FlushInterval: cfg.ClickHouse.FlushInterval,
		}, c.Log)
	}

	if !cfg.Kafka.Enabled() {
		c.Log.Info("Kafka not configured, rename events not published")
		return
	}

	c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers}, c.Log)
	c.Adapters.OutcomeProducer = events.NewOutcomePublisher(c.Adapters.KafkaProducer, cfg.Kafka.Topic, c.Log)
	c.Log.Infow("✓ Kafka producer initialized", "topic", cfg.Kafka.Topic)

	if c.Adapters.History != nil {
		c.Adapters.HistoryReader = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topic:   cfg.Kafka.Topic,
		}, c.Log)
		c.Log.Infow("✓ Kafka history consumer initialized", "group_id", cfg.Kafka.GroupID)
	}
}

// MustInitServices creates the settings store and the session registry
func (c *Container) MustInitServices() {
	cfg := c.Config

	c.Services.Preferences = prefsvc.NewService(
		pgrepo.NewPreferencesRepository(c.PG.DB()),
		redisrepo.NewPreferencesCache(c.Redis.Client()),
		cfg.Redis.CacheTTL,
		c.Log,
	)

	c.Services.Registry = renamesvc.NewRegistry(
		renamesvc.WithSessionTTL(cfg.Rename.SessionTTL),
		renamesvc.WithSweepThreshold(cfg.Rename.SweepThreshold),
	)

	collector := metrics.NewCustomCollector(c.Log, c.Services.Registry, c.Services.Preferences)
	if err := metrics.RegisterCollector(collector); err != nil {
		c.Log.Warnw("Failed to register metrics collector", "error", err)
	}

	c.Log.Info("✓ Services initialized")
}

// MustInitApplication wires the bot, the orchestrator and the HTTP server
func (c *Container) MustInitApplication() {
	cfg := c.Config
	app := c.Application

	bot, err := provideTelegramBot(cfg, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to create telegram bot: %v", err)
	}
	app.TelegramBot = bot

	renderer, err := provideTemplates(cfg, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to load templates: %v", err)
	}
	app.Templates = renderer
	app.EditQueue = tg.NewEditQueue(bot, cfg.Rename.ProgressInterval, c.Log)
	app.Notifier = telegram.NewNotifier(bot, app.Templates, app.EditQueue, c.Services.Registry, c.Log)
	app.Transport = telegram.NewTransport(bot, c.Adapters.FileClient, c.Adapters.FFmpeg, c.Log)

	c.Services.Orchestrator = renamesvc.NewOrchestrator(renamesvc.Config{
		TempDir:          cfg.Rename.TempDir,
		SizeLimit:        renamesvc.EffectiveSizeLimit(cfg.Rename.BaseSizeLimit, cfg.Rename.ElevatedSizeLimit, cfg.Telegram.HighCapacity()),
		ProgressInterval: cfg.Rename.ProgressInterval,
		StepTimeout:      cfg.Rename.StepTimeout,
	}, renamesvc.Deps{
		Registry:    c.Services.Registry,
		Notifier:    app.Notifier,
		Transport:   app.Transport,
		Preferences: c.Services.Preferences,
		Transform:   c.Adapters.FFmpeg,
		Sinks:       c.outcomeSinks(),
	}, c.Log)

	app.Commands = tg.NewCommandRegistry(bot, c.Log)
	app.Commands.Use(tg.RecoveryMiddleware(c.Log))
	app.Commands.Use(tg.LoggingMiddleware(c.Log))
	app.Commands.Use(tg.MetricsMiddleware(metrics.RecordCommand))
	app.Commands.Use(tg.RateLimitMiddleware(cfg.Telegram.CommandsPerMinute, c.Log))

	deps := telegram.CommandsDeps{
		Settings:  c.Services.Preferences,
		Audience:  c.Services.Preferences,
		Sessions:  c.Services.Registry,
		Canceller: c.Services.Orchestrator,
		Transform: c.Adapters.FFmpeg,
		Templates: app.Templates,
		SizeLimit: c.Services.Orchestrator.SizeLimit(),
	}
	if c.Adapters.History != nil {
		deps.History = c.Adapters.History
	}
	if err := telegram.NewCommands(deps, c.Log).Register(app.Commands); err != nil {
		c.Log.Fatalf("failed to register telegram commands: %v", err)
	}

	app.TelegramHandler = telegram.NewHandler(
		bot,
		app.Commands,
		c.Services.Orchestrator,
		c.Services.Preferences,
		app.Notifier,
		cfg.Telegram.IsAdmin,
		c.Log,
	)
	bot.SetHandler(func(update tg.Update) {
		app.TelegramHandler.HandleUpdate(c.Context, update)
	})

	app.HealthHandler = c.provideHealthHandler()
	app.HTTPServer = provideHTTPServer(cfg, app.HealthHandler, bot, c.Log)

	c.Log.Info("✓ Application layer initialized")
}

// outcomeSinks decides where finished transfers go. With Kafka the
// publisher is the only sink and the history consumer feeds ClickHouse.
func (c *Container) outcomeSinks() []renamesvc.OutcomeSink {
	switch {
	case c.Adapters.OutcomeProducer != nil:
		return []renamesvc.OutcomeSink{c.Adapters.OutcomeProducer}
	case c.Adapters.History != nil:
		return []renamesvc.OutcomeSink{c.Adapters.History}
	default:
		return nil
	}
}

func (c *Container) provideHealthHandler() *health.Handler {
	components := []health.Component{
		{Name: "postgres", Checker: c.PG},
		{Name: "redis", Checker: c.Redis},
		{
			Name:     "ffmpeg",
			Optional: true,
			Checker: health.CheckerFunc(func(context.Context) error {
				if !c.Adapters.FFmpeg.IsAvailable() {
					return errors.Wrapf(errors.ErrUnavailable, "ffmpeg not found")
				}
				return nil
			}),
		},
	}
	if c.CH != nil {
		components = append(components, health.Component{Name: "clickhouse", Checker: c.CH, Optional: true})
	}
	return health.New(c.Log, c.Config.App.Name, c.Config.App.Version, components...)
}

func provideTemplates(cfg *config.Config, log *logger.Logger) (*telegram.TemplateRendererAdapter, error) {
	registry := templates.Get()
	if dir := cfg.App.TemplatesDir; dir != "" {
		var err error
		if registry, err = templates.NewRegistry(dir); err != nil {
			return nil, err
		}
		log.Infow("✓ Using message templates from disk", "dir", dir)
	}

	renderer := telegram.NewTemplateRendererAdapter(registry)
	if err := renderer.Validate(); err != nil {
		return nil, err
	}
	return renderer, nil
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideTelegramBot(cfg *config.Config, log *logger.Logger) (*tgbotapi.Bot, error) {
	return tgbotapi.NewBot(tgbotapi.Config{
		Token:          cfg.Telegram.BotToken,
		APIEndpoint:    cfg.Telegram.APIEndpoint,
		Debug:          cfg.App.Debug,
		WebhookMode:    cfg.Telegram.WebhookURL != "",
		HTTPTimeout:    cfg.Telegram.HTTPTimeout,
		FileTimeout:    cfg.Telegram.FileTimeout,
		RateLimitBurst: cfg.Telegram.RateBurst,
		RateLimitRate:  cfg.Telegram.RateLimit,
	}, log)
}

func provideHTTPServer(
	cfg *config.Config,
	healthHandler *health.Handler,
	bot *tgbotapi.Bot,
	log *logger.Logger,
) *api.Server {
	var webhookHandler *tgapi.WebhookHandler
	if cfg.Telegram.WebhookURL != "" {
		webhookHandler = tgapi.NewWebhookHandler(bot, bot, log)
		log.Infow("✓ Telegram webhook mode enabled", "url", cfg.Telegram.WebhookURL)
	} else {
		log.Info("✓ Telegram polling mode enabled")
	}

	return api.NewServer(api.ServerConfig{
		Port:            cfg.HTTP.Port,
		ServiceName:     cfg.App.Name,
		Version:         cfg.App.Version,
		TelegramWebhook: webhookHandler,
	}, healthHandler, log)
}
