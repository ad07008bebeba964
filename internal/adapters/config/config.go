package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"renamebot/pkg/errors"
)

const (
	// MiB is used for the size limit defaults below
	MiB int64 = 1 << 20
	// GiB is used for the size limit defaults below
	GiB int64 = 1 << 30
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Telegram      TelegramConfig
	Rename        RenameConfig
	FFmpeg        FFmpegConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ClickHouse    ClickHouseConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"renamebot"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	// TemplatesDir replaces the embedded message templates with a directory
	// laid out like pkg/templates/assets
	TemplatesDir string `envconfig:"TEMPLATES_DIR"`
}

type HTTPConfig struct {
	Port            int           `envconfig:"HTTP_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

type TelegramConfig struct {
	BotToken   string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	WebhookURL string  `envconfig:"TELEGRAM_WEBHOOK_URL"`
	AdminIDs   []int64 `envconfig:"TELEGRAM_ADMIN_IDS"`
	// APIEndpoint points at a self-hosted Bot API server; when set the bot can
	// move files beyond the public API limits
	APIEndpoint string        `envconfig:"TELEGRAM_API_ENDPOINT"`
	HTTPTimeout time.Duration `envconfig:"TELEGRAM_HTTP_TIMEOUT" default:"30s"`
	// FileTimeout bounds a single download or upload request
	FileTimeout time.Duration `envconfig:"TELEGRAM_FILE_TIMEOUT" default:"2h"`
	RateLimit   int           `envconfig:"TELEGRAM_RATE_LIMIT" default:"20"` // outgoing API calls per second
	RateBurst   int           `envconfig:"TELEGRAM_RATE_BURST" default:"30"`
	// CommandsPerMinute throttles slash commands per user
	CommandsPerMinute int `envconfig:"TELEGRAM_COMMANDS_PER_MINUTE" default:"30"`
}

// HighCapacity reports whether uploads go through a self-hosted Bot API server
func (c TelegramConfig) HighCapacity() bool {
	return c.APIEndpoint != ""
}

// IsAdmin reports whether the telegram user is listed in TELEGRAM_ADMIN_IDS
func (c TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type RenameConfig struct {
	TempDir        string        `envconfig:"RENAME_TEMP_DIR" default:""`
	SessionTTL     time.Duration `envconfig:"RENAME_SESSION_TTL" default:"30m"`
	SweepThreshold int           `envconfig:"RENAME_SWEEP_THRESHOLD" default:"100"`
	SweepInterval  time.Duration `envconfig:"RENAME_SWEEP_INTERVAL" default:"1m"`
	// WorkspaceMaxAge is how long an untouched transfer directory survives
	// before the janitor removes it (leftovers of a crash)
	WorkspaceMaxAge   time.Duration `envconfig:"RENAME_WORKSPACE_MAX_AGE" default:"6h"`
	BaseSizeLimit     int64         `envconfig:"RENAME_BASE_SIZE_LIMIT" default:"2097152000"`
	ElevatedSizeLimit int64         `envconfig:"RENAME_ELEVATED_SIZE_LIMIT" default:"4294967296"`
	ProgressInterval  time.Duration `envconfig:"RENAME_PROGRESS_INTERVAL" default:"3s"`
	// StepTimeout caps each download/transform/upload step; 0 disables the cap
	StepTimeout time.Duration `envconfig:"RENAME_STEP_TIMEOUT" default:"2h"`
}

type FFmpegConfig struct {
	FFmpegPath  string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string        `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	Timeout     time.Duration `envconfig:"FFMPEG_TIMEOUT" default:"10m"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string        `envconfig:"REDIS_HOST" required:"true"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_PREFERENCES_TTL" default:"10m"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig is optional: without brokers rename events are not published
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_RENAME_TOPIC" default:"rename.outcomes"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"renamebot-history"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// ClickHouseConfig is optional: without a host rename history is not recorded
type ClickHouseConfig struct {
	Host          string        `envconfig:"CLICKHOUSE_HOST"`
	Port          int           `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User          string        `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password      string        `envconfig:"CLICKHOUSE_PASSWORD"`
	Database      string        `envconfig:"CLICKHOUSE_DB" default:"renamebot"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"5s"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"200"`
}

func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Rename.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects rename settings the orchestrator cannot work with
func (c RenameConfig) Validate() error {
	switch {
	case c.SessionTTL <= 0:
		return errors.NewValidationError("RENAME_SESSION_TTL", "must be positive", c.SessionTTL)
	case c.BaseSizeLimit <= 0:
		return errors.NewValidationError("RENAME_BASE_SIZE_LIMIT", "must be positive", c.BaseSizeLimit)
	case c.ElevatedSizeLimit < c.BaseSizeLimit:
		return errors.NewValidationError("RENAME_ELEVATED_SIZE_LIMIT", "must not be below the base limit", c.ElevatedSizeLimit)
	case c.StepTimeout < 0:
		return errors.NewValidationError("RENAME_STEP_TIMEOUT", "must not be negative", c.StepTimeout)
	}
	return nil
}
