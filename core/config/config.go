package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// PlatformSynology serves Synology Chat outgoing webhooks.
	PlatformSynology = "synology"
	// PlatformTelegram runs the bot over the Telegram Bot API.
	PlatformTelegram = "telegram"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// DriverSQLite stores statistics in a local SQLite file.
	DriverSQLite = "sqlite"
	// DriverPostgres stores statistics in PostgreSQL.
	DriverPostgres = "postgres"
)

// AppConfig holds bot identity and platform selection.
type AppConfig struct {
	Name     string `yaml:"name" envconfig:"BOT_NAME"`
	Platform string `yaml:"platform" envconfig:"BOT_PLATFORM"`
}

// ServerConfig configures the HTTP listener serving the webhook and the stats API.
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"FLASK_HOST"`
	Port int    `yaml:"port" envconfig:"FLASK_PORT"`
	// ShutdownTimeoutSeconds bounds graceful shutdown; 0 -> default
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" envconfig:"SERVER_SHUTDOWN_TIMEOUT_SECONDS"`
}

// SynologyConfig describes the Synology Chat incoming webhook used for replies.
type SynologyConfig struct {
	IncomingURL        string `yaml:"incoming_url" envconfig:"SYNOLOGY_INCOMING_URL"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" envconfig:"SYNOLOGY_INSECURE_SKIP_VERIFY"`
	TimeoutSeconds     int    `yaml:"timeout_seconds" envconfig:"SYNOLOGY_TIMEOUT_SECONDS"`
	AsyncDelivery      bool   `yaml:"async_delivery" envconfig:"SYNOLOGY_ASYNC_DELIVERY"`
}

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies Telegram webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// KnowledgeBaseConfig points at the knowledge base source.
type KnowledgeBaseConfig struct {
	Path string `yaml:"path" envconfig:"KB_PATH"`
	// ReloadIntervalSeconds enables mtime polling; 0 disables the watcher.
	ReloadIntervalSeconds int `yaml:"reload_interval_seconds" envconfig:"KB_RELOAD_INTERVAL_SECONDS"`
}

// SessionConfig controls in-memory session lifetime.
type SessionConfig struct {
	// IdleTTLMinutes evicts sessions idle for longer; 0 keeps them forever.
	IdleTTLMinutes       int `yaml:"idle_ttl_minutes" envconfig:"SESSION_IDLE_TTL_MINUTES"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" envconfig:"SESSION_SWEEP_INTERVAL_SECONDS"`
}

// ConversationConfig overrides the command vocabulary.
type ConversationConfig struct {
	ResetKeywords []string `yaml:"reset_keywords" envconfig:"CONVERSATION_RESET_KEYWORDS"`
	BackKeywords  []string `yaml:"back_keywords" envconfig:"CONVERSATION_BACK_KEYWORDS"`
}

// StatsConfig tunes asynchronous statistics recording.
type StatsConfig struct {
	Enabled        bool `yaml:"enabled" envconfig:"STATS_ENABLED"`
	QueueSize      int  `yaml:"queue_size" envconfig:"STATS_QUEUE_SIZE"`
	Workers        int  `yaml:"workers" envconfig:"STATS_WORKERS"`
	MaxRetries     int  `yaml:"max_retries" envconfig:"STATS_MAX_RETRIES"`
	RetryBackoffMS int  `yaml:"retry_backoff_ms" envconfig:"STATS_RETRY_BACKOFF_MS"`
	RecentLimit    int  `yaml:"recent_limit" envconfig:"STATS_RECENT_LIMIT"`
}

// DatabaseConfig holds statistics database connection settings.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file" envconfig:"LOG_FILE"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// Config aggregates the whole bot configuration.
type Config struct {
	App           AppConfig           `yaml:"app"`
	Server        ServerConfig        `yaml:"server"`
	Synology      SynologyConfig      `yaml:"synology"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Session       SessionConfig       `yaml:"session"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Stats         StatsConfig         `yaml:"stats"`
	Database      DatabaseConfig      `yaml:"database"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Defaults returns the configuration used when neither file nor env override a field.
func Defaults() Config {
	return Config{
		App:           AppConfig{Name: "ИнструкторБот", Platform: PlatformSynology},
		Server:        ServerConfig{Host: "0.0.0.0", Port: 5000, ShutdownTimeoutSeconds: 10},
		Synology:      SynologyConfig{InsecureSkipVerify: true, TimeoutSeconds: 30},
		KnowledgeBase: KnowledgeBaseConfig{Path: "knowledge_base.yaml"},
		Session:       SessionConfig{IdleTTLMinutes: 60, SweepIntervalSeconds: 300},
		Stats: StatsConfig{
			Enabled:        true,
			QueueSize:      256,
			Workers:        2,
			MaxRetries:     2,
			RetryBackoffMS: 200,
			RecentLimit:    10,
		},
		Database: DatabaseConfig{Driver: DriverSQLite, Path: "bot_statistics.db", MaxConnections: 4},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads .env (if any), the YAML file at path (if it exists) and environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// env-only deployment
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.App.Name = strings.TrimSpace(cfg.App.Name)
	if cfg.App.Name == "" {
		cfg.App.Name = Defaults().App.Name
	}

	platform := strings.ToLower(strings.TrimSpace(cfg.App.Platform))
	if platform == "" {
		platform = PlatformSynology
	}
	switch platform {
	case PlatformSynology:
		if strings.TrimSpace(cfg.Synology.IncomingURL) == "" {
			return fmt.Errorf("synology.incoming_url is required when app.platform is 'synology'")
		}
	case PlatformTelegram:
		if err := normalizeTelegram(cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid app.platform %q; allowed: synology, telegram", cfg.App.Platform)
	}
	cfg.App.Platform = platform

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 1..65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}
	if cfg.Synology.TimeoutSeconds <= 0 {
		cfg.Synology.TimeoutSeconds = 30
	}

	if strings.TrimSpace(cfg.KnowledgeBase.Path) == "" {
		return fmt.Errorf("knowledge_base.path is required")
	}
	if cfg.KnowledgeBase.ReloadIntervalSeconds < 0 {
		return fmt.Errorf("knowledge_base.reload_interval_seconds must be >= 0")
	}

	if cfg.Session.IdleTTLMinutes < 0 {
		return fmt.Errorf("session.idle_ttl_minutes must be >= 0")
	}
	if cfg.Session.SweepIntervalSeconds <= 0 {
		cfg.Session.SweepIntervalSeconds = 300
	}

	if cfg.Stats.QueueSize <= 0 {
		cfg.Stats.QueueSize = 256
	}
	if cfg.Stats.Workers <= 0 {
		cfg.Stats.Workers = 2
	}
	if cfg.Stats.MaxRetries < 0 {
		return fmt.Errorf("stats.max_retries must be >= 0")
	}
	if cfg.Stats.RecentLimit <= 0 {
		cfg.Stats.RecentLimit = 10
	}

	if cfg.Stats.Enabled {
		if err := normalizeDatabase(&cfg.Database); err != nil {
			return err
		}
	}
	return nil
}

func normalizeTelegram(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required when app.platform is 'telegram'")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeDatabase(db *DatabaseConfig) error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	if driver == "postgresql" {
		driver = DriverPostgres
	}
	switch driver {
	case DriverSQLite:
		if strings.TrimSpace(db.Path) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres driver")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: sqlite, postgres", db.Driver)
	}
	db.Driver = driver
	if db.MaxConnections <= 0 {
		db.MaxConnections = 4
	}
	return nil
}
