// Package config handles configuration loading and validation for orderbell.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/styles"
	"github.com/hay-kot/orderbell/internal/core/toast"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Feed sources. SourceNone runs the engine without an upstream feed.
const (
	SourceNone      = "none"
	SourcePostgres  = "postgres"
	SourceKafka     = "kafka"
	SourceWebSocket = "websocket"
	SourceRedis     = "redis"
	SourceSpool     = "spool"
)

// Config holds the application configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Feed    FeedConfig    `yaml:"feed"`
	Server  ServerConfig  `yaml:"server"`
	TUI     TUIConfig     `yaml:"tui"`
	DataDir string        `yaml:"-"` // set by caller, not from config file
}

// EngineConfig sizes the notification log and the toast queue.
type EngineConfig struct {
	MaxLogSize int           `yaml:"max_log_size"`
	ToastTTL   time.Duration `yaml:"toast_ttl"`
	MaxToasts  int           `yaml:"max_toasts"` // 0 = unbounded
	PersistKey string        `yaml:"persist_key"`
}

// StorageConfig selects where the notification log is persisted.
type StorageConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"` // file backend; defaults to <data-dir>/notifications.json
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Redis   RedisKVConfig `yaml:"redis"`
}

// SQLiteConfig holds connection pool settings for the sqlite backend.
type SQLiteConfig struct {
	FileName     string `yaml:"file_name"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	BusyTimeout  int    `yaml:"busy_timeout"` // milliseconds
}

// RedisKVConfig configures the redis storage backend.
type RedisKVConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// FeedConfig selects and configures the upstream change feed.
type FeedConfig struct {
	Source    string        `yaml:"source"`
	Schema    string        `yaml:"schema"`
	Table     string        `yaml:"table"`
	Backoff   BackoffConfig `yaml:"backoff"`
	Postgres  PostgresFeed  `yaml:"postgres"`
	Kafka     KafkaFeed     `yaml:"kafka"`
	WebSocket WebSocketFeed `yaml:"websocket"`
	Redis     RedisFeed     `yaml:"redis"`
	Spool     SpoolFeed     `yaml:"spool"`
}

// BackoffConfig bounds the reconnect delay. MaxAttempts of 0 retries forever.
type BackoffConfig struct {
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// PostgresFeed listens on a NOTIFY channel fed by the orders trigger.
type PostgresFeed struct {
	DSN     string `yaml:"dsn"`
	Channel string `yaml:"channel"`
}

// KafkaFeed consumes a Debezium change topic.
type KafkaFeed struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// WebSocketFeed connects to a realtime endpoint that pushes row changes.
type WebSocketFeed struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// RedisFeed subscribes to a pub/sub channel carrying change payloads.
type RedisFeed struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// SpoolFeed watches a directory for change files.
type SpoolFeed struct {
	Dir     string `yaml:"dir"` // defaults to <data-dir>/spool
	Pattern string `yaml:"pattern"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Metrics         bool          `yaml:"metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TUIConfig configures the terminal render layer.
type TUIConfig struct {
	Theme string `yaml:"theme"`
	// Server is the API the tui attaches to; empty runs an embedded engine.
	Server string `yaml:"server"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			MaxLogSize: notify.DefaultMaxSize,
			ToastTTL:   toast.DefaultTTL,
			PersistKey: notify.DefaultKey,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			SQLite: SQLiteConfig{
				FileName:     "orderbell.db",
				MaxOpenConns: 4,
				MaxIdleConns: 2,
				BusyTimeout:  5000,
			},
			Redis: RedisKVConfig{Prefix: "orderbell:"},
		},
		Feed: FeedConfig{
			Source: SourceNone,
			Schema: feed.DefaultFilter.Schema,
			Table:  feed.DefaultFilter.Table,
			Backoff: BackoffConfig{
				Initial: feed.DefaultInitialBackoff,
				Max:     feed.DefaultMaxBackoff,
			},
			Postgres: PostgresFeed{Channel: "orderbell_changes"},
			Kafka:    KafkaFeed{GroupID: "orderbell"},
			Redis:    RedisFeed{Channel: "orderbell:changes"},
			Spool:    SpoolFeed{Pattern: "**/*.json"},
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7420",
			Metrics:         true,
			ShutdownTimeout: 5 * time.Second,
		},
		TUI: TUIConfig{Theme: styles.DefaultTheme},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided
// dataDir. A .env file next to the config file, or in the working directory,
// is loaded first so ${VAR} references in the YAML resolve.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if err := loadDotEnv(configPath); err != nil {
		return nil, err
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads the first .env file found. Variables already set in the
// environment win.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Engine.MaxLogSize == 0 {
		c.Engine.MaxLogSize = defaults.Engine.MaxLogSize
	}
	if c.Engine.ToastTTL == 0 {
		c.Engine.ToastTTL = defaults.Engine.ToastTTL
	}
	if c.Engine.PersistKey == "" {
		c.Engine.PersistKey = defaults.Engine.PersistKey
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Storage.SQLite.FileName == "" {
		c.Storage.SQLite.FileName = defaults.Storage.SQLite.FileName
	}
	if c.Storage.SQLite.MaxOpenConns == 0 {
		c.Storage.SQLite.MaxOpenConns = defaults.Storage.SQLite.MaxOpenConns
	}
	if c.Storage.SQLite.MaxIdleConns == 0 {
		c.Storage.SQLite.MaxIdleConns = defaults.Storage.SQLite.MaxIdleConns
	}
	if c.Storage.SQLite.BusyTimeout == 0 {
		c.Storage.SQLite.BusyTimeout = defaults.Storage.SQLite.BusyTimeout
	}

	if c.Feed.Source == "" {
		c.Feed.Source = defaults.Feed.Source
	}
	if c.Feed.Schema == "" {
		c.Feed.Schema = defaults.Feed.Schema
	}
	if c.Feed.Table == "" {
		c.Feed.Table = defaults.Feed.Table
	}
	if c.Feed.Backoff.Initial == 0 {
		c.Feed.Backoff.Initial = defaults.Feed.Backoff.Initial
	}
	if c.Feed.Backoff.Max == 0 {
		c.Feed.Backoff.Max = defaults.Feed.Backoff.Max
	}
	if c.Feed.Postgres.Channel == "" {
		c.Feed.Postgres.Channel = defaults.Feed.Postgres.Channel
	}
	if c.Feed.Kafka.GroupID == "" {
		c.Feed.Kafka.GroupID = defaults.Feed.Kafka.GroupID
	}
	if c.Feed.Redis.Channel == "" {
		c.Feed.Redis.Channel = defaults.Feed.Redis.Channel
	}
	if c.Feed.Spool.Pattern == "" {
		c.Feed.Spool.Pattern = defaults.Feed.Spool.Pattern
	}

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if c.TUI.Theme == "" {
		c.TUI.Theme = defaults.TUI.Theme
	}
}

// Filter returns the table filter configured for the feed.
func (c *Config) Filter() feed.Filter {
	return feed.Filter{Schema: c.Feed.Schema, Table: c.Feed.Table}
}

// FileStorePath returns the path of the JSON document used by the file
// backend.
func (c *Config) FileStorePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, "notifications.json")
}

// SpoolDir returns the directory watched by the spool feed.
func (c *Config) SpoolDir() string {
	if c.Feed.Spool.Dir != "" {
		return c.Feed.Spool.Dir
	}
	return filepath.Join(c.DataDir, "spool")
}
