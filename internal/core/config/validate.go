package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/orderbell/internal/core/styles"
)

var (
	backends = []string{BackendSQLite, BackendRedis, BackendFile, BackendMemory}
	sources  = []string{SourceNone, SourcePostgres, SourceKafka, SourceWebSocket, SourceRedis, SourceSpool}
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Validate checks that the configuration is structurally valid. Fields are
// reported as criterio field errors keyed by their YAML path.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.DataDir == "" {
		errs = errs.Append("data_dir", errors.New("cannot be empty"))
	}

	if c.Engine.MaxLogSize < 1 {
		errs = errs.Append("engine.max_log_size", errors.New("must be at least 1"))
	}
	if c.Engine.ToastTTL <= 0 {
		errs = errs.Append("engine.toast_ttl", errors.New("must be positive"))
	}
	if c.Engine.MaxToasts < 0 {
		errs = errs.Append("engine.max_toasts", errors.New("cannot be negative"))
	}
	if strings.TrimSpace(c.Engine.PersistKey) == "" {
		errs = errs.Append("engine.persist_key", errors.New("cannot be empty"))
	}

	if !slices.Contains(backends, c.Storage.Backend) {
		errs = errs.Append("storage.backend", fmt.Errorf("unknown backend %q (expected one of %s)", c.Storage.Backend, strings.Join(backends, ", ")))
	}
	if c.Storage.Backend == BackendRedis && c.Storage.Redis.URL == "" {
		errs = errs.Append("storage.redis.url", errors.New("required for the redis backend"))
	}

	if !slices.Contains(sources, c.Feed.Source) {
		errs = errs.Append("feed.source", fmt.Errorf("unknown source %q (expected one of %s)", c.Feed.Source, strings.Join(sources, ", ")))
	}
	if c.Feed.Table == "" {
		errs = errs.Append("feed.table", errors.New("cannot be empty"))
	}
	if c.Feed.Backoff.Max < c.Feed.Backoff.Initial {
		errs = errs.Append("feed.backoff.max", errors.New("must not be smaller than feed.backoff.initial"))
	}
	if c.Feed.Backoff.MaxAttempts < 0 {
		errs = errs.Append("feed.backoff.max_attempts", errors.New("cannot be negative"))
	}

	switch c.Feed.Source {
	case SourcePostgres:
		if c.Feed.Postgres.DSN == "" {
			errs = errs.Append("feed.postgres.dsn", errors.New("required for the postgres source"))
		}
	case SourceKafka:
		if len(c.Feed.Kafka.Brokers) == 0 {
			errs = errs.Append("feed.kafka.brokers", errors.New("required for the kafka source"))
		}
		if c.Feed.Kafka.Topic == "" {
			errs = errs.Append("feed.kafka.topic", errors.New("required for the kafka source"))
		}
	case SourceWebSocket:
		if c.Feed.WebSocket.URL == "" {
			errs = errs.Append("feed.websocket.url", errors.New("required for the websocket source"))
		}
	case SourceRedis:
		if c.Feed.Redis.URL == "" {
			errs = errs.Append("feed.redis.url", errors.New("required for the redis source"))
		}
	}

	if c.Server.Addr == "" {
		errs = errs.Append("server.addr", errors.New("cannot be empty"))
	}

	if _, ok := styles.GetPalette(c.TUI.Theme); !ok {
		errs = errs.Append("tui.theme", fmt.Errorf("unknown theme %q (expected one of %s)", c.TUI.Theme, strings.Join(styles.ThemeNames(), ", ")))
	}

	return errs.ToError()
}

// ValidateDeep performs comprehensive validation of the configuration
// including URL syntax, glob patterns and file accessibility. The configPath
// argument specifies the config file location to validate (empty string
// skips config file check). This calls Validate() first for basic structural
// validation, then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		c.validateURLs(),
		criterio.Run("feed.spool.pattern", c.Feed.Spool.Pattern, validGlob),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Storage.Backend == BackendMemory {
		warnings = append(warnings, ValidationWarning{
			Category: "Storage",
			Item:     "backend",
			Message:  "memory backend does not survive restarts",
		})
	}

	if c.Feed.Source == SourceNone {
		warnings = append(warnings, ValidationWarning{
			Category: "Feed",
			Item:     "source",
			Message:  "no feed configured; notifications only arrive through the API",
		})
	}

	if c.Engine.MaxToasts == 0 && c.Engine.ToastTTL > 30*time.Second {
		warnings = append(warnings, ValidationWarning{
			Category: "Engine",
			Item:     "toast_ttl",
			Message:  "long toast ttl with unbounded max_toasts can stack many toasts",
		})
	}

	return warnings
}

func (c *Config) validateURLs() error {
	var errs criterio.FieldErrorsBuilder

	check := func(field, raw string, schemes ...string) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err != nil {
			errs = errs.Append(field, fmt.Errorf("invalid url: %w", err))
			return
		}
		if !slices.Contains(schemes, u.Scheme) {
			errs = errs.Append(field, fmt.Errorf("unsupported scheme %q (expected one of %s)", u.Scheme, strings.Join(schemes, ", ")))
		}
	}

	check("storage.redis.url", c.Storage.Redis.URL, "redis", "rediss")
	check("feed.redis.url", c.Feed.Redis.URL, "redis", "rediss")
	check("feed.websocket.url", c.Feed.WebSocket.URL, "ws", "wss")
	check("feed.postgres.dsn", c.Feed.Postgres.DSN, "postgres", "postgresql")
	check("tui.server", c.TUI.Server, "http", "https")

	return errs.ToError()
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

func validGlob(pattern string) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid glob %q", pattern)
	}
	return nil
}
