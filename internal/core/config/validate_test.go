package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	return &cfg
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	names := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		names[i] = fe.Field
	}
	return names
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		fields []string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:   "empty data dir",
			mutate: func(c *Config) { c.DataDir = "" },
			fields: []string{"data_dir"},
		},
		{
			name: "engine bounds",
			mutate: func(c *Config) {
				c.Engine.MaxLogSize = 0
				c.Engine.ToastTTL = -time.Second
				c.Engine.MaxToasts = -1
			},
			fields: []string{"engine.max_log_size", "engine.toast_ttl", "engine.max_toasts"},
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Storage.Backend = "floppy" },
			fields: []string{"storage.backend"},
		},
		{
			name:   "redis backend needs url",
			mutate: func(c *Config) { c.Storage.Backend = BackendRedis },
			fields: []string{"storage.redis.url"},
		},
		{
			name:   "unknown source",
			mutate: func(c *Config) { c.Feed.Source = "carrier-pigeon" },
			fields: []string{"feed.source"},
		},
		{
			name:   "postgres needs dsn",
			mutate: func(c *Config) { c.Feed.Source = SourcePostgres },
			fields: []string{"feed.postgres.dsn"},
		},
		{
			name:   "kafka needs brokers and topic",
			mutate: func(c *Config) { c.Feed.Source = SourceKafka },
			fields: []string{"feed.kafka.brokers", "feed.kafka.topic"},
		},
		{
			name:   "websocket needs url",
			mutate: func(c *Config) { c.Feed.Source = SourceWebSocket },
			fields: []string{"feed.websocket.url"},
		},
		{
			name:   "redis feed needs url",
			mutate: func(c *Config) { c.Feed.Source = SourceRedis },
			fields: []string{"feed.redis.url"},
		},
		{
			name:   "spool needs nothing",
			mutate: func(c *Config) { c.Feed.Source = SourceSpool },
		},
		{
			name: "backoff order",
			mutate: func(c *Config) {
				c.Feed.Backoff.Initial = time.Minute
				c.Feed.Backoff.Max = time.Second
			},
			fields: []string{"feed.backoff.max"},
		},
		{
			name:   "unknown theme",
			mutate: func(c *Config) { c.TUI.Theme = "neon" },
			fields: []string{"tui.theme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.ElementsMatch(t, tt.fields, fieldNames(t, err))
		})
	}
}

func TestValidateDeep_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Feed.Source = SourceWebSocket
	cfg.Feed.WebSocket.URL = "wss://realtime.example.com/socket"

	assert.NoError(t, cfg.ValidateDeep(""))
}

func TestValidateDeep_BadURLScheme(t *testing.T) {
	cfg := validConfig(t)
	cfg.Feed.Source = SourceRedis
	cfg.Feed.Redis.URL = "http://localhost:6379"

	assert.Equal(t, []string{"feed.redis.url"}, fieldNames(t, cfg.ValidateDeep("")))
}

func TestValidateDeep_BadGlob(t *testing.T) {
	cfg := validConfig(t)
	cfg.Feed.Spool.Pattern = "[*.json"

	assert.Equal(t, []string{"feed.spool.pattern"}, fieldNames(t, cfg.ValidateDeep("")))
}

func TestValidateDeep_DataDirIsFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.DataDir = file

	assert.Equal(t, []string{"data_dir"}, fieldNames(t, cfg.ValidateDeep("")))
}

func TestValidateDeep_ConfigPathIsDirectory(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, []string{"config_file"}, fieldNames(t, cfg.ValidateDeep(t.TempDir())))
}

func TestWarnings(t *testing.T) {
	cfg := validConfig(t)
	warnings := cfg.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Feed", warnings[0].Category)

	cfg.Storage.Backend = BackendMemory
	cfg.Feed.Source = SourceSpool
	cfg.Engine.ToastTTL = time.Minute
	warnings = cfg.Warnings()
	require.Len(t, warnings, 2)
	assert.Equal(t, "Storage", warnings[0].Category)
	assert.Equal(t, "Engine", warnings[1].Category)
}
