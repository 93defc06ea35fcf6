package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
app_name: keyvault-test
run_mode: release
server:
  host: 127.0.0.1
  port: 9090
logger:
  level: 5
  format: text
  output: stderr
data:
  database:
    driver: sqlite3
    source: "file:test.db"
  redis:
    addr: localhost:6379
  kafka:
    brokers: ["k1:9092", "k2:9092"]
    topic: keyvault.events
auth:
  jwt:
    secret: s3cret
authority:
  cache:
    driver: redis
    ttl: 30s
event:
  store: mongo
  workers: 2
observes:
  sentry:
    endpoint: https://key@sentry.example.com/1
    sample_rate: 0.5
  tracer:
    endpoint: otel:4317
    insecure: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "keyvault-test", cfg.AppName)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5, cfg.Logger.Level)
	assert.Equal(t, "text", cfg.Logger.Format)
	assert.True(t, cfg.Logger.Desensitization.Enabled)
	assert.Equal(t, "sqlite3", cfg.Data.Database.Driver)
	assert.Equal(t, "localhost:6379", cfg.Data.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Data.Kafka.Brokers)
	assert.Equal(t, "events", cfg.Data.MongoDB.Collection)
	assert.Equal(t, "s3cret", cfg.Auth.JWT.Secret)
	assert.Equal(t, "redis", cfg.Authority.CacheDriver)
	assert.Equal(t, 30*time.Second, cfg.Authority.CacheTTL)
	assert.Equal(t, "mongo", cfg.Event.Store)
	assert.Equal(t, 2, cfg.Event.Workers)
	assert.Equal(t, 1000, cfg.Event.Buffer)
	assert.Equal(t, "https://key@sentry.example.com/1", cfg.Observes.Sentry.Endpoint)
	assert.Equal(t, 0.5, cfg.Observes.Sentry.SampleRate)
	assert.Equal(t, "otel:4317", cfg.Observes.Tracer.Endpoint)
	assert.True(t, cfg.Observes.Tracer.Insecure)
	assert.Equal(t, 1.0, cfg.Observes.Tracer.SamplingRate)

	loaded, err := GetConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, loaded)
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "app_name: minimal\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.IsProd())
	assert.Equal(t, "postgres", cfg.Data.Database.Driver)
	assert.Equal(t, "memory", cfg.Authority.CacheDriver)
	assert.Equal(t, 10*time.Minute, cfg.Authority.CacheTTL)
	assert.Equal(t, "sql", cfg.Event.Store)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Empty(t, cfg.Observes.Sentry.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.Observes.Tracer.BatchTimeout)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("KEYVAULT_AUTH_JWT_SECRET", "from-env")
	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWT.Secret)
}

func TestReload(t *testing.T) {
	p := writeConfig(t, sample)
	_, err := LoadConfig(p)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("app_name: changed\n"), 0o600))
	require.NoError(t, Reload())

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "changed", cfg.AppName)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
