package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, "askthedocs", cfg.App.Name)
	assert.Equal(t, 24, cfg.Session.TTLHours)
	assert.Equal(t, 4, cfg.RAG.TopK)
	assert.Equal(t, 512, cfg.RAG.ChunkSize)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.RabbitMQ.URL)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = 9000

[session]
ttl_hours = 12

[rag]
top_k = 8
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SESSION_TTL_HOURS", "6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, 8, cfg.RAG.TopK)
	// env wins over the file
	assert.Equal(t, 6, cfg.Session.TTLHours)
	assert.Equal(t, 6*time.Hour, cfg.SessionTTL())
	// untouched keys keep their defaults
	assert.Equal(t, "askthedocs", cfg.App.Name)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
}

func TestHelperDurations(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL())
	assert.Equal(t, 30*time.Minute, cfg.SweepInterval())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestEnvAsIntIgnoresGarbage(t *testing.T) {
	t.Setenv("APP_PORT", "not-a-number")

	cfg := defaultConfig()
	overrideByEnv(cfg)
	assert.Equal(t, 8080, cfg.App.Port)
}
