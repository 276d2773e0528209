package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10000, cfg.Index.OffloadThreshold)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.True(t, cfg.Search.PrecacheStopWords)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
index:
  offloadThreshold: 50
  workers: 2
redis:
  cacheTTL: 5m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Index.OffloadThreshold)
	assert.Equal(t, 2, cfg.Index.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	// Untouched sections keep defaults.
	assert.Equal(t, 10, cfg.Search.MaxResults)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WS_SERVER_PORT", "7070")
	t.Setenv("WS_CORPUS_DIR", "/data/corpus")
	t.Setenv("WS_INDEX_OFFLOAD_THRESHOLD", "123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/data/corpus", cfg.Corpus.Dir)
	assert.Equal(t, 123, cfg.Index.OffloadThreshold)
}

func TestValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  offloadThreshold: 0\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, User: "svc", Password: "secret",
		Database: "websearch", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=svc password=secret dbname=websearch sslmode=disable", p.DSN())
}
