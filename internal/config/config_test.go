package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves the test into an empty directory so no stray .env is read.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", cfg.Storefront.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StaleTime)
	assert.Equal(t, 10*time.Minute, cfg.Cache.GCTime)
	assert.Equal(t, "local", cfg.Cache.Provider)
	assert.Equal(t, "json", cfg.Cache.Codec)
	assert.Equal(t, 1<<20, cfg.Cache.MaxDecode)
	assert.Equal(t, 500*time.Millisecond, cfg.UI.PrefetchDelay)
	assert.Equal(t, "zap", cfg.App.LogBackend)
	assert.Equal(t, 0.2, cfg.Mock.FailRate)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("CACHE_PROVIDER", "ristretto")
	t.Setenv("CACHE_STALE_TIME", "30s")
	t.Setenv("LOG_BACKEND", "slog")
	t.Setenv("CACHE_MAX_DECODE", "4096")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ristretto", cfg.Cache.Provider)
	assert.Equal(t, 4096, cfg.Cache.MaxDecode)
	assert.Equal(t, 30*time.Second, cfg.Cache.StaleTime)
	assert.Equal(t, "slog", cfg.App.LogBackend)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MOCK_ADDR=:7070\nCACHE_CODEC=cbor\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("MOCK_ADDR")
		_ = os.Unsetenv("CACHE_CODEC")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Mock.Addr)
	assert.Equal(t, "cbor", cfg.Cache.Codec)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	chdir(t)
	t.Setenv("CACHE_PROVIDER", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_PROVIDER")
}

func TestLoadRejectsNegativeMaxDecode(t *testing.T) {
	chdir(t)
	t.Setenv("CACHE_MAX_DECODE", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_MAX_DECODE")
}
