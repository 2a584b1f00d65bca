package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adatry/adatry/internal/errors"
)

const validYAML = `
version: "1.0"
server:
  host: 127.0.0.1
  http_port: 8412
api:
  enabled: true
storage:
  backend: memory
live:
  interval: 10s
  batch_limit: 3
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8412, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 10*time.Second, cfg.Live.Interval)
	assert.Equal(t, 3, cfg.Live.BatchLimit)
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("version: \"1.0\"\nserver:\n  host: localhost\n"))
	require.NoError(t, err)

	assert.Equal(t, 8412, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Live.Interval)
	assert.Equal(t, 3, cfg.Live.BatchLimit)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "adatry.db", cfg.Storage.Path)
	assert.NotEmpty(t, cfg.Providers.Gemini.Model)
	assert.NotEmpty(t, cfg.Providers.Qwen.Endpoint)
	assert.Equal(t, 5*time.Minute, cfg.Providers.Wardrobe.ItemCacheTTL)
}

func TestParseMissingVersion(t *testing.T) {
	_, err := Parse([]byte("server:\n  host: localhost\n"))
	require.Error(t, err)

	var verr *apperrors.ErrConfigValidation
	assert.ErrorAs(t, err, &verr)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("version: [unclosed"))
	require.Error(t, err)

	var perr *apperrors.ErrConfigParse
	assert.ErrorAs(t, err, &perr)
}

func TestValidateBadBackend(t *testing.T) {
	_, err := Parse([]byte("version: \"1.0\"\nserver:\n  host: localhost\nstorage:\n  backend: redis\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend must be one of")
}

func TestValidateAuthRequiresKeys(t *testing.T) {
	yaml := `
version: "1.0"
server:
  host: localhost
api:
  auth:
    enabled: true
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_keys is required")
}

func TestValidateCredSyncRequiresDir(t *testing.T) {
	yaml := `
version: "1.0"
server:
  host: localhost
credsync:
  enabled: true
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dir is required")
}

func TestLoaderLoadMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := loader.Load()
	require.Error(t, err)

	var nf *apperrors.ErrConfigNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestLoaderLoadAndGet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, loader.Get())
}

func TestLoaderEnvSubstitution(t *testing.T) {
	t.Setenv("ADATRY_TEST_HOST", "10.0.0.5")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "version: \"1.0\"\nserver:\n  host: ${ADATRY_TEST_HOST}\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
}

func TestLoaderReloadCallsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	called := false
	loader.SetOnChange(func(c *Config) { called = true })

	_, err = loader.Reload()
	require.NoError(t, err)
	assert.True(t, called)
}
