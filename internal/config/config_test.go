package config

import (
	"errors"
	"os"
	"path/filepath"
	"robotfleet/internal/apperrors"
	"robotfleet/internal/validation"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:4000", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, float64(1), cfg.Defaults.Meters)
	assert.Equal(t, float64(60000), cfg.Defaults.IntervalMs)
	assert.Equal(t, float64(20), cfg.Defaults.RobotCount)
	assert.Equal(t, validation.Range{Min: 0.1, Max: 10000}, cfg.Bounds.Meters)
	assert.Equal(t, validation.Range{Min: 100, Max: 3_600_000}, cfg.Bounds.IntervalMs)
	assert.Equal(t, validation.Range{Min: 1, Max: 10000}, cfg.Bounds.RobotCount)
	assert.Equal(t, 1, cfg.ListPolicy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.ListPolicy.RetryDelay)
	assert.Equal(t, 2, cfg.CommandPolicy.MaxRetries)
	assert.Equal(t, time.Second, cfg.CommandPolicy.RetryDelay)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.True(t, cfg.AssumeAutoRunning)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "fleet.yaml", `
baseURL: http://robots.internal:4000
httpTimeout: 3s
defaults:
  meters: 2.5
  robotCount: 40
bounds:
  robotCount:
    min: 1
    max: 50
listPolicy:
  maxRetries: 3
  retryDelay: 250ms
pollInterval: 2s
assumeAutoRunning: false
`)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ROBOT_API_URL", "http://override:4000")
	t.Setenv("DEFAULT_ROBOT_COUNT", "45")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://override:4000", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2.5, cfg.Defaults.Meters)
	assert.Equal(t, float64(60000), cfg.Defaults.IntervalMs, "unset keys keep defaults")
	assert.Equal(t, float64(45), cfg.Defaults.RobotCount)
	assert.Equal(t, validation.Range{Min: 1, Max: 50}, cfg.Bounds.RobotCount)
	assert.Equal(t, 3, cfg.ListPolicy.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.ListPolicy.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.False(t, cfg.AssumeAutoRunning)
}

func TestLoad_ConfigFileEnv(t *testing.T) {
	path := writeFile(t, "fleet.yaml", "listenAddr: 0.0.0.0:8095\n")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8095", cfg.ListenAddr)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeFile(t, "bad.yaml", "bounds: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_APIKeyFromFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("API_KEY_FILE", writeFile(t, "key", "s3cret\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.APIKey)
}

func TestValidate_ClampsDefaults(t *testing.T) {
	cfg := Default()
	cfg.Defaults.Meters = 0.01
	cfg.Defaults.IntervalMs = 10_000_000
	cfg.Defaults.RobotCount = 0
	cfg.PollInterval = 10 * time.Millisecond

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.1, cfg.Defaults.Meters)
	assert.Equal(t, float64(3_600_000), cfg.Defaults.IntervalMs)
	assert.Equal(t, float64(1), cfg.Defaults.RobotCount)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
		want   string
	}{
		{"empty base URL", func(c *ClientConfig) { c.BaseURL = "" }, "base URL is required"},
		{"inverted bounds", func(c *ClientConfig) { c.Bounds.Meters = validation.Range{Min: 5, Max: 1} }, "Move meters bounds are invalid"},
		{"negative retries", func(c *ClientConfig) { c.CommandPolicy.MaxRetries = -1 }, "retry count must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
		})
	}
}

func TestRobotAPIAndSession(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "http://robots:4000"

	api := cfg.RobotAPI(nil)
	assert.Equal(t, "http://robots:4000", api.BaseURL)
	require.NotNil(t, api.ListPolicy)
	assert.Equal(t, cfg.ListPolicy, *api.ListPolicy)

	s := cfg.Session()
	assert.Equal(t, cfg.Bounds, s.Bounds)
	assert.Equal(t, cfg.Defaults, s.Defaults)
	assert.True(t, s.AssumeAutoRunning)
}
