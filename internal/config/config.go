// Package config loads client configuration from built-in defaults, an
// optional YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"robotfleet/internal/apperrors"
	"robotfleet/internal/retry"
	"robotfleet/internal/robotapi"
	"robotfleet/internal/session"
	"robotfleet/internal/validation"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds everything the fleet client needs.
type ClientConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"` // transport bound on a single attempt

	Defaults session.Defaults  `yaml:"defaults"`
	Bounds   validation.Bounds `yaml:"bounds"`

	ListPolicy    retry.Policy `yaml:"listPolicy"`
	CommandPolicy retry.Policy `yaml:"commandPolicy"`

	PollInterval      time.Duration `yaml:"pollInterval"`
	AssumeAutoRunning bool          `yaml:"assumeAutoRunning"` // the service boots in auto mode

	ListenAddr        string        `yaml:"listenAddr"`
	MetricsAddr       string        `yaml:"metricsAddr"`
	APIKeyFile        string        `yaml:"apiKeyFile"`
	APIKey            string        `yaml:"-"`
	ShutdownDrainWait time.Duration `yaml:"shutdownDrainWait"` // 0 to skip

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the built-in configuration.
func Default() *ClientConfig {
	return &ClientConfig{
		BaseURL:     robotapi.DefaultBaseURL,
		HTTPTimeout: robotapi.DefaultTimeout,
		Defaults: session.Defaults{
			Meters:     1,
			IntervalMs: 60000,
			RobotCount: 20,
		},
		Bounds: validation.Bounds{
			Meters:     validation.Range{Min: 0.1, Max: 10000},
			IntervalMs: validation.Range{Min: 100, Max: 3_600_000},
			RobotCount: validation.Range{Min: 1, Max: 10000},
		},
		ListPolicy:        robotapi.DefaultListPolicy(),
		CommandPolicy:     retry.DefaultPolicy(),
		PollInterval:      time.Second,
		AssumeAutoRunning: true,
		ListenAddr:        "127.0.0.1:8090",
		MetricsAddr:       "127.0.0.1:9090",
		ShutdownDrainWait: 0,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load builds the configuration. path overrides CONFIG_FILE; when both are
// empty no file is read. Flags are applied by the caller afterwards,
// followed by Validate.
func Load(path string) (*ClientConfig, error) {
	cfg := Default()
	if path == "" {
		path = GetEnv("CONFIG_FILE", "")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *ClientConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *ClientConfig) applyEnv() {
	c.BaseURL = GetEnv("ROBOT_API_URL", c.BaseURL)
	c.HTTPTimeout = GetDurationEnv("ROBOT_HTTP_TIMEOUT", c.HTTPTimeout)
	c.Defaults.Meters = GetFloatEnv("DEFAULT_MOVE_METERS", c.Defaults.Meters)
	c.Defaults.IntervalMs = GetFloatEnv("DEFAULT_INTERVAL_MS", c.Defaults.IntervalMs)
	c.Defaults.RobotCount = GetFloatEnv("DEFAULT_ROBOT_COUNT", c.Defaults.RobotCount)
	c.PollInterval = GetDurationEnv("POLL_INTERVAL", c.PollInterval)
	c.AssumeAutoRunning = GetBoolEnv("ASSUME_AUTO_RUNNING", c.AssumeAutoRunning)
	c.ListenAddr = GetEnv("LISTEN_ADDR", c.ListenAddr)
	c.MetricsAddr = GetEnv("METRICS_ADDR", c.MetricsAddr)
	c.APIKeyFile = GetEnv("API_KEY_FILE", c.APIKeyFile)
	c.ShutdownDrainWait = GetDurationEnv("SHUTDOWN_DRAIN_WAIT", c.ShutdownDrainWait)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = GetEnv("LOG_FORMAT", c.LogFormat)

	if c.APIKeyFile != "" {
		c.APIKey = GetSecretFile(c.APIKeyFile)
	}
}

// Validate rejects unusable settings and clamps the defaults and the poll
// interval into their bounds.
func (c *ClientConfig) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base URL is required"))
	}
	for _, f := range []validation.Field{validation.FieldMeters, validation.FieldIntervalMs, validation.FieldRobotCount} {
		r, label := c.Bounds.For(f)
		if !validation.IsValidNumber(r.Min) || !validation.IsValidNumber(r.Max) || r.Min > r.Max {
			errs = append(errs, fmt.Errorf("%s bounds are invalid: min %v, max %v", label, r.Min, r.Max))
		}
	}
	if c.ListPolicy.MaxRetries < 0 || c.CommandPolicy.MaxRetries < 0 {
		errs = append(errs, errors.New("retry count must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: invalid configuration: %w", apperrors.ErrValidation, errors.Join(errs...))
	}

	c.Defaults.Meters = c.Bounds.Meters.Clamp(c.Defaults.Meters)
	c.Defaults.IntervalMs = c.Bounds.IntervalMs.Clamp(c.Defaults.IntervalMs)
	c.Defaults.RobotCount = c.Bounds.RobotCount.Clamp(c.Defaults.RobotCount)

	pollMs := c.Bounds.IntervalMs.Clamp(float64(c.PollInterval) / float64(time.Millisecond))
	c.PollInterval = time.Duration(pollMs * float64(time.Millisecond))
	return nil
}

// RobotAPI returns the Command Client settings.
func (c *ClientConfig) RobotAPI(exec *retry.Executor) robotapi.Config {
	list, cmd := c.ListPolicy, c.CommandPolicy
	return robotapi.Config{
		BaseURL:       c.BaseURL,
		Timeout:       c.HTTPTimeout,
		Executor:      exec,
		ListPolicy:    &list,
		CommandPolicy: &cmd,
	}
}

// Session returns the session settings. Metrics and logger are left to the
// caller.
func (c *ClientConfig) Session() session.Config {
	return session.Config{
		Bounds:            c.Bounds,
		Defaults:          c.Defaults,
		AssumeAutoRunning: c.AssumeAutoRunning,
		PollInterval:      c.PollInterval,
	}
}
