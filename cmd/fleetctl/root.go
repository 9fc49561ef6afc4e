package main

import (
	"log/slog"
	"robotfleet/internal/config"
	"robotfleet/internal/logging"
	"robotfleet/internal/observability"
	"robotfleet/internal/retry"
	"robotfleet/internal/robotapi"
	"robotfleet/internal/session"

	"github.com/spf13/cobra"
)

// app carries the resolved configuration into every subcommand.
type app struct {
	configPath string
	apiURL     string
	logLevel   string
	logFormat  string

	cfg    *config.ClientConfig
	logger *slog.Logger

	// onListen, when set, receives the status API address once serve is
	// listening.
	onListen func(addr string)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "fleetctl",
		Short:         "fleetctl controls a robot fleet service",
		Long:          `fleetctl reads robot positions, moves and resets the fleet, and switches auto mode on a robot fleet service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	// Persistent flags (available to all commands)
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file (default $CONFIG_FILE)")
	flags.StringVar(&a.apiURL, "api-url", "", "Robot service base URL (default $ROBOT_API_URL or "+robotapi.DefaultBaseURL+")")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")

	cmd.AddCommand(
		newPositionsCmd(a),
		newMoveCmd(a),
		newResetCmd(a),
		newAutoCmd(a),
		newApplyCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// setup loads configuration, applies flag overrides and installs the
// default logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.BaseURL = a.apiURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	return nil
}

// newSession wires the Command Client and a session from the loaded
// configuration. metrics may be nil.
func (a *app) newSession(metrics *observability.Metrics) *session.Session {
	execOpts := []retry.Option{retry.WithLogger(a.logger.With("component", "retry"))}
	sessionCfg := a.cfg.Session()
	sessionCfg.Logger = a.logger.With("component", "session")
	if metrics != nil {
		execOpts = append(execOpts, retry.WithMetrics(metrics))
		sessionCfg.Metrics = metrics
		sessionCfg.PollMetrics = metrics
	}

	apiCfg := a.cfg.RobotAPI(retry.NewExecutor(execOpts...))
	apiCfg.Logger = a.logger.With("component", "robotapi")
	return session.New(robotapi.NewClient(apiCfg), sessionCfg)
}
