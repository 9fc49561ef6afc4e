package main

import (
	"encoding/json"
	"errors"
	"io"
	"robotfleet/internal/session"
	"robotfleet/internal/statusapi"

	"github.com/spf13/cobra"
)

func newPositionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Print the current robot positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(nil)
			defer s.Close()

			set, err := s.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), statusapi.PositionsResponse{Robots: set, Count: len(set)})
		},
	}
}

func newMoveCmd(a *app) *cobra.Command {
	var meters float64
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move every robot by a distance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(nil)
			defer s.Close()
			var u session.SettingsUpdate
			if cmd.Flags().Changed("meters") {
				u.Meters = &meters
			}

			set, err := s.Move(cmd.Context(), u)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), statusapi.PositionsResponse{Robots: set, Count: len(set)})
		},
	}
	cmd.Flags().Float64Var(&meters, "meters", 0, "Distance in meters (default from configuration)")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var count float64
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the fleet with a number of robots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(nil)
			defer s.Close()
			var u session.SettingsUpdate
			if cmd.Flags().Changed("count") {
				u.RobotCount = &count
			}

			set, err := s.Reset(cmd.Context(), u)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), statusapi.PositionsResponse{Robots: set, Count: len(set)})
		},
	}
	cmd.Flags().Float64Var(&count, "count", 0, "Number of robots, rounded to the nearest integer (default from configuration)")
	return cmd
}

func newAutoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Control server-side automatic movement",
	}

	var meters, interval float64
	start := &cobra.Command{
		Use:   "start",
		Short: "Start automatic movement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(nil)
			defer s.Close()
			var u session.SettingsUpdate
			if cmd.Flags().Changed("meters") {
				u.Meters = &meters
			}
			if cmd.Flags().Changed("interval") {
				u.IntervalMs = &interval
			}

			if err := s.StartAuto(cmd.Context(), u); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), statusapi.AutoRunResponse{AutoRunning: s.AutoRunning()})
		},
	}
	start.Flags().Float64Var(&meters, "meters", 0, "Distance per step in meters")
	start.Flags().Float64Var(&interval, "interval", 0, "Milliseconds between steps")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop automatic movement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(nil)
			defer s.Close()

			if err := s.StopAuto(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), statusapi.AutoRunResponse{AutoRunning: s.AutoRunning()})
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle",
		Short: "Stop automatic movement if it is believed running, else start it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(nil)
			defer s.Close()

			running, err := s.ToggleAuto(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), statusapi.AutoRunResponse{AutoRunning: running})
		},
	}

	cmd.AddCommand(start, stop, toggle)
	return cmd
}

func newApplyCmd(a *app) *cobra.Command {
	var (
		meters, interval, count float64
		autoRunning             bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply distance, interval and robot count together",
		Long: `apply validates all three settings, stops auto mode if it is running,
resets the fleet to the new count and restarts auto mode with the new
distance and interval. A failing step stops the sequence; earlier steps
are not undone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("auto-running") {
				a.cfg.AssumeAutoRunning = autoRunning
			}
			s := a.newSession(nil)
			defer s.Close()

			var u session.SettingsUpdate
			if cmd.Flags().Changed("meters") {
				u.Meters = &meters
			}
			if cmd.Flags().Changed("interval") {
				u.IntervalMs = &interval
			}
			if cmd.Flags().Changed("count") {
				u.RobotCount = &count
			}

			report, err := s.ApplyChanges(cmd.Context(), u)
			var stepErr *session.StepError
			if err != nil && !errors.As(err, &stepErr) {
				return err
			}
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().Float64Var(&meters, "meters", 0, "Distance per step in meters")
	cmd.Flags().Float64Var(&interval, "interval", 0, "Milliseconds between steps")
	cmd.Flags().Float64Var(&count, "count", 0, "Number of robots")
	cmd.Flags().BoolVar(&autoRunning, "auto-running", false, "Whether auto mode is currently running (default $ASSUME_AUTO_RUNNING)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
