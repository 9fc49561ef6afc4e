package main

import (
	"robotfleet/internal/statusapi"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var interval float64
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll positions and print every change as a JSON line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := a.newSession(nil)
			defer s.Close()
			if cmd.Flags().Changed("interval") {
				if err := s.SetPollInterval(interval); err != nil {
					return err
				}
			}

			events, unsubscribe := s.Subscribe()
			defer unsubscribe()
			s.EnablePolling()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if err := printJSON(out, statusapi.NewStreamMessage(ev)); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().Float64Var(&interval, "interval", 0, "Poll interval in milliseconds (default $POLL_INTERVAL)")
	return cmd
}
