package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/drip/pkg/client"
)

func NewHistoryCommand() *cobra.Command {
	var (
		limit  int
		output outputFlags
	)

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "Show recent watering cycles",
		GroupID: gAdvanced,
		Long: `Show recent watering cycles, newest first.

History is only available when the daemon was started with a history path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("invalid limit %d: must be positive", limit)
			}

			cycles, err := apiClient.GetHistory(limit)
			if errors.Is(err, client.ErrUnavailable) {
				return fmt.Errorf("%w. Set historyPath in the daemon config to record watering", err)
			}
			if err != nil {
				return err
			}

			printed, err := output.print(cmd, cycles)
			if printed || err != nil {
				return err
			}

			if len(cycles) == 0 {
				cmd.Println("No watering recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tINTERVAL\tDURATION\tENDED BY")
			for _, c := range cycles {
				duration, reason := "running", "-"
				if c.EndedAt != nil {
					duration = c.EndedAt.Sub(c.StartedAt).Round(time.Second).String()
					reason = c.EndReason
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.StartedAt.Local().Format(time.DateTime), c.Interval, duration, reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of cycles to show.")
	output.register(cmd)

	return cmd
}
