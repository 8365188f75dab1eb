package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/drip/pkg/types"
)

func NewScheduleCommand() *cobra.Command {
	interval := ""

	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage automatic watering schedule",
		Long: `Manage automatic watering schedule.

The schedule command can be used in multiple ways:
  drip schedule 'minute hour day month weekday' Set schedule with cron expression
  drip schedule disable                         Disable the schedule
  drip schedule postpone [duration]             Postpone next run
  drip schedule skip                            Skip next run
  drip schedule show                            Show current schedule

A scheduled run is skipped if watering is already in progress.`,
		Example: `  drip schedule '0 6 * * *' (At 06:00 every day)
  drip schedule '0 6 * * *' --interval 2hrs (At 06:00 every day, for two hours)
  drip schedule '30 5 * * 1,4' (At 05:30 on Monday and Thursday)`,
		GroupID: gSchedule,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0], interval)
		},
	}

	cmd.Flags().StringVarP(&interval, "interval", "i", "", "Watering interval for scheduled runs (1hr, 2hrs, 3hrs). Keeps the current one if empty.")

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the watering schedule",
		Long:  "Disable the automatic watering schedule.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleDisable(cmd)
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled watering",
		Example: `  drip schedule postpone      (Postpone by 1 hour)
  drip schedule postpone 90m  (Postpone by 90 minutes)`,
		Long: `Postpone the next scheduled watering by a specified duration.
If no duration is provided, defaults to 1 hour. The run cannot be pushed
past the one after it; use 'drip schedule skip' for that.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			return runSchedulePostpone(cmd, d)
		},
	}
	return cmd
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled watering",
		Long:  "Skip the next scheduled watering.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleSkip(cmd)
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current watering schedule",
		Long:  "Show the current watering schedule and next run times.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr, interval string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	ss, err := apiClient.SetSchedule(cronExpr, interval)
	if err != nil {
		return err
	}
	if !ss.Enabled {
		cmd.Println("Watering schedule disabled.")
		return nil
	}
	cmd.Printf("Watering scheduled for %s.", ss.Interval)
	printNextRuns(cmd, ss)
	return nil
}

func runScheduleDisable(cmd *cobra.Command) error {
	if _, err := apiClient.SetSchedule("", ""); err != nil {
		return err
	}
	cmd.Println("Watering schedule disabled.")
	return nil
}

func runSchedulePostpone(cmd *cobra.Command, duration time.Duration) error {
	ss, err := apiClient.PostponeSchedule(duration)
	if err != nil {
		return err
	}
	cmd.Printf("Next run postponed by %s.", duration)
	printNextRuns(cmd, ss)
	return nil
}

func runScheduleSkip(cmd *cobra.Command) error {
	ss, err := apiClient.SkipSchedule()
	if err != nil {
		return err
	}
	cmd.Print("Next scheduled run skipped.")
	printNextRuns(cmd, ss)
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	ss, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if !ss.Enabled {
		cmd.Println("Watering schedule is not set.")
		return nil
	}
	cmd.Printf("Schedule '%s' waters for %s.", ss.Cron, ss.Interval)
	printNextRuns(cmd, ss)
	return nil
}

func printNextRuns(cmd *cobra.Command, ss *types.ScheduleStatus) {
	cmd.Printf(" Next %d run(s):\n", len(ss.NextRuns))
	for _, run := range ss.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
}
