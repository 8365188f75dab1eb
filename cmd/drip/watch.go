package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/drip/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Follow watering and schedule events",
		GroupID: gAdvanced,
		Long: `Follow watering and schedule events as they happen.

Prints one line per event until interrupted with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.SubscribeEvents(ctx)
			if err != nil {
				return err
			}

			for ev := range ch {
				cmd.Println(formatEvent(ev))
			}

			if ctx.Err() == nil {
				return fmt.Errorf("event stream closed by daemon")
			}
			return nil
		},
	}
}

// formatEvent renders an event as a single human-readable line.
func formatEvent(ev events.Event) string {
	switch ev.Name {
	case events.WateringState:
		p, err := events.DecodeAs[events.WateringStateEvent](ev)
		if err != nil {
			break
		}
		line := fmt.Sprintf("%s watering %s: %s -> %s", unixTime(p.Ts), p.Reason, p.From, p.To)
		if p.Interval != "" {
			line += fmt.Sprintf(" (%s, %s left)", p.Interval, formatSeconds(p.RemainingSeconds))
		} else if p.Previous != "" {
			line += fmt.Sprintf(" (was %s)", p.Previous)
		}
		return line
	case events.ScheduleUpcoming:
		p, err := events.DecodeAs[events.ScheduleUpcomingEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s schedule: %s watering at %s", unixTime(p.Ts), p.Interval, unixTime(p.RunAt))
	case events.ScheduleError:
		p, err := events.DecodeAs[events.ScheduleErrorEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s schedule error: %s", unixTime(p.Ts), p.Message)
	}
	return fmt.Sprintf("%s %s", ev.Name, string(ev.Data))
}

func unixTime(sec int64) string {
	return time.Unix(sec, 0).Local().Format(time.DateTime)
}
