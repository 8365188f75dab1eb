package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/drip/pkg/config"
	"github.com/charlie0129/drip/pkg/types"
	"github.com/charlie0129/drip/pkg/watering"
)

type statusData struct {
	status *types.Status
	config *config.RawFileConfig
}

func fetchStatusData() (*statusData, error) {
	st, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{status: st, config: conf}, nil
}

type statusJSON struct {
	Watering      *types.Status          `json:"watering"`
	Configuration *config.RawFileConfig `json:"configuration"`
}

func NewStatusCommand() *cobra.Command {
	var output outputFlags

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of drip",
		Long:    `Get watering status, schedule, and daemon configuration.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			printed, err := output.print(cmd, statusJSON{
				Watering:      data.status,
				Configuration: data.config,
			})
			if printed || err != nil {
				return err
			}

			printStatus(cmd, data)
			return nil
		},
	}

	output.register(cmd)

	return cmd
}

func printStatus(cmd *cobra.Command, data *statusData) {
	st := data.status
	conf := config.NewFileFromConfig(data.config, "")

	running := st.State == string(watering.StateRunning)

	cmd.Println(bold("Watering status:"))
	if running {
		cmd.Println("  Valve open: " + bool2Text(true))
		cmd.Printf("  Interval: %s\n", bold("%s", st.Interval))
		cmd.Printf("  Remaining: %s\n", bold("%s", formatSeconds(st.RemainingSeconds)))
		if st.EndsAt != nil {
			cmd.Printf("  Ends at: %s\n", bold("%s", st.EndsAt.Local().Format(time.Kitchen)))
		}
	} else {
		cmd.Println("  Valve open: " + bool2Text(false))
	}
	if st.RelayOn != running {
		cmd.Println(color.YellowString("  Relay reads back %v, which does not match the timer.", st.RelayOn))
	}
	if !st.TickHealthy {
		cmd.Println(color.RedString("  The countdown loop has stalled. Check the daemon logs."))
	}

	cmd.Println()

	cmd.Println(bold("Schedule:"))
	if st.Schedule == nil || !st.Schedule.Enabled {
		cmd.Println("  Enabled: " + bool2Text(false))
	} else {
		cmd.Println("  Enabled: " + bool2Text(true))
		cmd.Printf("  Cron: %s\n", bold("%s", st.Schedule.Cron))
		cmd.Printf("  Interval: %s\n", bold("%s", st.Schedule.Interval))
		if len(st.Schedule.NextRuns) > 0 {
			cmd.Printf("  Next run: %s\n", bold("%s", st.Schedule.NextRuns[0].Local().Format(time.DateTime)))
		}
	}

	cmd.Println()

	cmd.Println(bold("Configuration:"))
	cmd.Printf("  Hostname: %s\n", bold("%s", conf.Hostname()))
	cmd.Printf("  Listen address: %s\n", bold("%s", conf.ListenAddress()))
	cmd.Printf("  Relay pin: %s\n", bold("GPIO%d", conf.RelayPin()))
	if conf.IndicatorPin() >= 0 {
		cmd.Printf("  Indicator pin: %s\n", bold("GPIO%d", conf.IndicatorPin()))
	}
	cmd.Printf("  Simulate hardware: %s\n", bool2Text(st.SimulateHardware))
	cmd.Printf("  Advertise over mDNS: %s\n", bool2Text(conf.AdvertiseMDNS()))
	cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
