package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/drip/pkg/version"
	"github.com/charlie0129/drip/pkg/watering"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

// getVersion returns the client and daemon versions.
func getVersion() (string, string, error) {
	daemonVersion, err := apiClient.GetVersion()
	if err != nil {
		return version.Version, "", err
	}
	return version.Version, daemonVersion, nil
}

func intervalTokens() []string {
	tokens := make([]string, 0, len(watering.Intervals))
	for _, i := range watering.Intervals {
		tokens = append(tokens, i.Token())
	}
	return tokens
}

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "start [interval]",
		Short:     "Start watering",
		GroupID:   gBasic,
		ValidArgs: intervalTokens(),
		Long: fmt.Sprintf(`Start watering for a fixed interval.

The interval is one of %s. Starting while the valve is already open
restarts the countdown with the new interval.`, strings.Join(intervalTokens(), ", ")),
		Example: `  drip start 1hr
  drip start 3hrs`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := watering.ParseInterval(args[0]); err != nil {
				return err
			}

			if err := apiClient.Start(args[0]); err != nil {
				return fmt.Errorf("failed to start watering: %v", err)
			}

			logrus.Infof("successfully started watering for %s", args[0])

			return nil
		},
	}
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Aliases: []string{"off"},
		Short:   "Stop watering",
		GroupID: gBasic,
		Long: `Stop watering.

Closes the valve immediately. Stopping when nothing is running is not an error.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			prev, err := apiClient.Stop()
			if err != nil {
				return fmt.Errorf("failed to stop watering: %v", err)
			}

			if prev == "" {
				logrus.Infof("watering was not running")
				return nil
			}

			logrus.Infof("successfully stopped watering (was %s)", prev)

			return nil
		},
	}
}
