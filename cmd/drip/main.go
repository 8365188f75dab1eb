package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/drip/pkg/client"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/drip.sock"
	configPath     = "/etc/drip.json"
	// daemonAddr, when set, makes the client talk to the daemon over TCP
	// instead of the unix socket, e.g. micro-drip-relay.local:8080.
	daemonAddr = ""
)

var (
	gBasic        = "Basic:"
	gSchedule     = "Schedule:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gSchedule,
		gAdvanced,
		gInstallation,
	}
)

var apiClient = client.NewClient(unixSocketPath)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func setupClient() {
	if daemonAddr != "" {
		apiClient = client.NewHTTPClient(daemonAddr)
		return
	}
	apiClient = client.NewClient(unixSocketPath)
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: drip daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you installed it with 'sudo drip install'?")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
		fmt.Fprintln(os.Stderr, "  - Or talk to the daemon over the network with '--daemon-addr'")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

// skipVersionCheck lists commands that must work without a reachable daemon.
var skipVersionCheck = map[string]bool{
	"daemon":    true,
	"install":   true,
	"uninstall": true,
	"version":   true,
	"shell":     true,
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drip",
		Short: "drip controls a drip irrigation valve through a relay",
		Long: `drip controls a drip irrigation valve through a relay.

It runs "drip daemon" on the board wired to the relay, which switches the
valve off on its own once the chosen interval has elapsed. Everything else
talks to that daemon, locally over a unix socket or remotely over HTTP.

Website: https://github.com/charlie0129/drip
Report issues: https://github.com/charlie0129/drip/issues`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			setupClient()

			if skipVersionCheck[cmd.Name()] {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. drip may not work as expected.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("drip daemon is too old to report its version.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "drip daemon unix socket path")
	globalFlags.StringVar(&daemonAddr, "daemon-addr", daemonAddr, "drip daemon HTTP address (host:port); overrides --daemon-socket")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStartCommand(),
		NewStopCommand(),
		NewStatusCommand(),
		NewWatchCommand(),
		NewHistoryCommand(),
		NewScheduleCommand(),
		NewShellCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
