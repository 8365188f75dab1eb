package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/drip/pkg/daemon"
	"github.com/charlie0129/drip/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "daemon",
		Hidden:  true,
		Short:   "Run the drip daemon in the foreground",
		GroupID: gAdvanced,
		Long: fmt.Sprintf(`Run the drip daemon in the foreground.

The daemon owns the relay: it switches the valve off at startup, counts down
the watering interval and switches the valve off again when it runs out or
when the daemon exits.

It reads its config from %s (--config), serves the status page and API on
the config's listenAddress and on the unix socket %s (--daemon-socket), and
reloads the config on SIGHUP. systemd runs this command after 'drip install'.`, configPath, unixSocketPath),
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
				"config":  configPath,
				"socket":  unixSocketPath,
			}).Info("drip daemon starting")
			return daemon.Run(configPath, unixSocketPath, allowNonRootAccess)
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "always-allow-non-root-access", false,
		"Make the unix socket accessible to every user, regardless of allowNonRootAccess in the config.")

	return cmd
}
