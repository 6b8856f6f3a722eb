package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battstat/pkg/daemon"
	"github.com/charlie0129/battstat/pkg/version"
)

// annotationNoDaemon marks commands that must not contact the daemon
// before running.
const annotationNoDaemon = "battstat/no-daemon"

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the battstat daemon.
	alwaysAllowNonRootAccess = false
	skipHAL                  = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "daemon",
		Hidden:      true,
		Short:       "Run battstat daemon in the foreground",
		GroupID:     gAdvanced,
		Annotations: map[string]string{annotationNoDaemon: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("battstat daemon starting")
			return daemon.Run(configPath, unixSocketPath, daemon.RunOptions{
				SkipHAL:      skipHAL,
				AllowNonRoot: alwaysAllowNonRootAccess,
			})
		},
	}

	f := cmd.Flags()

	f.BoolVar(&skipHAL, "skip-hal", false,
		"Do not use the UPower (HAL-class) backend even if it is available.")
	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")

	return cmd
}
