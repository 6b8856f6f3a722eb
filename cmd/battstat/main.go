package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/battstat/pkg/client"
	"github.com/charlie0129/battstat/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/battstat.sock"
	configPath     = "/etc/battstat.json"
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

var apiClient *client.Client

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

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: battstat daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you installed it?")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
	}
}

func main() {
	// battstat does not need to use much.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

// checkVersion warns when the daemon runs a different build than the client.
func checkVersion() {
	daemonVersion, err := apiClient.GetVersion()
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			logrus.Error("battstat daemon is too old to report its version. Reinstall it so that client and daemon are the same version.")
		}
		return
	}

	if clientVersion := version.Get(); *daemonVersion != clientVersion {
		logrus.WithFields(logrus.Fields{
			"clientVersion": clientVersion.Version,
			"daemonVersion": daemonVersion.Version,
		}).Warn("Version mismatch between client and daemon. Reinstall the daemon so that both are the same version.")
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "battstat",
		Short: "battstat reports the battery status of the machine",
		Long: `battstat reports the battery status of the machine.

It picks the best available power-management backend (UPower, ACPI, SMC,
sysctl or APM), folds every battery into one composite reading, and serves
it from a small daemon over a unix socket.

Website: https://github.com/charlie0129/battstat
Report issues: https://github.com/charlie0129/battstat/issues`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			// The daemon does not talk to itself.
			if cmd.Annotations[annotationNoDaemon] == "" {
				checkVersion()
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "battstat daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewWatchCommand(),
		NewBackendCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
