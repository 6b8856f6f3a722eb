package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battstat/pkg/config"
	daemonutils "github.com/charlie0129/battstat/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	var (
		allowNonRootAccess bool
		skipHALFlag        bool
	)

	cmd := &cobra.Command{
		Use:         "install",
		Short:       "Install battstat (system-wide)",
		GroupID:     gInstallation,
		Annotations: map[string]string{annotationNoDaemon: "true"},
		Long: `Install battstat daemon as a systemd service (system-wide).

This makes battstat run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the battstat daemon. If you want to allow non-root users, i.e., you, to read the battery status through the daemon, you can use the --allow-non-root-access flag, so you don't have to use sudo every time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the battstat daemon.")
			} else {
				logrus.Info("only root user is allowed to access the battstat daemon.")
			}
			if skipHALFlag {
				conf.SetSkipHAL(true)
				logrus.Info("the UPower backend will not be used.")
			}

			var args []string
			if configPath != "/etc/battstat.json" {
				args = append(args, "--config", configPath)
			}
			if unixSocketPath != "/var/run/battstat.sock" {
				args = append(args, "--daemon-socket", unixSocketPath)
			}

			err = daemonutils.Install(args...)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("`systemd' will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run ``battstat install'' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access battstat daemon.")
	cmd.Flags().BoolVar(&skipHALFlag, "skip-hal", false, "Never use the UPower backend.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "uninstall",
		Short:       "Uninstall battstat (system-wide)",
		GroupID:     gInstallation,
		Annotations: map[string]string{annotationNoDaemon: "true"},
		Long: `Uninstall battstat daemon from systemd (system-wide).

This stops battstat and removes its unit file.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `battstat' again. If you want a complete uninstall, you can remove both config file and battstat itself manually.\n", configPath)

			return nil
		},
	}

	return cmd
}
