// Package daemon installs the battstat daemon as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitName = "battstat.service"

const unitTemplate = `[Unit]
Description=battstat battery status daemon
Documentation=https://github.com/charlie0129/battstat
After=dbus.service upower.service acpid.service
Wants=dbus.service

[Service]
Type=simple
ExecStart=/path/to/battstat daemon
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

var (
	unitDir = "/etc/systemd/system"

	// systemctl runs systemctl with the given arguments.
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

func unitPath() string {
	return filepath.Join(unitDir, unitName)
}

// renderUnit returns the unit file for the given executable and extra
// daemon arguments.
func renderUnit(exePath string, args ...string) string {
	cmd := exePath
	if len(args) > 0 {
		cmd += " " + strings.Join(args, " ")
	}
	return strings.ReplaceAll(unitTemplate, "/path/to/battstat", cmd)
}

// Install writes the unit file for the current executable, then enables
// and starts it. args are appended to the daemon command line.
func Install(args ...string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	return install(exePath, args...)
}

func install(exePath string, args ...string) error {
	p := unitPath()
	logrus.Infof("writing systemd unit to %s", p)

	err := os.MkdirAll(unitDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}

	// warn if the file already exists
	if _, err := os.Stat(p); err == nil {
		logrus.Warnf("%s already exists, overwriting", p)
	}

	err = os.WriteFile(p, []byte(renderUnit(exePath, args...)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}

	logrus.Infof("starting battstat")

	return systemctl("enable", "--now", unitName)
}
