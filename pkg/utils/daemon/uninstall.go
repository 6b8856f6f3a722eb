package daemon

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Uninstall stops and disables the service and removes its unit file.
func Uninstall() error {
	logrus.Infof("stopping battstat")

	err := systemctl("disable", "--now", unitName)
	if err != nil {
		return fmt.Errorf("failed to disable %s: %w. Are you root?", unitName, err)
	}

	logrus.Infof("removing systemd unit")

	p := unitPath()
	// if the file doesn't exist, we don't need to remove it
	_, err = os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}

	err = os.Remove(p)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", p, err)
	}

	return systemctl("daemon-reload")
}
