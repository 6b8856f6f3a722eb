package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battstat/pkg/config"
	"github.com/charlie0129/battstat/pkg/monitor"
	"github.com/charlie0129/battstat/pkg/powerinfo"
)

type statusData struct {
	status  *powerinfo.CompositeStatus
	backend *monitor.Info
	config  *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData(fresh bool) (*statusData, error) {
	status, err := apiClient.GetStatus(fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to get battery status: %w", err)
	}

	backend, err := apiClient.GetBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to get backend info: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		status:  status,
		backend: backend,
		config:  conf,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	var (
		jsonOutput bool
		fresh      bool
	)

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current battery status",
		Long: `Get the current battery status as read by the daemon.

All batteries are folded into one reading: the charge percentage, whether
the machine is charging or on AC power, and the estimated minutes until
empty or full.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData(fresh)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printStatusJSON(cmd, data)
			}

			printStatus(cmd, data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status in JSON format")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Ask the daemon to read the battery again instead of returning its last reading")

	return cmd
}

func printStatus(cmd *cobra.Command, data *statusData) {
	s := data.status

	cmd.Println(bold("Battery status:"))

	if !s.Present {
		cmd.Printf("  Battery present: %s\n", bool2Text(false))
		cmd.Printf("  On AC power: %s\n", bool2Text(s.OnACPower))
	} else {
		cmd.Printf("  Current charge: %s\n", bold("%d%%", s.Percent))
		cmd.Printf("  State: %s\n", stateText(s.State()))
		cmd.Printf("  On AC power: %s\n", bool2Text(s.OnACPower))
		cmd.Printf("  %s: %s\n", minutesLabel(*s), bold("%s", formatMinutes(s.Minutes)))
	}

	cmd.Println()

	cmd.Println(bold("Backend:"))
	cmd.Printf("  Name: %s\n", bold("%s", data.backend.Backend))
	cmd.Printf("  Multiple batteries: %s\n", bool2Text(data.backend.Composite))
	cmd.Printf("  Event-driven: %s\n", bool2Text(data.backend.EventDriven))
	if data.backend.Warning != "" {
		cmd.Printf("  Warning: %s\n", color.YellowString(data.backend.Warning))
	}
	if data.config != nil && data.config.AllowNonRootAccess != nil {
		cmd.Printf("  Allow non-root access: %s\n", bool2Text(*data.config.AllowNonRootAccess))
	}
}

func stateText(state powerinfo.BatteryState) string {
	switch state {
	case powerinfo.Charging:
		return color.GreenString("charging")
	case powerinfo.Discharging:
		return color.YellowString("discharging")
	case powerinfo.Full:
		return color.GreenString("full")
	case powerinfo.NotCharging:
		return "not charging"
	default:
		return "unknown"
	}
}

func minutesLabel(s powerinfo.CompositeStatus) string {
	if s.Charging {
		return "Time to full"
	}
	return "Time remaining"
}

// formatMinutes renders a minute count as "1h05m". Negative means unknown.
func formatMinutes(minutes int) string {
	if minutes < 0 {
		return "unknown"
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
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
