package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battstat/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Print the battery status every time it changes",
		Long: `Print the battery status every time it changes.

The daemon pushes a status.changed event whenever the composite reading
differs from the previous one. Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := apiClient.Watch(ctx, func(ev events.Event) error {
				if ev.Name != events.StatusChanged {
					logrus.WithField("event", ev.Name).Debug("ignoring event")
					return nil
				}
				if jsonOutput {
					cmd.Println(string(ev.Data))
					return nil
				}

				payload, err := events.DecodeAs[events.StatusChangedEvent](ev)
				if err != nil {
					return err
				}
				cmd.Println(formatStatusLine(payload))
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw event payloads")

	return cmd
}

func formatStatusLine(ev events.StatusChangedEvent) string {
	s := ev.Status
	ts := time.Unix(ev.Ts, 0).Format(time.Kitchen)

	if !s.Present {
		return bold("[%s]", ts) + " no battery, on AC power: " + bool2Text(s.OnACPower)
	}

	return bold("[%s]", ts) + " " +
		bold("%d%%", s.Percent) + " " +
		stateText(s.State()) + ", " +
		minutesLabel(s) + ": " + formatMinutes(s.Minutes) +
		", on AC power: " + bool2Text(s.OnACPower)
}
