package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battstat/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: map[string]string{annotationNoDaemon: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewBackendCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "backend",
		Short:   "Show which backend the daemon is reading from",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := apiClient.GetBackend()
			if err != nil {
				return err
			}

			cmd.Printf("Backend: %s\n", bold("%s", info.Backend))
			cmd.Printf("  Composite: %s\n", bool2Text(info.Composite))
			cmd.Printf("  Event-driven: %s\n", bool2Text(info.EventDriven))
			cmd.Printf("  Needs polling: %s\n", bool2Text(info.NeedsPolling))
			if info.Warning != "" {
				cmd.Printf("  Warning: %s\n", color.YellowString(info.Warning))
			}
			return nil
		},
	}
}
