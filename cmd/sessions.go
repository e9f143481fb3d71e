package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/grovetools/devlogs/cli"
	"github.com/grovetools/devlogs/internal/display"
	"github.com/grovetools/devlogs/internal/reader"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/grovetools/devlogs/logging"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("sessions")

			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			root, err := cfg.StorageRoot()
			if err != nil {
				return err
			}
			reg, err := registry.New(root, logger)
			if err != nil {
				return err
			}

			sessions, err := reader.New(reg, logger).ListActiveSessions(project)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(os.Stdout).Encode(sessions)
			}
			if len(sessions) == 0 {
				fmt.Println("No active sessions.")
				return nil
			}
			display.PrintSessionsTable(sessions, os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Only sessions for this project directory")
	return cmd
}
