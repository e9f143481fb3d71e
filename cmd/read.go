package cmd

import (
	"fmt"

	"github.com/grovetools/devlogs/cli"
	"github.com/grovetools/devlogs/pkg/devlogs"
	"github.com/spf13/cobra"
)

func newReadCmd() *cobra.Command {
	var (
		lines    int
		files    int
		project  string
		archived bool
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read recent session log lines, newest session first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			root, err := cfg.StorageRoot()
			if err != nil {
				return err
			}

			client, err := devlogs.Open(root)
			if err != nil {
				return err
			}
			text, err := client.ReadRecent(lines, files, project, !archived)
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		},
	}

	cmd.Flags().IntVar(&lines, "lines", 200, "Total line budget across all files")
	cmd.Flags().IntVar(&files, "files", 5, "Maximum number of session files to read")
	cmd.Flags().StringVar(&project, "project", "", "Only sessions for this project directory")
	cmd.Flags().BoolVar(&archived, "archived", false, "Read archived sessions instead of active ones")
	return cmd
}
