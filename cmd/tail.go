package cmd

import (
	"fmt"
	"os"

	"github.com/grovetools/devlogs/cli"
	"github.com/grovetools/devlogs/errors"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/grovetools/devlogs/logging"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

func newTailCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "tail <session-id>",
		Short: "Print a session's log, following it while the session is live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			logger := logging.NewLogger("tail")

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

			// Live sessions follow; archived ones just print.
			path := reg.ActiveLogPath(sessionID)
			live := true
			if _, err := os.Stat(path); os.IsNotExist(err) {
				path = reg.ArchivedLogPath(sessionID)
				live = false
				if _, err := os.Stat(path); os.IsNotExist(err) {
					return errors.SessionNotFound(sessionID)
				}
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    follow && live,
				ReOpen:    false,
				MustExist: true,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("failed to tail session log: %w", err)
			}
			for line := range t.Lines {
				if line.Err != nil {
					return line.Err
				}
				fmt.Println(line.Text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", true, "Keep following a live session's log")
	return cmd
}
