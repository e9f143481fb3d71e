package cmd

import (
	"fmt"

	"github.com/grovetools/devlogs/cli"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/grovetools/devlogs/internal/sweep"
	"github.com/grovetools/devlogs/logging"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention sweep: reclaim stale sessions, expire old archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("sweep")

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

			stats := sweep.New(reg, cfg.StalenessWindow(), cfg.RetentionWindow(), logger).Sweep()
			fmt.Printf("Reclaimed %d stale sessions, adopted %d orphans, expired %d archives",
				stats.StaleFinalized, stats.OrphansAdopted, stats.ArchivesExpired)
			if stats.Errors > 0 {
				fmt.Printf(" (%d failures, see logs)", stats.Errors)
			}
			fmt.Println()
			return nil
		},
	}
}
