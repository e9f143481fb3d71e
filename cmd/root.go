// Package cmd wires the dvlogs command tree.
package cmd

import (
	_ "embed"

	"github.com/grovetools/devlogs/cli"
	"github.com/grovetools/devlogs/version"
	"github.com/spf13/cobra"
)

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

//go:embed docs.gen.json
var docsJSON []byte

// NewRootCmd creates the root command for dvlogs.
func NewRootCmd() *cobra.Command {
	rootCmd := cli.NewStandardCommand(
		"dvlogs",
		"Session-scoped development activity logs",
	)

	v := version.GetInfo()
	info := cli.VersionInfo{
		Version:   v.Version,
		Commit:    v.Commit,
		BuildDate: v.BuildDate,
		BuildArch: v.Platform,
	}
	rootCmd.Version = v.Version
	cli.SetVersionTemplate(rootCmd, info)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newTailCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("dvlogs", info))
	rootCmd.AddCommand(cli.NewDocsCommand(docsJSON))

	return rootCmd
}
