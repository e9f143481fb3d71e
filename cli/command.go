// Package cli provides shared command scaffolding for devlogs tools.
package cli

import (
	"github.com/grovetools/devlogs/config"
	"github.com/grovetools/devlogs/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// CommandOptions holds common options for devlogs commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with standard devlogs flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addStandardFlags(cmd.PersistentFlags())

	return cmd
}

// addStandardFlags registers the flags every devlogs tool carries.
func addStandardFlags(flags *pflag.FlagSet) {
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.Bool("json", false, "Output in JSON format")
	flags.StringP("config", "c", "", "Path to devlogs.yml config file")
}

// GetLogger creates a logger based on command flags
func GetLogger(cmd *cobra.Command) *logrus.Logger {
	entry := logging.NewLogger("devlogs-cli")
	logger := entry.Logger

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig resolves the effective configuration for a command: the --config
// flag when given, otherwise the nearest devlogs.yml, otherwise defaults.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}
