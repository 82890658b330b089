// Package cli provides the rally2jira command-line interface.
package cli

import (
	"os"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/trellis-eng/rally2jira/internal/config"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rally2jira",
	Short: "Migrate Rally work items into a Jira bulk-import document",
	Long: `rally2jira dumps Rally artifacts and their attachments into an
on-disk JSON cache, then translates the cached hierarchy into a single
Jira bulk-import document with deduplicated users, cross-issue links
and presigned attachment URLs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		// Local overrides (API keys, AWS credentials) may live in .env.
		_ = godotenv.Load()

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(configPath)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.toml", "path to the mapping config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
