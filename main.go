package main

import (
	"fmt"
	"os"

	"coursedesk/internal/config"
	"coursedesk/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose bool
	profile string

	cfg    config.AppConfig
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "coursedesk",
	Short: "coursedesk - live progress for background course jobs",
	Long: `coursedesk starts server-side background jobs (uploads, slide processing,
email and SMS sends) and follows their progress over the live update channel.

Run "coursedesk login --token <token>" once, then "coursedesk watch".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if profile != "" {
			cfg.Profile = profile
		}

		logger, err = logging.New(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Credential profile (default: $COURSEDESK_PROFILE or \"default\")")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(uploadCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
