package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/logger"
)

var (
	cfgFile   string
	verbose   bool
	appConfig config.Config
	appLogger zerolog.Logger
	version   = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:     "kaiten-to-bitrix",
	Short:   "One-off Kaiten to Bitrix24 data migration",
	Long:    `Migrates users, spaces, cards and custom fields from a Kaiten workspace into a Bitrix24 portal. Each pass keeps a persisted ID mapping file, so re-running a pass updates already-migrated records instead of duplicating them.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		appLogger = logger.New(verbose)
	},
}

// Execute runs the root command. Interrupt cancels the command context;
// an interrupted run leaves the mapping files as of the last save.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.kaiten-to-bitrix.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig loads and validates configuration. Commands that talk to
// either API call this.
func loadConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w\nRun 'kaiten-to-bitrix config' to set up credentials", err)
	}
	appConfig = cfg
	return nil
}
