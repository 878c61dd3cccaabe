package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/migrate"
)

var usersLimit int

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Migrate Kaiten users to Bitrix24",
	Long:  `Fetches all Kaiten users and creates or updates the matching Bitrix24 users. Users without an email are skipped. The resulting ID mapping is saved to the mappings directory and reused by the other passes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		m := migrate.NewUsers(appConfig,
			kaiten.NewClient(appConfig, appLogger),
			bitrix.NewClient(appConfig, appLogger),
			appLogger)

		stats, err := m.Run(cmd.Context(), usersLimit)
		if err != nil {
			return fmt.Errorf("user migration: %w", err)
		}
		if stats.HasErrors() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	usersCmd.Flags().IntVar(&usersLimit, "limit", 0, "migrate at most N users (0 = all)")
	rootCmd.AddCommand(usersCmd)
}
