package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/migrate"
)

var (
	spacesLimit   int
	spacesSpaceID int
	spacesList    bool
)

var spacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "Migrate Kaiten spaces to Bitrix24 workgroups",
	Long:  `Creates or updates a Bitrix24 workgroup for every qualifying Kaiten space (leaf root spaces and second-level spaces, minus excluded subtrees) and fills in the group members through the user mapping. Run the 'users' migration first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		m := migrate.NewSpaces(appConfig,
			kaiten.NewClient(appConfig, appLogger),
			bitrix.NewClient(appConfig, appLogger),
			appLogger)

		stats, err := m.Run(cmd.Context(), migrate.SpacesOptions{
			Limit:    spacesLimit,
			SpaceID:  spacesSpaceID,
			ListOnly: spacesList,
		})
		if err != nil {
			return fmt.Errorf("space migration: %w", err)
		}
		if stats.HasErrors() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	spacesCmd.Flags().IntVar(&spacesLimit, "limit", 0, "migrate at most N spaces (0 = all)")
	spacesCmd.Flags().IntVar(&spacesSpaceID, "space-id", 0, "migrate exactly this Kaiten space")
	spacesCmd.Flags().BoolVar(&spacesList, "list", false, "list qualifying spaces without migrating")
	rootCmd.AddCommand(spacesCmd)
}
