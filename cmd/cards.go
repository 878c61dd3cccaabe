package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/migrate"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/remote"
)

var (
	cardsSpaceID     int
	cardsLimit       int
	cardsCardID      int
	cardsList        bool
	cardsIncludeDone bool
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "Migrate the cards of one Kaiten space to Bitrix24 tasks",
	Long:  `Migrates every card of the given Kaiten space into the mapped Bitrix24 workgroup, including checklists and comments. Cards in terminal columns are skipped unless --include-done is set. Run the 'users' and 'spaces' migrations first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		// Comment timestamps are backfilled through SSH when configured;
		// without it the comments keep the migration time.
		var channel *remote.Channel
		if appConfig.SSHConfigured() {
			channel = remote.New(appConfig.SSH, appLogger)
		}

		m := migrate.NewCards(appConfig,
			kaiten.NewClient(appConfig, appLogger),
			bitrix.NewClient(appConfig, appLogger),
			channel,
			appLogger)

		stats, err := m.Run(cmd.Context(), migrate.CardsOptions{
			SpaceID:     cardsSpaceID,
			Limit:       cardsLimit,
			CardID:      cardsCardID,
			ListOnly:    cardsList,
			IncludeDone: cardsIncludeDone,
		})
		if err != nil {
			return fmt.Errorf("card migration: %w", err)
		}
		if stats.HasErrors() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	cardsCmd.Flags().IntVar(&cardsSpaceID, "space-id", 0, "Kaiten space whose cards to migrate (required)")
	cardsCmd.Flags().IntVar(&cardsLimit, "limit", 0, "migrate at most N cards (0 = all)")
	cardsCmd.Flags().IntVar(&cardsCardID, "card-id", 0, "migrate exactly this card")
	cardsCmd.Flags().BoolVar(&cardsList, "list", false, "classify cards without migrating")
	cardsCmd.Flags().BoolVar(&cardsIncludeDone, "include-done", false, "also migrate cards in terminal columns, as completed tasks")
	cardsCmd.MarkFlagRequired("space-id")
	rootCmd.AddCommand(cardsCmd)
}
