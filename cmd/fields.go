package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/migrate"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/remote"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Migrate Kaiten custom properties to Bitrix24 user fields",
	Long:  `Collects the select-type custom property definitions and their values from Kaiten and creates the matching Bitrix24 task user fields through a script on the portal host. Requires the ssh block in the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if err := appConfig.ValidateSSH(); err != nil {
			return fmt.Errorf("the fields migration needs the remote channel: %w", err)
		}
		if appConfig.SSH.FieldsCmd == "" {
			return fmt.Errorf("ssh.fields_cmd is required: the remote command that creates the user fields")
		}

		m := migrate.NewFields(appConfig,
			kaiten.NewClient(appConfig, appLogger),
			remote.New(appConfig.SSH, appLogger),
			appLogger)

		stats, err := m.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("field migration: %w", err)
		}
		if stats.HasErrors() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}
