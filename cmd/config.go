package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure Kaiten and Bitrix24 connection settings",
	Long:  `Interactively set up the Kaiten URL and API token and the Bitrix24 webhook URL. Settings are saved to ~/.kaiten-to-bitrix.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		// Load existing config for defaults
		existing, _ := config.Load(cfgFile)

		// Kaiten URL
		defaultURL := existing.KaitenURL
		if defaultURL != "" {
			fmt.Printf("Kaiten URL [%s]: ", defaultURL)
		} else {
			fmt.Print("Kaiten URL (e.g., https://your-org.kaiten.ru): ")
		}
		kaitenURL, _ := reader.ReadString('\n')
		kaitenURL = strings.TrimSpace(kaitenURL)
		if kaitenURL == "" {
			kaitenURL = defaultURL
		}

		// Kaiten token (masked input)
		fmt.Print("Kaiten API token (input hidden): ")
		tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // newline after hidden input
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		token := strings.TrimSpace(string(tokenBytes))
		if token == "" {
			token = existing.KaitenToken
		}

		// Bitrix webhook URL: carries its own auth token, so mask it too
		fmt.Print("Bitrix24 webhook URL (input hidden): ")
		webhookBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading webhook URL: %w", err)
		}
		webhook := strings.TrimSpace(string(webhookBytes))
		if webhook == "" {
			webhook = existing.BitrixWebhookURL
		}

		cfg := existing
		cfg.KaitenURL = kaitenURL
		cfg.KaitenToken = token
		cfg.BitrixWebhookURL = webhook
		if cfg.MappingsDir == "" {
			cfg.MappingsDir = "mappings"
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}

		if err := config.Save(cfg, path); err != nil {
			return err
		}

		fmt.Printf("Configuration saved to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
