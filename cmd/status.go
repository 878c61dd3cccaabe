package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/mapping"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the progress of every migration pass",
	Long:  `Prints the row count and cumulative created/updated/error counters of every mapping file in the mappings directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Only the mappings directory is needed; API credentials may be
		// absent when inspecting state on another machine.
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fmt.Printf("Mappings directory: %s\n\n", cfg.MappingsDir)
		for _, kind := range mapping.Kinds {
			path := filepath.Join(cfg.MappingsDir, kind.Filename())
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Printf("%-14s not started\n", kind)
				continue
			}
			store := mapping.Load(cfg.MappingsDir, kind, appLogger)
			stats := store.CumulativeStats()
			fmt.Printf("%-14s %5d mapped  (created %d, updated %d, errors %d)\n",
				kind, store.Len(), stats.Created, stats.Updated, stats.Errors)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
