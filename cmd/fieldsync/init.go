// Init command creates the config and data directories.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openchw/fieldsync/internal/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the fieldsync config and data directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// PersistentPreRunE already created the config directory and a
		// default config.yaml; initializing the store creates the data
		// directory and applies the schema.
		store := sqlite.New()
		if err := store.Open(cliConfig.DataDir); err != nil {
			return fmt.Errorf("initialize store: %w", err)
		}
		if err := store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}

		fmt.Printf("initialized: config %s, data %s\n", resolveConfigDir(), cliConfig.DataDir)
		return nil
	},
}
