// Update command modifies an existing record by display identifier.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <table> <display-id> <key=value>...",
	Short: "Update an existing record",
	Long: `Update replaces fields of the record with the given display identifier.
Offline updates are queued and replayed in capture order on the next sync.

Example:
  fieldsync update patients P-003 village=Bwera`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, displayID := args[0], args[1]
		if err := checkTableArg(table); err != nil {
			return err
		}
		fields, err := parseFieldArgs(args[2:])
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.monitor.SetOnline(a.client.Ping(cmd.Context()))

		if err := a.writer.UpdateRecord(cmd.Context(), table, displayID, fields); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		fmt.Printf("updated %s\n", displayID)
		return nil
	},
}
