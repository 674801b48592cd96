// List command shows the records of a table.
package main

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <table>",
	Short: "List the records of a table",
	Long: `List prints every record of the given table in capture order, with its
display identifier and sync state.

Valid table names: patients, children, appointments`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := args[0]
		if err := checkTableArg(table); err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		records, err := a.store.ListRecords(table)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := printRecord(rec); err != nil {
				return err
			}
		}
		return nil
	},
}
