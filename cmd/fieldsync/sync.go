// Sync command runs one manual drain pass.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the sync queue now",
	Long: `Sync probes the backend and, if reachable, replays every queued write
in capture order. Failed entries stay queued for the next attempt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.client.Ping(cmd.Context()) {
			return fmt.Errorf("backend %s is unreachable", cliConfig.ServerURL)
		}
		a.monitor.SetOnline(true)

		before, err := a.store.QueueLength()
		if err != nil {
			return err
		}
		if before == 0 {
			fmt.Println("nothing to sync")
			return nil
		}

		if err := a.engine.Drain(cmd.Context()); err != nil {
			return fmt.Errorf("sync: %w", err)
		}

		after, err := a.store.QueueLength()
		if err != nil {
			return err
		}
		fmt.Printf("synced %d of %d entries (%d remaining)\n", before-after, before, after)
		return nil
	},
}
