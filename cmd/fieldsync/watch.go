// Watch command runs the connectivity monitor and drains on transitions.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch connectivity and sync automatically",
	Long: `Watch polls the backend and drains the sync queue on every transition
to online, the way the mobile app does in the background. Runs until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		a.engine.Start(ctx)
		a.monitor.Start(ctx)
		defer a.monitor.Stop()

		fmt.Printf("watching %s (probe every %s), ctrl-c to stop\n",
			cliConfig.ServerURL, cliConfig.ProbeInterval)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case <-ctx.Done():
		}
		return nil
	},
}
