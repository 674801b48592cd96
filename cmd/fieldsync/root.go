// Root command and global flags for the fieldsync CLI.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openchw/fieldsync/pkg/fieldsync"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagServerURL string
	flagJSON      bool
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:     "fieldsync",
	Short:   "Offline-first field data capture with queued sync",
	Version: fieldsync.Version,
	Long: `Fieldsync stores patient, child, and appointment records on the device
and keeps them in sync with a remote backend. Records captured while
offline receive a provisional identifier and a durable queue entry; the
queue is drained, in order, whenever the backend becomes reachable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return loadCLIConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: .fieldsync)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: .fieldsync-db)")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server-url", "", "remote backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(devserverCmd)
}
