// Devserver command runs the in-memory backend for local development.
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/openchw/fieldsync/internal/remote"
)

var devserverAddr string

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory backend for local development",
	Long: `Devserver serves the backend CRUD API from memory: create, update,
count, and health, with canonical identifier allocation. Data is lost when
the process exits; this is a development fixture, not a backend.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := &http.Server{
			Addr:              devserverAddr,
			Handler:           remote.NewDevServer().Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		fmt.Printf("devserver listening on %s\n", devserverAddr)
		return srv.ListenAndServe()
	},
}

func init() {
	devserverCmd.Flags().StringVar(&devserverAddr, "addr", ":8787", "listen address")
}
