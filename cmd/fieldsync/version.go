// Version command for the fieldsync CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openchw/fieldsync/pkg/fieldsync"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fieldsync version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("fieldsync", fieldsync.Version)
	},
}
