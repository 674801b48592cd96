// Queue command inspects the pending sync queue.
package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openchw/fieldsync/pkg/types"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show pending sync queue entries",
	Long: `Queue lists every write still waiting to reach the backend, oldest
first. Entries disappear once a sync pass applies them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		entries, err := a.store.ReadQueue()
		if err != nil {
			return err
		}

		if flagJSON {
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("encode queue: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(entries) == 0 {
			fmt.Println("queue is empty")
			return nil
		}
		for _, e := range entries {
			snap, err := types.DecodeSnapshot(e.Payload)
			id := "<malformed>"
			if err == nil {
				id = snap.DisplayID
			}
			fmt.Printf("%d\t%s\t%s\t%s\t%s\n",
				e.QueueID, e.Action, e.TableName, id,
				time.Since(e.CreatedAt).Round(time.Second))
		}
		return nil
	},
}
