package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Show a thread's checkpoint history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newStorageApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := bqanalyst.ThreadHistory(ctx, app.saver, args[0], historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no checkpoints for thread", args[0])
			return nil
		}

		for _, e := range entries {
			color.Cyan("%s  step=%d source=%s messages=%d",
				e.CheckpointID, e.Step, e.Source, len(e.Messages))
			if len(e.Messages) > 0 {
				last := e.Messages[len(e.Messages)-1]
				fmt.Printf("  last: [%s] %s\n", last.Role, truncate(last.Content, 120))
			}
		}
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "max checkpoints to show (0 for all)")
}
