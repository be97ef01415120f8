package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage conversation threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete a thread and all its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newStorageApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.saver.DeleteThread(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("deleted thread", args[0])
		return nil
	},
}

func init() {
	threadsCmd.AddCommand(threadsDeleteCmd)
}
