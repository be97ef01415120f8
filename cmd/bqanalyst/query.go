package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var queryThreadID string

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask the analyst one question",
	Long: `Ask the analyst a question about the project's BigQuery data.

Pass --thread to continue an earlier conversation; without it a new thread
is started and its id printed so the conversation can be picked up later.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newAnalystApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		threadID := queryThreadID
		if threadID == "" {
			threadID = uuid.NewString()
		}

		result, err := app.analyst.Query(ctx, threadID, strings.Join(args, " "))
		if err != nil {
			return err
		}

		fmt.Println(result.Response)
		fmt.Println()
		color.Cyan("thread: %s  (steps: %d, tool calls: %d)",
			result.ThreadID, result.Steps, result.ToolCalls)
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryThreadID, "thread", "", "thread id to continue")
}
