package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review a completed rewrite",
	Long: `Run a quality review over a completed rewrite and print the verdict.
The review streams while the model evaluates the draft.`,
	Run: func(cmd *cobra.Command, args []string) {
		rewriteID, _ := cmd.Flags().GetInt64("rewrite")
		if rewriteID <= 0 {
			fatalf("--rewrite is required")
		}

		body := map[string]any{"rewrite_id": rewriteID}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		done := make(chan error, 1)
		handle, err := streamClient().Open(context.Background(), "/api/reviews", body, streamCallbacks(done, func(payload map[string]any) {
			passed, _ := payload["passed"].(bool)
			verdict := red("✗ failed")
			if passed {
				verdict = green("✓ passed")
			}
			fmt.Printf("\n\n%s", verdict)
			if score, ok := payload["total_score"]; ok {
				fmt.Printf(" (score %v)", score)
			}
			fmt.Println()
			if detail, err := json.MarshalIndent(payload, "", "  "); err == nil {
				fmt.Println(string(detail))
			}
		}))
		if err != nil {
			fatalf("failed to open review stream: %v", err)
		}
		defer handle.Close()

		if err := <-done; err != nil {
			fatalf("review failed: %v", err)
		}
	},
}

func init() {
	reviewCmd.Flags().Int64("rewrite", 0, "rewrite id to review")
	rootCmd.AddCommand(reviewCmd)
}
