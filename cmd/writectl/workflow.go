package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/writeflow-dev/writeflow/internal/stream"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Run the rewrite-review workflow",
}

var workflowRunCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Rewrite an article and review it until it passes",
	Long: `Run the full workflow: rewrite the article, review the draft, and
retry failed drafts up to the retry limit. A passing draft pauses the
workflow for a decision; resume it with "writectl workflow resume".`,
	Run: func(cmd *cobra.Command, args []string) {
		styleID, _ := cmd.Flags().GetInt64("style")
		words, _ := cmd.Flags().GetInt("words")
		retries, _ := cmd.Flags().GetInt("max-retries")
		if styleID <= 0 {
			fatalf("--style is required")
		}
		source, err := readSource(args)
		if err != nil {
			fatalf("%v", err)
		}
		if source == "" {
			fatalf("no article content")
		}

		body := map[string]any{
			"source_article": source,
			"style_id":       styleID,
			"target_words":   words,
			"max_retries":    retries,
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		done := make(chan error, 1)
		cb := stream.Callbacks{
			OnProgress: func(payload map[string]any) {
				node, _ := payload["node"].(string)
				fmt.Fprintf(os.Stderr, "%s %s\n", cyan("node:"), node)
				if state, ok := payload["state"].(map[string]any); ok {
					if round, ok := state["retry_count"]; ok {
						fmt.Fprintf(os.Stderr, "  %s\n", gray(fmt.Sprintf("retries: %v", round)))
					}
				}
			},
			OnDone: func(payload map[string]any) {
				fmt.Printf("%s workflow stopped at %v", green("✓"), payload["current_step"])
				if id, ok := payload["id"]; ok {
					fmt.Printf(" %s", gray(fmt.Sprintf("(rewrite %v)", id)))
				}
				fmt.Println()
				done <- nil
			},
			OnError: func(err error) {
				done <- err
			},
		}

		handle, err := streamClient().Open(context.Background(), "/api/reviews/workflow", body, cb)
		if err != nil {
			fatalf("failed to start workflow: %v", err)
		}
		defer handle.Close()

		if err := <-done; err != nil {
			fatalf("workflow failed: %v", err)
		}
	},
}

var workflowResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a workflow paused at the decision step",
	Long: `Resume a paused workflow. With --edit-file the file's content replaces
the draft as a manual edit; without it the draft is accepted as-is and the
workflow skips straight to cover generation.`,
	Run: func(cmd *cobra.Command, args []string) {
		rewriteID, _ := cmd.Flags().GetInt64("rewrite")
		editFile, _ := cmd.Flags().GetString("edit-file")
		note, _ := cmd.Flags().GetString("note")
		if rewriteID <= 0 {
			fatalf("--rewrite is required")
		}

		edited := ""
		if editFile != "" {
			data, err := os.ReadFile(editFile)
			if err != nil {
				fatalf("%v", err)
			}
			edited = string(data)
		}

		if err := api().ResumeWorkflow(context.Background(), rewriteID, edited, note); err != nil {
			fatalf("failed to resume workflow: %v", err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s workflow %d resumed\n", green("✓"), rewriteID)
	},
}

func init() {
	workflowRunCmd.Flags().Int64("style", 0, "writing style id")
	workflowRunCmd.Flags().Int("words", 1000, "target word count")
	workflowRunCmd.Flags().Int("max-retries", 3, "review retry limit")
	workflowResumeCmd.Flags().Int64("rewrite", 0, "paused rewrite id")
	workflowResumeCmd.Flags().String("edit-file", "", "file with manually edited content")
	workflowResumeCmd.Flags().String("note", "", "note recorded with the manual edit")

	workflowCmd.AddCommand(workflowRunCmd)
	workflowCmd.AddCommand(workflowResumeCmd)
	rootCmd.AddCommand(workflowCmd)
}
