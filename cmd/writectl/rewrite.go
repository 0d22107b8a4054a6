package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/writeflow-dev/writeflow/internal/stream"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [file]",
	Short: "Rewrite an article in a saved style",
	Long: `Rewrite an article in a saved writing style, streaming the result as
it is generated. The article is read from the given file, or from stdin when
no file is given. A URL may be passed with --url instead of a file.`,
	Run: func(cmd *cobra.Command, args []string) {
		styleID, _ := cmd.Flags().GetInt64("style")
		words, _ := cmd.Flags().GetInt("words")
		sourceURL, _ := cmd.Flags().GetString("url")
		enableRAG, _ := cmd.Flags().GetBool("rag")
		if styleID <= 0 {
			fatalf("--style is required")
		}

		source := sourceURL
		if source == "" {
			var err error
			source, err = readSource(args)
			if err != nil {
				fatalf("%v", err)
			}
		}
		if source == "" {
			fatalf("no article content")
		}

		body := map[string]any{
			"source_article": source,
			"style_id":       styleID,
			"target_words":   words,
			"enable_rag":     enableRAG,
		}

		ctx := context.Background()
		controller := stream.NewController()
		sess, err := controller.Start(ctx, func(ctx context.Context, cb stream.Callbacks) (*stream.Handle, error) {
			return streamClient().Open(ctx, "/api/rewrites", body, cb)
		}, stream.WithContentObserver(func(delta, total string) {
			fmt.Print(delta)
		}), stream.WithProgressObserver(func(message string) {
			fmt.Fprintf(os.Stderr, "%s\n", color.New(color.FgHiBlack).Sprint(message))
		}))
		if err != nil {
			fatalf("failed to start rewrite: %v", err)
		}

		result, err := sess.Completion().Wait(ctx)
		if err != nil {
			fatalf("rewrite failed: %v", err)
		}

		record, err := stream.Reconcile(ctx, sess.Completion(), api().GetRewrite)
		if err != nil {
			fatalf("failed to load rewrite %d: %v", result.RecordID, err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n\n%s rewrite %d complete %s\n",
			green("✓"), record.ID,
			gray(fmt.Sprintf("(%d words, status %s)", record.ActualWords, record.Status)))
	},
}

func init() {
	rewriteCmd.Flags().Int64("style", 0, "writing style id")
	rewriteCmd.Flags().Int("words", 1000, "target word count")
	rewriteCmd.Flags().String("url", "", "fetch the source article from a URL")
	rewriteCmd.Flags().Bool("rag", false, "retrieve reference materials for grounding")
	rootCmd.AddCommand(rewriteCmd)
}
