package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var coverCmd = &cobra.Command{
	Use:   "cover",
	Short: "Generate a cover image for a rewrite",
	Long: `Generate a cover image for a completed rewrite. The prompt comes from
--prompt when given, otherwise from the cover style named by --style,
otherwise it is derived from the article content.`,
	Run: func(cmd *cobra.Command, args []string) {
		rewriteID, _ := cmd.Flags().GetInt64("rewrite")
		styleID, _ := cmd.Flags().GetInt64("style")
		prompt, _ := cmd.Flags().GetString("prompt")
		size, _ := cmd.Flags().GetString("size")
		if rewriteID <= 0 {
			fatalf("--rewrite is required")
		}

		body := map[string]any{
			"rewrite_id":    rewriteID,
			"style_id":      styleID,
			"custom_prompt": prompt,
			"size":          size,
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		done := make(chan error, 1)
		handle, err := streamClient().Open(context.Background(), "/api/covers", body, streamCallbacks(done, func(payload map[string]any) {
			fmt.Printf("%s cover ready\n", green("✓"))
			if url, ok := payload["image_url"].(string); ok {
				fmt.Println(url)
			}
			if resolved, ok := payload["resolved_size"].(string); ok {
				fmt.Printf("%s\n", gray(fmt.Sprintf("size: %s", resolved)))
			}
		}))
		if err != nil {
			fatalf("failed to open cover stream: %v", err)
		}
		defer handle.Close()

		if err := <-done; err != nil {
			fatalf("cover generation failed: %v", err)
		}
	},
}

func init() {
	coverCmd.Flags().Int64("rewrite", 0, "rewrite id to generate a cover for")
	coverCmd.Flags().Int64("style", 0, "cover style id")
	coverCmd.Flags().String("prompt", "", "custom image prompt")
	coverCmd.Flags().String("size", "", "aspect ratio or size preset (2.35:1, 1:1, 9:16, 3:4, 1k, 2k, 4k)")
	rootCmd.AddCommand(coverCmd)
}
