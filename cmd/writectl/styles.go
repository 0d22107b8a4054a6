package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "Manage saved writing styles",
}

var stylesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved writing styles",
	Run: func(cmd *cobra.Command, args []string) {
		styles, err := api().ListStyles(context.Background())
		if err != nil {
			fatalf("failed to list styles: %v", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Writing Styles ==="))
		if len(styles) == 0 {
			fmt.Printf("  %s\n", gray("No saved styles"))
			return
		}
		for _, s := range styles {
			fmt.Printf("  [%d] %s\n", s.ID, s.Name)
			if s.Tags != "" {
				fmt.Printf("      %s\n", gray(s.Tags))
			}
		}
	},
}

var stylesExtractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Extract a writing style from reference articles",
	Long: `Extract a writing style from one or more reference articles and save
it under the given name. Each positional argument is a file containing one
article; with no arguments one article is read from stdin.`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		tags, _ := cmd.Flags().GetString("tags")
		if name == "" {
			fatalf("--name is required")
		}

		var articles []string
		if len(args) == 0 {
			article, err := readSource(nil)
			if err != nil {
				fatalf("%v", err)
			}
			articles = append(articles, article)
		} else {
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					fatalf("%v", err)
				}
				articles = append(articles, string(data))
			}
		}

		body := map[string]any{
			"articles":   articles,
			"style_name": name,
			"tags":       tags,
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		done := make(chan error, 1)
		handle, err := streamClient().Open(context.Background(), "/api/styles/extract/stream", body, streamCallbacks(done, func(payload map[string]any) {
			fmt.Printf("\n%s style saved", green("✓"))
			if id, ok := payload["id"]; ok {
				fmt.Printf(" %s", gray(fmt.Sprintf("(id %v)", id)))
			}
			fmt.Println()
		}))
		if err != nil {
			fatalf("failed to open stream: %v", err)
		}
		defer handle.Close()

		if err := <-done; err != nil {
			fatalf("%v", err)
		}
	},
}

var stylesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved writing style",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			fatalf("invalid style id %q", args[0])
		}
		green := color.New(color.FgGreen).SprintFunc()
		if err := api().DeleteStyle(context.Background(), id); err != nil {
			fatalf("failed to delete style: %v", err)
		}
		fmt.Printf("%s style %d deleted\n", green("✓"), id)
	},
}

func init() {
	stylesExtractCmd.Flags().String("name", "", "name for the extracted style")
	stylesExtractCmd.Flags().String("tags", "", "comma-separated tags for the extracted style")

	stylesCmd.AddCommand(stylesListCmd)
	stylesCmd.AddCommand(stylesExtractCmd)
	stylesCmd.AddCommand(stylesDeleteCmd)
	rootCmd.AddCommand(stylesCmd)
}
