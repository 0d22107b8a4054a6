package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/writeflow-dev/writeflow/internal/apiclient"
	"github.com/writeflow-dev/writeflow/internal/stream"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "writectl",
	Short: "Command-line client for a writeflow server",
	Long: `writectl drives a running writeflow server from the terminal:
extract writing styles, rewrite articles, review drafts, run the full
rewrite workflow, and generate covers, streaming output as it arrives.`,
	SilenceUsage: true,
}

// api returns a typed REST client for the configured server.
func api() *apiclient.Client {
	return apiclient.New(serverURL)
}

// streamClient returns an event-stream client for the configured server.
func streamClient() *stream.Client {
	return stream.NewClient(serverURL)
}

// readSource returns the article text: the first positional argument is a
// file path, "-" or no argument reads stdin.
func readSource(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()

	defaultServer := os.Getenv("WRITEFLOW_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "writeflow server base URL")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
