package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/writeflow-dev/writeflow/internal/stream"
)

// streamCallbacks prints a stream to the terminal: progress lines in gray,
// content deltas raw to stdout, prompt and generation stages labeled. The
// terminal frame settles done with nil or the server error.
func streamCallbacks(done chan<- error, onDone func(payload map[string]any)) stream.Callbacks {
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	return stream.Callbacks{
		OnProgress: func(payload map[string]any) {
			if msg, ok := payload["message"].(string); ok && msg != "" {
				fmt.Fprintf(os.Stderr, "%s\n", gray(msg))
			}
		},
		OnContent: func(delta string, payload map[string]any) {
			fmt.Print(delta)
		},
		OnPrompt: func(payload map[string]any) {
			if p, ok := payload["prompt"].(string); ok && p != "" {
				fmt.Fprintf(os.Stderr, "%s\n%s\n", yellow("prompt:"), p)
			}
		},
		OnStyle: func(payload map[string]any) {
			if name, ok := payload["style_name"].(string); ok && name != "" {
				fmt.Fprintf(os.Stderr, "%s %s\n", gray("style:"), name)
			}
		},
		OnSaving: func(payload map[string]any) {
			fmt.Fprintf(os.Stderr, "%s\n", gray("saving..."))
		},
		OnGenerating: func(payload map[string]any) {
			fmt.Fprintf(os.Stderr, "%s\n", gray("generating image..."))
		},
		OnDone: func(payload map[string]any) {
			if onDone != nil {
				onDone(payload)
			}
			done <- nil
		},
		OnError: func(err error) {
			done <- err
		},
	}
}
