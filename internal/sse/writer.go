package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Emitter is the send side of an event stream. Generation services emit
// frames through it without knowing the transport behind.
type Emitter interface {
	Send(t FrameType, payload map[string]any) error
}

// Writer emits event frames to an HTTP response using the stream framing.
// Construction sets the event-stream headers; each Send flushes immediately
// so clients see frames as they are produced.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter prepares w for server-sent events. It fails when the underlying
// ResponseWriter cannot flush incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Writer{w: w, f: f}, nil
}

// Send writes one event block with the given type. The "type" field is merged
// into the payload; payload may be nil.
func (sw *Writer) Send(t FrameType, payload map[string]any) error {
	doc := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		doc[k] = v
	}
	doc["type"] = string(t)

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", t, err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sw.f.Flush()
	return nil
}

// Error sends a terminal error frame carrying msg.
func (sw *Writer) Error(msg string) error {
	return sw.Send(TypeError, map[string]any{"message": msg})
}
