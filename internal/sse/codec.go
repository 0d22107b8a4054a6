// Package sse implements the wire framing used by writeflow streaming
// endpoints: newline-delimited event blocks, each carrying one JSON document
// on a "data: " line.
package sse

import (
	"bytes"
	"encoding/json"
)

// FrameType tags a decoded event.
type FrameType string

const (
	TypeStart      FrameType = "start"
	TypeProgress   FrameType = "progress"
	TypeContent    FrameType = "content"
	TypePrompt     FrameType = "prompt"
	TypePromptDone FrameType = "prompt_done"
	TypeSaving     FrameType = "saving"
	TypeGenerating FrameType = "generating"
	TypeStyle      FrameType = "style"
	TypeDone       FrameType = "done"
	TypeError      FrameType = "error"
)

// Known reports whether t is part of the event vocabulary.
func (t FrameType) Known() bool {
	switch t {
	case TypeStart, TypeProgress, TypeContent, TypePrompt, TypePromptDone,
		TypeSaving, TypeGenerating, TypeStyle, TypeDone, TypeError:
		return true
	}
	return false
}

// Terminal reports whether t ends a stream.
func (t FrameType) Terminal() bool {
	return t == TypeDone || t == TypeError
}

// Frame is one decoded event from a stream. Payload holds every field of the
// JSON document, including "type".
type Frame struct {
	Type    FrameType
	Payload map[string]any
}

// String returns the payload field key as a string, or "" if absent or not a
// string.
func (f Frame) String(key string) string {
	s, _ := f.Payload[key].(string)
	return s
}

// Int returns the payload field key as an int64. JSON numbers decode as
// float64, so both representations are accepted.
func (f Frame) Int(key string) (int64, bool) {
	switch v := f.Payload[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// Bool returns the payload field key as a bool.
func (f Frame) Bool(key string) bool {
	b, _ := f.Payload[key].(bool)
	return b
}

var (
	blockSep   = []byte("\n\n")
	dataPrefix = []byte("data: ")
)

// Decoder turns raw transport chunks into complete Frames. Chunks may split
// an event block at any byte boundary; the trailing partial block is buffered
// until the rest arrives. Malformed JSON bodies are dropped, not surfaced.
type Decoder struct {
	buf []byte
}

// Write appends chunk to the internal buffer and returns every complete frame
// decoded so far, in arrival order.
func (d *Decoder) Write(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.Index(d.buf, blockSep)
		if i < 0 {
			break
		}
		block := d.buf[:i]
		d.buf = d.buf[i+len(blockSep):]

		if f, ok := decodeBlock(block); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// Pending reports whether a partial block is buffered.
func (d *Decoder) Pending() bool {
	return len(bytes.TrimSpace(d.buf)) > 0
}

// decodeBlock extracts the data line of one event block and parses its JSON
// body. Non-data lines are tolerated and ignored. Returns false for blocks
// with no data line or an unparsable body.
func decodeBlock(block []byte) (Frame, bool) {
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		body := bytes.TrimSpace(line[len(dataPrefix):])
		if len(body) == 0 {
			continue
		}

		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			// Malformed frames are noise, not fatal errors.
			return Frame{}, false
		}
		typ, _ := payload["type"].(string)
		return Frame{Type: FrameType(typ), Payload: payload}, true
	}
	return Frame{}, false
}
