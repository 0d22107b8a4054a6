package stream

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/writeflow-dev/writeflow/internal/sse"
)

// imagePlaceholderPattern matches the inline image-placeholder tokens the
// rewrite stage embeds in article bodies.
var imagePlaceholderPattern = regexp.MustCompile(`\[配图建议\|名称:[^\]]+\]`)

// recordIDKeys lists the start/done payload fields that may carry the durable
// record id, in lookup order. The field name varies by stage.
var recordIDKeys = []string{"task_id", "review_id", "id"}

// Aggregator is a pure reducer over one session's frame sequence. It
// materializes content deltas, tracks the display length metric, and captures
// the durable record id for reconciliation. Feeding the same ordered frame
// sequence into a fresh Aggregator always reproduces identical content.
type Aggregator struct {
	content           strings.Builder
	recordID          int64
	hasRecordID       bool
	lastProgress      string
	startPayload      map[string]any
	stripPlaceholders bool
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithPlaceholderStripping makes DisplayLength count body runes only,
// excluding image-placeholder tokens and whitespace. This mirrors how the
// backend reports actual_words.
func WithPlaceholderStripping() AggregatorOption {
	return func(a *Aggregator) {
		a.stripPlaceholders = true
	}
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds one frame into the aggregate state.
func (a *Aggregator) Apply(f sse.Frame) {
	switch f.Type {
	case sse.TypeStart:
		if a.startPayload == nil {
			a.startPayload = f.Payload
		}
		a.captureRecordID(f)
	case sse.TypeContent:
		a.content.WriteString(f.String("delta"))
	case sse.TypeProgress:
		if msg := f.String("message"); msg != "" {
			a.lastProgress = msg
		}
	case sse.TypeDone:
		a.captureRecordID(f)
	}
}

func (a *Aggregator) captureRecordID(f sse.Frame) {
	if a.hasRecordID {
		return
	}
	for _, key := range recordIDKeys {
		if id, ok := f.Int(key); ok {
			a.recordID = id
			a.hasRecordID = true
			return
		}
	}
}

// Content returns the materialized result string so far.
func (a *Aggregator) Content() string {
	return a.content.String()
}

// RecordID returns the durable id announced by the stream, if any.
func (a *Aggregator) RecordID() (int64, bool) {
	return a.recordID, a.hasRecordID
}

// LastProgress returns the most recent human-readable status message.
func (a *Aggregator) LastProgress() string {
	return a.lastProgress
}

// StartPayload returns the payload of the first start frame, for display
// metadata such as reference-article counts.
func (a *Aggregator) StartPayload() map[string]any {
	return a.startPayload
}

// DisplayLength returns the length metric for the accumulated content: raw
// rune count, or the body count with placeholder markup and whitespace
// removed when configured.
func (a *Aggregator) DisplayLength() int {
	s := a.content.String()
	if !a.stripPlaceholders {
		return utf8.RuneCountInString(s)
	}
	s = imagePlaceholderPattern.ReplaceAllString(s, "")
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
