package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/writeflow-dev/writeflow/internal/sse"
)

// Status is the session state machine.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusStreaming
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusStreaming:
		return "streaming"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is the terminal value of a successful session.
type Result struct {
	RecordID int64
	Content  string
	Payload  map[string]any
}

// ErrNotSettled is returned by Completion.Result before a terminal frame has
// been processed. A cancelled session stays unsettled forever.
var ErrNotSettled = errors.New("completion not settled")

// Completion is a promise-style terminal value. It resolves on done, rejects
// on error, and is deliberately never settled on user cancellation so callers
// can tell "user stopped this" apart from "this failed".
type Completion struct {
	done chan struct{}

	mu      sync.Mutex
	settled bool
	result  Result
	err     error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Done is closed once the completion settles, either way.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Settled reports whether a terminal value is available.
func (c *Completion) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// Result returns the terminal value. Before settlement it returns
// ErrNotSettled.
func (c *Completion) Result() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.settled {
		return Result{}, ErrNotSettled
	}
	return c.result, c.err
}

// Wait blocks until the completion settles or ctx expires.
func (c *Completion) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Completion) resolve(r Result) {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		return
	}
	c.settled = true
	c.result = r
	c.mu.Unlock()
	close(c.done)
}

func (c *Completion) reject(err error) {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		return
	}
	c.settled = true
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

// Opener establishes the underlying connection for a session: either
// Client.Open/OpenGet or Attach over a push subscription.
type Opener func(ctx context.Context, cb Callbacks) (*Handle, error)

// SessionOption configures a session before it connects.
type SessionOption func(*Session)

// WithAggregatorOptions forwards options to the session's aggregator.
func WithAggregatorOptions(opts ...AggregatorOption) SessionOption {
	return func(s *Session) {
		s.agg = NewAggregator(opts...)
	}
}

// WithContentObserver registers a hook invoked synchronously on every content
// frame, before the next frame is processed. delta is the incremental
// fragment; total the aggregate so far. This is where a UI renders the
// running transcript.
func WithContentObserver(fn func(delta, total string)) SessionOption {
	return func(s *Session) {
		s.observe = fn
	}
}

// WithProgressObserver registers a hook invoked on progress-style frames with
// the last human-readable status message.
func WithProgressObserver(fn func(message string)) SessionOption {
	return func(s *Session) {
		s.progress = fn
	}
}

// Session tracks one in-flight streamed task. It owns exactly one live
// connection; the aggregator, record id, and completion are exclusive to the
// session.
type Session struct {
	mu       sync.Mutex
	status   Status
	agg      *Aggregator
	handle   *Handle
	comp     *Completion
	observe  func(delta, total string)
	progress func(message string)
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Completion returns the session's terminal promise.
func (s *Session) Completion() *Completion {
	return s.comp
}

// Content returns the aggregated content so far. Best-effort live preview;
// the reconciled record wins after completion.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Content()
}

// DisplayLength returns the aggregator's length metric.
func (s *Session) DisplayLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.DisplayLength()
}

// LastProgress returns the last status message seen.
func (s *Session) LastProgress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.LastProgress()
}

// Handle exposes the connection handle, primarily for tests asserting
// closed-flag ordering.
func (s *Session) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Cancel closes the connection. Content already aggregated stays in memory;
// the completion is left unsettled. Idempotent; a no-op after a terminal
// frame.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.status == StatusConnecting || s.status == StatusStreaming {
		s.status = StatusCancelled
	}
	h := s.handle
	s.mu.Unlock()

	if h != nil {
		h.Close()
	}
}

func (s *Session) callbacks() Callbacks {
	apply := func(t sse.FrameType) func(map[string]any) {
		return func(payload map[string]any) {
			s.mu.Lock()
			s.agg.Apply(sse.Frame{Type: t, Payload: payload})
			fn := s.progress
			msg := s.agg.LastProgress()
			s.mu.Unlock()
			if fn != nil && msg != "" {
				fn(msg)
			}
		}
	}

	return Callbacks{
		OnStart:      apply(sse.TypeStart),
		OnProgress:   apply(sse.TypeProgress),
		OnPrompt:     apply(sse.TypePrompt),
		OnPromptDone: apply(sse.TypePromptDone),
		OnSaving:     apply(sse.TypeSaving),
		OnGenerating: apply(sse.TypeGenerating),
		OnStyle:      apply(sse.TypeStyle),
		OnContent: func(delta string, payload map[string]any) {
			s.mu.Lock()
			s.agg.Apply(sse.Frame{Type: sse.TypeContent, Payload: payload})
			total := s.agg.Content()
			fn := s.observe
			s.mu.Unlock()
			// Visible state must reflect this delta before the next frame is
			// processed; dispatch is serialized, so a synchronous call suffices.
			if fn != nil {
				fn(delta, total)
			}
		},
		OnDone: func(payload map[string]any) {
			s.mu.Lock()
			s.agg.Apply(sse.Frame{Type: sse.TypeDone, Payload: payload})
			id, ok := s.agg.RecordID()
			content := s.agg.Content()
			if !ok {
				s.status = StatusFailed
				s.mu.Unlock()
				s.comp.reject(ErrMissingRecordID)
				return
			}
			s.status = StatusCompleted
			s.mu.Unlock()
			s.comp.resolve(Result{RecordID: id, Content: content, Payload: payload})
		},
		OnError: func(err error) {
			s.mu.Lock()
			s.status = StatusFailed
			s.mu.Unlock()
			s.comp.reject(err)
		},
	}
}

// Controller coordinates streams for one UI call site, allowing at most one
// active session at a time. Starting a new session closes the previous
// session's connection before the new one opens.
type Controller struct {
	mu     sync.Mutex
	active *Session
}

// NewController creates an empty controller.
func NewController() *Controller {
	return &Controller{}
}

// Active returns the current session, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start replaces any active session with a new one. The previous session's
// connection is closed before open is invoked; no orphaned connections
// remain. On open failure the error is returned and the controller has no
// active session.
func (c *Controller) Start(ctx context.Context, open Opener, opts ...SessionOption) (*Session, error) {
	c.mu.Lock()
	prev := c.active
	c.active = nil
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	s := &Session{
		status: StatusConnecting,
		agg:    NewAggregator(),
		comp:   newCompletion(),
	}
	for _, opt := range opts {
		opt(s)
	}

	h, err := open(ctx, s.callbacks())
	if err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.mu.Unlock()
		s.comp.reject(err)
		return nil, err
	}

	s.mu.Lock()
	s.handle = h
	if s.status == StatusConnecting {
		s.status = StatusStreaming
	}
	cancelled := s.status == StatusCancelled
	s.mu.Unlock()

	if cancelled {
		// Cancel raced the connect; release the connection it never saw.
		h.Close()
		return s, nil
	}

	c.mu.Lock()
	c.active = s
	c.mu.Unlock()
	return s, nil
}
