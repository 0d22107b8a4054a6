// Package stream implements the client side of the writeflow streaming
// protocol: decoding event frames from a long-lived connection, aggregating
// incremental content, and settling a completion once the stream ends.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/writeflow-dev/writeflow/internal/sse"
)

// Callbacks receives decoded frames in arrival order. Nil entries are
// skipped. Unknown frame types are dropped without notice so stages added
// later do not break existing consumers.
type Callbacks struct {
	OnStart      func(payload map[string]any)
	OnProgress   func(payload map[string]any)
	OnContent    func(delta string, payload map[string]any)
	OnPrompt     func(payload map[string]any)
	OnPromptDone func(payload map[string]any)
	OnSaving     func(payload map[string]any)
	OnGenerating func(payload map[string]any)
	OnStyle      func(payload map[string]any)
	OnDone       func(payload map[string]any)
	OnError      func(err error)
}

// Subscription is a push-style event source: an already-established
// server-push channel delivering raw chunks. Chunks is closed when the source
// ends; Err reports why. There is no transparent reconnect: one permanent
// failure ends the session.
type Subscription interface {
	Chunks() <-chan []byte
	Err() error
	Close() error
}

// Handle owns one live connection. Closing it is the only way to stop
// receiving frames; Close is idempotent and guarantees no callback fires
// after it returns. Close must not be called from inside a callback.
type Handle struct {
	cancel context.CancelFunc
	conn   io.Closer

	// dispatchMu serializes frame dispatch; Close acquires it to wait out an
	// in-flight callback.
	dispatchMu sync.Mutex
	closed     atomic.Bool
	terminal   bool

	once sync.Once
	done chan struct{}

	// connOnce guards conn.Close so the consume loop and Close can both
	// release the connection without double-closing.
	connOnce sync.Once
	connErr  error
}

// release frees the underlying connection and cancels the request context.
// The consume loops call it when they exit, including on a terminal frame,
// so a finished stream never holds its connection open.
func (h *Handle) release() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.conn != nil {
		h.connOnce.Do(func() { h.connErr = h.conn.Close() })
	}
}

// Close stops the stream. Safe to call multiple times and after the stream
// has already reached a terminal frame.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() {
		h.closed.Store(true)
		h.release()
		err = h.connErr
		h.dispatchMu.Lock()
		h.dispatchMu.Unlock() //nolint:staticcheck // barrier: wait for in-flight callback
	})
	return err
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// Done is closed once the consume loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// dispatch routes one frame to its callback. Returns false once the stream
// must stop (terminal frame seen or handle closed).
func (h *Handle) dispatch(f sse.Frame, cb Callbacks) bool {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	if h.closed.Load() || h.terminal {
		return false
	}

	switch f.Type {
	case sse.TypeStart:
		if cb.OnStart != nil {
			cb.OnStart(f.Payload)
		}
	case sse.TypeProgress:
		if cb.OnProgress != nil {
			cb.OnProgress(f.Payload)
		}
	case sse.TypeContent:
		if cb.OnContent != nil {
			cb.OnContent(f.String("delta"), f.Payload)
		}
	case sse.TypePrompt:
		if cb.OnPrompt != nil {
			cb.OnPrompt(f.Payload)
		}
	case sse.TypePromptDone:
		if cb.OnPromptDone != nil {
			cb.OnPromptDone(f.Payload)
		}
	case sse.TypeSaving:
		if cb.OnSaving != nil {
			cb.OnSaving(f.Payload)
		}
	case sse.TypeGenerating:
		if cb.OnGenerating != nil {
			cb.OnGenerating(f.Payload)
		}
	case sse.TypeStyle:
		if cb.OnStyle != nil {
			cb.OnStyle(f.Payload)
		}
	case sse.TypeDone:
		h.terminal = true
		if cb.OnDone != nil {
			cb.OnDone(f.Payload)
		}
		return false
	case sse.TypeError:
		h.terminal = true
		if cb.OnError != nil {
			cb.OnError(&ServerError{Message: f.String("message")})
		}
		return false
	default:
		// Unknown type: ignore, stream continues.
	}
	return true
}

// fail delivers a transport-level error unless a terminal frame already
// settled the stream.
func (h *Handle) fail(err error, cb Callbacks) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	if h.closed.Load() || h.terminal {
		return
	}
	h.terminal = true
	if cb.OnError != nil {
		cb.OnError(&TransportError{Err: err})
	}
}

// Client opens streaming connections against a writeflow server. The same
// callback contract applies whether the transport is a one-shot chunked
// response (Open) or a push subscription (Attach).
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

// NewClient creates a stream client for the given server base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open POSTs body as JSON to path and consumes the chunked event-stream
// response until a terminal frame or transport failure. Open blocks until
// the transport accepts the request; frame consumption runs in the
// background.
func (c *Client) Open(ctx context.Context, path string, body any, cb Callbacks) (*Handle, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	return c.start(cancel, req, cb)
}

// OpenGet issues a GET with query parameters, for endpoints that stream on
// GET (EventSource-style clients use the same shape).
func (c *Client) OpenGet(ctx context.Context, path string, params url.Values, cb Callbacks) (*Handle, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	return c.start(cancel, req, cb)
}

func (c *Client) start(cancel context.CancelFunc, req *http.Request, cb Callbacks) (*Handle, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &TransportError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	h := &Handle{
		cancel: cancel,
		conn:   resp.Body,
		done:   make(chan struct{}),
	}
	go h.consumeReader(resp.Body, cb)
	return h, nil
}

// Attach consumes a push subscription under the same callback contract as
// Open. The returned handle owns the subscription; closing the handle closes
// the subscription.
func Attach(ctx context.Context, sub Subscription, cb Callbacks) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		conn:   closerFunc(sub.Close),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer h.release()
		var dec sse.Decoder
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-sub.Chunks():
				if !ok {
					if err := sub.Err(); err != nil {
						h.fail(err, cb)
					} else {
						// Closed without a terminal frame.
						h.fail(io.ErrUnexpectedEOF, cb)
					}
					return
				}
				for _, f := range dec.Write(chunk) {
					if !h.dispatch(f, cb) {
						return
					}
				}
			}
		}
	}()

	return h
}

func (h *Handle) consumeReader(body io.ReadCloser, cb Callbacks) {
	defer close(h.done)
	defer h.release()

	var dec sse.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, f := range dec.Write(buf[:n]) {
				if !h.dispatch(f, cb) {
					return
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				// The transport finished without a terminal frame.
				h.fail(io.ErrUnexpectedEOF, cb)
			} else {
				h.fail(err, cb)
			}
			return
		}
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
