package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func waitCompletion(t *testing.T, comp *Completion) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return comp.Wait(ctx)
}

func TestController_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrame(t, w, map[string]any{"type": "start", "task_id": 42})
		writeFrame(t, w, map[string]any{"type": "progress", "step": "rewrite", "message": "正在改写"})
		writeFrame(t, w, map[string]any{"type": "content", "delta": "AB"})
		writeFrame(t, w, map[string]any{"type": "content", "delta": "CD"})
		writeFrame(t, w, map[string]any{"type": "done", "final_content": "ABCD", "actual_words": 4})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctrl := NewController()

	var mu sync.Mutex
	var totals []string
	sess, err := ctrl.Start(context.Background(), func(ctx context.Context, cb Callbacks) (*Handle, error) {
		return client.Open(ctx, "/api/rewrites", map[string]any{"source_article": "原文"}, cb)
	}, WithContentObserver(func(delta, total string) {
		mu.Lock()
		totals = append(totals, total)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res, err := waitCompletion(t, sess.Completion())
	if err != nil {
		t.Fatalf("completion error = %v", err)
	}
	if res.RecordID != 42 {
		t.Errorf("record id = %d, want 42", res.RecordID)
	}
	if res.Content != "ABCD" {
		t.Errorf("content = %q", res.Content)
	}
	if sess.Status() != StatusCompleted {
		t.Errorf("status = %v, want completed", sess.Status())
	}
	if sess.LastProgress() != "正在改写" {
		t.Errorf("last progress = %q", sess.LastProgress())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(totals) != 2 || totals[0] != "AB" || totals[1] != "ABCD" {
		t.Errorf("observed totals = %v", totals)
	}
}

func TestController_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			writeFrame(t, w, map[string]any{"type": "start", "task_id": 1})
			select {
			case <-r.Context().Done():
			case <-release:
			}
		case "/fast":
			writeFrame(t, w, map[string]any{"type": "start", "task_id": 2})
			writeFrame(t, w, map[string]any{"type": "done", "final_content": ""})
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL)
	ctrl := NewController()

	first, err := ctrl.Start(context.Background(), func(ctx context.Context, cb Callbacks) (*Handle, error) {
		return client.OpenGet(ctx, "/slow", nil, cb)
	})
	if err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	second, err := ctrl.Start(context.Background(), func(ctx context.Context, cb Callbacks) (*Handle, error) {
		return client.OpenGet(ctx, "/fast", nil, cb)
	})
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if !first.Handle().Closed() {
		t.Error("previous session's connection still open")
	}
	if first.Status() != StatusCancelled {
		t.Errorf("first status = %v, want cancelled", first.Status())
	}
	if first.Completion().Settled() {
		t.Error("replaced session's completion must stay unsettled")
	}
	if ctrl.Active() != second {
		t.Error("controller active is not the new session")
	}

	if _, err := waitCompletion(t, second.Completion()); err != nil {
		t.Fatalf("second completion error = %v", err)
	}
}

func TestSession_MissingRecordID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrame(t, w, map[string]any{"type": "content", "delta": "X"})
		writeFrame(t, w, map[string]any{"type": "done", "final_content": "X"})
	}))
	defer srv.Close()

	ctrl := NewController()
	sess, err := ctrl.Start(context.Background(), func(ctx context.Context, cb Callbacks) (*Handle, error) {
		return NewClient(srv.URL).OpenGet(ctx, "/stream", nil, cb)
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err = waitCompletion(t, sess.Completion())
	if !errors.Is(err, ErrMissingRecordID) {
		t.Fatalf("error = %v, want ErrMissingRecordID", err)
	}
	if sess.Status() != StatusFailed {
		t.Errorf("status = %v, want failed", sess.Status())
	}
	if sess.Content() != "X" {
		t.Errorf("aggregated content lost: %q", sess.Content())
	}
}

func TestSession_CancelLeavesCompletionUnsettled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrame(t, w, map[string]any{"type": "content", "delta": "早期内容"})
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctrl := NewController()
	sess, err := ctrl.Start(context.Background(), func(ctx context.Context, cb Callbacks) (*Handle, error) {
		return NewClient(srv.URL).OpenGet(ctx, "/stream", nil, cb)
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never started")
	}

	// Wait for the delta to land so cancellation provably happens mid-stream.
	deadline := time.After(5 * time.Second)
	for sess.Content() == "" {
		select {
		case <-deadline:
			t.Fatal("content never aggregated")
		case <-time.After(time.Millisecond):
		}
	}

	sess.Cancel()
	waitDone(t, sess.Handle())

	if sess.Status() != StatusCancelled {
		t.Errorf("status = %v, want cancelled", sess.Status())
	}
	if sess.Completion().Settled() {
		t.Error("cancelled completion must stay unsettled")
	}
	if _, err := sess.Completion().Result(); !errors.Is(err, ErrNotSettled) {
		t.Errorf("Result() error = %v, want ErrNotSettled", err)
	}
	if sess.Content() != "早期内容" {
		t.Errorf("aggregated content lost on cancel: %q", sess.Content())
	}
}

func TestReconcile(t *testing.T) {
	comp := newCompletion()
	comp.resolve(Result{RecordID: 42, Content: "ABCD"})

	type record struct {
		ID      int64
		Content string
	}
	rec, err := Reconcile(context.Background(), comp, func(ctx context.Context, id int64) (*record, error) {
		if id != 42 {
			t.Errorf("fetch id = %d, want 42", id)
		}
		return &record{ID: id, Content: "ABCD"}, nil
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if rec.ID != 42 {
		t.Errorf("record id = %d", rec.ID)
	}
}

func TestReconcile_RecordMissing(t *testing.T) {
	comp := newCompletion()
	comp.resolve(Result{RecordID: 9})

	_, err := Reconcile(context.Background(), comp, func(ctx context.Context, id int64) (struct{}, error) {
		return struct{}{}, ErrRecordNotFound
	})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("error = %v, want ErrRecordNotFound", err)
	}
}

func TestReconcile_UnsettledCompletion(t *testing.T) {
	comp := newCompletion()
	_, err := Reconcile(context.Background(), comp, func(ctx context.Context, id int64) (struct{}, error) {
		t.Fatal("fetch must not run before settlement")
		return struct{}{}, nil
	})
	if !errors.Is(err, ErrNotSettled) {
		t.Fatalf("error = %v, want ErrNotSettled", err)
	}
}
