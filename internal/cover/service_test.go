package cover

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/imagegen"
	"github.com/writeflow-dev/writeflow/internal/llm"
	"github.com/writeflow-dev/writeflow/internal/sse"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

func TestStripPromptControlMeta(t *testing.T) {
	prompt := "A watercolor city skyline\n公众号封面标准尺寸 2.35:1\nwarm tones, 8K"
	got := stripPromptControlMeta(prompt)
	if strings.Contains(got, "公众号") || strings.Contains(got, "2.35:1") {
		t.Errorf("control line survived: %q", got)
	}
	if !strings.Contains(got, "watercolor") || !strings.Contains(got, "warm tones") {
		t.Errorf("content lines dropped: %q", got)
	}
}

func TestStripPromptControlMeta_AllLinesControl(t *testing.T) {
	prompt := "比例为 9:16"
	if got := stripPromptControlMeta(prompt); got != prompt {
		t.Errorf("got %q, want original prompt kept", got)
	}
}

func TestAppendNonRenderMetaGuard(t *testing.T) {
	got := appendNonRenderMetaGuard("a cat")
	if !strings.Contains(got, "do not render instruction text") {
		t.Errorf("guard missing: %q", got)
	}
	if again := appendNonRenderMetaGuard(got); again != got {
		t.Error("guard appended twice")
	}
}

func TestRenderStylePrompt(t *testing.T) {
	got := renderStylePrompt("封面：{title}，内容：{content}", "正文摘要", "标题")
	want := "封面：标题，内容：正文摘要"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderStylePrompt_NoPlaceholders(t *testing.T) {
	got := renderStylePrompt("极简风格封面", "正文摘要", "标题")
	if !strings.Contains(got, "极简风格封面") {
		t.Errorf("template dropped: %q", got)
	}
	if !strings.Contains(got, "文章标题参考：标题") || !strings.Contains(got, "文章核心内容摘要：正文摘要") {
		t.Errorf("article context not appended: %q", got)
	}
}

// --- stream flow ---

type recordedFrame struct {
	t       sse.FrameType
	payload map[string]any
}

type frameRecorder struct {
	frames []recordedFrame
}

func (r *frameRecorder) Send(t sse.FrameType, payload map[string]any) error {
	r.frames = append(r.frames, recordedFrame{t: t, payload: payload})
	return nil
}

func (r *frameRecorder) types() []sse.FrameType {
	out := make([]sse.FrameType, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.t
	}
	return out
}

type fakeStore struct {
	rewrites    map[int64]*domain.RewriteRecord
	covers      map[int64]*domain.CoverRecord
	coverStyles map[int64]*domain.CoverStyle
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rewrites:    map[int64]*domain.RewriteRecord{},
		covers:      map[int64]*domain.CoverRecord{},
		coverStyles: map[int64]*domain.CoverStyle{},
		nextID:      1,
	}
}

func (f *fakeStore) CreateRewrite(ctx context.Context, r *domain.RewriteRecord) error {
	r.ID = f.nextID
	f.nextID++
	f.rewrites[r.ID] = r
	return nil
}

func (f *fakeStore) GetRewrite(ctx context.Context, id int64) (*domain.RewriteRecord, error) {
	r, ok := f.rewrites[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListRewrites(ctx context.Context, styleID int64, page, limit int) ([]*domain.RewriteRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) UpdateRewriteResult(ctx context.Context, id int64, finalContent string, actualWords int, ragRetrieved string) error {
	return nil
}

func (f *fakeStore) UpdateRewriteContent(ctx context.Context, id int64, finalContent string) error {
	return nil
}

func (f *fakeStore) UpdateRewriteFailure(ctx context.Context, id int64, errMsg string) error {
	return nil
}

func (f *fakeStore) CreateCover(ctx context.Context, c *domain.CoverRecord) error {
	c.ID = f.nextID
	f.nextID++
	f.covers[c.ID] = c
	return nil
}

func (f *fakeStore) GetCover(ctx context.Context, id int64) (*domain.CoverRecord, error) {
	c, ok := f.covers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) GetCoverByRewrite(ctx context.Context, rewriteID int64) (*domain.CoverRecord, error) {
	for _, c := range f.covers {
		if c.RewriteID == rewriteID {
			return c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListCoversByRewrites(ctx context.Context, rewriteIDs []int64) ([]*domain.CoverRecord, error) {
	var out []*domain.CoverRecord
	for _, id := range rewriteIDs {
		if c, err := f.GetCoverByRewrite(ctx, id); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateCover(ctx context.Context, id int64, imageURL, size, status, errMsg string) error {
	c, ok := f.covers[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.ImageURL = imageURL
	c.Size = size
	c.Status = status
	c.ErrorMessage = errMsg
	return nil
}

func (f *fakeStore) CreateCoverStyle(ctx context.Context, cs *domain.CoverStyle) error {
	cs.ID = f.nextID
	f.nextID++
	f.coverStyles[cs.ID] = cs
	return nil
}

func (f *fakeStore) GetCoverStyle(ctx context.Context, id int64) (*domain.CoverStyle, error) {
	cs, ok := f.coverStyles[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cs, nil
}

func (f *fakeStore) ListCoverStyles(ctx context.Context) ([]*domain.CoverStyle, error) {
	var out []*domain.CoverStyle
	for _, cs := range f.coverStyles {
		out = append(out, cs)
	}
	return out, nil
}

func (f *fakeStore) CreateStyle(ctx context.Context, s *domain.WritingStyle) error { return nil }

func (f *fakeStore) GetStyle(ctx context.Context, id int64) (*domain.WritingStyle, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListStyles(ctx context.Context) ([]*domain.WritingStyle, error) {
	return nil, nil
}

func (f *fakeStore) DeleteStyle(ctx context.Context, id int64) error { return nil }

func newTestService(t *testing.T, store *fakeStore, imageHandler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(imageHandler)
	t.Cleanup(srv.Close)

	images := imagegen.NewClient("test-key", "test-model", imagegen.WithBaseURL(srv.URL))
	llmClient := llm.NewClient("test-key", "test-model")
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return NewService(store, store, store, llmClient, images, logger)
}

func TestGenerateStream_CustomPrompt(t *testing.T) {
	store := newFakeStore()
	store.CreateRewrite(context.Background(), &domain.RewriteRecord{
		SourceArticle: "原文",
		FinalContent:  "改写后的文章内容，长度足够生成封面。",
		Status:        domain.StatusCompleted,
	})

	svc := newTestService(t, store, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["size"] != "2048x2048" {
			t.Errorf("size = %v, want 2048x2048", req["size"])
		}
		prompt, _ := req["prompt"].(string)
		if !strings.Contains(prompt, "do not render instruction text") {
			t.Errorf("prompt missing guard: %q", prompt)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": "https://img.example/c.png", "size": "2048x2048"}},
		})
	})

	rec := &frameRecorder{}
	svc.GenerateStream(context.Background(), Request{RewriteID: 1, CustomPrompt: "a neon city\n比例为 1:1", Size: "1:1"}, rec)

	want := []sse.FrameType{sse.TypeStart, sse.TypePromptDone, sse.TypeSaving, sse.TypeGenerating, sse.TypeDone}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("frame types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame types = %v, want %v", got, want)
		}
	}

	done := rec.frames[len(rec.frames)-1].payload
	if done["image_url"] != "https://img.example/c.png" {
		t.Errorf("image_url = %v", done["image_url"])
	}
	if done["requested_size"] != "1:1" || done["resolved_size"] != "2048x2048" {
		t.Errorf("sizes = %v / %v", done["requested_size"], done["resolved_size"])
	}
	prompt, _ := done["prompt"].(string)
	if strings.Contains(prompt, "比例为") {
		t.Errorf("control line leaked into prompt: %q", prompt)
	}

	cover, err := store.GetCover(context.Background(), done["id"].(int64))
	if err != nil {
		t.Fatalf("cover not saved: %v", err)
	}
	if cover.Status != domain.StatusCompleted {
		t.Errorf("status = %q, want completed", cover.Status)
	}
	if cover.ImageURL != "https://img.example/c.png" {
		t.Errorf("stored image url = %q", cover.ImageURL)
	}
}

func TestGenerateStream_StyleTemplate(t *testing.T) {
	store := newFakeStore()
	store.CreateRewrite(context.Background(), &domain.RewriteRecord{
		SourceArticle: "关于远程办公的思考",
		FinalContent:  "远程办公正在改变协作方式，这篇文章讨论它的得失。",
		Status:        domain.StatusCompleted,
	})
	style := &domain.CoverStyle{Name: "极简", PromptTemplate: "minimalist cover about {content}"}
	store.CreateCoverStyle(context.Background(), style)

	svc := newTestService(t, store, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": "https://img.example/s.png", "size": "3072x1308"}},
		})
	})

	rec := &frameRecorder{}
	svc.GenerateStream(context.Background(), Request{RewriteID: 1, StyleID: style.ID}, rec)

	last := rec.frames[len(rec.frames)-1]
	if last.t != sse.TypeDone {
		t.Fatalf("last frame = %v, payload %v", last.t, last.payload)
	}

	var promptDone map[string]any
	for _, f := range rec.frames {
		if f.t == sse.TypePromptDone {
			promptDone = f.payload
		}
	}
	if promptDone == nil {
		t.Fatal("no prompt_done frame")
	}
	if promptDone["source"] != "style" || promptDone["style_name"] != "极简" {
		t.Errorf("prompt_done = %v", promptDone)
	}
	prompt, _ := promptDone["prompt"].(string)
	if !strings.Contains(prompt, "远程办公") {
		t.Errorf("template not rendered with content: %q", prompt)
	}
}

func TestGenerateStream_ImageFailureMarksCover(t *testing.T) {
	store := newFakeStore()
	store.CreateRewrite(context.Background(), &domain.RewriteRecord{
		FinalContent: "可以生成封面的改写内容。",
		Status:       domain.StatusCompleted,
	})

	svc := newTestService(t, store, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "quota exceeded"},
		})
	})

	rec := &frameRecorder{}
	svc.GenerateStream(context.Background(), Request{RewriteID: 1, CustomPrompt: "a cat"}, rec)

	last := rec.frames[len(rec.frames)-1]
	if last.t != sse.TypeError {
		t.Fatalf("last frame = %v, want error", last.t)
	}

	cover, err := store.GetCoverByRewrite(context.Background(), 1)
	if err != nil {
		t.Fatalf("cover record missing: %v", err)
	}
	if cover.Status != domain.StatusFailed {
		t.Errorf("status = %q, want failed", cover.Status)
	}
	if cover.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
}

func TestGenerateStream_RewriteMissing(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, func(w http.ResponseWriter, r *http.Request) {
		t.Error("image API should not be called")
	})

	rec := &frameRecorder{}
	svc.GenerateStream(context.Background(), Request{RewriteID: 99, CustomPrompt: "a cat"}, rec)

	last := rec.frames[len(rec.frames)-1]
	if last.t != sse.TypeError {
		t.Fatalf("last frame = %v, want error", last.t)
	}
	if len(store.covers) != 0 {
		t.Error("no cover should be saved")
	}
}

func TestGenerateStream_EmptyContent(t *testing.T) {
	store := newFakeStore()
	store.CreateRewrite(context.Background(), &domain.RewriteRecord{
		FinalContent: "   ",
		Status:       domain.StatusRunning,
	})
	svc := newTestService(t, store, func(w http.ResponseWriter, r *http.Request) {
		t.Error("image API should not be called")
	})

	rec := &frameRecorder{}
	svc.GenerateStream(context.Background(), Request{RewriteID: 1, CustomPrompt: "a cat"}, rec)

	last := rec.frames[len(rec.frames)-1]
	if last.t != sse.TypeError {
		t.Fatalf("last frame = %v, want error", last.t)
	}
	if msg, _ := last.payload["message"].(string); !strings.Contains(msg, "改写内容为空") {
		t.Errorf("message = %q", msg)
	}
}
