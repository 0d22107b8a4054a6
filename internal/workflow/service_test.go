package workflow

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/rewrite"
	"github.com/writeflow-dev/writeflow/internal/sse"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

type fakeRewriter struct {
	nextID  int64
	created []rewrite.CreateRequest
	content string
	failMsg string
}

func (f *fakeRewriter) Create(ctx context.Context, req rewrite.CreateRequest) (*domain.RewriteRecord, error) {
	f.created = append(f.created, req)
	f.nextID++
	return &domain.RewriteRecord{ID: f.nextID, Status: domain.StatusRunning}, nil
}

func (f *fakeRewriter) RunStream(ctx context.Context, rewriteID int64, emit sse.Emitter) {
	if f.failMsg != "" {
		emit.Send(sse.TypeError, map[string]any{"message": f.failMsg})
		return
	}
	emit.Send(sse.TypeContent, map[string]any{"delta": f.content})
	emit.Send(sse.TypeDone, map[string]any{"final_content": f.content, "actual_words": 100})
}

type fakeReviewer struct {
	nextID    int64
	runs      int
	passAfter int
}

func (f *fakeReviewer) Create(ctx context.Context, rewriteID int64, content string) (*domain.ReviewRecord, error) {
	f.nextID++
	return &domain.ReviewRecord{ID: f.nextID, RewriteID: rewriteID, Content: content}, nil
}

func (f *fakeReviewer) RunStream(ctx context.Context, reviewID int64, styleContext string, emit sse.Emitter) {
	f.runs++
	passed := f.runs > f.passAfter
	score := 20
	if passed {
		score = 42
	}
	emit.Send(sse.TypeDone, map[string]any{
		"passed":      passed,
		"total_score": score,
		"ai_score":    8,
		"result":      "ok",
	})
}

type fakeWorkflowStore struct {
	styles  map[int64]*domain.WritingStyle
	content map[int64]string
	edits   []*domain.ManualEditRecord
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		styles:  map[int64]*domain.WritingStyle{},
		content: map[int64]string{},
	}
}

func (f *fakeWorkflowStore) CreateStyle(ctx context.Context, s *domain.WritingStyle) error {
	f.styles[s.ID] = s
	return nil
}

func (f *fakeWorkflowStore) GetStyle(ctx context.Context, id int64) (*domain.WritingStyle, error) {
	s, ok := f.styles[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeWorkflowStore) ListStyles(ctx context.Context) ([]*domain.WritingStyle, error) {
	return nil, nil
}

func (f *fakeWorkflowStore) DeleteStyle(ctx context.Context, id int64) error { return nil }

func (f *fakeWorkflowStore) CreateRewrite(ctx context.Context, r *domain.RewriteRecord) error {
	return nil
}

func (f *fakeWorkflowStore) GetRewrite(ctx context.Context, id int64) (*domain.RewriteRecord, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeWorkflowStore) ListRewrites(ctx context.Context, styleID int64, page, limit int) ([]*domain.RewriteRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeWorkflowStore) UpdateRewriteResult(ctx context.Context, id int64, finalContent string, actualWords int, ragRetrieved string) error {
	return nil
}

func (f *fakeWorkflowStore) UpdateRewriteContent(ctx context.Context, id int64, finalContent string) error {
	f.content[id] = finalContent
	return nil
}

func (f *fakeWorkflowStore) UpdateRewriteFailure(ctx context.Context, id int64, errMsg string) error {
	return nil
}

func (f *fakeWorkflowStore) CreateManualEdit(ctx context.Context, e *domain.ManualEditRecord) error {
	e.ID = int64(len(f.edits) + 1)
	f.edits = append(f.edits, e)
	return nil
}

func (f *fakeWorkflowStore) GetManualEditByReview(ctx context.Context, reviewID int64) (*domain.ManualEditRecord, error) {
	for _, e := range f.edits {
		if e.ReviewID == reviewID {
			return e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func newTestWorkflow(rewriter *fakeRewriter, reviewer *fakeReviewer, store *fakeWorkflowStore) *Service {
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return NewService(rewriter, reviewer, store, store, store, logger)
}

func TestRun_PassFirstRound(t *testing.T) {
	rewriter := &fakeRewriter{content: "改写后的文章"}
	reviewer := &fakeReviewer{passAfter: 0}
	store := newFakeWorkflowStore()
	svc := newTestWorkflow(rewriter, reviewer, store)

	state, err := svc.Run(context.Background(), Request{SourceArticle: "原文", StyleID: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.CurrentStep != StepDecision {
		t.Errorf("current step = %q, want decision", state.CurrentStep)
	}
	if state.UserDecision != DecisionPending {
		t.Errorf("user decision = %q, want pending", state.UserDecision)
	}
	if state.ReviewResult != domain.ReviewPassed || state.ReviewScore != 42 {
		t.Errorf("review = %q score %d", state.ReviewResult, state.ReviewScore)
	}
	if state.RewrittenContent != "改写后的文章" {
		t.Errorf("content = %q", state.RewrittenContent)
	}
	if _, ok := svc.PausedState(state.RewriteID); !ok {
		t.Error("paused state not retained")
	}
	if len(rewriter.created) != 1 {
		t.Errorf("rewrites created = %d, want 1", len(rewriter.created))
	}
}

func TestRun_RetriesUntilPass(t *testing.T) {
	rewriter := &fakeRewriter{content: "第二稿"}
	reviewer := &fakeReviewer{passAfter: 2}
	store := newFakeWorkflowStore()
	svc := newTestWorkflow(rewriter, reviewer, store)

	state, err := svc.Run(context.Background(), Request{SourceArticle: "原文", MaxRetries: 5})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.CurrentStep != StepDecision {
		t.Errorf("current step = %q, want decision", state.CurrentStep)
	}
	if state.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", state.RetryCount)
	}
	if len(rewriter.created) != 3 {
		t.Errorf("rewrites created = %d, want 3", len(rewriter.created))
	}
}

func TestRun_RetriesExhausted(t *testing.T) {
	rewriter := &fakeRewriter{content: "稿件"}
	reviewer := &fakeReviewer{passAfter: 100}
	store := newFakeWorkflowStore()
	svc := newTestWorkflow(rewriter, reviewer, store)

	state, err := svc.Run(context.Background(), Request{SourceArticle: "原文", MaxRetries: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.CurrentStep != StepEnd {
		t.Errorf("current step = %q, want end", state.CurrentStep)
	}
	if state.ReviewResult != domain.ReviewFailed {
		t.Errorf("review result = %q, want failed", state.ReviewResult)
	}
	if len(rewriter.created) != 2 {
		t.Errorf("rewrites created = %d, want 2", len(rewriter.created))
	}
	if _, ok := svc.PausedState(state.RewriteID); ok {
		t.Error("ended run should not stay paused")
	}
}

func TestRun_RewriteFailure(t *testing.T) {
	rewriter := &fakeRewriter{failMsg: "上游超时"}
	reviewer := &fakeReviewer{}
	store := newFakeWorkflowStore()
	svc := newTestWorkflow(rewriter, reviewer, store)

	_, err := svc.Run(context.Background(), Request{SourceArticle: "原文"})
	if err == nil {
		t.Fatal("Run() expected error")
	}
	if !strings.Contains(err.Error(), "上游超时") {
		t.Errorf("error = %v", err)
	}
	if reviewer.runs != 0 {
		t.Error("review should not run after rewrite failure")
	}
}

func TestResumeWithManualEdit(t *testing.T) {
	rewriter := &fakeRewriter{content: "初稿"}
	reviewer := &fakeReviewer{passAfter: 0}
	store := newFakeWorkflowStore()
	svc := newTestWorkflow(rewriter, reviewer, store)

	state, err := svc.Run(context.Background(), Request{SourceArticle: "原文"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	resumed, err := svc.ResumeWithManualEdit(context.Background(), state.RewriteID, "终稿", "改了结尾")
	if err != nil {
		t.Fatalf("ResumeWithManualEdit() error = %v", err)
	}
	if resumed.CurrentStep != StepCover {
		t.Errorf("current step = %q, want cover", resumed.CurrentStep)
	}
	if resumed.RewrittenContent != "终稿" {
		t.Errorf("content = %q", resumed.RewrittenContent)
	}
	if store.content[state.RewriteID] != "终稿" {
		t.Error("rewrite final content not updated")
	}
	if len(store.edits) != 1 {
		t.Fatalf("edits recorded = %d", len(store.edits))
	}
	edit := store.edits[0]
	if edit.OriginalContent != "初稿" || edit.EditedContent != "终稿" || edit.Status != "approved" {
		t.Errorf("edit record = %+v", edit)
	}
	if _, ok := svc.PausedState(state.RewriteID); ok {
		t.Error("resumed run should not stay paused")
	}
}

func TestResumeSkipToCover(t *testing.T) {
	rewriter := &fakeRewriter{content: "初稿"}
	reviewer := &fakeReviewer{passAfter: 0}
	store := newFakeWorkflowStore()
	svc := newTestWorkflow(rewriter, reviewer, store)

	state, err := svc.Run(context.Background(), Request{SourceArticle: "原文"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	resumed, err := svc.ResumeSkipToCover(context.Background(), state.RewriteID)
	if err != nil {
		t.Fatalf("ResumeSkipToCover() error = %v", err)
	}
	if resumed.CurrentStep != StepCover || resumed.UserDecision != DecisionSkip {
		t.Errorf("state = %q / %q", resumed.CurrentStep, resumed.UserDecision)
	}
	if len(store.edits) != 0 {
		t.Error("skip must not record an edit")
	}
}

func TestResume_UnknownRewrite(t *testing.T) {
	svc := newTestWorkflow(&fakeRewriter{}, &fakeReviewer{}, newFakeWorkflowStore())
	if _, err := svc.ResumeSkipToCover(context.Background(), 99); err == nil {
		t.Fatal("expected error for unknown workflow")
	}
}

func TestResumeWithManualEdit_EmptyContentKeepsPause(t *testing.T) {
	rewriter := &fakeRewriter{content: "初稿"}
	reviewer := &fakeReviewer{passAfter: 0}
	store := newFakeWorkflowStore()
	svc := newTestWorkflow(rewriter, reviewer, store)

	state, _ := svc.Run(context.Background(), Request{SourceArticle: "原文"})

	if _, err := svc.ResumeWithManualEdit(context.Background(), state.RewriteID, "   ", ""); err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := svc.PausedState(state.RewriteID); !ok {
		t.Error("failed resume must keep the paused state")
	}
}
