// Package workflow chains rewrite and review into one run, retrying failed
// reviews and pausing for the user's decision once a round passes.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/rewrite"
	"github.com/writeflow-dev/writeflow/internal/sse"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

// Workflow steps, in execution order.
const (
	StepRewrite    = "rewrite"
	StepReview     = "review"
	StepDecision   = "decision"
	StepManualEdit = "manual_edit"
	StepCover      = "cover"
	StepEnd        = "end"
)

// User decisions at the pause point.
const (
	DecisionPending    = "pending"
	DecisionManualEdit = "manual_edit"
	DecisionSkip       = "skip_to_cover"
)

// DefaultMaxRetries bounds how many rewrite rounds a failed review triggers.
const DefaultMaxRetries = 3

// Rewriter is the rewrite stage as the workflow consumes it.
type Rewriter interface {
	Create(ctx context.Context, req rewrite.CreateRequest) (*domain.RewriteRecord, error)
	RunStream(ctx context.Context, rewriteID int64, emit sse.Emitter)
}

// Reviewer is the review stage as the workflow consumes it.
type Reviewer interface {
	Create(ctx context.Context, rewriteID int64, content string) (*domain.ReviewRecord, error)
	RunStream(ctx context.Context, reviewID int64, styleContext string, emit sse.Emitter)
}

// Request starts a workflow run.
type Request struct {
	SourceArticle string `json:"source_article"`
	StyleID       int64  `json:"style_id"`
	TargetWords   int    `json:"target_words"`
	EnableRAG     bool   `json:"enable_rag"`
	MaxRetries    int    `json:"max_retries"`
}

// State is the workflow's progress snapshot. A run paused at the decision
// step keeps its state in memory until the user resumes it.
type State struct {
	SourceArticle string `json:"source_article"`
	StyleID       int64  `json:"style_id"`
	TargetWords   int    `json:"target_words"`
	EnableRAG     bool   `json:"enable_rag"`

	RewrittenContent string `json:"rewritten_content"`
	ReviewResult     string `json:"review_result"`
	ReviewFeedback   string `json:"review_feedback"`
	ReviewScore      int    `json:"review_score"`
	RewriteID        int64  `json:"rewrite_id"`
	ReviewID         int64  `json:"review_id"`

	UserDecision string `json:"user_decision"`
	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`
	CurrentStep  string `json:"current_step"`
}

// nodeResult collects one stage's stream into its terminal outcome.
type nodeResult struct {
	content strings.Builder
	done    map[string]any
	errMsg  string
}

func (r *nodeResult) Send(t sse.FrameType, payload map[string]any) error {
	switch t {
	case sse.TypeContent:
		if delta, ok := payload["delta"].(string); ok {
			r.content.WriteString(delta)
		}
	case sse.TypeDone:
		r.done = payload
	case sse.TypeError:
		if msg, ok := payload["message"].(string); ok {
			r.errMsg = msg
		}
	}
	return nil
}

func (r *nodeResult) err(stage string) error {
	if r.errMsg != "" {
		return fmt.Errorf("%s: %s", stage, r.errMsg)
	}
	if r.done == nil {
		return fmt.Errorf("%s: stream ended without a terminal frame", stage)
	}
	return nil
}

// Service runs and resumes workflows. Paused states live in memory, so a
// restart drops them and the user starts the run again.
type Service struct {
	rewriter Rewriter
	reviewer Reviewer
	styles   storage.StyleStore
	rewrites storage.RewriteStore
	edits    storage.EditStore
	logger   *slog.Logger

	mu     sync.Mutex
	paused map[int64]*State
}

func NewService(rewriter Rewriter, reviewer Reviewer, styles storage.StyleStore, rewrites storage.RewriteStore, edits storage.EditStore, logger *slog.Logger) *Service {
	return &Service{
		rewriter: rewriter,
		reviewer: reviewer,
		styles:   styles,
		rewrites: rewrites,
		edits:    edits,
		logger:   logger,
		paused:   map[int64]*State{},
	}
}

// Run executes rewrite rounds until a review passes or retries run out.
// A passing review pauses the run at the decision step and returns its state;
// exhausted retries end the run with the last failed review recorded.
func (s *Service) Run(ctx context.Context, req Request) (*State, error) {
	return s.run(ctx, req, nil)
}

// RunObserved is Run with a hook invoked after each completed step, carrying
// a snapshot of the state at that point.
func (s *Service) RunObserved(ctx context.Context, req Request, observe func(step string, snapshot State)) (*State, error) {
	return s.run(ctx, req, observe)
}

func (s *Service) run(ctx context.Context, req Request, observe func(step string, snapshot State)) (*State, error) {
	if req.TargetWords == 0 {
		req.TargetWords = 1000
	}
	if req.MaxRetries == 0 {
		req.MaxRetries = DefaultMaxRetries
	}

	state := &State{
		SourceArticle: req.SourceArticle,
		StyleID:       req.StyleID,
		TargetWords:   req.TargetWords,
		EnableRAG:     req.EnableRAG,
		MaxRetries:    req.MaxRetries,
	}

	styleContext := ""
	if req.StyleID != 0 {
		style, err := s.styles.GetStyle(ctx, req.StyleID)
		if err == nil {
			styleContext = style.Summary()
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load style: %w", err)
		}
	}

	notify := func() {
		if observe != nil {
			observe(state.CurrentStep, *state)
		}
	}

	for {
		if err := s.runRewrite(ctx, state); err != nil {
			return nil, err
		}
		notify()
		if err := s.runReview(ctx, state, styleContext); err != nil {
			return nil, err
		}
		notify()

		if state.ReviewResult == domain.ReviewPassed {
			state.CurrentStep = StepDecision
			state.UserDecision = DecisionPending
			s.mu.Lock()
			s.paused[state.RewriteID] = state
			s.mu.Unlock()
			s.logger.Info("workflow paused for decision",
				slog.Int64("rewrite_id", state.RewriteID),
				slog.Int("score", state.ReviewScore))
			notify()
			return state, nil
		}

		state.RetryCount++
		if state.RetryCount >= state.MaxRetries {
			s.logger.Warn("workflow retries exhausted",
				slog.Int64("rewrite_id", state.RewriteID),
				slog.Int("max_retries", state.MaxRetries))
			state.CurrentStep = StepEnd
			notify()
			return state, nil
		}
		s.logger.Info("review failed, retrying rewrite",
			slog.Int64("rewrite_id", state.RewriteID),
			slog.Int("retry_count", state.RetryCount))
	}
}

func (s *Service) runRewrite(ctx context.Context, state *State) error {
	state.CurrentStep = StepRewrite
	s.logger.Info("workflow rewrite round", slog.Int("retry_count", state.RetryCount))

	record, err := s.rewriter.Create(ctx, rewrite.CreateRequest{
		SourceArticle: state.SourceArticle,
		StyleID:       state.StyleID,
		TargetWords:   state.TargetWords,
		EnableRAG:     state.EnableRAG,
	})
	if err != nil {
		return err
	}
	state.RewriteID = record.ID

	var result nodeResult
	s.rewriter.RunStream(ctx, record.ID, &result)
	if err := result.err("改写失败"); err != nil {
		return err
	}

	content, _ := result.done["final_content"].(string)
	if content == "" {
		content = result.content.String()
	}
	state.RewrittenContent = content
	return nil
}

func (s *Service) runReview(ctx context.Context, state *State, styleContext string) error {
	state.CurrentStep = StepReview

	record, err := s.reviewer.Create(ctx, state.RewriteID, state.RewrittenContent)
	if err != nil {
		return err
	}
	state.ReviewID = record.ID

	var result nodeResult
	s.reviewer.RunStream(ctx, record.ID, styleContext, &result)
	if err := result.err("审核失败"); err != nil {
		return err
	}

	passed, _ := result.done["passed"].(bool)
	score, _ := result.done["total_score"].(int)
	if passed {
		state.ReviewResult = domain.ReviewPassed
	} else {
		state.ReviewResult = domain.ReviewFailed
	}
	state.ReviewScore = score
	if feedback, err := json.Marshal(result.done); err == nil {
		state.ReviewFeedback = string(feedback)
	}
	return nil
}

// ResumeWithManualEdit applies the user's hand edit to the paused run. The
// edit is recorded, the rewrite's final content replaced, and the run moves
// on to the cover step without another review.
func (s *Service) ResumeWithManualEdit(ctx context.Context, rewriteID int64, editedContent, editNote string) (*State, error) {
	state, err := s.takePaused(rewriteID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(editedContent) == "" {
		s.restorePaused(rewriteID, state)
		return nil, domain.ErrInvalidRequest("编辑内容不能为空")
	}

	edit := &domain.ManualEditRecord{
		ReviewID:        state.ReviewID,
		RewriteID:       rewriteID,
		OriginalContent: state.RewrittenContent,
		EditedContent:   editedContent,
		EditNote:        editNote,
		Status:          "approved",
	}
	if err := s.edits.CreateManualEdit(ctx, edit); err != nil {
		s.restorePaused(rewriteID, state)
		return nil, fmt.Errorf("failed to record manual edit: %w", err)
	}
	if err := s.rewrites.UpdateRewriteContent(ctx, rewriteID, editedContent); err != nil {
		s.restorePaused(rewriteID, state)
		return nil, fmt.Errorf("failed to update rewrite content: %w", err)
	}

	state.UserDecision = DecisionManualEdit
	state.RewrittenContent = editedContent
	state.CurrentStep = StepCover
	s.logger.Info("workflow resumed with manual edit", slog.Int64("rewrite_id", rewriteID))
	return state, nil
}

// ResumeSkipToCover skips the hand edit and moves the paused run to the
// cover step.
func (s *Service) ResumeSkipToCover(ctx context.Context, rewriteID int64) (*State, error) {
	state, err := s.takePaused(rewriteID)
	if err != nil {
		return nil, err
	}
	state.UserDecision = DecisionSkip
	state.CurrentStep = StepCover
	s.logger.Info("workflow resumed, skipping to cover", slog.Int64("rewrite_id", rewriteID))
	return state, nil
}

// PausedState returns the decision-step snapshot of a run, if any.
func (s *Service) PausedState(rewriteID int64) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.paused[rewriteID]
	return state, ok
}

func (s *Service) takePaused(rewriteID int64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.paused[rewriteID]
	if !ok {
		return nil, domain.ErrNotFound("找不到工作流状态: %d", rewriteID)
	}
	delete(s.paused, rewriteID)
	return state, nil
}

func (s *Service) restorePaused(rewriteID int64, state *State) {
	s.mu.Lock()
	s.paused[rewriteID] = state
	s.mu.Unlock()
}
