package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/sse"
	"github.com/writeflow-dev/writeflow/internal/storage"
	"github.com/writeflow-dev/writeflow/internal/workflow"
)

type createReviewRequest struct {
	RewriteID int64 `json:"rewrite_id"`
}

func (h *Handlers) createReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.runReviewStream(w, r, req.RewriteID)
}

// reviewStream is the GET variant for EventSource clients.
func (h *Handlers) reviewStream(w http.ResponseWriter, r *http.Request) {
	h.runReviewStream(w, r, queryInt64(r, "rewrite_id"))
}

func (h *Handlers) runReviewStream(w http.ResponseWriter, r *http.Request, rewriteID int64) {
	rewriteRecord, err := h.rewrites.Get(r.Context(), rewriteID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if strings.TrimSpace(rewriteRecord.FinalContent) == "" {
		h.writeError(w, domain.ErrInvalidRequest("改写内容为空"))
		return
	}

	record, err := h.reviews.Create(r.Context(), rewriteID, rewriteRecord.FinalContent)
	if err != nil {
		h.writeError(w, err)
		return
	}

	styleContext := ""
	if rewriteRecord.StyleID != 0 {
		if s, err := h.store.GetStyle(r.Context(), rewriteRecord.StyleID); err == nil {
			styleContext = s.Summary()
		}
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		h.writeError(w, domain.ErrServer("%v", err))
		return
	}
	sw.Send(sse.TypeStart, map[string]any{"review_id": record.ID})
	h.reviews.RunStream(r.Context(), record.ID, styleContext, sw)
}

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	record, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handlers) listReviewsByRewrite(w http.ResponseWriter, r *http.Request) {
	rewriteID, ok := h.urlID(w, r, "rewriteID")
	if !ok {
		return
	}
	records, err := h.reviews.ListByRewrite(r.Context(), rewriteID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"total": len(records),
	})
}

// --- workflow ---

func (h *Handlers) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflow.Request
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SourceArticle) == "" {
		h.writeError(w, domain.ErrInvalidRequest("请输入文章内容"))
		return
	}
	if req.TargetWords == 0 {
		req.TargetWords = 1000
	}
	if req.TargetWords < 100 || req.TargetWords > 10000 {
		h.writeError(w, domain.ErrInvalidRequest("目标字数应在 100-10000 之间"))
		return
	}
	if _, err := h.store.GetStyle(r.Context(), req.StyleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, domain.ErrNotFound("风格不存在"))
			return
		}
		h.writeError(w, domain.ErrServer("%v", err))
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		h.writeError(w, domain.ErrServer("%v", err))
		return
	}

	final, err := h.workflows.RunObserved(r.Context(), req, func(step string, snapshot workflow.State) {
		sw.Send(sse.TypeProgress, map[string]any{
			"node":  step,
			"state": snapshot,
		})
	})
	if err != nil {
		sw.Error(err.Error())
		return
	}
	sw.Send(sse.TypeDone, map[string]any{
		"id":           final.RewriteID,
		"current_step": final.CurrentStep,
		"state":        final,
	})
}

type workflowResumeRequest struct {
	RewriteID     int64  `json:"rewrite_id"`
	EditedContent string `json:"edited_content,omitempty"`
	EditNote      string `json:"edit_note,omitempty"`
}

func (h *Handlers) resumeWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowResumeRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		state *workflow.State
		err   error
	)
	if req.EditedContent != "" {
		state, err = h.workflows.ResumeWithManualEdit(r.Context(), req.RewriteID, req.EditedContent, req.EditNote)
	} else {
		state, err = h.workflows.ResumeSkipToCover(r.Context(), req.RewriteID)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "completed",
		"current_step": state.CurrentStep,
	})
}

// --- manual edits ---

type manualEditRequest struct {
	ReviewID      int64  `json:"review_id"`
	EditedContent string `json:"edited_content"`
	EditNote      string `json:"edit_note,omitempty"`
}

// createManualEdit records a hand edit of a reviewed article and replaces the
// rewrite's final content. The edited article goes straight to cover
// generation without another review round.
func (h *Handlers) createManualEdit(w http.ResponseWriter, r *http.Request) {
	var req manualEditRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.EditedContent) == "" {
		h.writeError(w, domain.ErrInvalidRequest("编辑内容不能为空"))
		return
	}

	reviewRecord, err := h.reviews.Get(r.Context(), req.ReviewID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.rewrites.Get(r.Context(), reviewRecord.RewriteID); err != nil {
		h.writeError(w, err)
		return
	}

	edit := &domain.ManualEditRecord{
		ReviewID:        req.ReviewID,
		RewriteID:       reviewRecord.RewriteID,
		OriginalContent: reviewRecord.Content,
		EditedContent:   req.EditedContent,
		EditNote:        req.EditNote,
		Status:          "approved",
	}
	if err := h.store.CreateManualEdit(r.Context(), edit); err != nil {
		h.writeError(w, domain.ErrServer("failed to record manual edit: %v", err))
		return
	}
	if err := h.store.UpdateRewriteContent(r.Context(), reviewRecord.RewriteID, req.EditedContent); err != nil {
		h.writeError(w, domain.ErrServer("failed to update rewrite content: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, edit)
}

func (h *Handlers) getManualEdit(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.urlID(w, r, "reviewID")
	if !ok {
		return
	}
	edit, err := h.store.GetManualEditByReview(r.Context(), reviewID)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, domain.ErrNotFound("手动编辑记录不存在"))
		return
	}
	if err != nil {
		h.writeError(w, domain.ErrServer("%v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, edit)
}
