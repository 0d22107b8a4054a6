package api

import (
	"net/http"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/rewrite"
	"github.com/writeflow-dev/writeflow/internal/sse"
)

// createRewrite starts a rewrite and streams it. The start frame carries the
// durable task id before any generated content.
func (h *Handlers) createRewrite(w http.ResponseWriter, r *http.Request) {
	var req rewrite.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.runRewriteStream(w, r, req)
}

// rewriteStream is the GET variant for EventSource clients.
func (h *Handlers) rewriteStream(w http.ResponseWriter, r *http.Request) {
	req := rewrite.CreateRequest{
		SourceArticle: r.URL.Query().Get("source_article"),
		StyleID:       queryInt64(r, "style_id"),
		TargetWords:   queryInt(r, "target_words", 1000),
		EnableRAG:     queryBool(r, "enable_rag"),
		RAGTopK:       queryInt(r, "rag_top_k", 3),
	}
	h.runRewriteStream(w, r, req)
}

func (h *Handlers) runRewriteStream(w http.ResponseWriter, r *http.Request, req rewrite.CreateRequest) {
	record, err := h.rewrites.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		h.writeError(w, domain.ErrServer("%v", err))
		return
	}
	sw.Send(sse.TypeStart, map[string]any{"task_id": record.ID})
	h.rewrites.RunStream(r.Context(), record.ID, sw)
}

func (h *Handlers) listRewrites(w http.ResponseWriter, r *http.Request) {
	styleID := queryInt64(r, "style_id")
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	records, total, err := h.rewrites.List(r.Context(), styleID, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Resolve style names once per distinct id.
	names := map[int64]string{}
	items := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		name, ok := names[rec.StyleID]
		if !ok {
			name = "未知"
			if rec.StyleID != 0 {
				if s, err := h.store.GetStyle(r.Context(), rec.StyleID); err == nil {
					name = s.Name
				}
			}
			names[rec.StyleID] = name
		}
		items = append(items, map[string]any{
			"id":             rec.ID,
			"source_article": rec.SourceArticle,
			"final_content":  rec.FinalContent,
			"style_name":     name,
			"target_words":   rec.TargetWords,
			"actual_words":   rec.ActualWords,
			"status":         rec.Status,
			"error_message":  rec.ErrorMessage,
			"created_at":     rec.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *Handlers) getRewrite(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	record, err := h.rewrites.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}
