package api

import (
	"net/http"
	"strconv"

	"github.com/writeflow-dev/writeflow/internal/cover"
	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/sse"
)

func (h *Handlers) generateCover(w http.ResponseWriter, r *http.Request) {
	var req cover.Request
	if !h.decode(w, r, &req) {
		return
	}
	h.runCoverStream(w, r, req)
}

// generateCoverStream is the GET variant for EventSource clients.
func (h *Handlers) generateCoverStream(w http.ResponseWriter, r *http.Request) {
	req := cover.Request{
		RewriteID:    queryInt64(r, "rewrite_id"),
		StyleID:      queryInt64(r, "style_id"),
		CustomPrompt: r.URL.Query().Get("custom_prompt"),
		Size:         r.URL.Query().Get("size"),
	}
	h.runCoverStream(w, r, req)
}

func (h *Handlers) runCoverStream(w http.ResponseWriter, r *http.Request, req cover.Request) {
	sw, err := sse.NewWriter(w)
	if err != nil {
		h.writeError(w, domain.ErrServer("%v", err))
		return
	}
	h.covers.GenerateStream(r.Context(), req, sw)
}

func (h *Handlers) getCover(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	record, err := h.covers.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handlers) getCoverByRewrite(w http.ResponseWriter, r *http.Request) {
	rewriteID, ok := h.urlID(w, r, "rewriteID")
	if !ok {
		return
	}
	record, err := h.covers.GetByRewrite(r.Context(), rewriteID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handlers) listCoversByRewrites(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	for _, raw := range r.URL.Query()["rewrite_ids"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}

	records, err := h.covers.ListByRewrites(r.Context(), ids)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []*domain.CoverRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"total": len(records),
	})
}

// --- cover styles ---

func (h *Handlers) createCoverStyle(w http.ResponseWriter, r *http.Request) {
	var cs domain.CoverStyle
	if !h.decode(w, r, &cs) {
		return
	}
	if err := h.covers.CreateStyle(r.Context(), &cs); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &cs)
}

func (h *Handlers) listCoverStyles(w http.ResponseWriter, r *http.Request) {
	styles, err := h.covers.ListStyles(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if styles == nil {
		styles = []*domain.CoverStyle{}
	}
	h.writeJSON(w, http.StatusOK, styles)
}

func (h *Handlers) getCoverStyle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	cs, err := h.covers.GetStyle(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cs)
}
