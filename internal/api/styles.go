package api

import (
	"net/http"
	"strings"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/sse"
)

type extractStyleRequest struct {
	Articles  []string `json:"articles"`
	StyleName string   `json:"style_name"`
	Tags      string   `json:"tags,omitempty"`
}

func normalizeArticles(articles []string) []string {
	var out []string
	for _, a := range articles {
		if trimmed := strings.TrimSpace(a); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (req *extractStyleRequest) validate() error {
	if len(normalizeArticles(req.Articles)) == 0 {
		return domain.ErrInvalidRequest("请提供至少一篇参考文章")
	}
	if strings.TrimSpace(req.StyleName) == "" {
		return domain.ErrInvalidRequest("请提供风格名称")
	}
	return nil
}

func (h *Handlers) extractStyle(w http.ResponseWriter, r *http.Request) {
	var req extractStyleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, err)
		return
	}

	saved, err := h.styles.Extract(r.Context(), normalizeArticles(req.Articles), strings.TrimSpace(req.StyleName), req.Tags)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

func (h *Handlers) extractStyleStream(w http.ResponseWriter, r *http.Request) {
	var req extractStyleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, err)
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		h.writeError(w, domain.ErrServer("%v", err))
		return
	}
	h.styles.ExtractStream(r.Context(), normalizeArticles(req.Articles), strings.TrimSpace(req.StyleName), req.Tags, sw)
}

func (h *Handlers) listStyles(w http.ResponseWriter, r *http.Request) {
	styles, err := h.styles.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, styles)
}

func (h *Handlers) getStyle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	s, err := h.styles.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) deleteStyle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.styles.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "删除成功"})
}
