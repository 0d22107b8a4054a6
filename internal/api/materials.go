package api

import (
	"net/http"
	"strings"
)

type createMaterialRequest struct {
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Tags      string `json:"tags,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	// Source is a compatibility alias for source_url.
	Source string `json:"source,omitempty"`
}

// deriveTitle builds a fallback title from the source URL or the first
// content line when none is given.
func deriveTitle(req createMaterialRequest, sourceURL string) string {
	if title := strings.TrimSpace(req.Title); title != "" {
		return title
	}
	if sourceURL != "" {
		if runes := []rune(sourceURL); len(runes) > 100 {
			return string(runes[:100])
		}
		return sourceURL
	}
	firstLine, _, _ := strings.Cut(strings.TrimSpace(req.Content), "\n")
	if runes := []rune(firstLine); len(runes) > 50 {
		firstLine = string(runes[:50])
	}
	if firstLine == "" {
		return "未命名素材"
	}
	return firstLine
}

func (h *Handlers) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if !h.decode(w, r, &req) {
		return
	}

	sourceURL := req.SourceURL
	if sourceURL == "" {
		sourceURL = req.Source
	}

	m, err := h.materials.Create(r.Context(), deriveTitle(req, sourceURL), req.Content, req.Tags, sourceURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) listMaterials(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	materials, total, err := h.materials.List(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"items": materials,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *Handlers) getMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.materials.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) deleteMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.materials.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "删除成功"})
}
