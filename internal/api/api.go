// Package api exposes the writing pipeline over HTTP. Long-running
// generations stream server-sent event frames; record reads return JSON.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/writeflow-dev/writeflow/internal/cover"
	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/material"
	"github.com/writeflow-dev/writeflow/internal/review"
	"github.com/writeflow-dev/writeflow/internal/rewrite"
	"github.com/writeflow-dev/writeflow/internal/storage"
	"github.com/writeflow-dev/writeflow/internal/style"
	"github.com/writeflow-dev/writeflow/internal/workflow"
)

// Handlers bundles the service layer behind the HTTP surface.
type Handlers struct {
	styles    *style.Service
	materials *material.Service
	rewrites  *rewrite.Service
	reviews   *review.Service
	covers    *cover.Service
	workflows *workflow.Service
	store     storage.Store
	logger    *slog.Logger
}

func NewHandlers(styles *style.Service, materials *material.Service, rewrites *rewrite.Service, reviews *review.Service, covers *cover.Service, workflows *workflow.Service, store storage.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		styles:    styles,
		materials: materials,
		rewrites:  rewrites,
		reviews:   reviews,
		covers:    covers,
		workflows: workflows,
		store:     store,
		logger:    logger,
	}
}

// Routes mounts every endpoint under /api.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/styles", func(r chi.Router) {
			r.Post("/extract", h.extractStyle)
			r.Post("/extract/stream", h.extractStyleStream)
			r.Get("/", h.listStyles)
			r.Get("/{id}", h.getStyle)
			r.Delete("/{id}", h.deleteStyle)
		})

		r.Route("/materials", func(r chi.Router) {
			r.Post("/", h.createMaterial)
			r.Get("/", h.listMaterials)
			r.Get("/{id}", h.getMaterial)
			r.Delete("/{id}", h.deleteMaterial)
		})

		r.Route("/rewrites", func(r chi.Router) {
			r.Post("/", h.createRewrite)
			r.Get("/", h.listRewrites)
			r.Get("/stream", h.rewriteStream)
			r.Get("/{id}", h.getRewrite)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/", h.createReview)
			r.Get("/stream", h.reviewStream)
			r.Post("/workflow", h.runWorkflow)
			r.Post("/workflow/resume", h.resumeWorkflow)
			r.Post("/manual-edit", h.createManualEdit)
			r.Get("/manual-edit/{reviewID}", h.getManualEdit)
			r.Get("/rewrite/{rewriteID}", h.listReviewsByRewrite)
			r.Get("/{id}", h.getReview)
		})

		r.Route("/covers", func(r chi.Router) {
			r.Post("/", h.generateCover)
			r.Get("/stream", h.generateCoverStream)
			r.Get("/by-rewrites", h.listCoversByRewrites)
			r.Get("/rewrite/{rewriteID}", h.getCoverByRewrite)
			r.Route("/styles", func(r chi.Router) {
				r.Post("/", h.createCoverStyle)
				r.Get("/", h.listCoverStyles)
				r.Get("/{id}", h.getCoverStyle)
			})
			r.Get("/{id}", h.getCover)
		})
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		apiErr = domain.ErrServer("%v", err)
	}
	h.writeJSON(w, apiErr.HTTPStatusCode(), map[string]any{
		"error": apiErr,
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, domain.ErrInvalidRequest("invalid request body: %v", err))
		return false
	}
	return true
}

// urlID parses the named chi URL parameter as an int64 record id.
func (h *Handlers) urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, domain.ErrInvalidRequest("invalid %s", name))
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return n
}

func queryBool(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "true" || v == "1"
}
