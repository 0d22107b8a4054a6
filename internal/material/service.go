// Package material manages the retrieval library backing rewrite context.
package material

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/rewrite"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

// Service manages materials and answers retrieval queries for the rewrite
// pipeline.
type Service struct {
	store    storage.MaterialStore
	embedder Embedder
	fetcher  *http.Client
	logger   *slog.Logger
}

// NewService creates the material service. embedder may be nil when no
// embeddings endpoint is configured; materials then stay in pending state.
func NewService(store storage.MaterialStore, embedder Embedder, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		fetcher:  http.DefaultClient,
		logger:   logger,
	}
}

// Create adds a material. When content is empty but sourceURL is set, the
// page text is fetched and used as the content. The material is kept even
// when embedding validation fails; only its embedding status records the
// failure.
func (s *Service) Create(ctx context.Context, title, content, tags, sourceURL string) (*domain.Material, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrInvalidRequest("material title is required")
	}

	if strings.TrimSpace(content) == "" && rewrite.IsURLInput(sourceURL) {
		s.logger.Info("fetching material content", slog.String("url", sourceURL))
		fetched, err := rewrite.FetchArticle(ctx, s.fetcher, sourceURL)
		if err != nil {
			return nil, domain.ErrInvalidRequest("could not fetch content from url: %v", err)
		}
		content = fetched
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrInvalidRequest("material content is required")
	}

	m := &domain.Material{
		Title:     title,
		Content:   content,
		Tags:      tags,
		SourceURL: sourceURL,
	}
	if err := s.store.CreateMaterial(ctx, m); err != nil {
		return nil, domain.ErrServer("failed to save material: %v", err)
	}

	status, errMsg := "completed", ""
	if s.embedder != nil {
		if _, err := s.embedder.Embed(ctx, title+"\n\n"+content); err != nil {
			s.logger.Error("material embedding failed", slog.Int64("material_id", m.ID), slog.String("error", err.Error()))
			status, errMsg = "failed", err.Error()
		}
	} else {
		status = "pending"
	}
	if err := s.store.UpdateMaterialEmbedding(ctx, m.ID, status, errMsg); err != nil {
		return nil, domain.ErrServer("failed to update embedding status: %v", err)
	}
	m.EmbeddingStatus = status
	m.EmbeddingError = errMsg

	s.logger.Info("material created", slog.Int64("material_id", m.ID), slog.String("title", title))
	return m, nil
}

// Retrieve ranks materials against query and returns the topK hits in the
// shape the rewrite pipeline records.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedMaterial, error) {
	hits, err := s.store.SearchMaterials(ctx, query, topK)
	if err != nil {
		return nil, domain.ErrServer("material search failed: %v", err)
	}

	retrieved := make([]domain.RetrievedMaterial, 0, len(hits))
	for i, h := range hits {
		// Rank-derived score; best hit closest to 1.
		retrieved = append(retrieved, domain.RetrievedMaterial{
			MaterialID: h.ID,
			Content:    h.Content,
			Score:      1.0 / float64(i+1),
		})
	}
	return retrieved, nil
}

// Get returns one material.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Material, error) {
	m, err := s.store.GetMaterial(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound("material %d not found", id)
	}
	if err != nil {
		return nil, domain.ErrServer("failed to load material: %v", err)
	}
	return m, nil
}

// List returns one page of materials and the total count.
func (s *Service) List(ctx context.Context, page, limit int) ([]*domain.Material, int, error) {
	materials, total, err := s.store.ListMaterials(ctx, page, limit)
	if err != nil {
		return nil, 0, domain.ErrServer("failed to list materials: %v", err)
	}
	return materials, total, nil
}

// Delete removes a material.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.DeleteMaterial(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ErrNotFound("material %d not found", id)
	}
	if err != nil {
		return domain.ErrServer("failed to delete material: %v", err)
	}
	s.logger.Info("material deleted", slog.Int64("material_id", id))
	return nil
}
