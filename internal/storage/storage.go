// Package storage defines the persistence interfaces for writeflow records.
package storage

import (
	"context"
	"errors"

	"github.com/writeflow-dev/writeflow/internal/domain"
)

// ErrNotFound is returned when a record id has no row.
var ErrNotFound = errors.New("not found")

// StyleStore persists extracted writing styles.
type StyleStore interface {
	CreateStyle(ctx context.Context, s *domain.WritingStyle) error
	GetStyle(ctx context.Context, id int64) (*domain.WritingStyle, error)
	ListStyles(ctx context.Context) ([]*domain.WritingStyle, error)
	DeleteStyle(ctx context.Context, id int64) error
}

// MaterialStore persists the retrieval library.
type MaterialStore interface {
	CreateMaterial(ctx context.Context, m *domain.Material) error
	GetMaterial(ctx context.Context, id int64) (*domain.Material, error)
	ListMaterials(ctx context.Context, page, limit int) ([]*domain.Material, int, error)
	DeleteMaterial(ctx context.Context, id int64) error
	UpdateMaterialEmbedding(ctx context.Context, id int64, status, errMsg string) error
	// SearchMaterials ranks materials by keyword overlap with query.
	SearchMaterials(ctx context.Context, query string, topK int) ([]*domain.Material, error)
}

// RewriteStore persists rewrite tasks.
type RewriteStore interface {
	CreateRewrite(ctx context.Context, r *domain.RewriteRecord) error
	GetRewrite(ctx context.Context, id int64) (*domain.RewriteRecord, error)
	ListRewrites(ctx context.Context, styleID int64, page, limit int) ([]*domain.RewriteRecord, int, error)
	UpdateRewriteResult(ctx context.Context, id int64, finalContent string, actualWords int, ragRetrieved string) error
	UpdateRewriteContent(ctx context.Context, id int64, finalContent string) error
	UpdateRewriteFailure(ctx context.Context, id int64, errMsg string) error
}

// ReviewStore persists review rounds.
type ReviewStore interface {
	CreateReview(ctx context.Context, r *domain.ReviewRecord) error
	GetReview(ctx context.Context, id int64) (*domain.ReviewRecord, error)
	ListReviewsByRewrite(ctx context.Context, rewriteID int64) ([]*domain.ReviewRecord, error)
	// LatestReviewRound returns the highest round recorded for a rewrite, 0
	// when none exists.
	LatestReviewRound(ctx context.Context, rewriteID int64) (int, error)
	UpdateReviewResult(ctx context.Context, id int64, result, feedback string, aiScore, totalScore int) error
	UpdateReviewFailure(ctx context.Context, id int64, errMsg string) error
}

// CoverStore persists cover generations and cover style templates.
type CoverStore interface {
	CreateCover(ctx context.Context, c *domain.CoverRecord) error
	GetCover(ctx context.Context, id int64) (*domain.CoverRecord, error)
	GetCoverByRewrite(ctx context.Context, rewriteID int64) (*domain.CoverRecord, error)
	ListCoversByRewrites(ctx context.Context, rewriteIDs []int64) ([]*domain.CoverRecord, error)
	UpdateCover(ctx context.Context, id int64, imageURL, size, status, errMsg string) error

	CreateCoverStyle(ctx context.Context, cs *domain.CoverStyle) error
	GetCoverStyle(ctx context.Context, id int64) (*domain.CoverStyle, error)
	ListCoverStyles(ctx context.Context) ([]*domain.CoverStyle, error)
}

// EditStore persists manual edits.
type EditStore interface {
	CreateManualEdit(ctx context.Context, e *domain.ManualEditRecord) error
	GetManualEditByReview(ctx context.Context, reviewID int64) (*domain.ManualEditRecord, error)
}

// Store is the full persistence surface the server wires up.
type Store interface {
	StyleStore
	MaterialStore
	RewriteStore
	ReviewStore
	CoverStore
	EditStore
	Close() error
}
