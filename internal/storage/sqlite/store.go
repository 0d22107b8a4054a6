// Package sqlite is the SQLite implementation of the writeflow stores.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

// Store implements storage.Store on a single SQLite database.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS writing_styles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			style_description TEXT NOT NULL,
			example_text TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS materials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			embedding_status TEXT NOT NULL DEFAULT 'pending',
			embedding_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rewrite_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_article TEXT NOT NULL,
			final_content TEXT NOT NULL DEFAULT '',
			style_id INTEGER NOT NULL,
			target_words INTEGER NOT NULL,
			actual_words INTEGER NOT NULL DEFAULT 0,
			enable_rag INTEGER NOT NULL DEFAULT 0,
			rag_top_k INTEGER NOT NULL DEFAULT 0,
			rag_retrieved TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS review_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rewrite_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT 'pending',
			feedback TEXT NOT NULL DEFAULT '',
			ai_score INTEGER NOT NULL DEFAULT 0,
			total_score INTEGER NOT NULL DEFAULT 0,
			round INTEGER NOT NULL DEFAULT 1,
			retry_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			FOREIGN KEY (rewrite_id) REFERENCES rewrite_records(id)
		)`,
		`CREATE TABLE IF NOT EXISTS cover_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rewrite_id INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			size TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			FOREIGN KEY (rewrite_id) REFERENCES rewrite_records(id)
		)`,
		`CREATE TABLE IF NOT EXISTS cover_styles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			prompt_template TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS manual_edits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			review_id INTEGER NOT NULL,
			rewrite_id INTEGER NOT NULL,
			original_content TEXT NOT NULL,
			edited_content TEXT NOT NULL,
			edit_note TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			FOREIGN KEY (review_id) REFERENCES review_records(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rewrites_style ON rewrite_records(style_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_rewrite ON review_records(rewrite_id)`,
		`CREATE INDEX IF NOT EXISTS idx_covers_rewrite ON cover_records(rewrite_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edits_review ON manual_edits(review_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// --- styles ---

func (s *Store) CreateStyle(ctx context.Context, style *domain.WritingStyle) error {
	now := time.Now()
	style.CreatedAt = now
	style.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO writing_styles (name, style_description, example_text, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		style.Name, style.StyleDescription, style.ExampleText, style.Tags, style.CreatedAt, style.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	style.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetStyle(ctx context.Context, id int64) (*domain.WritingStyle, error) {
	var st domain.WritingStyle
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, style_description, example_text, tags, created_at, updated_at
		 FROM writing_styles WHERE id = ?`, id).Scan(
		&st.ID, &st.Name, &st.StyleDescription, &st.ExampleText, &st.Tags, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get style: %w", err)
	}
	return &st, nil
}

func (s *Store) ListStyles(ctx context.Context) ([]*domain.WritingStyle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, style_description, example_text, tags, created_at, updated_at
		 FROM writing_styles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list styles: %w", err)
	}
	defer rows.Close()

	var styles []*domain.WritingStyle
	for rows.Next() {
		var st domain.WritingStyle
		if err := rows.Scan(&st.ID, &st.Name, &st.StyleDescription, &st.ExampleText, &st.Tags, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan style: %w", err)
		}
		styles = append(styles, &st)
	}
	return styles, rows.Err()
}

func (s *Store) DeleteStyle(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM writing_styles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete style: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- materials ---

func (s *Store) CreateMaterial(ctx context.Context, m *domain.Material) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.EmbeddingStatus == "" {
		m.EmbeddingStatus = "pending"
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO materials (title, content, tags, source_url, embedding_status, embedding_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Title, m.Content, m.Tags, m.SourceURL, m.EmbeddingStatus, m.EmbeddingError, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create material: %w", err)
	}

	m.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetMaterial(ctx context.Context, id int64) (*domain.Material, error) {
	var m domain.Material
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, tags, source_url, embedding_status, embedding_error, created_at, updated_at
		 FROM materials WHERE id = ?`, id).Scan(
		&m.ID, &m.Title, &m.Content, &m.Tags, &m.SourceURL, &m.EmbeddingStatus, &m.EmbeddingError, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	return &m, nil
}

func (s *Store) ListMaterials(ctx context.Context, page, limit int) ([]*domain.Material, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM materials`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count materials: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, tags, source_url, embedding_status, embedding_error, created_at, updated_at
		 FROM materials ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	var materials []*domain.Material
	for rows.Next() {
		var m domain.Material
		if err := rows.Scan(&m.ID, &m.Title, &m.Content, &m.Tags, &m.SourceURL, &m.EmbeddingStatus, &m.EmbeddingError, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan material: %w", err)
		}
		materials = append(materials, &m)
	}
	return materials, total, rows.Err()
}

func (s *Store) DeleteMaterial(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM materials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete material: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateMaterialEmbedding(ctx context.Context, id int64, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE materials SET embedding_status = ?, embedding_error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update material embedding: %w", err)
	}
	return nil
}

// SearchMaterials scores every material by keyword overlap between the query
// and its title, tags, and content, then returns the topK best scoring hits.
// Scoring is done in process; the library is small enough that a full scan is
// cheaper than maintaining an FTS index.
func (s *Store) SearchMaterials(ctx context.Context, query string, topK int) ([]*domain.Material, error) {
	if topK < 1 {
		topK = 3
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, tags, source_url, embedding_status, embedding_error, created_at, updated_at
		 FROM materials`)
	if err != nil {
		return nil, fmt.Errorf("failed to search materials: %w", err)
	}
	defer rows.Close()

	type scored struct {
		m     *domain.Material
		score float64
	}

	terms := searchTerms(query)
	var hits []scored
	for rows.Next() {
		var m domain.Material
		if err := rows.Scan(&m.ID, &m.Title, &m.Content, &m.Tags, &m.SourceURL, &m.EmbeddingStatus, &m.EmbeddingError, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		score := overlapScore(terms, &m)
		if score > 0 {
			mm := m
			hits = append(hits, scored{m: &mm, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]*domain.Material, len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out, nil
}

func searchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return r == ' ' || r == ',' || r == '，' || r == '、' || r == '\n' || r == '\t'
	})
	var terms []string
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

func overlapScore(terms []string, m *domain.Material) float64 {
	if len(terms) == 0 {
		return 0
	}
	title := strings.ToLower(m.Title)
	tags := strings.ToLower(m.Tags)
	content := strings.ToLower(m.Content)

	var score float64
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += 3
		}
		if strings.Contains(tags, t) {
			score += 2
		}
		if strings.Contains(content, t) {
			score++
		}
	}
	return score / float64(len(terms))
}

// --- rewrites ---

func (s *Store) CreateRewrite(ctx context.Context, r *domain.RewriteRecord) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = domain.StatusRunning
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rewrite_records (source_article, final_content, style_id, target_words, actual_words,
		   enable_rag, rag_top_k, rag_retrieved, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SourceArticle, r.FinalContent, r.StyleID, r.TargetWords, r.ActualWords,
		r.EnableRAG, r.RAGTopK, r.RAGRetrieved, r.Status, r.ErrorMessage, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rewrite: %w", err)
	}

	r.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetRewrite(ctx context.Context, id int64) (*domain.RewriteRecord, error) {
	var r domain.RewriteRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_article, final_content, style_id, target_words, actual_words,
		   enable_rag, rag_top_k, rag_retrieved, status, error_message, created_at, updated_at
		 FROM rewrite_records WHERE id = ?`, id).Scan(
		&r.ID, &r.SourceArticle, &r.FinalContent, &r.StyleID, &r.TargetWords, &r.ActualWords,
		&r.EnableRAG, &r.RAGTopK, &r.RAGRetrieved, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rewrite: %w", err)
	}
	return &r, nil
}

func (s *Store) ListRewrites(ctx context.Context, styleID int64, page, limit int) ([]*domain.RewriteRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	where := ""
	args := []any{}
	if styleID > 0 {
		where = " WHERE style_id = ?"
		args = append(args, styleID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rewrite_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rewrites: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_article, final_content, style_id, target_words, actual_words,
		   enable_rag, rag_top_k, rag_retrieved, status, error_message, created_at, updated_at
		 FROM rewrite_records`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rewrites: %w", err)
	}
	defer rows.Close()

	var records []*domain.RewriteRecord
	for rows.Next() {
		var r domain.RewriteRecord
		if err := rows.Scan(&r.ID, &r.SourceArticle, &r.FinalContent, &r.StyleID, &r.TargetWords, &r.ActualWords,
			&r.EnableRAG, &r.RAGTopK, &r.RAGRetrieved, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan rewrite: %w", err)
		}
		records = append(records, &r)
	}
	return records, total, rows.Err()
}

func (s *Store) UpdateRewriteResult(ctx context.Context, id int64, finalContent string, actualWords int, ragRetrieved string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewrite_records SET final_content = ?, actual_words = ?, rag_retrieved = ?,
		   status = ?, error_message = '', updated_at = ? WHERE id = ?`,
		finalContent, actualWords, ragRetrieved, domain.StatusCompleted, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update rewrite result: %w", err)
	}
	return nil
}

func (s *Store) UpdateRewriteContent(ctx context.Context, id int64, finalContent string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewrite_records SET final_content = ?, updated_at = ? WHERE id = ?`,
		finalContent, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update rewrite content: %w", err)
	}
	return nil
}

func (s *Store) UpdateRewriteFailure(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewrite_records SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		domain.StatusFailed, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update rewrite failure: %w", err)
	}
	return nil
}

// --- reviews ---

func (s *Store) CreateReview(ctx context.Context, r *domain.ReviewRecord) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = domain.StatusRunning
	}
	if r.Result == "" {
		r.Result = domain.ReviewPending
	}
	if r.Round < 1 {
		r.Round = 1
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO review_records (rewrite_id, content, result, feedback, ai_score, total_score,
		   round, retry_count, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RewriteID, r.Content, r.Result, r.Feedback, r.AIScore, r.TotalScore,
		r.Round, r.RetryCount, r.Status, r.ErrorMessage, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}

	r.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetReview(ctx context.Context, id int64) (*domain.ReviewRecord, error) {
	var r domain.ReviewRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, rewrite_id, content, result, feedback, ai_score, total_score,
		   round, retry_count, status, error_message, created_at, updated_at
		 FROM review_records WHERE id = ?`, id).Scan(
		&r.ID, &r.RewriteID, &r.Content, &r.Result, &r.Feedback, &r.AIScore, &r.TotalScore,
		&r.Round, &r.RetryCount, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &r, nil
}

func (s *Store) ListReviewsByRewrite(ctx context.Context, rewriteID int64) ([]*domain.ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rewrite_id, content, result, feedback, ai_score, total_score,
		   round, retry_count, status, error_message, created_at, updated_at
		 FROM review_records WHERE rewrite_id = ? ORDER BY round ASC, created_at ASC`, rewriteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var records []*domain.ReviewRecord
	for rows.Next() {
		var r domain.ReviewRecord
		if err := rows.Scan(&r.ID, &r.RewriteID, &r.Content, &r.Result, &r.Feedback, &r.AIScore, &r.TotalScore,
			&r.Round, &r.RetryCount, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (s *Store) LatestReviewRound(ctx context.Context, rewriteID int64) (int, error) {
	var round sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(round) FROM review_records WHERE rewrite_id = ?`, rewriteID).Scan(&round)
	if err != nil {
		return 0, fmt.Errorf("failed to query review round: %w", err)
	}
	return int(round.Int64), nil
}

func (s *Store) UpdateReviewResult(ctx context.Context, id int64, result, feedback string, aiScore, totalScore int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE review_records SET result = ?, feedback = ?, ai_score = ?, total_score = ?,
		   status = ?, error_message = '', updated_at = ? WHERE id = ?`,
		result, feedback, aiScore, totalScore, domain.StatusCompleted, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update review result: %w", err)
	}
	return nil
}

func (s *Store) UpdateReviewFailure(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE review_records SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		domain.StatusFailed, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update review failure: %w", err)
	}
	return nil
}

// --- covers ---

func (s *Store) CreateCover(ctx context.Context, c *domain.CoverRecord) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = domain.CoverStatusPending
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cover_records (rewrite_id, prompt, image_url, size, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RewriteID, c.Prompt, c.ImageURL, c.Size, c.Status, c.ErrorMessage, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create cover: %w", err)
	}

	c.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetCover(ctx context.Context, id int64) (*domain.CoverRecord, error) {
	var c domain.CoverRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, rewrite_id, prompt, image_url, size, status, error_message, created_at, updated_at
		 FROM cover_records WHERE id = ?`, id).Scan(
		&c.ID, &c.RewriteID, &c.Prompt, &c.ImageURL, &c.Size, &c.Status, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cover: %w", err)
	}
	return &c, nil
}

func (s *Store) GetCoverByRewrite(ctx context.Context, rewriteID int64) (*domain.CoverRecord, error) {
	var c domain.CoverRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, rewrite_id, prompt, image_url, size, status, error_message, created_at, updated_at
		 FROM cover_records WHERE rewrite_id = ? ORDER BY created_at DESC LIMIT 1`, rewriteID).Scan(
		&c.ID, &c.RewriteID, &c.Prompt, &c.ImageURL, &c.Size, &c.Status, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cover: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCoversByRewrites(ctx context.Context, rewriteIDs []int64) ([]*domain.CoverRecord, error) {
	if len(rewriteIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(rewriteIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(rewriteIDs))
	for i, id := range rewriteIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rewrite_id, prompt, image_url, size, status, error_message, created_at, updated_at
		 FROM cover_records WHERE rewrite_id IN (`+placeholders+`) ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list covers: %w", err)
	}
	defer rows.Close()

	var records []*domain.CoverRecord
	for rows.Next() {
		var c domain.CoverRecord
		if err := rows.Scan(&c.ID, &c.RewriteID, &c.Prompt, &c.ImageURL, &c.Size, &c.Status, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cover: %w", err)
		}
		records = append(records, &c)
	}
	return records, rows.Err()
}

func (s *Store) UpdateCover(ctx context.Context, id int64, imageURL, size, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cover_records SET image_url = ?, size = ?, status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		imageURL, size, status, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update cover: %w", err)
	}
	return nil
}

// --- cover styles ---

func (s *Store) CreateCoverStyle(ctx context.Context, cs *domain.CoverStyle) error {
	now := time.Now()
	cs.CreatedAt = now
	cs.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cover_styles (name, prompt_template, description, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cs.Name, cs.PromptTemplate, cs.Description, cs.IsActive, cs.CreatedAt, cs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create cover style: %w", err)
	}

	cs.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetCoverStyle(ctx context.Context, id int64) (*domain.CoverStyle, error) {
	var cs domain.CoverStyle
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, prompt_template, description, is_active, created_at, updated_at
		 FROM cover_styles WHERE id = ?`, id).Scan(
		&cs.ID, &cs.Name, &cs.PromptTemplate, &cs.Description, &cs.IsActive, &cs.CreatedAt, &cs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cover style: %w", err)
	}
	return &cs, nil
}

func (s *Store) ListCoverStyles(ctx context.Context) ([]*domain.CoverStyle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, prompt_template, description, is_active, created_at, updated_at
		 FROM cover_styles WHERE is_active = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cover styles: %w", err)
	}
	defer rows.Close()

	var styles []*domain.CoverStyle
	for rows.Next() {
		var cs domain.CoverStyle
		if err := rows.Scan(&cs.ID, &cs.Name, &cs.PromptTemplate, &cs.Description, &cs.IsActive, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cover style: %w", err)
		}
		styles = append(styles, &cs)
	}
	return styles, rows.Err()
}

// --- manual edits ---

func (s *Store) CreateManualEdit(ctx context.Context, e *domain.ManualEditRecord) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = domain.StatusCompleted
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO manual_edits (review_id, rewrite_id, original_content, edited_content, edit_note, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ReviewID, e.RewriteID, e.OriginalContent, e.EditedContent, e.EditNote, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create manual edit: %w", err)
	}

	e.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetManualEditByReview(ctx context.Context, reviewID int64) (*domain.ManualEditRecord, error) {
	var e domain.ManualEditRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, review_id, rewrite_id, original_content, edited_content, edit_note, status, created_at, updated_at
		 FROM manual_edits WHERE review_id = ? ORDER BY created_at DESC LIMIT 1`, reviewID).Scan(
		&e.ID, &e.ReviewID, &e.RewriteID, &e.OriginalContent, &e.EditedContent, &e.EditNote, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manual edit: %w", err)
	}
	return &e, nil
}
