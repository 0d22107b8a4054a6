// Package domain defines the persisted records of the writing pipeline and
// the canonical API error shape.
package domain

import "time"

// Record status values shared by the long-running stages.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Cover-specific statuses.
const (
	CoverStatusPending    = "pending"
	CoverStatusGenerating = "generating"
)

// Review outcomes.
const (
	ReviewPending = "pending"
	ReviewPassed  = "passed"
	ReviewFailed  = "failed"
)

// WritingStyle is an extracted 12-dimension writing recipe.
type WritingStyle struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	StyleDescription string    `json:"style_description"`
	ExampleText      string    `json:"example_text,omitempty"`
	Tags             string    `json:"tags,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Summary renders a compact style context for prompt construction.
func (s *WritingStyle) Summary() string {
	tags := s.Tags
	if tags == "" {
		tags = "无"
	}
	desc := s.StyleDescription
	if len(desc) > 500 {
		desc = desc[:500]
	}
	return "风格名称: " + s.Name + "\n标签: " + tags + "\n风格描述: " + desc
}

// Material is a reference article in the retrieval library.
type Material struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	Tags            string    `json:"tags,omitempty"`
	SourceURL       string    `json:"source_url,omitempty"`
	EmbeddingStatus string    `json:"embedding_status"`
	EmbeddingError  string    `json:"embedding_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RetrievedMaterial is one retrieval hit attached to a rewrite.
type RetrievedMaterial struct {
	MaterialID int64   `json:"material_id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// RewriteRecord stores one rewrite task and its result.
type RewriteRecord struct {
	ID            int64     `json:"id"`
	SourceArticle string    `json:"source_article"`
	FinalContent  string    `json:"final_content"`
	StyleID       int64     `json:"style_id"`
	TargetWords   int       `json:"target_words"`
	ActualWords   int       `json:"actual_words"`
	EnableRAG     bool      `json:"enable_rag"`
	RAGTopK       int       `json:"rag_top_k"`
	RAGRetrieved  string    `json:"rag_retrieved,omitempty"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ReviewRecord stores one editorial review round of a rewrite.
type ReviewRecord struct {
	ID           int64     `json:"id"`
	RewriteID    int64     `json:"rewrite_id"`
	Content      string    `json:"content"`
	Result       string    `json:"result"`
	Feedback     string    `json:"feedback,omitempty"`
	AIScore      int       `json:"ai_score"`
	TotalScore   int       `json:"total_score"`
	Round        int       `json:"round"`
	RetryCount   int       `json:"retry_count"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CoverRecord stores one cover-image generation for a rewrite.
type CoverRecord struct {
	ID           int64     `json:"id"`
	RewriteID    int64     `json:"rewrite_id"`
	Prompt       string    `json:"prompt"`
	ImageURL     string    `json:"image_url,omitempty"`
	Size         string    `json:"size"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CoverStyle is a reusable cover prompt template.
type CoverStyle struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	PromptTemplate string    `json:"prompt_template"`
	Description    string    `json:"description,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ManualEditRecord stores a user's hand edit of a reviewed article.
type ManualEditRecord struct {
	ID              int64     `json:"id"`
	ReviewID        int64     `json:"review_id"`
	RewriteID       int64     `json:"rewrite_id"`
	OriginalContent string    `json:"original_content"`
	EditedContent   string    `json:"edited_content"`
	EditNote        string    `json:"edit_note,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
