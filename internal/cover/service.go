// Package cover generates cover images for rewritten articles.
package cover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/imagegen"
	"github.com/writeflow-dev/writeflow/internal/llm"
	"github.com/writeflow-dev/writeflow/internal/sse"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

// DefaultSize is the requested aspect ratio when the caller leaves it unset.
const DefaultSize = "2.35:1"

var allowedSizes = map[string]bool{
	"2.35:1": true,
	"1:1":    true,
	"9:16":   true,
	"3:4":    true,
	"1k":     true,
	"2k":     true,
	"4k":     true,
}

// controlMetaPattern matches prompt lines that carry platform or ratio
// control text. Image models tend to render those lines into the picture.
var controlMetaPattern = regexp.MustCompile(`(?i)(公众号|封面标准尺寸|尺寸版|比例为|2\.35:1|1:1|9:16|3:4)`)

const nonRenderGuard = "Hard constraint: do not render instruction text, metadata labels, " +
	"ratio values, or platform tags in the image. Keep corner areas clean."

// stripPromptControlMeta drops every prompt line holding control metadata.
// If that removes everything, the original prompt is kept.
func stripPromptControlMeta(prompt string) string {
	if prompt == "" {
		return prompt
	}
	var kept []string
	for _, line := range strings.Split(prompt, "\n") {
		if controlMetaPattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	cleaned := strings.TrimSpace(strings.Join(kept, "\n"))
	if cleaned == "" {
		return strings.TrimSpace(prompt)
	}
	return cleaned
}

func appendNonRenderMetaGuard(prompt string) string {
	if strings.Contains(prompt, nonRenderGuard) {
		return prompt
	}
	return strings.TrimSpace(prompt + "\n\n" + nonRenderGuard)
}

// renderStylePrompt fills the {content} and {title} placeholders of a cover
// style template. Templates written before placeholders existed get the
// article context appended so the image stays on topic.
func renderStylePrompt(template, content, title string) string {
	prompt := strings.ReplaceAll(template, "{content}", content)
	prompt = strings.ReplaceAll(prompt, "{title}", title)

	if !strings.Contains(template, "{content}") && !strings.Contains(template, "{title}") {
		prompt = strings.TrimSpace(fmt.Sprintf("%s\n\n文章标题参考：%s\n文章核心内容摘要：%s", prompt, title, content))
	}
	return prompt
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// Request describes one cover generation.
type Request struct {
	RewriteID    int64  `json:"rewrite_id"`
	StyleID      int64  `json:"style_id,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
	Size         string `json:"size,omitempty"`
}

// Service orchestrates prompt construction and image generation.
type Service struct {
	covers   storage.CoverStore
	rewrites storage.RewriteStore
	styles   storage.StyleStore
	llm      *llm.Client
	images   *imagegen.Client
	logger   *slog.Logger
}

func NewService(covers storage.CoverStore, rewrites storage.RewriteStore, styles storage.StyleStore, llmClient *llm.Client, images *imagegen.Client, logger *slog.Logger) *Service {
	return &Service{
		covers:   covers,
		rewrites: rewrites,
		styles:   styles,
		llm:      llmClient,
		images:   images,
		logger:   logger,
	}
}

// GeneratePrompt builds an English image prompt from the article. It first
// extracts the core topic keywords, then expands them into a full scene
// description, optionally colored by the writing style.
func (s *Service) GeneratePrompt(ctx context.Context, content string, style *domain.WritingStyle) (string, error) {
	if len(strings.TrimSpace(content)) < 10 {
		return "", domain.ErrInvalidRequest("文章内容过短，无法生成封面")
	}

	var styleDescription string
	if style != nil {
		var attrs []string
		if style.Name != "" {
			attrs = append(attrs, "风格名称: "+style.Name)
		}
		if style.StyleDescription != "" {
			attrs = append(attrs, "风格描述: "+style.StyleDescription)
		}
		if style.Tags != "" {
			attrs = append(attrs, "标签: "+style.Tags)
		}
		styleDescription = strings.Join(attrs, "，")
	}

	extractPrompt := fmt.Sprintf(`请从以下文章中提取3-5个核心主题关键词，这些关键词将用于生成封面图片。

文章内容：
%s

请直接输出关键词，用逗号分隔，不要包含其他内容。
`, truncateRunes(content, 2000))

	keywords, err := s.llm.Complete(ctx, 0.7, llm.User(extractPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to extract keywords: %w", err)
	}
	keywords = strings.TrimSpace(keywords)

	coverPrompt := fmt.Sprintf(`请为文章生成一个适合的封面图片描述词（英文）。

文章主题关键词：%s
%s

要求：
1. 描述一个具体的视觉画面
2. 包含艺术风格（如：油画、水彩、摄影、电影感、3D渲染等）
3. 包含色调和氛围（如：暖色调、冷色调、赛博朋克、梦幻等）
4. 包含构图元素
5. 添加高质量修饰词（如：超高清、8K、景深、光线追踪、OC渲染等）
6. 输出纯英文描述，不要包含任何解释

直接输出Prompt，不要包含任何前缀或后缀。
`, keywords, styleDescription)

	prompt, err := s.llm.Complete(ctx, 0.7, llm.User(coverPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate cover prompt: %w", err)
	}
	return strings.TrimSpace(prompt), nil
}

// GenerateStream runs the full cover flow and emits progress frames. The
// terminal done frame carries the saved record and the generated image URL.
func (s *Service) GenerateStream(ctx context.Context, req Request, emit sse.Emitter) {
	size := req.Size
	if size == "" {
		size = DefaultSize
	}

	var coverID int64
	fail := func(err error) {
		s.logger.Error("cover generation failed",
			slog.Int64("rewrite_id", req.RewriteID),
			slog.String("error", err.Error()))
		if coverID != 0 {
			if uerr := s.covers.UpdateCover(ctx, coverID, "", size, domain.StatusFailed, err.Error()); uerr != nil {
				s.logger.Error("failed to mark cover failed", slog.Int64("cover_id", coverID), slog.String("error", uerr.Error()))
			}
		}
		emit.Send(sse.TypeError, map[string]any{"message": err.Error()})
	}

	if !allowedSizes[size] {
		fail(domain.ErrInvalidRequest("不支持的尺寸: %s", size))
		return
	}

	emit.Send(sse.TypeStart, map[string]any{"message": "正在获取文章内容..."})

	rewrite, err := s.rewrites.GetRewrite(ctx, req.RewriteID)
	if errors.Is(err, storage.ErrNotFound) {
		fail(domain.ErrNotFound("改写记录不存在: %d", req.RewriteID))
		return
	}
	if err != nil {
		fail(fmt.Errorf("failed to load rewrite: %w", err))
		return
	}
	if strings.TrimSpace(rewrite.FinalContent) == "" {
		fail(domain.ErrInvalidRequest("改写内容为空，无法生成封面"))
		return
	}
	content := rewrite.FinalContent

	var prompt string
	switch {
	case req.CustomPrompt != "":
		prompt = req.CustomPrompt
		emit.Send(sse.TypePromptDone, map[string]any{"prompt": prompt, "source": "custom"})

	case req.StyleID != 0:
		emit.Send(sse.TypePrompt, map[string]any{"message": "正在加载封面风格..."})
		coverStyle, err := s.covers.GetCoverStyle(ctx, req.StyleID)
		if errors.Is(err, storage.ErrNotFound) {
			fail(domain.ErrNotFound("封面风格不存在: %d", req.StyleID))
			return
		}
		if err != nil {
			fail(fmt.Errorf("failed to load cover style: %w", err))
			return
		}
		prompt = renderStylePrompt(coverStyle.PromptTemplate,
			truncateRunes(content, 500),
			truncateRunes(rewrite.SourceArticle, 100))
		emit.Send(sse.TypePromptDone, map[string]any{
			"prompt":     prompt,
			"source":     "style",
			"style_name": coverStyle.Name,
		})

	default:
		emit.Send(sse.TypeStyle, map[string]any{"message": "正在分析写作风格..."})
		var writingStyle *domain.WritingStyle
		if rewrite.StyleID != 0 {
			writingStyle, err = s.styles.GetStyle(ctx, rewrite.StyleID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				fail(fmt.Errorf("failed to load writing style: %w", err))
				return
			}
		}

		emit.Send(sse.TypePrompt, map[string]any{"message": "正在生成封面Prompt..."})
		prompt, err = s.GeneratePrompt(ctx, content, writingStyle)
		if err != nil {
			fail(err)
			return
		}
		emit.Send(sse.TypePromptDone, map[string]any{"prompt": prompt, "source": "auto"})
	}

	resolvedSize := imagegen.SizeForRatio(size)
	prompt = appendNonRenderMetaGuard(stripPromptControlMeta(prompt))

	emit.Send(sse.TypeSaving, map[string]any{"message": "正在保存记录..."})
	record := &domain.CoverRecord{
		RewriteID: req.RewriteID,
		Prompt:    prompt,
		Size:      size,
		Status:    domain.CoverStatusGenerating,
	}
	if err := s.covers.CreateCover(ctx, record); err != nil {
		fail(fmt.Errorf("failed to save cover: %w", err))
		return
	}
	coverID = record.ID

	emit.Send(sse.TypeGenerating, map[string]any{"message": "正在生成图片..."})
	result, err := s.images.Generate(ctx, prompt, resolvedSize)
	if err != nil {
		fail(err)
		return
	}

	if err := s.covers.UpdateCover(ctx, coverID, result.ImageURL, result.Size, domain.StatusCompleted, ""); err != nil {
		fail(fmt.Errorf("failed to update cover: %w", err))
		return
	}

	s.logger.Info("cover generated",
		slog.Int64("cover_id", coverID),
		slog.Int64("rewrite_id", req.RewriteID),
		slog.String("size", result.Size))
	emit.Send(sse.TypeDone, map[string]any{
		"id":             coverID,
		"rewrite_id":     req.RewriteID,
		"image_url":      result.ImageURL,
		"size":           result.Size,
		"requested_size": size,
		"resolved_size":  resolvedSize,
		"prompt":         prompt,
	})
}

// Get returns a cover record.
func (s *Service) Get(ctx context.Context, id int64) (*domain.CoverRecord, error) {
	record, err := s.covers.GetCover(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound("封面记录不存在")
	}
	if err != nil {
		return nil, domain.ErrServer("failed to load cover: %v", err)
	}
	return record, nil
}

// GetByRewrite returns the most recent cover of a rewrite.
func (s *Service) GetByRewrite(ctx context.Context, rewriteID int64) (*domain.CoverRecord, error) {
	record, err := s.covers.GetCoverByRewrite(ctx, rewriteID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound("该改写还没有封面")
	}
	if err != nil {
		return nil, domain.ErrServer("failed to load cover: %v", err)
	}
	return record, nil
}

// ListByRewrites returns the latest cover per rewrite, in the caller's id
// order. Rewrites without a cover are skipped.
func (s *Service) ListByRewrites(ctx context.Context, rewriteIDs []int64) ([]*domain.CoverRecord, error) {
	if len(rewriteIDs) == 0 {
		return nil, nil
	}
	records, err := s.covers.ListCoversByRewrites(ctx, rewriteIDs)
	if err != nil {
		return nil, domain.ErrServer("failed to list covers: %v", err)
	}
	return records, nil
}

// CreateStyle stores a reusable cover prompt template.
func (s *Service) CreateStyle(ctx context.Context, cs *domain.CoverStyle) error {
	if strings.TrimSpace(cs.Name) == "" {
		return domain.ErrInvalidRequest("封面风格名称不能为空")
	}
	if strings.TrimSpace(cs.PromptTemplate) == "" {
		return domain.ErrInvalidRequest("封面风格模板不能为空")
	}
	cs.IsActive = true
	if err := s.covers.CreateCoverStyle(ctx, cs); err != nil {
		return domain.ErrServer("failed to create cover style: %v", err)
	}
	return nil
}

// GetStyle returns one cover style.
func (s *Service) GetStyle(ctx context.Context, id int64) (*domain.CoverStyle, error) {
	cs, err := s.covers.GetCoverStyle(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound("封面风格不存在")
	}
	if err != nil {
		return nil, domain.ErrServer("failed to load cover style: %v", err)
	}
	return cs, nil
}

// ListStyles returns all cover styles.
func (s *Service) ListStyles(ctx context.Context) ([]*domain.CoverStyle, error) {
	styles, err := s.covers.ListCoverStyles(ctx)
	if err != nil {
		return nil, domain.ErrServer("failed to list cover styles: %v", err)
	}
	return styles, nil
}
