// Package review runs editor-style quality review of rewritten articles.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/llm"
	"github.com/writeflow-dev/writeflow/internal/sse"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

// PassThreshold is the minimum total quality score for a passing review.
const PassThreshold = 35

const reviewSystemPrompt = `你是顶级写作主编，负责对文章进行主编级审稿。

## 核心职责
1. 诊断文章问题
2. 输出带优先级的可执行修改清单
3. 对改写后的文本进行质量评分

## 审核维度（按优先级排序）

### 1. AI味道检测（最高优先级！）
这是审稿的第一要务。如果文章一眼看上去就是AI写的，其他一切都没有意义。

**典型AI病症清单：**
- 小标题病：每隔两三段就来一个加粗小标题
- 格式洁癖：段落长度高度一致
- 排比上瘾："第一...第二...第三..."
- 加粗狂魔：关键词全加粗
- 开头套路："在当今社会..."、"随着...的发展..."
- 结尾升华：假大空总结
- 情感断层：情绪转折生硬
- 同义词强迫症：刻意避免重复反而暴露AI

**AI高频词（禁止使用）：**
"此外""然而""至关重要""赋能""抓手""深入探讨""关键性的"

### 2. 深度诊断维度
- 篇幅冗余：离题内容、重复论据
- 节奏律动：句式与段落长度变化
- 内容重复：同一观点反复出现
- 教科书味：抽象概念缺乏具象场景

### 3. 质量评分（5维度，各10分）

| 维度 | 评估标准 | 得分 |
|------|----------|------|
| 直接性 | 直接陈述事实还是绕圈宣告？10分：直截了当 | /10 |
| 节奏 | 句子长度是否变化？10分：长短交错 | /10 |
| 信任度 | 是否尊重读者智慧？10分：简洁明了 | /10 |
| 真实性 | 听起来像真人说话吗？10分：自然流畅 | /10 |
| 精炼度 | 还有可删减的内容吗？10分：无冗余 | /10 |

**评分标准：**
- 45-50 分：优秀，已去除 AI 痕迹
- 35-44 分：良好，仍有改进空间
- 低于 35 分：需要重新修订

## 输出格式要求

你必须以 JSON 格式输出审核结果，包含以下字段：

` + "```json" + `
{
  "ai_detection": {
    "has_ai_smell": true/false,
    "issues": ["具体问题描述..."],
    "examples": ["问题所在的具体句子..."]
  },
  "quality_scores": {
    "directness": 8,
    "rhythm": 7,
    "trust": 8,
    "authenticity": 6,
    "conciseness": 7,
    "total": 36
  },
  "issues": [
    {
      "type": "ai_smell/structure/logic/tyle",
      "severity": "critical/major/minor",
      "location": "具体位置，如：第2段",
      "description": "问题描述",
      "suggestion": "修改建议"
    }
  ],
  "passed": true/false,
  "reason": "通过或不通过的原因"
}
` + "```" + `

注意：
1. 必须严格输出 JSON 格式，不要有其他内容
2. 如果 AI 味道严重（总分<35 或 AI味道检测有严重问题），passed 应为 false
3. 每指出一个问题，必须给出具体的修改建议`

// jsonDocPattern grabs the outermost JSON object from the model response.
var jsonDocPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Feedback is the parsed review verdict.
type Feedback struct {
	Passed     bool
	TotalScore int
	AIScore    int
	Reason     string
	// Raw holds the full feedback document as returned by the model.
	Raw string
}

// parseFeedback extracts the verdict from a model response. Responses that
// cannot be parsed fall back to permissive defaults, with the raw text kept
// for inspection; the score threshold still applies.
func parseFeedback(response string) Feedback {
	fb := Feedback{Passed: true, TotalScore: 50, AIScore: 10, Reason: "审核完成"}

	match := jsonDocPattern.FindString(response)
	if match == "" {
		raw, _ := json.Marshal(map[string]string{"error": "无法解析响应", "raw": response})
		fb.Raw = string(raw)
		return fb
	}

	var doc struct {
		QualityScores *struct {
			Authenticity *int `json:"authenticity"`
			Total        *int `json:"total"`
		} `json:"quality_scores"`
		Passed *bool  `json:"passed"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(match), &doc); err != nil {
		raw, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("JSON解析失败: %v", err), "raw": response})
		fb.Raw = string(raw)
		return fb
	}

	fb.Raw = match
	if doc.QualityScores != nil {
		if doc.QualityScores.Total != nil {
			fb.TotalScore = *doc.QualityScores.Total
		}
		if doc.QualityScores.Authenticity != nil {
			fb.AIScore = *doc.QualityScores.Authenticity
		}
	}
	if doc.Passed != nil {
		fb.Passed = *doc.Passed
	}
	if doc.Reason != "" {
		fb.Reason = doc.Reason
	}
	if fb.TotalScore < PassThreshold {
		fb.Passed = false
	}
	return fb
}

// Service runs review rounds.
type Service struct {
	reviews storage.ReviewStore
	llm     *llm.Client
	logger  *slog.Logger
}

func NewService(reviews storage.ReviewStore, llmClient *llm.Client, logger *slog.Logger) *Service {
	return &Service{reviews: reviews, llm: llmClient, logger: logger}
}

// Create opens a new review round for a rewrite.
func (s *Service) Create(ctx context.Context, rewriteID int64, content string) (*domain.ReviewRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrInvalidRequest("review content is required")
	}

	latest, err := s.reviews.LatestReviewRound(ctx, rewriteID)
	if err != nil {
		return nil, domain.ErrServer("failed to determine review round: %v", err)
	}

	record := &domain.ReviewRecord{
		RewriteID: rewriteID,
		Content:   content,
		Round:     latest + 1,
	}
	if err := s.reviews.CreateReview(ctx, record); err != nil {
		return nil, domain.ErrServer("failed to create review: %v", err)
	}

	s.logger.Info("review round created",
		slog.Int64("review_id", record.ID),
		slog.Int64("rewrite_id", rewriteID),
		slog.Int("round", record.Round))
	return record, nil
}

// RunStream reviews the article and emits stream frames. The terminal done
// frame carries passed, total_score, ai_score, and result.
func (s *Service) RunStream(ctx context.Context, reviewID int64, styleContext string, emit sse.Emitter) {
	record, err := s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		emit.Send(sse.TypeError, map[string]any{"message": "审核记录不存在"})
		return
	}

	fail := func(err error) {
		s.logger.Error("review failed", slog.Int64("review_id", reviewID), slog.String("error", err.Error()))
		s.reviews.UpdateReviewFailure(ctx, reviewID, err.Error())
		emit.Send(sse.TypeError, map[string]any{"message": err.Error()})
	}

	userPrompt := fmt.Sprintf(`请审核以下文章：

## 写作风格要求
%s

## 待审核文章
%s

请输出审核结果（JSON格式）：`, styleContext, record.Content)

	deltas, err := s.llm.Stream(ctx, 0.3, llm.System(reviewSystemPrompt), llm.User(userPrompt))
	if err != nil {
		fail(err)
		return
	}

	var filter llm.ThinkFilter
	var full strings.Builder
	for res := range deltas {
		if res.Err != nil {
			fail(res.Err)
			return
		}
		if visible := filter.Write(res.Delta); visible != "" {
			full.WriteString(visible)
			emit.Send(sse.TypeContent, map[string]any{"delta": visible})
		}
	}
	if visible := filter.Flush(); visible != "" {
		full.WriteString(visible)
		emit.Send(sse.TypeContent, map[string]any{"delta": visible})
	}

	fb := parseFeedback(full.String())

	result := domain.ReviewFailed
	if fb.Passed {
		result = domain.ReviewPassed
	}
	if err := s.reviews.UpdateReviewResult(ctx, reviewID, result, fb.Raw, fb.AIScore, fb.TotalScore); err != nil {
		fail(err)
		return
	}

	s.logger.Info("review completed",
		slog.Int64("review_id", reviewID),
		slog.Bool("passed", fb.Passed),
		slog.Int("total_score", fb.TotalScore))
	emit.Send(sse.TypeDone, map[string]any{
		"passed":      fb.Passed,
		"total_score": fb.TotalScore,
		"ai_score":    fb.AIScore,
		"result":      fb.Reason,
	})
}

// Get returns a review record.
func (s *Service) Get(ctx context.Context, id int64) (*domain.ReviewRecord, error) {
	record, err := s.reviews.GetReview(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound("审核记录不存在")
	}
	if err != nil {
		return nil, domain.ErrServer("failed to load review: %v", err)
	}
	return record, nil
}

// ListByRewrite returns every review round of a rewrite, oldest first.
func (s *Service) ListByRewrite(ctx context.Context, rewriteID int64) ([]*domain.ReviewRecord, error) {
	records, err := s.reviews.ListReviewsByRewrite(ctx, rewriteID)
	if err != nil {
		return nil, domain.ErrServer("failed to list reviews: %v", err)
	}
	return records, nil
}
