// Package rewrite runs the style-driven article rewrite stage.
package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/llm"
	"github.com/writeflow-dev/writeflow/internal/sse"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

// sourceTokenBudget caps the source article in the rewrite prompt so long
// pages fetched from URLs do not blow the model context.
const sourceTokenBudget = 24000

const systemPrompt = `你是一个专业的文章改写专家。
1. 改写时保持原文核心观点，但使用指定的写作风格
2. 直接输出文章内容，不要有任何思考过程
3. 不要输出任何 XML 标签（如<think>）
4. 输出纯文章内容，不要有额外说明`

const rewritePromptTemplate = `你是一个专业的文章改写专家。请根据指定的写作风格，将原文改写成一篇"像人写而不是AI写"的文章。

## 写作风格（12维度）
%s

## 目标字数
约 %d 字
**字数误差必须控制在 ±20%% 以内**（即 %d-%d 字之间）

## 原文
%s

## RAG 检索素材（可参考）
%s

## 核心要求

### 1. 字数控制（硬性要求！）
- 目标：约 %d 字
- 允许范围：%d-%d 字
- 禁止严重超标：不能超过目标的 120%%

### 2. 反AI写作技巧（必须遵守！）

**禁止的开头模式：**
- ❌ "在当今社会..."、"随着...的发展..."、"众所周知..."
- ✅ 直接抛出具体场景、尖锐问题、或有态度的判断

**禁止的过渡词：**
- ❌ "首先...其次...再次...最后..."、"第一点...第二点..."
- ✅ 用反问句引出话题，或直接切换（人说话经常跳跃）

**禁止的结尾模式：**
- ❌ "让我们共同期待..."、"总而言之..."、"综上所述..."
- ✅ 戛然而止，或留反问/悬念，或回扣开头

**AI高频词（禁止使用）：**
- ❌ 连接词："此外""然而""但是""不过""与此同时"
- ❌ 强调词："至关重要""关键性的""核心的""至关重要的"
- ❌ 抽象词："格局""织锦""持久""彰显"
- ❌ 动词："强调""突出""彰显""培养""促进"
- ❌ 套路词："赋能""抓手""底层逻辑""认知升级""降维打击"

**段落技巧：**
- ❌ 禁止：每段长度高度一致（格式洁癖）
- ✅ 推荐：段落长短交替，像呼吸一样

### 3. 风格执行
请严格按照风格文件中的以下维度执行：
- 核心人格：按照定义的人设、态度来写
- 思维模式：遵循定义的论证结构
- 开头配方：使用定义的开头句式
- 过渡配方：使用定义的替代词
- 招牌动作：尽量使用 3 个以上定义的招牌动作
- 段落模板：参考定义的段落模板

### 4. 输出要求
1. 输出纯文章内容，不要有额外说明
2. 不要输出字数统计
3. 在文中合适位置插入 2-4 个配图占位，格式必须是：
   [配图建议|名称:一句话命名|说明:适合配图的画面描述]
4. 直接开始写正文

请开始改写：`

// Retriever supplies reference materials for the rewrite prompt.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedMaterial, error)
}

// Service runs rewrite tasks.
type Service struct {
	rewrites  storage.RewriteStore
	styles    storage.StyleStore
	retriever Retriever
	llm       *llm.Client
	fetcher   *http.Client
	logger    *slog.Logger
}

func NewService(rewrites storage.RewriteStore, styles storage.StyleStore, retriever Retriever, llmClient *llm.Client, logger *slog.Logger) *Service {
	return &Service{
		rewrites:  rewrites,
		styles:    styles,
		retriever: retriever,
		llm:       llmClient,
		fetcher:   http.DefaultClient,
		logger:    logger,
	}
}

// CreateRequest carries the parameters of a new rewrite task.
type CreateRequest struct {
	SourceArticle string `json:"source_article"`
	StyleID       int64  `json:"style_id"`
	TargetWords   int    `json:"target_words"`
	EnableRAG     bool   `json:"enable_rag"`
	RAGTopK       int    `json:"rag_top_k"`
}

// Create validates the request and persists a running rewrite record. A URL
// pasted as the source article is fetched and replaced by the page text.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.RewriteRecord, error) {
	source := strings.TrimSpace(req.SourceArticle)
	if source == "" {
		return nil, domain.ErrInvalidRequest("请输入文章内容")
	}
	if req.TargetWords < 100 || req.TargetWords > 10000 {
		return nil, domain.ErrInvalidRequest("目标字数应在 100-10000 之间")
	}

	if IsURLInput(source) {
		s.logger.Info("fetching source article", slog.String("url", source))
		fetched, err := FetchArticle(ctx, s.fetcher, source)
		if err != nil {
			return nil, domain.ErrInvalidRequest("无法从 URL 抓取内容，请粘贴原文后重试")
		}
		source = fetched
	}

	if _, err := s.styles.GetStyle(ctx, req.StyleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNotFound("风格不存在: %d", req.StyleID)
		}
		return nil, domain.ErrServer("failed to load style: %v", err)
	}

	topK := req.RAGTopK
	if topK <= 0 {
		topK = 3
	}

	record := &domain.RewriteRecord{
		SourceArticle: source,
		StyleID:       req.StyleID,
		TargetWords:   req.TargetWords,
		EnableRAG:     req.EnableRAG,
		RAGTopK:       topK,
	}
	if err := s.rewrites.CreateRewrite(ctx, record); err != nil {
		return nil, domain.ErrServer("failed to create rewrite: %v", err)
	}

	s.logger.Info("rewrite task created",
		slog.Int64("rewrite_id", record.ID),
		slog.Int64("style_id", req.StyleID),
		slog.Int("target_words", req.TargetWords))
	return record, nil
}

// RunStream executes a previously created rewrite and emits stream frames.
// Terminal outcome is either done{final_content, actual_words} or error.
func (s *Service) RunStream(ctx context.Context, rewriteID int64, emit sse.Emitter) {
	record, err := s.rewrites.GetRewrite(ctx, rewriteID)
	if err != nil {
		emit.Send(sse.TypeError, map[string]any{"message": "改写记录不存在"})
		return
	}
	style, err := s.styles.GetStyle(ctx, record.StyleID)
	if err != nil {
		emit.Send(sse.TypeError, map[string]any{"message": "风格不存在"})
		return
	}

	fail := func(err error) {
		s.logger.Error("rewrite failed", slog.Int64("rewrite_id", rewriteID), slog.String("error", err.Error()))
		s.rewrites.UpdateRewriteFailure(ctx, rewriteID, err.Error())
		emit.Send(sse.TypeError, map[string]any{"message": err.Error()})
	}

	// Retrieval pass when RAG is enabled.
	ragContent := ""
	var ragRetrieved []domain.RetrievedMaterial
	if record.EnableRAG && s.retriever != nil {
		emit.Send(sse.TypeProgress, map[string]any{"step": "rag", "message": "检索相关素材..."})

		query := record.SourceArticle
		if runes := []rune(query); len(runes) > 500 {
			query = string(runes[:500])
		}
		hits, err := s.retriever.Retrieve(ctx, query, record.RAGTopK)
		if err != nil {
			s.logger.Error("material retrieval failed", slog.Int64("rewrite_id", rewriteID), slog.String("error", err.Error()))
		} else if len(hits) > 0 {
			var parts []string
			for i, h := range hits {
				parts = append(parts, fmt.Sprintf("素材%d：%s", i+1, h.Content))
			}
			ragContent = strings.Join(parts, "\n\n")
			ragRetrieved = hits
		}
	}

	emit.Send(sse.TypeProgress, map[string]any{"step": "rewrite", "message": "正在改写..."})

	minWords := record.TargetWords * 8 / 10
	maxWords := record.TargetWords * 12 / 10
	if ragContent == "" {
		ragContent = "（无相关素材）"
	}
	source := record.SourceArticle
	if trimmed, err := llm.TruncateToTokens(source, sourceTokenBudget); err == nil {
		source = trimmed
	}
	prompt := fmt.Sprintf(rewritePromptTemplate,
		style.StyleDescription,
		record.TargetWords, minWords, maxWords,
		source,
		ragContent,
		record.TargetWords, minWords, maxWords)

	deltas, err := s.llm.Stream(ctx, 0.7, llm.System(systemPrompt), llm.User(prompt))
	if err != nil {
		fail(err)
		return
	}

	var filter llm.ThinkFilter
	var final strings.Builder
	emitVisible := func(text string) {
		if text == "" {
			return
		}
		final.WriteString(text)
		emit.Send(sse.TypeContent, map[string]any{"delta": text})
	}

	for res := range deltas {
		if res.Err != nil {
			fail(res.Err)
			return
		}
		emitVisible(filter.Write(res.Delta))
	}
	emitVisible(filter.Flush())

	finalContent := EnsureImagePlaceholders(final.String())
	actualWords := CountActualWords(finalContent)

	ragJSON := ""
	if len(ragRetrieved) > 0 {
		if b, err := json.Marshal(ragRetrieved); err == nil {
			ragJSON = string(b)
		}
	}

	if err := s.rewrites.UpdateRewriteResult(ctx, rewriteID, finalContent, actualWords, ragJSON); err != nil {
		fail(err)
		return
	}

	s.logger.Info("rewrite completed",
		slog.Int64("rewrite_id", rewriteID),
		slog.Int("actual_words", actualWords))
	emit.Send(sse.TypeDone, map[string]any{
		"final_content": finalContent,
		"actual_words":  actualWords,
	})
}

// Get returns a rewrite record.
func (s *Service) Get(ctx context.Context, id int64) (*domain.RewriteRecord, error) {
	record, err := s.rewrites.GetRewrite(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound("改写记录不存在")
	}
	if err != nil {
		return nil, domain.ErrServer("failed to load rewrite: %v", err)
	}
	return record, nil
}

// List returns one page of rewrite history, optionally filtered by style.
func (s *Service) List(ctx context.Context, styleID int64, page, limit int) ([]*domain.RewriteRecord, int, error) {
	records, total, err := s.rewrites.ListRewrites(ctx, styleID, page, limit)
	if err != nil {
		return nil, 0, domain.ErrServer("failed to list rewrites: %v", err)
	}
	return records, total, nil
}
