// Package style extracts reusable writing recipes from reference articles.
package style

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/llm"
	"github.com/writeflow-dev/writeflow/internal/sse"
	"github.com/writeflow-dev/writeflow/internal/storage"
)

const systemPrompt = "你是一个专业的写作风格建模专家。" +
	"请严格按照JSON格式输出12个维度的分析结果，不要添加其他内容。" +
	"确保所有JSON字段都是有效的。"

// extractionPrompt asks for a 12-dimension deconstruction of the sample
// articles, answered as a single JSON document.
const extractionPrompt = `你是一个专业的写作风格建模专家。请对以下参考文章进行深度解构，提取"写作配方"。

## 核心理念
风格建模不是写评论，而是提取"写作配方"——让任何人拿着这份配方都能写出相似的文章。

## 十二维度深度解构

请严格按照以下 12 个维度进行分析：

### 维度一：核心人格与立场 (Persona & Stance)
- 作者人设：他在读者面前是什么角色？（导师？朋友？愤青？旁观者？）
- 对读者的态度：俯视教导？平视聊天？仰视请教？
- 价值观倾向：反鸡汤？反主流？反精英？拥抱真实？
- 情绪基调：愤怒？讽刺？温和？玩世不恭？

### 维度二：思维模式与论证逻辑 (Thinking Pattern)
- 典型论证结构：是"现象→质疑→反转→结论"？还是"观点→例证→升华"？
- 反常识/反直觉手法：是否经常推翻读者预期？
- 类比与联想：是否经常用跨领域类比？用什么领域？

### 维度三：开头模式 (Opening Pattern)
- 开头句式：是直接抛观点？提问？场景描写？引用？
- 开头长度：第一段通常几句话？
- 开头节奏：快速切入还是缓慢铺垫？
- 禁忌检查：是否避开"在当今社会"等AI套路？

### 维度四：段落过渡模式 (Transition Pattern)
- 段落间如何衔接：无过渡直接跳？用反问引导？用短句情绪转折？
- 是否使用"首先/其次/最后"：如果不用，用什么替代？
- 话题切换信号词：典型切换词（如"说到这个"、"但问题是"）

### 维度五：句式与节奏 (Sentence & Rhythm)
- 句子长度分布：长句和短句的比例
- 标点习惯：是否大量使用逗号形成长句？是否用省略号？感叹号频率？
- 段落长度分布：最短的段落几句？最长的段落几句？

### 维度六：词汇指纹 (Vocabulary Fingerprint)
- 高频词汇：提取出现3次以上的特色词汇
- 口头禅/招牌表达：如"说白了"、"本质上"、"其实就是"
- 禁用词汇：哪些词从未出现？（如"赋能"、"抓手"）
- 粗俗程度：是否使用粗话？程度如何？

### 维度七：修辞手法 (Rhetorical Devices)
- 反问频率：每篇文章大约几个反问？
- 排比使用：是否使用排比？如何使用？
- 比喻偏好：喜欢用什么类型的比喻？
- 夸张程度：是否经常使用夸张手法？

### 维度八：结尾模式 (Ending Pattern)
- 结尾句式：是戛然而止？回扣开头？留悬念？发出号召？
- 结尾长度：最后一段通常几句话？
- 是否有"升华"：是否有假大空结尾？

### 维度九：格式与排版 (Format & Layout)
- 小标题使用：完全不用？偶尔用？每段都用？
- 加粗使用：从不加粗？只加粗关键词？
- 列表使用：是否使用项目符号列表？

### 维度十：独特习惯与招牌动作 (Signature Moves)
提取最具辨识度的3-5个"招牌动作"：
- 例如：总是在文章中途突然自问自答
- 例如：喜欢用"........."省略号制造停顿

### 维度十一：反AI特征 (Anti-AI Features)
- 哪些特征是AI很难模仿的？
- 哪些"不规则性"是刻意为之？
- 哪些表达方式会让读者立刻感觉"这不是AI写的"？

### 维度十二：典型段落模板 (Paragraph Templates)
从样本中提取最具代表性的段落模板：
- 观点段模板
- 举例段模板
- 转折段模板
- 收尾段模板

## 输出要求

请用 JSON 格式输出，结构如下（所有字段必填，如果没有则写"无"）：
{
    "persona": "核心人格描述",
    "thinking_pattern": "思维模式描述",
    "opening_pattern": "开头模式描述",
    "transition_pattern": "过渡模式描述",
    "sentence_rhythm": "句式节奏描述",
    "vocabulary": "词汇指纹",
    "rhetorical_devices": "修辞手法描述",
    "ending_pattern": "结尾模式描述",
    "format_layout": "格式排版描述",
    "signature_moves": ["招牌动作1", "招牌动作2", "招牌动作3"],
    "anti_ai_features": "反AI特征描述",
    "paragraph_templates": {
        "观点段": "模板示例",
        "举例段": "模板示例",
        "转折段": "模板示例",
        "收尾段": "模板示例"
    },
    "overall_summary": "总体风格概括（100字以内）"
}

参考文章：
`

// Service extracts writing styles from reference articles.
type Service struct {
	store  storage.StyleStore
	llm    *llm.Client
	logger *slog.Logger
}

func NewService(store storage.StyleStore, llmClient *llm.Client, logger *slog.Logger) *Service {
	return &Service{store: store, llm: llmClient, logger: logger}
}

// referenceTokenBudget caps the combined reference articles fed to the
// extraction prompt.
const referenceTokenBudget = 20000

// combineArticles trims the samples, drops empties, and joins at most five
// of them with a separator.
func combineArticles(articles []string) string {
	var cleaned []string
	for _, a := range articles {
		if t := strings.TrimSpace(a); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) > 5 {
		cleaned = cleaned[:5]
	}
	combined := strings.Join(cleaned, "\n\n---\n\n")
	if trimmed, err := llm.TruncateToTokens(combined, referenceTokenBudget); err == nil {
		combined = trimmed
	}
	return combined
}

// cleanStyleJSON strips markdown fencing from the model output and returns a
// parseable JSON document, falling back to the outermost brace pair.
func cleanStyleJSON(raw string) (string, error) {
	styleJSON := strings.TrimSpace(raw)
	if idx := strings.Index(styleJSON, "```json"); idx >= 0 {
		styleJSON = styleJSON[idx+len("```json"):]
		if end := strings.Index(styleJSON, "```"); end >= 0 {
			styleJSON = styleJSON[:end]
		}
	} else if idx := strings.Index(styleJSON, "```"); idx >= 0 {
		styleJSON = styleJSON[idx+len("```"):]
		if end := strings.Index(styleJSON, "```"); end >= 0 {
			styleJSON = styleJSON[:end]
		}
	}

	styleJSON = strings.TrimSpace(styleJSON)
	if json.Valid([]byte(styleJSON)) {
		return styleJSON, nil
	}

	start := strings.Index(styleJSON, "{")
	end := strings.LastIndex(styleJSON, "}")
	if start >= 0 && end > start {
		candidate := strings.TrimSpace(styleJSON[start : end+1])
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("model did not return a valid JSON style description")
}

// Extract runs a non-streaming extraction and persists the result.
func (s *Service) Extract(ctx context.Context, articles []string, name, tags string) (*domain.WritingStyle, error) {
	combined := combineArticles(articles)
	if combined == "" {
		return nil, domain.ErrInvalidRequest("at least one non-empty reference article is required")
	}

	s.logger.Info("extracting writing style", slog.String("name", name))

	raw, err := s.llm.Complete(ctx, 0.3, llm.System(systemPrompt), llm.User(extractionPrompt+combined))
	if err != nil {
		return nil, domain.ErrUpstream("style extraction failed: %v", err)
	}

	styleJSON, err := cleanStyleJSON(raw)
	if err != nil {
		return nil, domain.ErrUpstream("%v", err)
	}

	return s.save(ctx, name, styleJSON, combined, tags)
}

// ExtractStream runs the extraction while emitting stream frames. All
// failures surface as an error frame; the stream always ends with a
// terminal frame.
func (s *Service) ExtractStream(ctx context.Context, articles []string, name, tags string, emit sse.Emitter) {
	combined := combineArticles(articles)
	if combined == "" {
		emit.Send(sse.TypeError, map[string]any{"message": "请提供至少一篇有效参考文章"})
		return
	}

	count := 0
	for _, a := range articles {
		if strings.TrimSpace(a) != "" {
			count++
		}
	}

	s.logger.Info("extracting writing style (stream)", slog.String("name", name))

	emit.Send(sse.TypeStart, map[string]any{
		"style_name":     name,
		"articles_count": count,
	})
	emit.Send(sse.TypeProgress, map[string]any{
		"step":    "analyzing",
		"message": "正在分析参考文章并提取12维风格特征...",
	})

	deltas, err := s.llm.Stream(ctx, 0.3, llm.System(systemPrompt), llm.User(extractionPrompt+combined))
	if err != nil {
		emit.Send(sse.TypeError, map[string]any{"message": err.Error()})
		return
	}

	var raw strings.Builder
	for res := range deltas {
		if res.Err != nil {
			emit.Send(sse.TypeError, map[string]any{"message": res.Err.Error()})
			return
		}
		raw.WriteString(res.Delta)
		emit.Send(sse.TypeContent, map[string]any{"delta": res.Delta})
	}

	styleJSON, err := cleanStyleJSON(raw.String())
	if err != nil {
		emit.Send(sse.TypeError, map[string]any{"message": err.Error()})
		return
	}

	saved, err := s.save(ctx, name, styleJSON, combined, tags)
	if err != nil {
		emit.Send(sse.TypeError, map[string]any{"message": err.Error()})
		return
	}

	emit.Send(sse.TypeDone, map[string]any{
		"id":                saved.ID,
		"name":              saved.Name,
		"style_description": saved.StyleDescription,
		"tags":              saved.Tags,
		"created_at":        saved.CreatedAt,
	})
}

func (s *Service) save(ctx context.Context, name, styleJSON, combined, tags string) (*domain.WritingStyle, error) {
	example := combined
	if runes := []rune(example); len(runes) > 1000 {
		example = string(runes[:1000])
	}

	style := &domain.WritingStyle{
		Name:             name,
		StyleDescription: styleJSON,
		ExampleText:      example,
		Tags:             tags,
	}
	if err := s.store.CreateStyle(ctx, style); err != nil {
		return nil, domain.ErrServer("failed to save style: %v", err)
	}

	s.logger.Info("writing style saved", slog.Int64("style_id", style.ID), slog.String("name", name))
	return style, nil
}

// Get returns one stored style.
func (s *Service) Get(ctx context.Context, id int64) (*domain.WritingStyle, error) {
	style, err := s.store.GetStyle(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound("风格不存在")
	}
	if err != nil {
		return nil, domain.ErrServer("failed to load style: %v", err)
	}
	return style, nil
}

// List returns all stored styles, newest first.
func (s *Service) List(ctx context.Context) ([]*domain.WritingStyle, error) {
	styles, err := s.store.ListStyles(ctx)
	if err != nil {
		return nil, domain.ErrServer("failed to list styles: %v", err)
	}
	return styles, nil
}

// Delete removes a style.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteStyle(ctx, id); err != nil {
		return domain.ErrServer("failed to delete style: %v", err)
	}
	return nil
}
