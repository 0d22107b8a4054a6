package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// imagePlaceholderPattern matches the inline image suggestion markers the
// rewrite prompt asks the model to insert.
var imagePlaceholderPattern = regexp.MustCompile(`\[配图建议\|名称:[^\]]+\]`)

var (
	whitespacePattern   = regexp.MustCompile(`\s+`)
	fragmentKeepPattern = regexp.MustCompile(`[^\p{Han}A-Za-z0-9]`)
)

// CountActualWords counts the characters of the article body, excluding
// image placeholders and all whitespace.
func CountActualWords(content string) int {
	withoutPlaceholders := imagePlaceholderPattern.ReplaceAllString(content, "")
	withoutSpace := whitespacePattern.ReplaceAllString(withoutPlaceholders, "")
	return len([]rune(withoutSpace))
}

// sanitizePlaceholderFragment reduces a paragraph to a short name usable
// inside a placeholder, falling back when nothing survives.
func sanitizePlaceholderFragment(text, fallback string) string {
	cleaned := whitespacePattern.ReplaceAllString(text, "")
	cleaned = fragmentKeepPattern.ReplaceAllString(cleaned, "")
	if runes := []rune(cleaned); len(runes) > 12 {
		cleaned = string(runes[:12])
	}
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

// EnsureImagePlaceholders guarantees the rewrite result carries image
// placeholders. When the model skipped them, placeholders are inserted after
// paragraphs at the quarter points, scaled to the article length, so the
// cover and illustration flow downstream still has anchors to work with.
func EnsureImagePlaceholders(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	if imagePlaceholderPattern.MatchString(content) {
		return content
	}

	var paragraphs []string
	for _, p := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(p); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	if len(paragraphs) == 0 {
		return content
	}

	totalLength := 0
	for _, p := range paragraphs {
		totalLength += len([]rune(p))
	}
	expected := 3
	if totalLength < 700 {
		expected = 1
	} else if totalLength < 1500 {
		expected = 2
	}

	candidates := []int{
		len(paragraphs) / 4,
		len(paragraphs) / 2,
		(len(paragraphs) * 3) / 4,
	}
	seen := make(map[int]bool)
	var indexes []int
	for _, idx := range candidates {
		if idx < len(paragraphs) && !seen[idx] {
			seen[idx] = true
			indexes = append(indexes, idx)
		}
	}
	if len(indexes) == 0 {
		indexes = []int{0}
	}
	if len(indexes) > expected {
		indexes = indexes[:expected]
	}

	insertions := make(map[int]string, len(indexes))
	for seq, paraIdx := range indexes {
		snippet := sanitizePlaceholderFragment(paragraphs[paraIdx], fmt.Sprintf("场景%d", seq+1))
		insertions[paraIdx] = fmt.Sprintf("[配图建议|名称:%s配图|说明:围绕“%s”设计与段落语义一致的画面]", snippet, snippet)
	}

	var lines []string
	for idx, paragraph := range paragraphs {
		lines = append(lines, paragraph)
		if marker, ok := insertions[idx]; ok {
			lines = append(lines, marker)
		}
	}
	return strings.Join(lines, "\n\n")
}
