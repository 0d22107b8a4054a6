package style

import (
	"strings"
	"testing"
)

func TestCombineArticles(t *testing.T) {
	got := combineArticles([]string{" first ", "", "  ", "second"})
	want := "first\n\n---\n\nsecond"
	if got != want {
		t.Errorf("combineArticles() = %q, want %q", got, want)
	}
}

func TestCombineArticles_CapsAtFive(t *testing.T) {
	articles := []string{"a", "b", "c", "d", "e", "f", "g"}
	got := combineArticles(articles)
	if n := strings.Count(got, "---"); n != 4 {
		t.Errorf("expected 5 articles joined by 4 separators, got %d separators", n)
	}
	if strings.Contains(got, "f") || strings.Contains(got, "g") {
		t.Errorf("articles past the fifth should be dropped, got %q", got)
	}
}

func TestCleanStyleJSON_Fenced(t *testing.T) {
	raw := "```json\n{\"persona\": \"导师\"}\n```"
	got, err := cleanStyleJSON(raw)
	if err != nil {
		t.Fatalf("cleanStyleJSON() error = %v", err)
	}
	if got != `{"persona": "导师"}` {
		t.Errorf("got %q", got)
	}
}

func TestCleanStyleJSON_BareFence(t *testing.T) {
	raw := "```\n{\"a\": 1}\n```"
	got, err := cleanStyleJSON(raw)
	if err != nil {
		t.Fatalf("cleanStyleJSON() error = %v", err)
	}
	if got != `{"a": 1}` {
		t.Errorf("got %q", got)
	}
}

func TestCleanStyleJSON_SurroundingProse(t *testing.T) {
	raw := "好的，分析如下：{\"persona\": \"朋友\"} 以上。"
	got, err := cleanStyleJSON(raw)
	if err != nil {
		t.Fatalf("cleanStyleJSON() error = %v", err)
	}
	if got != `{"persona": "朋友"}` {
		t.Errorf("got %q", got)
	}
}

func TestCleanStyleJSON_Invalid(t *testing.T) {
	if _, err := cleanStyleJSON("not json at all"); err == nil {
		t.Error("expected error for non-JSON output")
	}
}
