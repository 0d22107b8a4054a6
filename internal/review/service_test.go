package review

import (
	"strings"
	"testing"
)

func TestParseFeedback_WellFormed(t *testing.T) {
	response := "```json\n" + `{
		"quality_scores": {"directness": 8, "rhythm": 7, "trust": 8, "authenticity": 6, "conciseness": 7, "total": 36},
		"passed": true,
		"reason": "整体自然"
	}` + "\n```"

	fb := parseFeedback(response)
	if !fb.Passed {
		t.Error("expected passed")
	}
	if fb.TotalScore != 36 {
		t.Errorf("TotalScore = %d, want 36", fb.TotalScore)
	}
	if fb.AIScore != 6 {
		t.Errorf("AIScore = %d, want 6", fb.AIScore)
	}
	if fb.Reason != "整体自然" {
		t.Errorf("Reason = %q", fb.Reason)
	}
}

func TestParseFeedback_ScoreBelowThresholdFails(t *testing.T) {
	response := `{"quality_scores": {"authenticity": 4, "total": 30}, "passed": true, "reason": "勉强"}`
	fb := parseFeedback(response)
	if fb.Passed {
		t.Error("total score below threshold must fail regardless of the model verdict")
	}
	if fb.TotalScore != 30 {
		t.Errorf("TotalScore = %d, want 30", fb.TotalScore)
	}
}

func TestParseFeedback_ExplicitFail(t *testing.T) {
	response := `{"quality_scores": {"total": 40}, "passed": false, "reason": "AI味明显"}`
	fb := parseFeedback(response)
	if fb.Passed {
		t.Error("expected failed verdict")
	}
	if fb.Reason != "AI味明显" {
		t.Errorf("Reason = %q", fb.Reason)
	}
}

func TestParseFeedback_SurroundingProse(t *testing.T) {
	response := "审核结果如下：{\"passed\": true, \"reason\": \"ok\"} 以上。"
	fb := parseFeedback(response)
	if !fb.Passed {
		t.Error("expected passed")
	}
	if fb.TotalScore != 50 {
		t.Errorf("missing scores should default to 50, got %d", fb.TotalScore)
	}
}

func TestParseFeedback_Unparseable(t *testing.T) {
	fb := parseFeedback("the model rambled with no json")
	if !fb.Passed {
		t.Error("unparseable feedback defaults to permissive pass")
	}
	if !strings.Contains(fb.Raw, "无法解析响应") {
		t.Errorf("Raw should record the parse failure, got %q", fb.Raw)
	}
}
