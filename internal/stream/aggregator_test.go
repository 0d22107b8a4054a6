package stream

import (
	"testing"

	"github.com/writeflow-dev/writeflow/internal/sse"
)

func contentFrame(delta string) sse.Frame {
	return sse.Frame{Type: sse.TypeContent, Payload: map[string]any{"delta": delta}}
}

func TestAggregator_ChunkedEqualsWhole(t *testing.T) {
	chunked := NewAggregator()
	for _, delta := range []string{"AB", "CD", "EF"} {
		chunked.Apply(contentFrame(delta))
	}

	whole := NewAggregator()
	whole.Apply(contentFrame("ABCDEF"))

	if chunked.Content() != "ABCDEF" {
		t.Errorf("chunked content = %q", chunked.Content())
	}
	if chunked.Content() != whole.Content() {
		t.Errorf("chunked %q != whole %q", chunked.Content(), whole.Content())
	}
}

func TestAggregator_RecordIDFromStart(t *testing.T) {
	a := NewAggregator()
	a.Apply(sse.Frame{Type: sse.TypeStart, Payload: map[string]any{"task_id": float64(42)}})

	id, ok := a.RecordID()
	if !ok || id != 42 {
		t.Errorf("record id = %d, %v", id, ok)
	}
}

func TestAggregator_RecordIDFromDone(t *testing.T) {
	a := NewAggregator()
	a.Apply(sse.Frame{Type: sse.TypeStart, Payload: map[string]any{"message": "开始"}})
	a.Apply(sse.Frame{Type: sse.TypeDone, Payload: map[string]any{"id": float64(7)}})

	id, ok := a.RecordID()
	if !ok || id != 7 {
		t.Errorf("record id = %d, %v", id, ok)
	}
}

func TestAggregator_FirstRecordIDWins(t *testing.T) {
	a := NewAggregator()
	a.Apply(sse.Frame{Type: sse.TypeStart, Payload: map[string]any{"task_id": float64(1)}})
	a.Apply(sse.Frame{Type: sse.TypeDone, Payload: map[string]any{"id": float64(2)}})

	id, _ := a.RecordID()
	if id != 1 {
		t.Errorf("record id = %d, want 1", id)
	}
}

func TestAggregator_LastProgress(t *testing.T) {
	a := NewAggregator()
	a.Apply(sse.Frame{Type: sse.TypeProgress, Payload: map[string]any{"step": "rag", "message": "检索素材中"}})
	a.Apply(sse.Frame{Type: sse.TypeProgress, Payload: map[string]any{"step": "rewrite", "message": "正在改写"}})
	a.Apply(sse.Frame{Type: sse.TypeProgress, Payload: map[string]any{"step": "rewrite"}})

	if got := a.LastProgress(); got != "正在改写" {
		t.Errorf("last progress = %q", got)
	}
}

func TestAggregator_DisplayLength(t *testing.T) {
	a := NewAggregator()
	a.Apply(contentFrame("你好 世界"))
	if got := a.DisplayLength(); got != 5 {
		t.Errorf("raw display length = %d, want 5", got)
	}

	stripped := NewAggregator(WithPlaceholderStripping())
	stripped.Apply(contentFrame("你好 世界\n[配图建议|名称:测试配图|说明:画面]\nabc"))
	if got := stripped.DisplayLength(); got != 7 {
		t.Errorf("stripped display length = %d, want 7", got)
	}
}

func TestAggregator_StartPayload(t *testing.T) {
	a := NewAggregator()
	a.Apply(sse.Frame{Type: sse.TypeStart, Payload: map[string]any{"style_name": "测试", "articles_count": float64(3)}})
	a.Apply(sse.Frame{Type: sse.TypeStart, Payload: map[string]any{"style_name": "后来"}})

	p := a.StartPayload()
	if p == nil || p["style_name"] != "测试" {
		t.Errorf("start payload = %v", p)
	}
}
