package llm

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestSystemBlocks_CacheControlOnFinal(t *testing.T) {
	blocks := SystemBlocks("role prompt", "contracts")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].CacheControl.Type != "" && blocks[0].CacheControl.Type != "ephemeral" {
		t.Errorf("unexpected cache control on first block: %v", blocks[0].CacheControl)
	}
	if blocks[1].CacheControl.Type != "ephemeral" {
		t.Errorf("expected cache control on final block, got %v", blocks[1].CacheControl)
	}

	if len(SystemBlocks()) != 0 {
		t.Error("expected no blocks for empty input")
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{
		System: []anthropic.TextBlockParam{{Text: "aaaa"}},
	}
	// 4 system bytes plus the JSON encoding of an empty message list.
	got := EstimateTokens(req)
	if got < 1 {
		t.Errorf("expected a positive estimate, got %d", got)
	}

	bigger := Request{
		System: []anthropic.TextBlockParam{{Text: string(make([]byte, 4000))}},
	}
	if EstimateTokens(bigger) < 1000 {
		t.Errorf("expected roughly bytes/4, got %d", EstimateTokens(bigger))
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 32 * time.Second},
		{5, 64 * time.Second},
		{6, 90 * time.Second},  // 128s capped
		{10, 90 * time.Second}, // attempt clamped
	}

	for _, tc := range tests {
		if got := backoffDelay(tc.attempt); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	codes := map[int]bool{
		429: true,
		500: true,
		502: true,
		503: true,
		529: true,
		400: false,
		401: false,
		404: false,
	}
	for code, want := range codes {
		err := &anthropic.Error{StatusCode: code}
		if got := retryable(err); got != want {
			t.Errorf("retryable(status %d) = %v, want %v", code, got, want)
		}
	}
}

func TestBlockAccumulator_Tool(t *testing.T) {
	acc := newBlockAccumulator()
	acc.openTool("toolu_01", "write_file")
	acc.appendJSON(`{"path":`)
	acc.appendJSON(`"src/main.py","content":"x"}`)

	ev, ok := acc.close()
	if !ok || ev.ToolCall == nil {
		t.Fatal("expected assembled tool call")
	}
	if ev.ToolCall.ID != "toolu_01" || ev.ToolCall.Name != "write_file" {
		t.Errorf("unexpected tool identity: %+v", ev.ToolCall)
	}
	var input map[string]string
	if err := json.Unmarshal(ev.ToolCall.Input, &input); err != nil {
		t.Fatalf("assembled input is not valid JSON: %v", err)
	}
	if input["path"] != "src/main.py" {
		t.Errorf("unexpected input: %v", input)
	}

	// Accumulator resets after close.
	if _, ok := acc.close(); ok {
		t.Error("expected nothing after close")
	}
}

func TestBlockAccumulator_EmptyToolInput(t *testing.T) {
	acc := newBlockAccumulator()
	acc.openTool("toolu_02", "list_directory")

	ev, ok := acc.close()
	if !ok || ev.ToolCall == nil {
		t.Fatal("expected tool call")
	}
	if string(ev.ToolCall.Input) != "{}" {
		t.Errorf("expected empty object input, got %s", ev.ToolCall.Input)
	}
}

func TestBlockAccumulator_Thinking(t *testing.T) {
	acc := newBlockAccumulator()
	acc.openThinking()
	acc.appendThinking("first ")
	acc.appendThinking("second")

	ev, ok := acc.close()
	if !ok {
		t.Fatal("expected thinking event")
	}
	if ev.Thinking != "first second" {
		t.Errorf("unexpected thinking text: %q", ev.Thinking)
	}
}

func TestBlockAccumulator_IgnoresDeltasWithoutOpenBlock(t *testing.T) {
	acc := newBlockAccumulator()
	acc.appendJSON(`{"x":1}`)
	acc.appendThinking("stray")
	if _, ok := acc.close(); ok {
		t.Error("expected no event without an open block")
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("unexpected translation: %s", got)
	}

	// Unknown models pass through unchanged.
	custom := anthropic.Model("my-custom-model")
	if translateModelForBedrock(custom) != custom {
		t.Error("expected unknown model to pass through")
	}
}
