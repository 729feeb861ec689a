// ABOUTME: Tests for the Messages API handler: tool versions, conversion, responses

package anthropic

import (
	"testing"

	"github.com/deskhand/deskhand/pkg/ai"
)

func TestToolVersionByModel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		model, want string
	}{
		{"claude-3-7-sonnet-20250219", "computer_20250124"},
		{"claude-sonnet-4-20250514", "computer_20250124"},
		{"claude-3-5-sonnet-20241022", "computer_20241022"},
	}
	for _, tc := range cases {
		if got := ToolVersion(tc.model); got != tc.want {
			t.Errorf("ToolVersion(%q) = %q, want %q", tc.model, got, tc.want)
		}
	}
}

func TestBetasIncludePromptCaching(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{Model: "claude-sonnet-4-20250514"})
	betas := h.betas(h.model)
	if len(betas) != 2 {
		t.Fatalf("betas = %v", betas)
	}
	if betas[0] != "computer-use-2025-01-24" || betas[1] != "prompt-caching-2024-07-31" {
		t.Errorf("betas = %v", betas)
	}
}

func TestInitializeClientMissingKey(t *testing.T) {
	h := New(ai.HandlerOptions{})
	t.Setenv("ANTHROPIC_API_KEY", "")

	err := h.InitializeClient(ai.Credentials{})
	if err == nil {
		t.Fatal("expected config error")
	}
	if _, ok := err.(*ai.ConfigError); !ok {
		t.Errorf("error type = %T", err)
	}
}

func TestConvertMessagesToolResultError(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	history := []ai.Message{{
		Role: ai.RoleUser,
		Content: []ai.Content{{
			Type:      ai.ContentToolResult,
			ToolUseID: "tu_1",
			Error:     "<system>UI Mismatch Detected</system>\nwrong screen",
		}},
	}}

	out := h.ConvertMessages(history)
	if len(out) != 1 {
		t.Fatalf("messages = %d", len(out))
	}
	content := out[0]["content"].([]map[string]any)
	if content[0]["tool_use_id"] != "tu_1" {
		t.Errorf("tool_use_id = %v", content[0]["tool_use_id"])
	}
	if content[0]["error"] != "<system>UI Mismatch Detected</system>\nwrong screen" {
		t.Errorf("error = %v", content[0]["error"])
	}
}

func TestConvertMessagesMarksCache(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	history := []ai.Message{
		ai.NewTextMessage(ai.RoleUser, "hello"),
	}

	out := h.ConvertMessages(history)
	content := out[0]["content"].([]map[string]any)
	if _, ok := content[0]["cache_control"]; !ok {
		t.Error("most recent user turn should carry cache_control")
	}
}

func TestPrepareToolsComputerDeclaration(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	out := h.PrepareTools([]ai.ToolSpec{
		{Name: "computer", APIType: "computer_20250124", Width: 1280, Height: 800},
		{Name: "extraction", Description: "report data"},
	})

	if len(out) != 2 {
		t.Fatalf("tools = %d", len(out))
	}
	computer := out[0]
	if computer["type"] != "computer_20250124" || computer["display_width_px"] != 1280 {
		t.Errorf("computer tool = %v", computer)
	}
	if computer["display_number"] != 1 {
		t.Errorf("display_number = %v", computer["display_number"])
	}
	if out[1]["description"] != "report data" {
		t.Errorf("extraction tool = %v", out[1])
	}
}

func TestConvertResponse(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"content": [
			{"type": "text", "text": "clicking the button"},
			{"type": "tool_use", "id": "tu_1", "name": "computer", "input": {"action": "left_click", "coordinate": [10, 20]}},
			{"type": "server_tool_use", "id": "x"}
		],
		"stop_reason": "tool_use"
	}`)

	h := New(ai.HandlerOptions{})
	blocks, stop, err := h.ConvertResponse(raw)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if stop != ai.StopToolUse {
		t.Errorf("stop = %q", stop)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d (unknown types must be dropped)", len(blocks))
	}
	if blocks[0].Text != "clicking the button" {
		t.Errorf("text = %q", blocks[0].Text)
	}
	tu := blocks[1]
	if tu.Name != "computer" || tu.ID != "tu_1" {
		t.Errorf("tool_use = %+v", tu)
	}
	if tu.Input["action"] != "left_click" {
		t.Errorf("input = %v", tu.Input)
	}
}

func TestConvertResponseNilInput(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"content": [{"type": "tool_use", "id": "tu_1", "name": "computer"}], "stop_reason": "tool_use"}`)

	h := New(ai.HandlerOptions{})
	blocks, _, err := h.ConvertResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if blocks[0].Input == nil {
		t.Error("nil input must become an empty map")
	}
}

func TestRoundTripPreservesToolUse(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	raw := []byte(`{
		"content": [
			{"type": "text", "text": "on it"},
			{"type": "tool_use", "id": "tu_7", "name": "computer", "input": {"action": "type", "text": "hello"}}
		],
		"stop_reason": "tool_use"
	}`)

	blocks, _, err := h.ConvertResponse(raw)
	if err != nil {
		t.Fatal(err)
	}

	out := h.ConvertMessages([]ai.Message{{Role: ai.RoleAssistant, Content: blocks}})
	content := out[0]["content"].([]map[string]any)
	if content[0]["text"] != "on it" {
		t.Errorf("text = %v", content[0]["text"])
	}
	if content[1]["id"] != "tu_7" || content[1]["name"] != "computer" {
		t.Errorf("tool_use = %v", content[1])
	}
	input := content[1]["input"].(map[string]any)
	if input["text"] != "hello" {
		t.Errorf("input = %v", input)
	}
}
