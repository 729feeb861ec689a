// ABOUTME: Tests for the Chat Completions handler: tool folding, call reassembly
// ABOUTME: Covers argument repair, action normalization, and the gpt-5 switch

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deskhand/deskhand/pkg/ai"
)

func TestConvertResponseReassemblesComputerCall(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"choices": [{
			"message": {
				"content": "clicking",
				"tool_calls": [{
					"id": "call_1",
					"function": {"name": "left_click", "arguments": "{\"coordinate\": [100, 200]}"}
				}]
			},
			"finish_reason": "tool_calls"
		}]
	}`)

	h := New(ai.HandlerOptions{Model: "gpt-4.1"})
	blocks, stop, err := h.ConvertResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if stop != ai.StopToolUse {
		t.Errorf("stop = %q", stop)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d", len(blocks))
	}

	tu := blocks[1]
	if tu.Name != "computer" {
		t.Errorf("name = %q, want computer", tu.Name)
	}
	if tu.Input["action"] != "left_click" {
		t.Errorf("action = %v", tu.Input["action"])
	}
	if tu.Input["api_type"] != "computer_20250124" {
		t.Errorf("api_type = %v", tu.Input["api_type"])
	}
}

func TestConvertToolCallRepairsArguments(t *testing.T) {
	t.Parallel()

	// Trailing comma is invalid JSON but repairable.
	block := convertToolCall("call_1", "type", `{"text": "hello",}`)
	if block.Type != ai.ContentToolUse {
		t.Fatalf("repairable arguments should still become a tool_use, got %+v", block)
	}
	if block.Input["text"] != "hello" {
		t.Errorf("input = %v", block.Input)
	}
}

func TestConvertToolCallUnrepairableArguments(t *testing.T) {
	t.Parallel()

	block := convertToolCall("call_1", "extraction", `[1, 2`)
	if block.Type != ai.ContentText {
		t.Fatalf("expected diagnostic text block, got %+v", block)
	}
	if !strings.Contains(block.Text, "extraction") {
		t.Errorf("diagnostic = %q", block.Text)
	}
}

func TestNormalizeComputerInput(t *testing.T) {
	t.Parallel()

	input := normalizeComputerInput("key", map[string]any{"key": "ctrl+esc"})
	if input["action"] != "key" {
		t.Errorf("action = %v", input["action"])
	}
	if input["text"] != "ctrl+Escape" {
		t.Errorf("text = %v", input["text"])
	}
	if _, present := input["key"]; present {
		t.Error("key field should be folded into text")
	}

	input = normalizeComputerInput("computer", map[string]any{"action": "click"})
	if input["action"] != "left_click" {
		t.Errorf("click alias = %v", input["action"])
	}

	input = normalizeComputerInput("scroll", map[string]any{
		"scroll_direction": "DOWN",
		"scroll_amount":    "3",
	})
	if input["scroll_direction"] != "down" {
		t.Errorf("direction = %v", input["scroll_direction"])
	}
	if input["scroll_amount"] != 3 {
		t.Errorf("amount = %v (%T)", input["scroll_amount"], input["scroll_amount"])
	}
}

func TestWrapExtractionInput(t *testing.T) {
	t.Parallel()

	wrapped := wrapExtractionInput(map[string]any{"name": "total", "result": "42"})
	data, ok := wrapped["data"].(map[string]any)
	if !ok || data["name"] != "total" {
		t.Errorf("wrapped = %v", wrapped)
	}

	already := map[string]any{"data": map[string]any{"name": "x"}}
	if got := wrapExtractionInput(already); got["data"] == nil {
		t.Errorf("envelope input must pass through: %v", got)
	}
}

func TestPrepareToolsExpandsComputer(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	catalog := []ai.ToolSpec{
		{Name: "computer", Actions: []ai.ActionSpec{
			{Name: "screenshot", Params: map[string]any{}},
			{Name: "left_click", Params: map[string]any{"coordinate": map[string]any{"type": "array"}}},
		}},
		{Name: "extraction", Description: "report data"},
	}

	out := h.PrepareTools(catalog)
	if len(out) != 3 {
		t.Fatalf("tools = %d, want one per action plus extraction", len(out))
	}

	fn := out[1]["function"].(map[string]any)
	if fn["name"] != "left_click" {
		t.Errorf("function name = %v", fn["name"])
	}
	params := fn["parameters"].(map[string]any)
	if params["properties"].(map[string]any)["coordinate"] == nil {
		t.Errorf("parameters = %v", params)
	}
}

func TestConvertMessagesFoldsToolResults(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	history := []ai.Message{
		ai.NewTextMessage(ai.RoleUser, "start"),
		{Role: ai.RoleAssistant, Content: []ai.Content{
			{Type: ai.ContentToolUse, ID: "call_1", Name: "screenshot", Input: map[string]any{}},
		}},
		{Role: ai.RoleUser, Content: []ai.Content{{
			Type:      ai.ContentToolResult,
			ToolUseID: "call_1",
			Blocks: []ai.Content{
				{Type: ai.ContentText, Text: "took it"},
				{Type: ai.ContentImage, Source: &ai.ImageSource{Type: "base64", MediaType: "image/png", Data: "AAAA"}},
			},
		}}},
	}

	out := h.ConvertMessages(history)
	// user, assistant, tool, trailing user with image
	if len(out) != 4 {
		t.Fatalf("messages = %d: %v", len(out), out)
	}
	toolMsg := out[2]
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_1" {
		t.Errorf("tool message = %v", toolMsg)
	}
	if toolMsg["content"] != "took it" {
		t.Errorf("tool content = %v", toolMsg["content"])
	}

	imageMsg := out[3]
	if imageMsg["role"] != "user" {
		t.Errorf("image carrier role = %v", imageMsg["role"])
	}
	parts := imageMsg["content"].([]map[string]any)
	foundImage := false
	for _, p := range parts {
		if p["type"] == "image_url" {
			foundImage = true
		}
	}
	if !foundImage {
		t.Error("trailing user message must carry the screenshot")
	}
}

func TestCallAPIGPT5Switch(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	t.Cleanup(srv.Close)

	h := New(ai.HandlerOptions{Model: "gpt-5-mini"})
	if err := h.InitializeClient(ai.Credentials{APIKey: "sk-test", BaseURL: srv.URL}); err != nil {
		t.Fatal(err)
	}

	_, err := h.CallAPI(context.Background(), ai.Request{Model: "gpt-5-mini", MaxTokens: 512})
	if err != nil {
		t.Fatal(err)
	}
	if body["max_completion_tokens"] != float64(512) {
		t.Errorf("max_completion_tokens = %v", body["max_completion_tokens"])
	}
	if _, present := body["temperature"]; present {
		t.Error("gpt-5 request must omit temperature")
	}
	if _, present := body["max_tokens"]; present {
		t.Error("gpt-5 request must omit max_tokens")
	}
}
