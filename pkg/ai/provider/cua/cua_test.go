// ABOUTME: Tests for the Responses/CUA handler: action mapping, output conversion

package cua

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/deskhand/deskhand/pkg/ai"
)

func TestPrepareSystemAppendsGuidance(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	prompt := h.PrepareSystem("Do the task.")
	if !strings.HasPrefix(prompt, "Do the task.") {
		t.Errorf("prompt = %q", prompt)
	}
	if !strings.Contains(prompt, "most recent screenshot") {
		t.Error("state guidance missing")
	}
}

func TestPrepareToolsBuiltinPreview(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	out := h.PrepareTools([]ai.ToolSpec{
		{Name: "computer", Width: 1280, Height: 800},
		{Name: "extraction", Description: "report data"},
	})

	if len(out) != 2 {
		t.Fatalf("tools = %d", len(out))
	}
	preview := out[0]
	if preview["type"] != "computer_use_preview" {
		t.Errorf("type = %v", preview["type"])
	}
	if preview["display_width"] != 1280 || preview["display_height"] != 800 {
		t.Errorf("geometry = %vx%v", preview["display_width"], preview["display_height"])
	}
	if preview["environment"] != "windows" {
		t.Errorf("environment = %v", preview["environment"])
	}

	fn := out[1]
	if fn["type"] != "function" || fn["name"] != "extraction" {
		t.Errorf("function = %v", fn)
	}
	if fn["strict"] != false {
		t.Errorf("strict = %v", fn["strict"])
	}
}

func TestPrepareToolsDefaultGeometry(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	out := h.PrepareTools(nil)
	if out[0]["display_width"] != 1024 || out[0]["display_height"] != 768 {
		t.Errorf("defaults = %vx%v", out[0]["display_width"], out[0]["display_height"])
	}
}

func TestConvertMessagesAllUserInput(t *testing.T) {
	t.Parallel()

	h := New(ai.HandlerOptions{})
	history := []ai.Message{
		ai.NewTextMessage(ai.RoleUser, "open settings"),
		ai.NewTextMessage(ai.RoleAssistant, "opening now"),
	}

	out := h.ConvertMessages(history)
	if len(out) != 2 {
		t.Fatalf("messages = %d", len(out))
	}
	for _, msg := range out {
		if msg["role"] != "user" {
			t.Errorf("role = %v, want user", msg["role"])
		}
	}

	parts := out[1]["content"].([]map[string]any)
	if parts[0]["text"] != "Assistant said: opening now" {
		t.Errorf("assistant text = %v", parts[0]["text"])
	}
}

func TestConvertMessagesKeepsOnlyLatestImage(t *testing.T) {
	t.Parallel()

	shot := func(id string) ai.Message {
		return ai.Message{Role: ai.RoleUser, Content: []ai.Content{{
			Type:      ai.ContentToolResult,
			ToolUseID: id,
			Blocks: []ai.Content{
				{Type: ai.ContentImage, Source: &ai.ImageSource{Type: "base64", MediaType: "image/png", Data: "img-" + id}},
			},
		}}}
	}

	h := New(ai.HandlerOptions{})
	out := h.ConvertMessages([]ai.Message{shot("1"), shot("2"), shot("3")})

	images := 0
	var lastURL string
	for _, msg := range out {
		if msg["content"] == nil {
			continue
		}
		for _, part := range msg["content"].([]map[string]any) {
			if part["type"] == "input_image" {
				images++
				lastURL = part["image_url"].(string)
			}
		}
	}
	if images != 1 {
		t.Fatalf("images = %d, want 1", images)
	}
	if !strings.Contains(lastURL, "img-3") {
		t.Errorf("kept image = %q, want the newest", lastURL)
	}
}

func TestMapCUAAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		action map[string]any
		want   map[string]any
	}{
		{
			"right click",
			map[string]any{"type": "click", "button": "right", "x": float64(10), "y": float64(20)},
			map[string]any{"action": "right_click", "coordinate": []int{10, 20}},
		},
		{
			"scroll down dominant",
			map[string]any{"type": "scroll", "scroll_x": float64(1), "scroll_y": float64(5)},
			map[string]any{"action": "scroll", "scroll_direction": "down", "scroll_amount": 5},
		},
		{
			"scroll left dominant",
			map[string]any{"type": "scroll", "scroll_x": float64(-7), "scroll_y": float64(2)},
			map[string]any{"action": "scroll", "scroll_direction": "left", "scroll_amount": 7},
		},
		{
			"keypress list",
			map[string]any{"type": "keypress", "keys": []any{"ctrl", "c"}},
			map[string]any{"action": "key", "text": "ctrl+c"},
		},
		{
			"wait ms",
			map[string]any{"type": "wait", "ms": float64(2500)},
			map[string]any{"action": "wait", "duration": 2.5},
		},
		{
			"unknown degrades to screenshot",
			map[string]any{"type": "hologram"},
			map[string]any{"action": "screenshot"},
		},
	}

	for _, tc := range cases {
		got := mapCUAAction(tc.action)
		for k, want := range tc.want {
			if coords, ok := want.([]int); ok {
				gotCoords, ok := got[k].([]int)
				if !ok || gotCoords[0] != coords[0] || gotCoords[1] != coords[1] {
					t.Errorf("%s: %s = %v, want %v", tc.name, k, got[k], want)
				}
				continue
			}
			if got[k] != want {
				t.Errorf("%s: %s = %v, want %v", tc.name, k, got[k], want)
			}
		}
	}
}

func TestConvertResponseOutputItems(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"status": "completed",
		"output": [
			{"type": "reasoning", "summary": [{"text": "I should click the button"}]},
			{"type": "computer_call", "call_id": "call_9", "action": {"type": "click", "button": "left", "x": 50, "y": 60}},
			{"type": "function_call", "call_id": "call_10", "name": "extraction", "arguments": "{\"name\": \"t\", \"result\": 1}"}
		]
	}`)

	h := New(ai.HandlerOptions{})
	blocks, stop, err := h.ConvertResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if stop != ai.StopToolUse {
		t.Errorf("stop = %q", stop)
	}
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d", len(blocks))
	}

	if blocks[0].Type != ai.ContentText || blocks[0].Text != "I should click the button" {
		t.Errorf("reasoning block = %+v", blocks[0])
	}

	cc := blocks[1]
	if cc.Name != "computer" || cc.ID != "call_9" {
		t.Errorf("computer_call = %+v", cc)
	}
	if cc.Input["action"] != "left_click" {
		t.Errorf("mapped action = %v", cc.Input["action"])
	}

	fc := blocks[2]
	if fc.Name != "extraction" || fc.ID != "call_10" {
		t.Errorf("function_call = %+v", fc)
	}
	if _, ok := fc.Input["data"]; !ok {
		t.Errorf("extraction input not wrapped: %v", fc.Input)
	}
}

func TestConvertResponseNoToolsUsesStatus(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"status": "completed", "output": [{"type": "reasoning", "summary": [{"text": "done"}]}]}`)

	h := New(ai.HandlerOptions{})
	blocks, stop, err := h.ConvertResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d", len(blocks))
	}
	if stop != ai.StopEndTurn {
		t.Errorf("stop = %q", stop)
	}
}

func TestDecodeArgumentsVariants(t *testing.T) {
	t.Parallel()

	// Arguments as a JSON string of an object.
	got := decodeArguments(json.RawMessage(`"{\"a\": 1}"`))
	if got["a"] != float64(1) {
		t.Errorf("string-encoded = %v", got)
	}

	// Inline object.
	got = decodeArguments(json.RawMessage(`{"b": 2}`))
	if got["b"] != float64(2) {
		t.Errorf("inline = %v", got)
	}

	// Repairable string payload.
	got = decodeArguments(json.RawMessage(`"{\"c\": 3,}"`))
	if got["c"] != float64(3) {
		t.Errorf("repaired = %v", got)
	}

	// Hopeless input degrades to empty map.
	got = decodeArguments(json.RawMessage(`"not json at all"`))
	if len(got) != 0 {
		t.Errorf("garbage = %v", got)
	}
}
