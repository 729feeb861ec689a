// ABOUTME: Conversion between canonical history and Responses API input/output
// ABOUTME: CUA actions are translated into computer tool input maps

package cua

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/deskhand/deskhand/pkg/ai"
	"github.com/deskhand/deskhand/pkg/ai/internal/keysym"
)

// convertMessages renders the canonical history as Responses API user input.
// Assistant text is prefixed so the model can tell its own prior turns apart;
// tool_use blocks have no input representation and are dropped.
func convertMessages(msgs []ai.Message) []map[string]any {
	var out []map[string]any

	for _, msg := range msgs {
		var parts []map[string]any
		for _, block := range msg.Content {
			switch block.Type {
			case ai.ContentText:
				if block.Text == "" {
					continue
				}
				text := block.Text
				if msg.Role == ai.RoleAssistant {
					text = "Assistant said: " + text
				}
				parts = append(parts, inputText(text))
			case ai.ContentImage:
				if block.Source != nil && block.Source.Type == "base64" && block.Source.Data != "" {
					mediaType := block.Source.MediaType
					if mediaType == "" {
						mediaType = "image/png"
					}
					parts = append(parts, inputImage(fmt.Sprintf("data:%s;base64,%s", mediaType, block.Source.Data)))
				}
			case ai.ContentToolResult:
				text, imageData := toolResultPayload(block)
				if text != "" {
					parts = append(parts, inputText(text))
				}
				if imageData != "" {
					parts = append(parts, inputImage("data:image/png;base64,"+imageData))
				}
			}
		}
		if len(parts) > 0 {
			out = append(out, map[string]any{"role": "user", "content": parts})
		}
	}

	return out
}

func inputText(text string) map[string]any {
	return map[string]any{"type": "input_text", "text": text}
}

func inputImage(dataURL string) map[string]any {
	return map[string]any{"type": "input_image", "detail": "auto", "image_url": dataURL}
}

func toolResultPayload(block ai.Content) (text, imageData string) {
	if block.Error != "" {
		return block.Error, ""
	}
	for _, inner := range block.Blocks {
		switch inner.Type {
		case ai.ContentText:
			text = inner.Text
		case ai.ContentImage:
			if inner.Source != nil && inner.Source.Type == "base64" {
				imageData = inner.Source.Data
			}
		}
	}
	return text, imageData
}

// mapCUAAction flattens a computer_call action into computer tool input.
// Unknown action types degrade to a screenshot rather than failing.
func mapCUAAction(action map[string]any) map[string]any {
	mapped := map[string]any{}
	atype, _ := action["type"].(string)

	switch atype {
	case "click":
		button, _ := action["button"].(string)
		switch button {
		case "right":
			mapped["action"] = "right_click"
		case "middle":
			mapped["action"] = "middle_click"
		default:
			mapped["action"] = "left_click"
		}
		setCoordinate(mapped, action)
	case "double_click":
		mapped["action"] = "double_click"
		setCoordinate(mapped, action)
	case "scroll":
		sx := intField(action, "scroll_x")
		sy := intField(action, "scroll_y")
		if abs(sy) >= abs(sx) {
			mapped["scroll_direction"] = pick(sy > 0, "down", "up")
			mapped["scroll_amount"] = abs(sy)
		} else {
			mapped["scroll_direction"] = pick(sx > 0, "right", "left")
			mapped["scroll_amount"] = abs(sx)
		}
		mapped["action"] = "scroll"
	case "type":
		mapped["action"] = "type"
		if text, ok := action["text"]; ok {
			mapped["text"] = text
		}
	case "keypress", "key", "key_event":
		combo := keyCombo(action)
		if combo == "" {
			mapped["action"] = "screenshot"
			break
		}
		mapped["action"] = "key"
		mapped["text"] = keysym.NormalizeCombo(combo)
	case "wait":
		mapped["action"] = "wait"
		mapped["duration"] = waitSeconds(action)
	case "screenshot":
		mapped["action"] = "screenshot"
	case "cursor_position":
		mapped["action"] = "mouse_move"
		setCoordinate(mapped, action)
	default:
		mapped["action"] = "screenshot"
	}

	return mapped
}

func setCoordinate(mapped, action map[string]any) {
	x, okX := numField(action, "x")
	y, okY := numField(action, "y")
	if okX && okY {
		mapped["coordinate"] = []int{x, y}
	}
}

func keyCombo(action map[string]any) string {
	if keys, ok := action["keys"].([]any); ok && len(keys) > 0 {
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprint(k))
		}
		return strings.Join(parts, "+")
	}
	if key, ok := action["key"].(string); ok {
		return key
	}
	return ""
}

func waitSeconds(action map[string]any) float64 {
	ms, ok := action["ms"]
	if !ok {
		ms, ok = action["duration_ms"]
	}
	if !ok {
		return 1.0
	}
	switch v := ms.(type) {
	case float64:
		return v / 1000.0
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 1.0
		}
		return parsed / 1000.0
	default:
		return 1.0
	}
}

func numField(m map[string]any, key string) (int, bool) {
	v, ok := m[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

func intField(m map[string]any, key string) int {
	n, _ := numField(m, key)
	return n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

// convertFunctionCall decodes a Responses function call into a tool_use
// block, repairing malformed argument JSON where possible.
func convertFunctionCall(callID, id, name string, arguments json.RawMessage, counter int) ai.Content {
	if name == "" {
		name = "unknown_tool"
	}
	useID := callID
	if useID == "" {
		useID = id
	}
	if useID == "" {
		useID = fmt.Sprintf("call_%d", counter)
	}

	input := decodeArguments(arguments)
	if name == "extraction" {
		input = wrapExtractionInput(input)
	}

	return ai.Content{Type: ai.ContentToolUse, ID: useID, Name: name, Input: input}
}

// decodeArguments tolerates both a JSON string of arguments and an inline
// object. Undecodable arguments become an empty input map.
func decodeArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var input map[string]any
		if err := json.Unmarshal([]byte(asString), &input); err == nil {
			return input
		}
		if repaired, err := jsonrepair.JSONRepair(asString); err == nil {
			if err := json.Unmarshal([]byte(repaired), &input); err == nil {
				return input
			}
		}
		return map[string]any{}
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err == nil {
		return input
	}
	return map[string]any{}
}

func wrapExtractionInput(input map[string]any) map[string]any {
	if _, ok := input["data"]; ok {
		return input
	}
	name, hasName := input["name"]
	result, hasResult := input["result"]
	if hasName && hasResult {
		return map[string]any{"data": map[string]any{"name": name, "result": result}}
	}
	return input
}
