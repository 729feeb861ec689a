// ABOUTME: Conversion between canonical messages/tools and Chat Completions format
// ABOUTME: Folds tool results into role-tool messages; rebuilds computer tool_use blocks

package openai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/deskhand/deskhand/pkg/ai"
	"github.com/deskhand/deskhand/pkg/ai/internal/keysym"
)

// convertMessages transforms canonical messages into Chat Completions format.
// Consecutive user messages carrying tool_result blocks are folded into a run
// of role "tool" messages; their screenshots are re-attached afterwards as a
// single user message, because tool messages are text-only on this backend.
func convertMessages(msgs []ai.Message) []map[string]any {
	var out []map[string]any

	for i := 0; i < len(msgs); {
		msg := msgs[i]

		if msg.Role == ai.RoleUser && hasToolResult(msg) {
			folded, next := foldToolResults(msgs, i)
			out = append(out, folded...)
			i = next
			continue
		}

		if converted, ok := convertPlainMessage(msg); ok {
			out = append(out, converted)
		}
		i++
	}

	return out
}

func hasToolResult(msg ai.Message) bool {
	for _, b := range msg.Content {
		if b.Type == ai.ContentToolResult {
			return true
		}
	}
	return false
}

// foldToolResults consumes consecutive tool-result user messages starting at
// idx and returns the converted run plus the index of the first unconsumed
// message.
func foldToolResults(msgs []ai.Message, idx int) ([]map[string]any, int) {
	var toolMessages []map[string]any
	type capturedImage struct {
		text string
		data string
	}
	var images []capturedImage

	for idx < len(msgs) {
		msg := msgs[idx]
		if msg.Role != ai.RoleUser || !hasToolResult(msg) {
			break
		}
		for _, block := range msg.Content {
			if block.Type != ai.ContentToolResult {
				continue
			}
			text, imageData := toolResultPayload(block)
			toolMessages = append(toolMessages, map[string]any{
				"role":         "tool",
				"tool_call_id": toolCallID(block),
				"content":      textOrDefault(text),
			})
			if imageData != "" {
				images = append(images, capturedImage{text: text, data: imageData})
			}
		}
		idx++
	}

	if len(images) > 0 {
		var parts []map[string]any
		for _, img := range images {
			if img.text != "" {
				parts = append(parts, map[string]any{"type": "text", "text": img.text})
			}
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": "data:image/png;base64," + img.data},
			})
		}
		toolMessages = append(toolMessages, map[string]any{"role": "user", "content": parts})
	}

	return toolMessages, idx
}

// toolResultPayload extracts the text and base64 image of a tool_result block.
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

func toolCallID(block ai.Content) string {
	if block.ToolUseID != "" {
		return block.ToolUseID
	}
	return "tool_call"
}

func textOrDefault(text string) string {
	if text == "" {
		return "Tool executed successfully"
	}
	return text
}

// convertPlainMessage converts a message with no tool results. Returns false
// when nothing representable remains (e.g. only unknown block types).
func convertPlainMessage(msg ai.Message) (map[string]any, bool) {
	var parts []map[string]any
	var toolCalls []map[string]any
	var texts []string

	for _, block := range msg.Content {
		switch block.Type {
		case ai.ContentText:
			if block.Text == "" {
				continue
			}
			parts = append(parts, map[string]any{"type": "text", "text": block.Text})
			texts = append(texts, block.Text)
		case ai.ContentImage:
			if block.Source == nil || block.Source.Type != "base64" || block.Source.Data == "" {
				continue
			}
			mediaType := block.Source.MediaType
			if mediaType == "" {
				mediaType = "image/png"
			}
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": fmt.Sprintf("data:%s;base64,%s", mediaType, block.Source.Data)},
			})
		case ai.ContentToolUse:
			args, err := json.Marshal(block.Input)
			if err != nil {
				args = []byte("{}")
			}
			toolCalls = append(toolCalls, map[string]any{
				"id":   block.ID,
				"type": "function",
				"function": map[string]any{
					"name":      block.Name,
					"arguments": string(args),
				},
			})
		}
	}

	if msg.Role == ai.RoleUser {
		if len(parts) == 0 {
			return nil, false
		}
		return map[string]any{"role": "user", "content": parts}, true
	}

	assistant := map[string]any{"role": "assistant"}
	if len(texts) > 0 {
		assistant["content"] = strings.Join(texts, "\n")
	}
	if len(toolCalls) > 0 {
		assistant["tool_calls"] = toolCalls
	}
	if len(texts) == 0 && len(toolCalls) == 0 {
		return nil, false
	}
	return assistant, true
}

// toolSpecToFunction converts one catalog entry into a function spec.
func toolSpecToFunction(t ai.ToolSpec) map[string]any {
	description := t.Description
	if description == "" {
		description = "Tool: " + t.Name
	}
	parameters := any(map[string]any{"type": "object", "properties": map[string]any{}})
	if t.InputSchema != nil {
		parameters = json.RawMessage(t.InputSchema)
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": description,
			"parameters":  parameters,
		},
	}
}

// expandComputerFunctions emits one function spec per declared GUI action.
func expandComputerFunctions(t ai.ToolSpec) []map[string]any {
	out := make([]map[string]any, 0, len(t.Actions))
	for _, action := range t.Actions {
		params := action.Params
		if params == nil {
			params = map[string]any{}
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        action.Name,
				"description": "Computer action: " + action.Name,
				"parameters": map[string]any{
					"type":       "object",
					"properties": params,
					"required":   []string{},
				},
			},
		})
	}
	return out
}

// convertToolCall turns one function call into a canonical block. Malformed
// argument JSON is repaired first; if that also fails, a diagnostic text
// block is emitted so the model can retry with corrected arguments.
func convertToolCall(id, name, arguments string) ai.Content {
	input, err := decodeArguments(arguments)
	if err != nil {
		return ai.Content{
			Type: ai.ContentText,
			Text: fmt.Sprintf("Error parsing tool arguments for %s: %v", name, err),
		}
	}

	switch {
	case name == "computer" || computerActions[name]:
		input = normalizeComputerInput(name, input)
		name = "computer"
	case name == "extraction":
		input = wrapExtractionInput(input)
	}

	return ai.Content{Type: ai.ContentToolUse, ID: id, Name: name, Input: input}
}

// decodeArguments decodes a function-call argument string, running it through
// jsonrepair when it is not valid JSON.
func decodeArguments(arguments string) (map[string]any, error) {
	if strings.TrimSpace(arguments) == "" {
		return map[string]any{}, nil
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(arguments), &input); err == nil {
		return input, nil
	}

	repaired, err := jsonrepair.JSONRepair(arguments)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repaired), &input); err != nil {
		return nil, err
	}
	return input, nil
}

// normalizeComputerInput rewrites an action-named function call into computer
// tool input: action aliases, key-combo normalization, scroll coercion.
func normalizeComputerInput(name string, input map[string]any) map[string]any {
	if input == nil {
		input = map[string]any{}
	}
	if computerActions[name] {
		input["action"] = name
	}
	if input["action"] == "click" {
		input["action"] = "left_click"
	}

	action, _ := input["action"].(string)

	if action == "key" || action == "hold_key" {
		if _, ok := input["text"]; !ok {
			if key, ok := input["key"]; ok {
				input["text"] = key
				delete(input, "key")
			}
		}
		if text, ok := input["text"].(string); ok {
			input["text"] = keysym.NormalizeCombo(text)
		}
	}

	if action == "scroll" {
		if amount, ok := input["scroll_amount"]; ok {
			if n, ok := coerceInt(amount); ok {
				input["scroll_amount"] = n
			}
		}
		if direction, ok := input["scroll_direction"].(string); ok {
			input["scroll_direction"] = strings.ToLower(direction)
		}
	}

	input["api_type"] = "computer_20250124"
	return input
}

func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// wrapExtractionInput ensures extraction arguments carry the data envelope
// the extraction tool expects.
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
