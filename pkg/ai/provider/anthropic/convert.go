// ABOUTME: Conversion between canonical messages/tools and Anthropic wire format
// ABOUTME: Pure functions; unknown block types degrade to text, never fail

package anthropic

import (
	"encoding/json"

	"github.com/deskhand/deskhand/pkg/ai"
)

// convertMessages transforms canonical messages into Messages API format.
func convertMessages(msgs []ai.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, map[string]any{
			"role":    string(msg.Role),
			"content": convertContent(msg.Content),
		})
	}
	return out
}

// convertContent transforms canonical content blocks into Messages API format.
func convertContent(blocks []ai.Content) []map[string]any {
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, convertContentBlock(b))
	}
	return out
}

// convertContentBlock converts a single content block. The canonical model is
// Anthropic-shaped, so this is mostly a field-for-field mapping.
func convertContentBlock(b ai.Content) map[string]any {
	var entry map[string]any

	switch b.Type {
	case ai.ContentText:
		entry = map[string]any{"type": "text", "text": b.Text}
	case ai.ContentImage:
		entry = map[string]any{"type": "image", "source": convertImageSource(b.Source)}
	case ai.ContentToolUse:
		entry = map[string]any{
			"type":  "tool_use",
			"id":    b.ID,
			"name":  b.Name,
			"input": b.Input,
		}
	case ai.ContentToolResult:
		entry = map[string]any{
			"type":        "tool_result",
			"tool_use_id": b.ToolUseID,
			"content":     convertContent(b.Blocks),
		}
		if b.Error != "" {
			entry["error"] = b.Error
		}
	default:
		entry = map[string]any{"type": string(b.Type), "text": b.Text}
	}

	if b.CacheControl != nil {
		entry["cache_control"] = map[string]any{"type": b.CacheControl.Type}
	}
	return entry
}

func convertImageSource(src *ai.ImageSource) map[string]any {
	if src == nil {
		return map[string]any{"type": "base64"}
	}
	return map[string]any{
		"type":       "base64",
		"media_type": src.MediaType,
		"data":       src.Data,
	}
}

// convertTools transforms the tool catalog into Anthropic tool params. The
// computer tool emits the builtin GUI tool declaration instead of a schema.
func convertTools(catalog []ai.ToolSpec) []map[string]any {
	out := make([]map[string]any, 0, len(catalog))
	for _, t := range catalog {
		if t.Name == "computer" {
			out = append(out, map[string]any{
				"name":              t.Name,
				"type":              t.APIType,
				"display_width_px":  t.Width,
				"display_height_px": t.Height,
				"display_number":    1,
			})
			continue
		}
		entry := map[string]any{
			"name":        t.Name,
			"description": t.Description,
		}
		if t.InputSchema != nil {
			entry["input_schema"] = json.RawMessage(t.InputSchema)
		}
		out = append(out, entry)
	}
	return out
}
