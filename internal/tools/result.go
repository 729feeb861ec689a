// ABOUTME: Converts a tool Result into the canonical tool_result content block
// ABOUTME: System notes are folded in as a <system> prefix on text and errors

package tools

import (
	"encoding/json"

	"github.com/deskhand/deskhand/pkg/ai"
)

// APIBlock renders a result as the tool_result block appended to history.
// Extraction output is re-serialized with indentation so the payload stays
// readable in the event log.
func APIBlock(result Result, toolUseID, toolName string) ai.Content {
	block := ai.Content{
		Type:      ai.ContentToolResult,
		ToolUseID: toolUseID,
		Blocks:    []ai.Content{},
	}

	if result.IsError() {
		block.Error = systemPrefix(result.System) + result.Error
		return block
	}

	output := result.Output
	if toolName == "extraction" && output != "" {
		output = prettyExtraction(output)
	}

	if output != "" {
		block.Blocks = append(block.Blocks, ai.Content{
			Type: ai.ContentText,
			Text: systemPrefix(result.System) + output,
		})
	}
	if result.Base64Image != "" {
		block.Blocks = append(block.Blocks, ai.Content{
			Type: ai.ContentImage,
			Source: &ai.ImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      result.Base64Image,
			},
		})
	}

	if len(block.Blocks) == 0 {
		text := "Tool returned no output."
		if result.System != "" {
			text = "system: " + text
		}
		block.Blocks = append(block.Blocks, ai.Content{Type: ai.ContentText, Text: text})
	}

	return block
}

func systemPrefix(system string) string {
	if system == "" {
		return ""
	}
	return "<system>" + system + "</system>\n"
}

// prettyExtraction re-indents extraction JSON output and unwraps a top-level
// result field when present. Non-JSON output passes through untouched.
func prettyExtraction(output string) string {
	var parsed any
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return output
	}
	if obj, ok := parsed.(map[string]any); ok {
		if inner, ok := obj["result"]; ok {
			parsed = inner
		}
	}
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return output
	}
	return string(pretty)
}
