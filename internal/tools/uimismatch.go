// ABOUTME: UI mismatch tool: the model flags screens that do not match expectations
// ABOUTME: Triggers the pause path; the reasoning travels back as the tool output

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deskhand/deskhand/pkg/ai"
)

const uiMismatchSystemNote = "UI Mismatch Detected"

var uiMismatchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"reasoning": {
			"type": "string",
			"description": "Why the current screen does not match the expected state"
		}
	},
	"required": ["reasoning"]
}`)

// UIMismatch is called by the model when the screen diverges from what the
// instructions assume. The agent loop pauses the job on it.
type UIMismatch struct{}

func NewUIMismatch() *UIMismatch {
	return &UIMismatch{}
}

func (u *UIMismatch) Spec() ai.ToolSpec {
	return ai.ToolSpec{
		Name:        "ui_not_as_expected",
		Description: "Report that the current UI state does not match what the task expects. Use this instead of guessing when the screen looks wrong.",
		InputSchema: uiMismatchSchema,
	}
}

func (u *UIMismatch) Run(ctx context.Context, input map[string]any) Result {
	reasoning, _ := input["reasoning"].(string)
	if reasoning == "" {
		reasoning = fmt.Sprintf("UI mismatch reported without reasoning: %v", input)
	}
	return Result{
		Output: reasoning,
		System: uiMismatchSystemNote,
	}
}
