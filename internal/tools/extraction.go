// ABOUTME: Extraction tool: the model reports structured findings through it
// ABOUTME: Executes locally; the payload is serialized back as the tool output

package tools

import (
	"context"
	"encoding/json"

	"github.com/deskhand/deskhand/pkg/ai"
)

const extractionSystemNote = "Extraction tool successfully processed the data."

var extractionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"data": {
			"type": "object",
			"description": "Structured data extracted from the screen",
			"properties": {
				"name": {"type": "string", "description": "Name of the extracted item"},
				"result": {"description": "The extracted value"}
			}
		}
	},
	"required": ["data"]
}`)

// Extraction lets the model return structured data from the session. It has
// no side effects; running it just echoes the payload back as output.
type Extraction struct{}

func NewExtraction() *Extraction {
	return &Extraction{}
}

func (e *Extraction) Spec() ai.ToolSpec {
	return ai.ToolSpec{
		Name:        "extraction",
		Description: "Report structured data extracted from the screen. Call this with the final result of a data-gathering task.",
		InputSchema: extractionSchema,
	}
}

// Run serializes the data envelope as the tool output. The guideline chain
// watches this output to capture the job's result value.
func (e *Extraction) Run(ctx context.Context, input map[string]any) Result {
	data, ok := input["data"]
	if !ok {
		return Failure("extraction tool requires a data field")
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return Failure("extraction data is not serializable: " + err.Error())
	}

	return Result{
		Output: string(encoded),
		System: extractionSystemNote,
	}
}
