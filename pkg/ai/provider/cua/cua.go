// ABOUTME: OpenAI Responses API handler using the builtin computer_use_preview tool
// ABOUTME: Renders all history as user input parts; keeps a single screenshot of context

package cua

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/deskhand/deskhand/pkg/ai"
	"github.com/deskhand/deskhand/pkg/ai/internal/httputil"
)

const (
	defaultBaseURL = "https://api.openai.com"
	responsesPath  = "/v1/responses"

	defaultDisplayWidth  = 1024
	defaultDisplayHeight = 768
	environment          = "windows"
)

// stateGuidance is appended to the system prompt. The preview tool only ever
// sees the latest screenshot, so the model has to narrate its own progress.
const stateGuidance = "Only the most recent screenshot is available to you. " +
	"In every reasoning summary, restate which steps of the task are already done " +
	"and which remain, then choose the next action."

// Handler implements ai.Handler for the Responses API with computer_use_preview.
type Handler struct {
	client *httputil.Client
	model  string
}

// New creates a Responses/CUA handler bound to one model.
func New(opts ai.HandlerOptions) *Handler {
	return &Handler{model: opts.Model}
}

// InitializeClient validates credentials and prepares the HTTP client.
// An empty API key falls back to OPENAI_API_KEY.
func (h *Handler) InitializeClient(creds ai.Credentials) error {
	apiKey := creds.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return &ai.ConfigError{Provider: ai.ProviderOpenAICUA, Missing: "API key"}
	}

	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = httputil.NormalizeBaseURL(baseURL)

	headers := map[string]string{
		"authorization": "Bearer " + apiKey,
		"content-type":  "application/json",
	}

	h.client = httputil.NewClient(baseURL, headers)
	return nil
}

// PrepareSystem appends state-tracking guidance to the base prompt.
func (h *Handler) PrepareSystem(prompt string) string {
	if prompt == "" {
		return stateGuidance
	}
	return prompt + "\n\n" + stateGuidance
}

// ConvertMessages keeps only the most recent screenshot and renders the whole
// history as user input parts; the Responses API has no assistant history role
// in this mode.
func (h *Handler) ConvertMessages(history []ai.Message) []map[string]any {
	ai.FilterRecentImages(history, 1, 1)
	return convertMessages(history)
}

// PrepareTools substitutes the builtin preview GUI tool for the computer tool
// and emits the remaining catalog entries as plain functions.
func (h *Handler) PrepareTools(catalog []ai.ToolSpec) []map[string]any {
	width, height := ai.FindComputerDisplay(catalog, defaultDisplayWidth, defaultDisplayHeight)

	out := []map[string]any{{
		"type":           "computer_use_preview",
		"display_width":  width,
		"display_height": height,
		"environment":    environment,
	}}

	for _, t := range catalog {
		if t.Name == "computer" {
			continue
		}
		description := t.Description
		if description == "" {
			description = "Tool: " + t.Name
		}
		parameters := any(map[string]any{"type": "object", "properties": map[string]any{}})
		if t.InputSchema != nil {
			parameters = json.RawMessage(t.InputSchema)
		}
		out = append(out, map[string]any{
			"type":        "function",
			"name":        t.Name,
			"description": description,
			"strict":      false,
			"parameters":  parameters,
		})
	}
	return out
}

// CallAPI performs one Responses API round trip.
func (h *Handler) CallAPI(ctx context.Context, req ai.Request) (*ai.Exchange, error) {
	body := map[string]any{
		"model":             req.Model,
		"input":             req.Messages,
		"tools":             req.Tools,
		"reasoning":         map[string]any{"summary": "concise"},
		"truncation":        "auto",
		"max_output_tokens": req.MaxTokens,
		"temperature":       req.Temperature,
	}
	if req.System != "" {
		body["instructions"] = req.System
	}

	reqJSON, respJSON, status, err := h.client.PostJSON(ctx, responsesPath, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ai.APIError{Provider: ai.ProviderOpenAICUA, StatusCode: status, Body: string(respJSON)}
	}

	return &ai.Exchange{Request: reqJSON, Response: respJSON, StatusCode: status}, nil
}

// ConvertResponse maps Responses output items to canonical blocks: reasoning
// summaries become text, computer_call becomes a computer tool_use keyed by
// call_id, function calls become plain tool_use blocks.
func (h *Handler) ConvertResponse(raw json.RawMessage) ([]ai.Content, ai.StopReason, error) {
	var resp struct {
		Status string `json:"status"`
		Output []struct {
			Type    string          `json:"type"`
			ID      string          `json:"id"`
			CallID  string          `json:"call_id"`
			Name    string          `json:"name"`
			Action  map[string]any  `json:"action"`
			Summary []struct {
				Text string `json:"text"`
			} `json:"summary"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", &ai.APIError{Provider: ai.ProviderOpenAICUA, StatusCode: http.StatusOK, Body: "malformed response: " + err.Error()}
	}

	var blocks []ai.Content
	callCounter := 0

	for _, item := range resp.Output {
		switch item.Type {
		case "reasoning":
			for _, s := range item.Summary {
				if s.Text != "" {
					blocks = append(blocks, ai.Content{Type: ai.ContentText, Text: s.Text})
				}
			}
		case "computer_call":
			id := item.CallID
			if id == "" {
				id = item.ID
			}
			if id == "" {
				id = "call_0"
			}
			blocks = append(blocks, ai.Content{
				Type:  ai.ContentToolUse,
				ID:    id,
				Name:  "computer",
				Input: mapCUAAction(item.Action),
			})
		case "function_call", "tool_call":
			callCounter++
			blocks = append(blocks, convertFunctionCall(item.CallID, item.ID, item.Name, item.Arguments, callCounter))
		}
	}

	for _, b := range blocks {
		if b.Type == ai.ContentToolUse {
			return blocks, ai.StopToolUse, nil
		}
	}
	return blocks, ai.MapStopReason(resp.Status), nil
}
