// ABOUTME: OpenAI Chat Completions handler with synthetic GUI-action functions
// ABOUTME: The backend has no native GUI tool; computer actions become one function each

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/deskhand/deskhand/pkg/ai"
	"github.com/deskhand/deskhand/pkg/ai/internal/httputil"
)

const (
	defaultBaseURL  = "https://api.openai.com"
	completionsPath = "/v1/chat/completions"

	imageTruncationThreshold = 1
)

// computerActions are the GUI action names the computer tool accepts. Each is
// exposed to this backend as a standalone function and folded back into a
// single computer tool_use on the way out.
var computerActions = map[string]bool{
	"screenshot":      true,
	"left_click":      true,
	"mouse_move":      true,
	"type":            true,
	"key":             true,
	"scroll":          true,
	"left_click_drag": true,
	"right_click":     true,
	"middle_click":    true,
	"double_click":    true,
	"triple_click":    true,
	"left_mouse_down": true,
	"left_mouse_up":   true,
	"hold_key":        true,
	"wait":            true,
}

// Handler implements ai.Handler for OpenAI-compatible Chat Completions APIs.
type Handler struct {
	client       *httputil.Client
	model        string
	imagesToKeep int
}

// New creates a Chat-Completions handler bound to one model.
func New(opts ai.HandlerOptions) *Handler {
	return &Handler{
		model:        opts.Model,
		imagesToKeep: opts.ImagesToKeep,
	}
}

// InitializeClient validates credentials and prepares the HTTP client.
// An empty API key falls back to OPENAI_API_KEY.
func (h *Handler) InitializeClient(creds ai.Credentials) error {
	apiKey := creds.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return &ai.ConfigError{Provider: ai.ProviderOpenAI, Missing: "API key"}
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

// PrepareSystem returns the prompt unchanged; it is sent as a system message.
func (h *Handler) PrepareSystem(prompt string) string {
	return prompt
}

// ConvertMessages trims old screenshots and converts canonical history to
// Chat Completions messages. Tool results become role "tool" messages with
// their screenshots gathered into a trailing user message, since tool
// messages cannot carry images on this backend.
func (h *Handler) ConvertMessages(history []ai.Message) []map[string]any {
	ai.FilterRecentImages(history, h.imagesToKeep, imageTruncationThreshold)
	return convertMessages(history)
}

// PrepareTools flattens the catalog into function specs, expanding the
// computer tool into one function per GUI action.
func (h *Handler) PrepareTools(catalog []ai.ToolSpec) []map[string]any {
	var out []map[string]any
	for _, t := range catalog {
		if t.Name == "computer" {
			out = append(out, expandComputerFunctions(t)...)
			continue
		}
		out = append(out, toolSpecToFunction(t))
	}
	return out
}

// CallAPI performs one Chat Completions round trip. gpt-5 models take
// max_completion_tokens and reject an explicit temperature.
func (h *Handler) CallAPI(ctx context.Context, req ai.Request) (*ai.Exchange, error) {
	messages := make([]map[string]any, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	messages = append(messages, req.Messages...)

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}
	if strings.HasPrefix(strings.ToLower(req.Model), "gpt-5") {
		body["max_completion_tokens"] = req.MaxTokens
	} else {
		body["max_tokens"] = req.MaxTokens
		body["temperature"] = req.Temperature
	}

	reqJSON, respJSON, status, err := h.client.PostJSON(ctx, completionsPath, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ai.APIError{Provider: ai.ProviderOpenAI, StatusCode: status, Body: string(respJSON)}
	}

	return &ai.Exchange{Request: reqJSON, Response: respJSON, StatusCode: status}, nil
}

// ConvertResponse parses a Chat Completions response into canonical blocks,
// reassembling action-named function calls into computer tool_use blocks.
func (h *Handler) ConvertResponse(raw json.RawMessage) ([]ai.Content, ai.StopReason, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", &ai.APIError{Provider: ai.ProviderOpenAI, StatusCode: http.StatusOK, Body: "malformed response: " + err.Error()}
	}
	if len(resp.Choices) == 0 {
		return nil, ai.StopEndTurn, nil
	}

	choice := resp.Choices[0]
	var blocks []ai.Content

	if choice.Message.Content != "" {
		blocks = append(blocks, ai.Content{Type: ai.ContentText, Text: choice.Message.Content})
	}

	for _, tc := range choice.Message.ToolCalls {
		blocks = append(blocks, convertToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}

	return blocks, ai.MapStopReason(choice.FinishReason), nil
}
