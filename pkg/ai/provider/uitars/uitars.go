// ABOUTME: UI-TARS/Doubao handler: chat completion in, Thought:/Action: text out
// ABOUTME: No tool schema is sent; the textual action grammar replaces tool calling

package uitars

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/deskhand/deskhand/pkg/ai"
	"github.com/deskhand/deskhand/pkg/ai/internal/httputil"
)

const completionsPath = "/v1/chat/completions"

// actionGrammar teaches the model the textual action space. Adapted for
// Doubao/UI-TARS style GUI agents.
const actionGrammar = `You are a GUI agent. You are given a task and your action history, with screenshots. You need to perform the next action to complete the task.

## Output Format
` + "```" + `
Thought: ...
Action: ...
` + "```" + `

## Action Space

click(point='<point>x1 y1</point>')
left_double(point='<point>x1 y1</point>')
right_single(point='<point>x1 y1</point>')
drag(start_point='<point>x1 y1</point>', end_point='<point>x2 y2</point>')
hotkey(key='ctrl c') # Split keys with a space and use lowercase. Also, do not use more than 3 keys in one hotkey action.
type(content='xxx') # Use escape characters \', \", and \n in content part to ensure we can parse the content in normal string format. If you want to submit your input, use \n at the end of content.
scroll(point='<point>x1 y1</point>', direction='down or up or right or left') # Show more information on the 'direction' side.
wait() # Sleep and take a screenshot to check for any changes.
finished(content='xxx') # Use escape characters \', \", and \n in content part.

## Notes:
- Use English in 'Thought'.
- Write a small plan and finally summarize your next action (with its target element) in one sentence in 'Thought' part.`

// Handler implements ai.Handler for UI-TARS-like OpenAI-compatible endpoints.
type Handler struct {
	client       *httputil.Client
	model        string
	imagesToKeep int
}

// New creates a Text-Action handler bound to one model.
func New(opts ai.HandlerOptions) *Handler {
	return &Handler{
		model:        opts.Model,
		imagesToKeep: opts.ImagesToKeep,
	}
}

// InitializeClient validates the endpoint configuration. UI-TARS deployments
// are self-hosted, so the base URL is mandatory while the API key is not:
// empty values fall back to UITARS_BASE_URL and UITARS_API_KEY.
func (h *Handler) InitializeClient(creds ai.Credentials) error {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("UITARS_BASE_URL")
	}
	if baseURL == "" {
		return &ai.ConfigError{Provider: ai.ProviderUITARS, Missing: "base URL"}
	}
	baseURL = httputil.NormalizeBaseURL(baseURL)

	apiKey := creds.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("UITARS_API_KEY")
	}

	headers := map[string]string{"content-type": "application/json"}
	if apiKey != "" {
		headers["authorization"] = "Bearer " + apiKey
	}

	h.client = httputil.NewClient(baseURL, headers)
	return nil
}

// PrepareSystem appends the action grammar to the base system prompt.
func (h *Handler) PrepareSystem(prompt string) string {
	if prompt == "" {
		return actionGrammar
	}
	return prompt + "\n\n" + actionGrammar
}

// ConvertMessages trims old screenshots and renders the canonical history as
// user chat messages. This backend reads screenshots from user turns only.
func (h *Handler) ConvertMessages(history []ai.Message) []map[string]any {
	ai.FilterRecentImages(history, h.imagesToKeep, 1)
	return convertMessages(history)
}

// PrepareTools returns nothing: the model emits textual actions.
func (h *Handler) PrepareTools(catalog []ai.ToolSpec) []map[string]any {
	return nil
}

// CallAPI performs one Chat Completions round trip against the configured
// endpoint.
func (h *Handler) CallAPI(ctx context.Context, req ai.Request) (*ai.Exchange, error) {
	messages := make([]map[string]any, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	messages = append(messages, req.Messages...)

	body := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	}

	reqJSON, respJSON, status, err := h.client.PostJSON(ctx, completionsPath, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ai.APIError{Provider: ai.ProviderUITARS, StatusCode: status, Body: string(respJSON)}
	}

	return &ai.Exchange{Request: reqJSON, Response: respJSON, StatusCode: status}, nil
}

// ConvertResponse parses the Thought:/Action: completion text into canonical
// blocks. The stop reason is derived from the parse: any action that mapped
// to a tool_use means the turn wants tools.
func (h *Handler) ConvertResponse(raw json.RawMessage) ([]ai.Content, ai.StopReason, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", &ai.APIError{Provider: ai.ProviderUITARS, StatusCode: http.StatusOK, Body: "malformed response: " + err.Error()}
	}
	if len(resp.Choices) == 0 {
		return nil, ai.StopEndTurn, nil
	}

	blocks := ParseThoughtAction(resp.Choices[0].Message.Content)
	for _, b := range blocks {
		if b.Type == ai.ContentToolUse {
			return blocks, ai.StopToolUse, nil
		}
	}
	return blocks, ai.StopEndTurn, nil
}

// convertMessages renders all history as user chat messages with text and
// image parts; tool_use blocks have no textual representation and are dropped.
func convertMessages(msgs []ai.Message) []map[string]any {
	var out []map[string]any

	for _, msg := range msgs {
		var parts []map[string]any
		for _, block := range msg.Content {
			switch block.Type {
			case ai.ContentText:
				if block.Text != "" {
					parts = append(parts, map[string]any{"type": "text", "text": block.Text})
				}
			case ai.ContentImage:
				if block.Source != nil && block.Source.Type == "base64" && block.Source.Data != "" {
					mediaType := block.Source.MediaType
					if mediaType == "" {
						mediaType = "image/png"
					}
					parts = append(parts, imagePart(fmt.Sprintf("data:%s;base64,%s", mediaType, block.Source.Data)))
				}
			case ai.ContentToolResult:
				text, imageData := toolResultPayload(block)
				if text != "" {
					parts = append(parts, map[string]any{"type": "text", "text": text})
				}
				if imageData != "" {
					parts = append(parts, imagePart("data:image/png;base64,"+imageData))
				}
			}
		}
		if len(parts) > 0 {
			out = append(out, map[string]any{"role": "user", "content": parts})
		}
	}

	return out
}

func imagePart(dataURL string) map[string]any {
	return map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": dataURL},
	}
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
