// ABOUTME: Anthropic Messages API handler: prompt caching, image trimming, beta flags
// ABOUTME: Canonical history passes through nearly unchanged; this is the reference wire shape

package anthropic

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
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	messagesPath     = "/v1/messages?beta=true"

	promptCachingBetaFlag = "prompt-caching-2024-07-31"

	// Removing a single image already helps; screenshots dominate the prompt.
	imageTruncationThreshold = 1
)

// Handler implements ai.Handler for the Anthropic Messages API.
type Handler struct {
	client       *httputil.Client
	model        string
	imagesToKeep int
}

// New creates a Direct-Messages handler bound to one model.
func New(opts ai.HandlerOptions) *Handler {
	return &Handler{
		model:        opts.Model,
		imagesToKeep: opts.ImagesToKeep,
	}
}

// InitializeClient validates credentials and prepares the HTTP client.
// An empty API key falls back to ANTHROPIC_API_KEY.
func (h *Handler) InitializeClient(creds ai.Credentials) error {
	apiKey := creds.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return &ai.ConfigError{Provider: ai.ProviderAnthropic, Missing: "API key"}
	}

	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = httputil.NormalizeBaseURL(baseURL)

	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
		"content-type":      "application/json",
	}

	h.client = httputil.NewClient(baseURL, headers)
	return nil
}

// PrepareSystem returns the prompt unchanged; the cache-marked system block
// is assembled in CallAPI.
func (h *Handler) PrepareSystem(prompt string) string {
	return prompt
}

// ConvertMessages marks cache breakpoints, trims old screenshots and converts
// the canonical history to Messages API format.
func (h *Handler) ConvertMessages(history []ai.Message) []map[string]any {
	ai.MarkCacheBreakpoints(history)
	ai.FilterRecentImages(history, h.imagesToKeep, imageTruncationThreshold)
	return convertMessages(history)
}

// PrepareTools converts the catalog to Anthropic tool params. The computer
// tool becomes the provider's builtin GUI tool declaration.
func (h *Handler) PrepareTools(catalog []ai.ToolSpec) []map[string]any {
	return convertTools(catalog)
}

// CallAPI performs one non-streaming Messages API round trip.
func (h *Handler) CallAPI(ctx context.Context, req ai.Request) (*ai.Exchange, error) {
	body := map[string]any{
		"model":       req.Model,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"messages":    req.Messages,
		"system": []map[string]any{{
			"type":          "text",
			"text":          req.System,
			"cache_control": map[string]any{"type": "ephemeral"},
		}},
		"betas": h.betas(req.Model),
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}

	reqJSON, respJSON, status, err := h.client.PostJSON(ctx, messagesPath, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ai.APIError{Provider: ai.ProviderAnthropic, StatusCode: status, Body: string(respJSON)}
	}

	return &ai.Exchange{Request: reqJSON, Response: respJSON, StatusCode: status}, nil
}

// betas returns the beta feature flags for the given model: the tool-version
// flag plus prompt caching.
func (h *Handler) betas(model string) []string {
	return []string{toolBetaFlag(model), promptCachingBetaFlag}
}

// ToolVersion selects the GUI tool version by model name. Newer Claude models
// use the 2025-01-24 tool schema.
func ToolVersion(model string) string {
	if strings.Contains(model, "3-7") || strings.Contains(model, "sonnet-4") {
		return "computer_20250124"
	}
	return "computer_20241022"
}

func toolBetaFlag(model string) string {
	if ToolVersion(model) == "computer_20250124" {
		return "computer-use-2025-01-24"
	}
	return "computer-use-2024-10-22"
}

// ConvertResponse parses a Messages API response into canonical blocks and a
// canonical stop reason.
func (h *Handler) ConvertResponse(raw json.RawMessage) ([]ai.Content, ai.StopReason, error) {
	var resp struct {
		Content []struct {
			Type  string         `json:"type"`
			Text  string         `json:"text"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", &ai.APIError{Provider: ai.ProviderAnthropic, StatusCode: http.StatusOK, Body: "malformed response: " + err.Error()}
	}

	var blocks []ai.Content
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			if b.Text != "" {
				blocks = append(blocks, ai.Content{Type: ai.ContentText, Text: b.Text})
			}
		case "tool_use":
			input := b.Input
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, ai.Content{
				Type:  ai.ContentToolUse,
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			})
		}
		// Unknown block types are dropped.
	}

	return blocks, ai.MapStopReason(resp.StopReason), nil
}
