// ABOUTME: Provider handler contract plus the request/response envelope types
// ABOUTME: One handler instance is bound to one provider and model per job

package ai

import (
	"context"
	"encoding/json"
	"fmt"
)

// Credentials carries the secrets and endpoint override a handler needs.
// Tenant-scoped values, when present, take precedence over process defaults.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// Request is the provider-ready payload assembled by the agent loop from the
// handler's own ConvertMessages/PrepareSystem/PrepareTools output.
type Request struct {
	Messages    []map[string]any
	System      string
	Tools       []map[string]any
	Model       string
	MaxTokens   int
	Temperature float64
}

// Exchange records one provider round trip for audit logging.
type Exchange struct {
	Request    json.RawMessage `json:"request"`
	Response   json.RawMessage `json:"response"`
	StatusCode int             `json:"status_code"`
}

// Handler adapts the canonical conversation model to one backend's wire
// protocol. Implementations are stateless apart from client configuration.
type Handler interface {
	// InitializeClient validates credentials and prepares the HTTP client.
	// Returns a *ConfigError when required credentials or base URL are absent.
	InitializeClient(creds Credentials) error

	// PrepareSystem wraps the system prompt in provider-specific shape and may
	// append provider-specific operating instructions.
	PrepareSystem(prompt string) string

	// ConvertMessages applies backend-specific trimming (image retention,
	// prompt-cache marking) and converts canonical history to wire messages.
	ConvertMessages(history []Message) []map[string]any

	// PrepareTools converts the tool catalog to the provider's tool schema.
	PrepareTools(catalog []ToolSpec) []map[string]any

	// CallAPI performs a single network round trip. Provider errors propagate
	// unmodified as *APIError; there is no retry policy at this layer beyond
	// what the underlying HTTP client does.
	CallAPI(ctx context.Context, req Request) (*Exchange, error)

	// ConvertResponse parses the raw provider response into canonical content
	// blocks and a canonical stop reason. Malformed tool arguments become
	// diagnostic text blocks, never errors.
	ConvertResponse(raw json.RawMessage) ([]Content, StopReason, error)
}

// ConfigError reports missing credentials or endpoint configuration.
// It is fatal to the job.
type ConfigError struct {
	Provider Provider
	Missing  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing %s", e.Provider, e.Missing)
}

// APIError reports a failed provider HTTP call. The body is carried verbatim.
type APIError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}
