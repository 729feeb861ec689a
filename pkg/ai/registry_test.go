// ABOUTME: Tests for the provider registry and default model resolution

package ai

import (
	"context"
	"encoding/json"
	"testing"
)

type stubHandler struct {
	model string
}

func (h *stubHandler) InitializeClient(Credentials) error         { return nil }
func (h *stubHandler) PrepareSystem(p string) string              { return p }
func (h *stubHandler) ConvertMessages([]Message) []map[string]any { return nil }
func (h *stubHandler) PrepareTools([]ToolSpec) []map[string]any   { return nil }
func (h *stubHandler) CallAPI(context.Context, Request) (*Exchange, error) {
	return nil, nil
}
func (h *stubHandler) ConvertResponse(json.RawMessage) ([]Content, StopReason, error) {
	return nil, StopEndTurn, nil
}

func TestRegistryLookup(t *testing.T) {
	provider := Provider("registry-test")
	RegisterHandler(provider, func(opts HandlerOptions) Handler {
		return &stubHandler{model: opts.Model}
	})

	if !HasHandler(provider) {
		t.Fatal("HasHandler = false after registration")
	}

	h, err := NewHandler(provider, HandlerOptions{Model: "custom"})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	if h.(*stubHandler).model != "custom" {
		t.Errorf("model = %q", h.(*stubHandler).model)
	}
}

func TestNewHandlerUnknownProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewHandler(Provider("never-registered"), HandlerOptions{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestDefaultModels(t *testing.T) {
	t.Parallel()

	cases := map[Provider]string{
		ProviderAnthropic:      "claude-sonnet-4-20250514",
		ProviderOpenAI:         "gpt-4.1",
		ProviderOpenAICUA:      "computer-use-preview",
		ProviderUITARS:         "tgi",
		Provider("mysterious"): "",
	}
	for p, want := range cases {
		if got := p.DefaultModel(); got != want {
			t.Errorf("%s default model = %q, want %q", p, got, want)
		}
	}
}

func TestNewHandlerFillsDefaultModel(t *testing.T) {
	RegisterHandler(ProviderUITARS, func(opts HandlerOptions) Handler {
		return &stubHandler{model: opts.Model}
	})

	h, err := NewHandler(ProviderUITARS, HandlerOptions{})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	if h.(*stubHandler).model != "tgi" {
		t.Errorf("model = %q, want provider default", h.(*stubHandler).model)
	}
}
