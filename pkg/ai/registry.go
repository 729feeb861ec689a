// ABOUTME: Handler registry mapping provider identifiers to constructors
// ABOUTME: Thread-safe registration and lookup; also holds default model names

package ai

import (
	"fmt"
	"sync"
)

// Provider identifies a backend family.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOpenAICUA Provider = "openai-cua"
	ProviderUITARS    Provider = "uitars"
)

// DefaultModel returns the default model name for a provider, or "" for an
// unknown provider.
func (p Provider) DefaultModel() string {
	switch p {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderOpenAI:
		return "gpt-4.1"
	case ProviderOpenAICUA:
		return "computer-use-preview"
	case ProviderUITARS:
		return "tgi"
	default:
		return ""
	}
}

// HandlerOptions configures handler construction.
type HandlerOptions struct {
	Model        string
	ImagesToKeep int // 0 means keep all images
}

// HandlerFactory constructs a handler bound to one provider and model.
type HandlerFactory func(opts HandlerOptions) Handler

var (
	registryMu sync.RWMutex
	registry   = make(map[Provider]HandlerFactory)
)

// RegisterHandler registers a factory for the given provider.
func RegisterHandler(p Provider, factory HandlerFactory) {
	registryMu.Lock()
	registry[p] = factory
	registryMu.Unlock()
}

// NewHandler constructs a handler for the given provider, filling in the
// provider's default model when none is set.
func NewHandler(p Provider, opts HandlerOptions) (Handler, error) {
	registryMu.RLock()
	factory, ok := registry[p]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for provider %q", p)
	}
	if opts.Model == "" {
		opts.Model = p.DefaultModel()
	}
	return factory(opts), nil
}

// HasHandler checks if a factory is registered for the given provider.
func HasHandler(p Provider) bool {
	registryMu.RLock()
	_, ok := registry[p]
	registryMu.RUnlock()
	return ok
}
