// ABOUTME: Guideline hook contract and the Outcome type hooks answer with
// ABOUTME: Outcomes are explicit values; no hook communicates through panics

package agent

import (
	"context"

	"github.com/deskhand/deskhand/internal/tools"
	"github.com/deskhand/deskhand/pkg/ai"
)

// Abort is the structured payload a guideline terminates the loop with.
// Success is always false; it is part of the serialized payload shape.
type Abort struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Outcome is a hook's verdict. The zero value means continue; Abort
// terminates the loop with its payload; HasValue supplies the loop's final
// result at a completion checkpoint.
type Outcome struct {
	Abort    *Abort
	Value    any
	HasValue bool
}

// Continue is the no-op outcome.
func Continue() Outcome {
	return Outcome{}
}

// AbortWith builds an aborting outcome.
func AbortWith(err, description string) Outcome {
	return Outcome{Abort: &Abort{Error: err, ErrorDescription: description}}
}

// CompleteWith supplies the loop's final value.
func CompleteWith(value any) Outcome {
	return Outcome{Value: value, HasValue: true}
}

// Guideline observes and steers one loop invocation. Instances are created
// per invocation and may hold loop-scoped state. Hooks run in declaration
// order; the first abort or completion value wins and later guidelines are
// not consulted for that checkpoint.
type Guideline interface {
	// BeforeModel may rewrite the outgoing history. It cannot abort.
	BeforeModel(ctx context.Context, history []ai.Message) []ai.Message
	// AfterResponse observes the converted assistant response. It cannot abort.
	AfterResponse(ctx context.Context, blocks []ai.Content, stop ai.StopReason)
	// BeforeTool runs ahead of every tool execution and may abort the loop.
	BeforeTool(ctx context.Context, name string, input map[string]any) Outcome
	// AfterTool runs after every tool execution and may abort the loop.
	AfterTool(ctx context.Context, name string, input map[string]any, result tools.Result) Outcome
	// OnCompletion may supply the loop's final value when the model ends its turn.
	OnCompletion(ctx context.Context) Outcome
}

// Nop implements every hook as a no-op for embedding.
type Nop struct{}

func (Nop) BeforeModel(ctx context.Context, history []ai.Message) []ai.Message {
	return history
}

func (Nop) AfterResponse(ctx context.Context, blocks []ai.Content, stop ai.StopReason) {}

func (Nop) BeforeTool(ctx context.Context, name string, input map[string]any) Outcome {
	return Continue()
}

func (Nop) AfterTool(ctx context.Context, name string, input map[string]any, result tools.Result) Outcome {
	return Continue()
}

func (Nop) OnCompletion(ctx context.Context) Outcome {
	return Continue()
}
