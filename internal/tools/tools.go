// ABOUTME: Tool abstraction and collection: named executors the agent loop dispatches to
// ABOUTME: Results carry output text, an error string, an optional screenshot, and a system note

package tools

import (
	"context"
	"fmt"

	"github.com/deskhand/deskhand/pkg/ai"
)

// Result is the outcome of one tool execution. Error and Output are mutually
// meaningful: a non-empty Error marks the execution as failed regardless of
// any Output text.
type Result struct {
	Output      string
	Error       string
	Base64Image string
	System      string
}

// Failure builds an error-only result.
func Failure(message string) Result {
	return Result{Error: message}
}

// IsError reports whether the result represents a failed execution.
func (r Result) IsError() bool {
	return r.Error != ""
}

// Merge combines two results field by field. Text fields concatenate; two
// images cannot merge and degrade to an error result.
func (r Result) Merge(other Result) Result {
	if r.Base64Image != "" && other.Base64Image != "" {
		return Failure("Cannot combine tool results: both carry an image")
	}
	merged := Result{
		Output:      r.Output + other.Output,
		Error:       r.Error + other.Error,
		System:      r.System + other.System,
		Base64Image: r.Base64Image,
	}
	if merged.Base64Image == "" {
		merged.Base64Image = other.Base64Image
	}
	return merged
}

// Tool is a named executor with a declared specification.
type Tool interface {
	Spec() ai.ToolSpec
	Run(ctx context.Context, input map[string]any) Result
}

// Collection holds the tools available to one job, keyed by name.
// Declaration order is preserved so requests are reproducible.
type Collection struct {
	tools map[string]Tool
	order []string
}

// NewCollection builds a collection from the given tools. Later duplicates
// replace earlier ones.
func NewCollection(tools ...Tool) *Collection {
	c := &Collection{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Spec().Name
		if _, seen := c.tools[name]; !seen {
			c.order = append(c.order, name)
		}
		c.tools[name] = t
	}
	return c
}

// Specs returns the catalog of tool specifications for handler consumption.
func (c *Collection) Specs() []ai.ToolSpec {
	out := make([]ai.ToolSpec, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name].Spec())
	}
	return out
}

// Get returns a tool by name, or nil if not registered.
func (c *Collection) Get(name string) Tool {
	return c.tools[name]
}

// Run dispatches one execution by tool name. An unknown name is a tool
// failure, not a loop error: the model sees it and can correct itself.
func (c *Collection) Run(ctx context.Context, name string, input map[string]any) Result {
	tool, ok := c.tools[name]
	if !ok {
		return Failure(fmt.Sprintf("Tool %s is invalid", name))
	}
	return tool.Run(ctx, input)
}
