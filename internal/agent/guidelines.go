// ABOUTME: The three builtin guidelines: target health, UI mismatch, extraction capture
// ABOUTME: Each holds only loop-scoped state and embeds Nop for unused hooks

package agent

import (
	"context"
	"encoding/json"

	"github.com/deskhand/deskhand/internal/health"
	"github.com/deskhand/deskhand/internal/tools"
)

// HealthCheck verifies the target machine is reachable before every tool
// execution. An unhealthy or unresolvable target pauses the job.
type HealthCheck struct {
	Nop
	checker health.Checker
	target  string
}

func NewHealthCheck(checker health.Checker, target string) *HealthCheck {
	return &HealthCheck{checker: checker, target: target}
}

func (g *HealthCheck) BeforeTool(ctx context.Context, name string, input map[string]any) Outcome {
	if g.target == "" {
		return AbortWith("Target Health Check Failed", "Could not retrieve container_ip for session.")
	}
	status := g.checker.Check(ctx, g.target)
	if !status.Healthy {
		return AbortWith("Target Health Check Failed", status.Reason)
	}
	return Continue()
}

// UIMismatch stops the loop as soon as the model reports a screen that does
// not match the task's expectations.
type UIMismatch struct {
	Nop
}

func NewUIMismatch() *UIMismatch {
	return &UIMismatch{}
}

func (g *UIMismatch) AfterTool(ctx context.Context, name string, input map[string]any, result tools.Result) Outcome {
	if name != "ui_not_as_expected" {
		return Continue()
	}
	return AbortWith("UI Mismatch Detected", result.Output)
}

// Extraction captures the output of the extraction tool and supplies it as
// the loop's final value, taking precedence over the last message's text.
type Extraction struct {
	Nop
	value    any
	captured bool
}

func NewExtraction() *Extraction {
	return &Extraction{}
}

func (g *Extraction) AfterTool(ctx context.Context, name string, input map[string]any, result tools.Result) Outcome {
	if name != "extraction" || result.Output == "" {
		return Continue()
	}

	var parsed any
	if err := json.Unmarshal([]byte(result.Output), &parsed); err != nil {
		// Non-JSON output is kept as the raw string.
		parsed = result.Output
	}
	if obj, ok := parsed.(map[string]any); ok {
		if inner, ok := obj["result"]; ok {
			parsed = inner
		}
	}

	g.value = parsed
	g.captured = true
	return Continue()
}

func (g *Extraction) OnCompletion(ctx context.Context) Outcome {
	if !g.captured {
		return Continue()
	}
	return CompleteWith(g.value)
}
