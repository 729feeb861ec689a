// ABOUTME: The agent loop: model call, tool execution, guideline checkpoints
// ABOUTME: Single-threaded per job; every turn is persisted before the next begins

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/deskhand/deskhand/internal/log"
	"github.com/deskhand/deskhand/internal/session"
	"github.com/deskhand/deskhand/internal/tools"
	"github.com/deskhand/deskhand/pkg/ai"
)

// DefaultStallLimit bounds consecutive responses that carry no tool use and
// did not end the turn (e.g. repeated max-token truncation).
const DefaultStallLimit = 8

// Loop drives one job's conversation to a terminal state.
type Loop struct {
	Handler     ai.Handler
	Session     *session.Session
	Tools       *tools.Collection
	Guidelines  []Guideline
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
	// StallLimit overrides DefaultStallLimit when positive.
	StallLimit int
}

// Result is the loop's terminal outcome. Exactly one of Value or Abort is
// meaningful; Exchanges holds every provider round trip for auditing.
type Result struct {
	Value     any
	Abort     *Abort
	Exchanges []*ai.Exchange
}

// Aborted reports whether a guideline terminated the loop.
func (r *Result) Aborted() bool {
	return r.Abort != nil
}

// Run iterates until the model ends its turn, a guideline intervenes, or an
// error surfaces. Provider and storage errors return a nil Result.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	stallLimit := l.StallLimit
	if stallLimit <= 0 {
		stallLimit = DefaultStallLimit
	}

	result := &Result{}
	system := l.Handler.PrepareSystem(l.System)
	stalls := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		history, err := l.Session.HistoryForAPI(ctx)
		if err != nil {
			return nil, err
		}
		for _, g := range l.Guidelines {
			history = g.BeforeModel(ctx, history)
		}

		exchange, err := l.Handler.CallAPI(ctx, ai.Request{
			Messages:    l.Handler.ConvertMessages(history),
			System:      system,
			Tools:       l.Handler.PrepareTools(l.Tools.Specs()),
			Model:       l.Model,
			MaxTokens:   l.MaxTokens,
			Temperature: l.Temperature,
		})
		if err != nil {
			return nil, err
		}
		result.Exchanges = append(result.Exchanges, exchange)

		blocks, stop, err := l.Handler.ConvertResponse(exchange.Response)
		if err != nil {
			return nil, err
		}
		if err := l.Session.AddEvent(ctx, ai.RoleAssistant, session.EventMessage, blocks); err != nil {
			return nil, err
		}
		for _, g := range l.Guidelines {
			g.AfterResponse(ctx, blocks, stop)
		}

		toolUses := toolUseBlocks(blocks)
		if len(toolUses) == 0 {
			if stop == ai.StopEndTurn {
				l.complete(ctx, result, blocks)
				return result, nil
			}
			stalls++
			log.Warn("job %s: no tool use with stop reason %s (%d/%d)", l.Session.JobID(), stop, stalls, stallLimit)
			if stalls >= stallLimit {
				return nil, fmt.Errorf("model stalled: %d consecutive responses with stop reason %q and no tool use", stalls, stop)
			}
			continue
		}
		stalls = 0

		for _, use := range toolUses {
			if abort := l.runCheckpoint(func(g Guideline) Outcome {
				return g.BeforeTool(ctx, use.Name, use.Input)
			}); abort != nil {
				result.Abort = abort
				return result, nil
			}

			toolResult := l.Tools.Run(ctx, use.Name, use.Input)
			log.Debug("job %s: tool %s executed (error=%v)", l.Session.JobID(), use.Name, toolResult.IsError())

			abort := l.runCheckpoint(func(g Guideline) Outcome {
				return g.AfterTool(ctx, use.Name, use.Input, toolResult)
			})

			// The obtained result is persisted even when a guideline aborts,
			// so a resumed loop sees a truthful history.
			block := tools.APIBlock(toolResult, use.ID, use.Name)
			if err := l.Session.AddEvent(ctx, ai.RoleUser, session.EventToolResult, []ai.Content{block}); err != nil {
				return nil, err
			}

			if abort != nil {
				result.Abort = abort
				return result, nil
			}
		}
	}
}

// complete resolves the final value: the first guideline with a completion
// outcome wins, else the concatenated text of the last message.
func (l *Loop) complete(ctx context.Context, result *Result, lastBlocks []ai.Content) {
	for _, g := range l.Guidelines {
		outcome := g.OnCompletion(ctx)
		if outcome.Abort != nil {
			result.Abort = outcome.Abort
			return
		}
		if outcome.HasValue {
			result.Value = outcome.Value
			return
		}
	}

	var texts []string
	for _, b := range lastBlocks {
		if b.Type == ai.ContentText && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	result.Value = strings.Join(texts, "\n")
}

// runCheckpoint invokes one hook across the chain; the first abort wins and
// later guidelines are not consulted.
func (l *Loop) runCheckpoint(hook func(Guideline) Outcome) *Abort {
	for _, g := range l.Guidelines {
		if outcome := hook(g); outcome.Abort != nil {
			return outcome.Abort
		}
	}
	return nil
}

func toolUseBlocks(blocks []ai.Content) []ai.Content {
	var uses []ai.Content
	for _, b := range blocks {
		if b.Type == ai.ContentToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}
