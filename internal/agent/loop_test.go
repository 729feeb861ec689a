// ABOUTME: Loop tests with a scripted handler and an in-memory event log
// ABOUTME: Covers termination, extraction precedence, aborts, and stalling

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/deskhand/deskhand/internal/session"
	"github.com/deskhand/deskhand/internal/tools"
	"github.com/deskhand/deskhand/pkg/ai"
)

// scriptedTurn is one canned model response.
type scriptedTurn struct {
	blocks []ai.Content
	stop   ai.StopReason
}

// scriptedHandler replays canned turns; calls past the script fail the test.
type scriptedHandler struct {
	t     *testing.T
	turns []scriptedTurn
	calls int
}

func (h *scriptedHandler) InitializeClient(ai.Credentials) error { return nil }
func (h *scriptedHandler) PrepareSystem(prompt string) string    { return prompt }

func (h *scriptedHandler) ConvertMessages(history []ai.Message) []map[string]any {
	out := make([]map[string]any, 0, len(history))
	for _, m := range history {
		out = append(out, map[string]any{"role": string(m.Role)})
	}
	return out
}

func (h *scriptedHandler) PrepareTools([]ai.ToolSpec) []map[string]any { return nil }

func (h *scriptedHandler) CallAPI(ctx context.Context, req ai.Request) (*ai.Exchange, error) {
	if h.calls >= len(h.turns) {
		h.t.Fatalf("unexpected model call %d (script has %d turns)", h.calls+1, len(h.turns))
	}
	h.calls++
	return &ai.Exchange{Request: json.RawMessage(`{}`), Response: json.RawMessage(`{}`), StatusCode: 200}, nil
}

func (h *scriptedHandler) ConvertResponse(json.RawMessage) ([]ai.Content, ai.StopReason, error) {
	turn := h.turns[h.calls-1]
	return turn.blocks, turn.stop, nil
}

// recordingTool counts executions and returns a fixed result.
type recordingTool struct {
	spec   ai.ToolSpec
	result tools.Result
	runs   int
}

func (r *recordingTool) Spec() ai.ToolSpec { return r.spec }
func (r *recordingTool) Run(ctx context.Context, input map[string]any) tools.Result {
	r.runs++
	return r.result
}

func newTestLoop(t *testing.T, handler ai.Handler, collection *tools.Collection, guidelines ...Guideline) *Loop {
	t.Helper()
	store, err := session.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sess := store.Session("job-test")
	seed := []ai.Content{{Type: ai.ContentText, Text: "open the settings page"}}
	if err := sess.AddEvent(context.Background(), ai.RoleUser, session.EventMessage, seed); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	return &Loop{
		Handler:    handler,
		Session:    sess,
		Tools:      collection,
		Guidelines: guidelines,
		Model:      "test-model",
		MaxTokens:  1024,
	}
}

func toolUse(id, name string, input map[string]any) ai.Content {
	return ai.Content{Type: ai.ContentToolUse, ID: id, Name: name, Input: input}
}

func TestLoopOneToolThenFinalText(t *testing.T) {
	t.Parallel()

	handler := &scriptedHandler{t: t, turns: []scriptedTurn{
		{blocks: []ai.Content{
			{Type: ai.ContentText, Text: "taking a look"},
			toolUse("tu_1", "probe", map[string]any{"action": "screenshot"}),
		}, stop: ai.StopToolUse},
		{blocks: []ai.Content{
			{Type: ai.ContentText, Text: "all"},
			{Type: ai.ContentText, Text: "done"},
		}, stop: ai.StopEndTurn},
	}}
	probe := &recordingTool{spec: ai.ToolSpec{Name: "probe"}, result: tools.Result{Output: "ok"}}

	loop := newTestLoop(t, handler, tools.NewCollection(probe))
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if probe.runs != 1 {
		t.Errorf("tool ran %d times, want 1", probe.runs)
	}
	if result.Aborted() {
		t.Fatalf("unexpected abort: %+v", result.Abort)
	}
	if result.Value != "all\ndone" {
		t.Errorf("value = %v", result.Value)
	}
	if len(result.Exchanges) != 2 {
		t.Errorf("exchanges = %d, want 2", len(result.Exchanges))
	}

	history, err := loop.Session.HistoryForAPI(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// seed + assistant + tool result + assistant
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	if history[2].Role != ai.RoleUser || history[2].Content[0].Type != ai.ContentToolResult {
		t.Errorf("third event should be the tool result, got %+v", history[2])
	}
}

func TestLoopExtractionPrecedence(t *testing.T) {
	t.Parallel()

	handler := &scriptedHandler{t: t, turns: []scriptedTurn{
		{blocks: []ai.Content{
			toolUse("tu_1", "extraction", map[string]any{"data": map[string]any{"k": "v"}}),
		}, stop: ai.StopToolUse},
		{blocks: []ai.Content{
			{Type: ai.ContentText, Text: "I extracted the value for you."},
		}, stop: ai.StopEndTurn},
	}}
	collection := tools.NewCollection(tools.NewExtraction())

	loop := newTestLoop(t, handler, collection, NewExtraction())
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := map[string]any{"k": "v"}
	if !reflect.DeepEqual(result.Value, want) {
		t.Errorf("value = %#v, want %#v", result.Value, want)
	}
}

func TestLoopAbortsOnUIMismatch(t *testing.T) {
	t.Parallel()

	handler := &scriptedHandler{t: t, turns: []scriptedTurn{
		{blocks: []ai.Content{
			toolUse("tu_1", "ui_not_as_expected", map[string]any{"reasoning": "no login form visible"}),
		}, stop: ai.StopToolUse},
	}}
	collection := tools.NewCollection(tools.NewUIMismatch())

	loop := newTestLoop(t, handler, collection, NewUIMismatch())
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !result.Aborted() {
		t.Fatal("expected abort")
	}
	if result.Abort.Error != "UI Mismatch Detected" {
		t.Errorf("abort error = %q", result.Abort.Error)
	}
	if result.Abort.ErrorDescription != "no login form visible" {
		t.Errorf("abort description = %q", result.Abort.ErrorDescription)
	}

	// The mismatch tool result is still persisted.
	history, err := loop.Session.HistoryForAPI(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	last := history[len(history)-1]
	if last.Content[0].Type != ai.ContentToolResult {
		t.Errorf("last event = %+v, want tool result", last)
	}
}

func TestLoopStallLimit(t *testing.T) {
	t.Parallel()

	turns := make([]scriptedTurn, 3)
	for i := range turns {
		turns[i] = scriptedTurn{
			blocks: []ai.Content{{Type: ai.ContentText, Text: "truncated..."}},
			stop:   ai.StopMaxTokens,
		}
	}
	handler := &scriptedHandler{t: t, turns: turns}

	loop := newTestLoop(t, handler, tools.NewCollection())
	loop.StallLimit = 3

	_, err := loop.Run(context.Background())
	if err == nil {
		t.Fatal("expected stall error")
	}
	if !strings.Contains(err.Error(), "stalled") {
		t.Errorf("error = %v", err)
	}
	if handler.calls != 3 {
		t.Errorf("model called %d times, want 3", handler.calls)
	}
}

func TestLoopPropagatesProviderError(t *testing.T) {
	t.Parallel()

	handler := &failingHandler{err: &ai.APIError{Provider: ai.ProviderAnthropic, StatusCode: 500, Body: "overloaded"}}
	loop := newTestLoop(t, handler, tools.NewCollection())

	_, err := loop.Run(context.Background())
	var apiErr *ai.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
}

// failingHandler errors on every model call.
type failingHandler struct {
	scriptedHandler
	err error
}

func (h *failingHandler) CallAPI(ctx context.Context, req ai.Request) (*ai.Exchange, error) {
	return nil, h.err
}
