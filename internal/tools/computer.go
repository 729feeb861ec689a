// ABOUTME: Computer tool: forwards GUI actions to the automation daemon on the target
// ABOUTME: Declares the per-action catalog handlers expand into provider tool schemas

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deskhand/deskhand/pkg/ai"
)

const (
	defaultDaemonPort = 8088
	daemonTimeout     = 60 * time.Second

	defaultAPIType = "computer_20250124"
)

// Computer executes GUI actions by forwarding them to the automation daemon
// listening on the target machine.
type Computer struct {
	target  string
	port    int
	apiType string
	width   int
	height  int
	client  *http.Client
}

// NewComputer builds a computer tool bound to one target host. A zero port
// falls back to the standard daemon port.
func NewComputer(target, apiType string, width, height int) *Computer {
	if apiType == "" {
		apiType = defaultAPIType
	}
	return &Computer{
		target:  target,
		port:    defaultDaemonPort,
		apiType: apiType,
		width:   width,
		height:  height,
		client:  &http.Client{Timeout: daemonTimeout},
	}
}

// WithPort overrides the daemon port.
func (c *Computer) WithPort(port int) *Computer {
	if port > 0 {
		c.port = port
	}
	return c
}

// Spec declares the tool with its display geometry and action catalog.
func (c *Computer) Spec() ai.ToolSpec {
	return ai.ToolSpec{
		Name:    "computer",
		APIType: c.apiType,
		Width:   c.width,
		Height:  c.height,
		Actions: actionCatalog(),
	}
}

// Run forwards one action to the daemon and parses its reply. The action name
// selects the endpoint; every other input field travels in the payload.
func (c *Computer) Run(ctx context.Context, input map[string]any) Result {
	action, _ := input["action"].(string)
	if action == "" {
		return Failure("computer tool requires an action")
	}

	payload := map[string]any{"api_type": c.apiType}
	for k, v := range input {
		if k == "action" || v == nil {
			continue
		}
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Failure(fmt.Sprintf("failed to encode action payload: %v", err))
	}

	url := fmt.Sprintf("http://%s:%d/tool_use/%s", c.target, c.port, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Failure(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Failure(fmt.Sprintf("failed to reach automation daemon: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failure(fmt.Sprintf("failed to read daemon response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return Failure(fmt.Sprintf("automation daemon returned status %d: %s", resp.StatusCode, respBody))
	}

	var parsed struct {
		Output      string `json:"output"`
		Error       string `json:"error"`
		Base64Image string `json:"base64_image"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Failure(fmt.Sprintf("malformed daemon response: %v", err))
	}

	return Result{Output: parsed.Output, Error: parsed.Error, Base64Image: parsed.Base64Image}
}

// actionCatalog lists every GUI action with the parameter schema fragments
// providers without a builtin computer tool expand into function specs.
func actionCatalog() []ai.ActionSpec {
	coordinate := map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "integer"},
		"description": "Pixel coordinate [x, y] on the screen",
	}
	text := map[string]any{
		"type":        "string",
		"description": "Text to type or key combination to press",
	}
	duration := map[string]any{
		"type":        "number",
		"description": "Duration in seconds",
	}

	return []ai.ActionSpec{
		{Name: "screenshot", Params: map[string]any{}},
		{Name: "left_click", Params: map[string]any{"coordinate": coordinate}},
		{Name: "right_click", Params: map[string]any{"coordinate": coordinate}},
		{Name: "middle_click", Params: map[string]any{"coordinate": coordinate}},
		{Name: "double_click", Params: map[string]any{"coordinate": coordinate}},
		{Name: "triple_click", Params: map[string]any{"coordinate": coordinate}},
		{Name: "mouse_move", Params: map[string]any{"coordinate": coordinate}},
		{Name: "left_mouse_down", Params: map[string]any{"coordinate": coordinate}},
		{Name: "left_mouse_up", Params: map[string]any{"coordinate": coordinate}},
		{Name: "left_click_drag", Params: map[string]any{"coordinate": coordinate, "to": coordinate}},
		{Name: "type", Params: map[string]any{"text": text}},
		{Name: "key", Params: map[string]any{"text": text}},
		{Name: "hold_key", Params: map[string]any{"text": text, "duration": duration}},
		{Name: "scroll", Params: map[string]any{
			"coordinate": coordinate,
			"scroll_direction": map[string]any{
				"type":        "string",
				"enum":        []string{"up", "down", "left", "right"},
				"description": "Direction to scroll",
			},
			"scroll_amount": map[string]any{
				"type":        "integer",
				"description": "Number of scroll ticks",
			},
		}},
		{Name: "wait", Params: map[string]any{"duration": duration}},
	}
}
