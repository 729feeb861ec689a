// ABOUTME: Canonical conversation types: Message, Content, StopReason, ToolSpec
// ABOUTME: Shared across all provider handlers; wire-format agnostic

package ai

import "encoding/json"

// Role represents a message role in the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason is the canonical classification of why a model turn ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// MapStopReason translates a provider-native finish/stop value to the
// canonical StopReason. Unrecognized values map to StopEndTurn.
func MapStopReason(native string) StopReason {
	switch native {
	case "end_turn", "stop", "completed":
		return StopEndTurn
	case "tool_use", "tool_calls":
		return StopToolUse
	case "max_tokens", "length":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}

// ContentType identifies the kind of content block.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// CacheControl marks a content block as prompt-cache eligible.
type CacheControl struct {
	Type string `json:"type"`
}

// ImageSource holds base64-encoded image data. Only base64 sources exist in
// the canonical model; URL-backed images are never fetched by this package.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Content represents one content block within a message. The Type field
// selects which of the remaining fields are meaningful; the JSON tags produce
// the canonical persisted form shared with the session log.
type Content struct {
	Type         ContentType    `json:"type"`
	Text         string         `json:"text,omitempty"`
	Source       *ImageSource   `json:"source,omitempty"`
	ID           string         `json:"id,omitempty"`          // tool_use ID
	Name         string         `json:"name,omitempty"`        // tool name
	Input        map[string]any `json:"input,omitempty"`       // tool_use arguments
	ToolUseID    string         `json:"tool_use_id,omitempty"` // tool_result reference
	Blocks       []Content      `json:"content,omitempty"`     // tool_result payload
	Error        string         `json:"error,omitempty"`       // tool_result failure
	CacheControl *CacheControl  `json:"cache_control,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`
}

// NewTextMessage creates a message with a single text content block.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []Content{{Type: ContentText, Text: text}},
	}
}

// TextContent concatenates all text blocks of a message, newline-joined.
func (m Message) TextContent() string {
	out := ""
	for _, b := range m.Content {
		if b.Type != ContentText || b.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// ToolUses returns the tool_use blocks of a message in model order.
func (m Message) ToolUses() []Content {
	var uses []Content
	for _, b := range m.Content {
		if b.Type == ContentToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// ActionSpec describes one GUI action of the computer tool, used by backends
// that have no native GUI tool and need one function per action.
type ActionSpec struct {
	Name   string
	Params map[string]any // JSON Schema properties for the action arguments
}

// ToolSpec declares a tool the model can invoke. Declared by the tool
// collection, consumed read-only by handlers.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage // JSON Schema

	// GUI tool declaration, set only on the computer tool.
	APIType string // provider tool version, e.g. "computer_20250124"
	Width   int
	Height  int
	Actions []ActionSpec
}

// FindComputerDisplay returns the display geometry declared by the catalog's
// computer tool, or the given defaults if no computer tool is declared.
func FindComputerDisplay(catalog []ToolSpec, defWidth, defHeight int) (int, int) {
	for _, t := range catalog {
		if t.Name == "computer" {
			if t.Width > 0 {
				defWidth = t.Width
			}
			if t.Height > 0 {
				defHeight = t.Height
			}
		}
	}
	return defWidth, defHeight
}
