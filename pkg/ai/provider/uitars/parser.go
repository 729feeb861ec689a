// ABOUTME: Parser for the Thought:/Action: grammar and its pseudo-function calls
// ABOUTME: Restricted to bareword(kw=literal, ...) syntax; no expression evaluation

package uitars

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/deskhand/deskhand/pkg/ai"
	"github.com/deskhand/deskhand/pkg/ai/internal/keysym"
)

var (
	thoughtRe   = regexp.MustCompile(`(?s)Thought:\s*(.+?)(?:\n\s*Action:|\z)`)
	actionRe    = regexp.MustCompile(`(?s)Action:\s*(.+)\z`)
	callSplitRe = regexp.MustCompile(`\)\s*\n\s*\n`)
)

// ParseThoughtAction parses a model completion into canonical content blocks:
// an optional Thought text block followed by one computer tool_use per parsed
// action call. Unparseable calls are skipped, never fatal.
func ParseThoughtAction(text string) []ai.Content {
	var blocks []ai.Content

	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		if thought := strings.TrimSpace(m[1]); thought != "" {
			blocks = append(blocks, ai.Content{Type: ai.ContentText, Text: thought})
		}
	}

	var actionStr string
	if m := actionRe.FindStringSubmatch(text); m != nil {
		actionStr = strings.TrimSpace(m[1])
	}
	if actionStr == "" {
		return blocks
	}

	created := 0
	for _, seg := range splitCalls(actionStr) {
		c, err := parseCall(seg)
		if err != nil {
			continue
		}

		input, isCall := mapActionCall(c)
		if !isCall {
			// finished(content=...) terminates with a text block.
			if fin := c.kwargs["content"]; fin != "" {
				blocks = append(blocks, ai.Content{Type: ai.ContentText, Text: fin})
			}
			continue
		}

		blocks = append(blocks, ai.Content{
			Type:  ai.ContentToolUse,
			ID:    fmt.Sprintf("uitars_call_%d", created),
			Name:  "computer",
			Input: input,
		})
		created++
	}

	return blocks
}

// splitCalls splits an Action segment into individual calls. Calls are
// separated by a closing paren followed by a blank line; the split consumes
// the paren, so it is restored.
func splitCalls(actionStr string) []string {
	var segments []string
	for _, seg := range callSplitRe.Split(actionStr, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if !strings.HasSuffix(seg, ")") {
			seg += ")"
		}
		segments = append(segments, seg)
	}
	return segments
}

// call is one parsed pseudo-function call.
type call struct {
	name   string
	kwargs map[string]string
}

// parseCall parses `name(kw='value', kw="value", kw=bare)` with a hand-rolled
// scanner. Only identifiers, call syntax and scalar literals are accepted.
func parseCall(s string) (call, error) {
	p := &parser{input: s}
	p.skipSpace()

	name := p.identifier()
	if name == "" {
		return call{}, fmt.Errorf("expected function name in %q", s)
	}
	// Tolerate dotted names like computer.click; keep the last segment.
	for p.peek() == '.' {
		p.pos++
		next := p.identifier()
		if next == "" {
			return call{}, fmt.Errorf("dangling '.' in %q", s)
		}
		name = next
	}

	p.skipSpace()
	if !p.consume('(') {
		return call{}, fmt.Errorf("expected '(' in %q", s)
	}

	kwargs := make(map[string]string)
	for {
		p.skipSpace()
		if p.consume(')') {
			break
		}
		if p.done() {
			return call{}, fmt.Errorf("unterminated call in %q", s)
		}

		key := p.identifier()
		if key == "" {
			return call{}, fmt.Errorf("expected keyword name in %q", s)
		}
		p.skipSpace()
		if !p.consume('=') {
			return call{}, fmt.Errorf("expected '=' after %q", key)
		}
		p.skipSpace()

		value, err := p.value()
		if err != nil {
			return call{}, err
		}
		kwargs[key] = value

		p.skipSpace()
		p.consume(',')
	}

	return call{name: strings.ToLower(name), kwargs: kwargs}, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) done() bool {
	return p.pos >= len(p.input)
}

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) consume(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for !p.done() {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) identifier() string {
	start := p.pos
	for !p.done() {
		c := p.input[p.pos]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (p.pos > start && c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

// value parses a quoted string literal or a bareword scalar. Barewords end at
// the next ',' or ')'.
func (p *parser) value() (string, error) {
	if quote := p.peek(); quote == '\'' || quote == '"' {
		return p.quoted(quote)
	}

	start := p.pos
	for !p.done() {
		c := p.input[p.pos]
		if c == ',' || c == ')' {
			break
		}
		p.pos++
	}
	bare := strings.TrimSpace(p.input[start:p.pos])
	if bare == "" {
		return "", fmt.Errorf("empty value at offset %d", start)
	}
	return bare, nil
}

// quoted parses a string literal, handling the \', \", \n, \t and \\ escapes
// the grammar allows. Unknown escapes keep the escaped character.
func (p *parser) quoted(quote byte) (string, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for !p.done() {
		c := p.input[p.pos]
		switch c {
		case quote:
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.done() {
				return "", fmt.Errorf("dangling escape at offset %d", p.pos)
			}
			switch p.input[p.pos] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(p.input[p.pos])
			}
			p.pos++
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated string literal")
}

// mapActionCall maps a parsed call to computer tool input using the fixed
// action-name table. The second return value is false for finished, which
// produces no tool use.
func mapActionCall(c call) (map[string]any, bool) {
	input := map[string]any{}

	point := func(keys ...string) ([2]int, bool) {
		for _, k := range keys {
			if v, ok := c.kwargs[k]; ok {
				if center, ok := keysym.CenterOf(v); ok {
					return center, true
				}
			}
		}
		return [2]int{}, false
	}

	switch c.name {
	case "click", "left_single":
		input["action"] = "left_click"
		if center, ok := point("start_box", "point"); ok {
			input["coordinate"] = []int{center[0], center[1]}
		}
	case "left_double":
		input["action"] = "double_click"
		if center, ok := point("start_box", "point"); ok {
			input["coordinate"] = []int{center[0], center[1]}
		}
	case "right_single":
		input["action"] = "right_click"
		if center, ok := point("start_box", "point"); ok {
			input["coordinate"] = []int{center[0], center[1]}
		}
	case "hover":
		input["action"] = "mouse_move"
		if center, ok := point("start_box", "point"); ok {
			input["coordinate"] = []int{center[0], center[1]}
		}
	case "drag", "select":
		input["action"] = "left_click_drag"
		if from, ok := point("start_box", "start_point"); ok {
			input["coordinate"] = []int{from[0], from[1]}
		}
		if to, ok := point("end_box", "end_point"); ok {
			input["to"] = []int{to[0], to[1]}
		}
	case "hotkey", "keypress", "key", "keydown":
		input["action"] = "key"
		combo := c.kwargs["key"]
		if combo == "" {
			combo = c.kwargs["hotkey"]
		}
		if combo != "" {
			input["text"] = keysym.NormalizeCombo(combo)
		}
	case "release", "keyup":
		input["action"] = "key"
		if combo := c.kwargs["key"]; combo != "" {
			input["text"] = keysym.NormalizeCombo(combo)
		}
	case "type":
		input["action"] = "type"
		input["text"] = c.kwargs["content"]
	case "scroll":
		input["action"] = "scroll"
		direction := strings.ToLower(c.kwargs["direction"])
		switch direction {
		case "up", "down", "left", "right":
			input["scroll_direction"] = direction
		}
		input["scroll_amount"] = 5
		if center, ok := point("start_box", "point"); ok {
			input["coordinate"] = []int{center[0], center[1]}
		}
	case "wait":
		input["action"] = "wait"
		input["duration"] = 1.0
	case "finished":
		return nil, false
	default:
		input["action"] = "screenshot"
	}

	return input, true
}
