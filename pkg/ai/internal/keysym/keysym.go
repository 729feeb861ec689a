// ABOUTME: Key-combo normalization and point/box centroid parsing for GUI actions
// ABOUTME: Produces xdotool-compatible key symbol names joined by '+'

package keysym

import (
	"regexp"
	"strconv"
	"strings"
)

// aliases maps lowercase key names to their canonical key symbol.
var aliases = map[string]string{
	"esc":         "Escape",
	"escape":      "Escape",
	"enter":       "Return",
	"return":      "Return",
	"win":         "Super_L",
	"windows":     "Super_L",
	"super":       "Super_L",
	"meta":        "Super_L",
	"cmd":         "Super_L",
	"backspace":   "BackSpace",
	"del":         "Delete",
	"delete":      "Delete",
	"tab":         "Tab",
	"space":       "space",
	"pageup":      "Page_Up",
	"pagedown":    "Page_Down",
	"home":        "Home",
	"end":         "End",
	"up":          "Up",
	"down":        "Down",
	"left":        "Left",
	"right":       "Right",
	"printscreen": "Print",
	"prtsc":       "Print",
}

var modifiers = map[string]bool{
	"ctrl":    true,
	"control": true,
	"shift":   true,
	"alt":     true,
	"cmd":     true,
	"win":     true,
	"meta":    true,
	"super":   true,
}

// NormalizeCombo normalizes a key-combination string into canonical form
// joined by '+', with modifiers ordered before regular keys.
//
//	"ctrl c"          -> "ctrl+c"
//	"Ctrl+Shift+del"  -> "ctrl+shift+Delete"
//	"win+e"           -> "Super_L+e"
func NormalizeCombo(combo string) string {
	compact := strings.NewReplacer("\n", " ", "\t", " ", "+", " ").Replace(combo)
	parts := strings.Fields(compact)

	var mods, keys []string
	for _, p := range parts {
		lp := strings.ToLower(p)
		if modifiers[lp] {
			if lp == "control" {
				lp = "ctrl"
			}
			mods = append(mods, lp)
		} else {
			keys = append(keys, p)
		}
	}

	ordered := append(mods, keys...)
	for i, p := range ordered {
		ordered[i] = normalizePart(p)
	}
	return strings.Join(ordered, "+")
}

// normalizePart normalizes a single key name. Single characters pass through.
func normalizePart(p string) string {
	low := strings.ToLower(p)
	switch low {
	case "ctrl", "control":
		return "ctrl"
	case "shift", "alt":
		return low
	}
	if canonical, ok := aliases[low]; ok {
		return canonical
	}
	if n, ok := functionKeyNumber(low); ok {
		return "F" + strconv.Itoa(n)
	}
	return p
}

func functionKeyNumber(low string) (int, bool) {
	if !strings.HasPrefix(low, "f") || len(low) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(low[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

var digitsRe = regexp.MustCompile(`\d+`)

// CenterOf derives a center coordinate from a point or bounding-box value.
// Accepts strings like "x y", "<point>x y</point>" or "x1 y1 x2 y2"; four
// or more numbers are treated as a box and the centroid is returned.
// The second return value is false when no coordinate can be derived.
func CenterOf(val any) ([2]int, bool) {
	if val == nil {
		return [2]int{}, false
	}
	matches := digitsRe.FindAllString(toString(val), -1)
	nums := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	switch {
	case len(nums) >= 4:
		return [2]int{(nums[0] + nums[2]) / 2, (nums[1] + nums[3]) / 2}, true
	case len(nums) >= 2:
		return [2]int{nums[0], nums[1]}, true
	default:
		return [2]int{}, false
	}
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, toString(item))
		}
		return strings.Join(parts, " ")
	case float64:
		return strconv.Itoa(int(v))
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}
