package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StripCodeFences removes a leading and a trailing line that start with ```.
// Only those two lines are dropped; anything between them is kept verbatim.
func StripCodeFences(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// NormalizeFields decodes a flat JSON object into string fields.
// - Strings are trimmed; empty strings are dropped
// - Numbers and booleans are formatted as text
// - Nulls are dropped
// Callers validate the shape first; any other value type is an error.
func NormalizeFields(raw []byte) (map[string]string, []string, error) {
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("normalize: decode: %w", err)
	}

	out := make(map[string]string, len(m))
	var dropped []string
	for k, v := range m {
		key := strings.TrimSpace(k)
		switch t := v.(type) {
		case nil:
			dropped = append(dropped, key+"(null)")
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				dropped = append(dropped, key+"(empty)")
				continue
			}
			out[key] = s
		case json.Number:
			out[key] = t.String()
		case bool:
			out[key] = strconv.FormatBool(t)
		default:
			return nil, nil, fmt.Errorf("normalize: field %q has non-scalar value", key)
		}
	}
	sort.Strings(dropped)
	return out, dropped, nil
}

// Snippet collapses whitespace and truncates s for log lines.
func Snippet(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
