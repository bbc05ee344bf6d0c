package blocks

import (
	"encoding/json"
	"regexp"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")

// extractCallTool scans text for a JSON object describing a tool call:
// {"action": ..., "name": ..., "arguments": {...}?}. Fenced candidates are
// tried first, then balanced brace spans found anywhere in the text, both
// in document order. The first structurally valid candidate is returned
// re-serialized canonically (stable key order via json.Marshal on a map).
func extractCallTool(text string) (string, bool) {
	candidates := make([]string, 0, 4)
	for _, m := range fencedJSONRe.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, balancedBraceSpans(text)...)

	for _, c := range candidates {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(c), &obj); err != nil {
			continue
		}
		if !isValidCallTool(obj) {
			continue
		}
		canonical, err := json.Marshal(obj)
		if err != nil {
			continue
		}
		return string(canonical), true
	}
	return "", false
}

func isValidCallTool(obj map[string]json.RawMessage) bool {
	if _, ok := obj["action"]; !ok {
		return false
	}
	if _, ok := obj["name"]; !ok {
		return false
	}
	if argsRaw, ok := obj["arguments"]; ok {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(argsRaw, &probe); err != nil {
			return false
		}
	}
	return true
}

// balancedBraceSpans walks text once, returning every top-level balanced
// {...} span in document order. Spans are not deduplicated against fenced
// candidates; the caller tries each in order and keeps the first valid one.
func balancedBraceSpans(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, ch := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}
