package subagent

import (
	"encoding/json"
	"strings"
)

// ParseTrailingJSON extracts the JSON object a sub-agent concludes with.
// It accepts a fenced block at the end of the text or a bare {...} suffix.
// Returns nil when no valid object is found.
func ParseTrailingJSON(text string) map[string]any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	// Fenced block: take the last ``` fence pair.
	if strings.HasSuffix(trimmed, "```") {
		body := strings.TrimSuffix(trimmed, "```")
		if idx := strings.LastIndex(body, "```"); idx >= 0 {
			candidate := body[idx+3:]
			// Strip an optional language tag on the fence line.
			if nl := strings.IndexByte(candidate, '\n'); nl >= 0 {
				firstLine := strings.TrimSpace(candidate[:nl])
				if firstLine == "json" || firstLine == "" {
					candidate = candidate[nl+1:]
				}
			}
			if obj := parseObject(candidate); obj != nil {
				return obj
			}
		}
	}

	// Bare object: scan back from the end to the matching opening brace.
	if strings.HasSuffix(trimmed, "}") {
		depth := 0
		inString := false
		for i := len(trimmed) - 1; i >= 0; i-- {
			c := trimmed[i]
			if inString {
				// Walking backwards, a quote ends the string unless escaped.
				if c == '"' && (i == 0 || trimmed[i-1] != '\\') {
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '}':
				depth++
			case '{':
				depth--
				if depth == 0 {
					return parseObject(trimmed[i:])
				}
			}
		}
	}

	return nil
}

func parseObject(s string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil
	}
	return obj
}
