package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first JSON object or array out of a model response
// that may wrap it in prose or markdown fences. Returns "" when no JSON is
// found.
func ExtractJSON(text string) string {
	// Fenced blocks first.
	if idx := strings.Index(text, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(text[start:], "```"); end != -1 {
			if inner := strings.TrimSpace(text[start : start+end]); inner != "" {
				return inner
			}
		}
	}

	start := strings.Index(text, "{")
	if start == -1 {
		start = strings.Index(text, "[")
	}
	if start == -1 {
		return ""
	}

	startChar := rune(text[start])
	endChar := '}'
	if startChar == '[' {
		endChar = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := rune(text[i])

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if ch == startChar || ch == '{' || ch == '[' {
			depth++
		} else if ch == endChar || ch == '}' || ch == ']' {
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return ""
}

// Decode extracts and unmarshals the JSON payload of a model response into v.
func Decode(text string, v interface{}) error {
	raw := ExtractJSON(text)
	if raw == "" {
		return fmt.Errorf("no JSON found in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}
