package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches a leading <think>...</think> block emitted by reasoning models.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// StripThinking removes a leading <think> block from a response.
func StripThinking(response string) string {
	return thinkTagPattern.ReplaceAllString(response, "")
}

// ExtractJSON returns the first balanced JSON object in a response that may
// be wrapped in prose or markdown code fences.
func ExtractJSON(response string) (string, error) {
	cleaned := StripThinking(response)

	start := strings.IndexByte(cleaned, '{')
	for start >= 0 {
		if candidate, ok := balancedObject(cleaned[start:]); ok && json.Valid([]byte(candidate)) {
			return candidate, nil
		}
		next := strings.IndexByte(cleaned[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return "", fmt.Errorf("no valid JSON object found in response")
}

// balancedObject returns the prefix of s that closes the object opened at s[0].
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONResponse extracts a JSON object from a response and unmarshals it.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}
