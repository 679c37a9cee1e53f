package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// reasoningPrefix matches a leading <think>...</think> block that reasoning
// models may emit before the actual answer.
var reasoningPrefix = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// ExtractJSON pulls the JSON payload out of an LLM response that may wrap it
// in <think> tags, markdown code fences, or surrounding prose. Objects are
// preferred over arrays when both appear, whichever opens first wins.
func ExtractJSON(response string) (string, error) {
	s := reasoningPrefix.ReplaceAllString(response, "")

	if t := strings.TrimSpace(s); json.Valid([]byte(t)) {
		return t, nil
	}

	for _, start := range structureStarts(s) {
		if candidate, ok := balancedFrom(s, start); ok && json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// structureStarts returns the offsets of the first object and first array
// opener, earliest first.
func structureStarts(s string) []int {
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')

	switch {
	case obj < 0 && arr < 0:
		return nil
	case obj < 0:
		return []int{arr}
	case arr < 0:
		return []int{obj}
	case obj < arr:
		return []int{obj, arr}
	default:
		return []int{arr, obj}
	}
}

// balancedFrom scans forward from an opener at start until its matching
// closer. String literals and escapes are tracked so delimiters inside
// values don't count toward depth.
func balancedFrom(s string, start int) (string, bool) {
	var closer byte
	switch s[start] {
	case '{':
		closer = '}'
	case '[':
		closer = ']'
	default:
		return "", false
	}
	opener := s[start]

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
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
