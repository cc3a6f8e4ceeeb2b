// Package llmjson extracts strict JSON objects out of LLM text output.
// Analyzer prompts ask for a single JSON object; models habitually wrap it
// in markdown code fences or prepend prose, so the raw text is trimmed down
// to the object before decoding. Anything that does not decode cleanly is an
// error, callers fall back to their rule-based result instead of scraping.
package llmjson

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoObject = errors.New("llmjson: no JSON object in output")

// Unmarshal decodes the first JSON object found in raw into v.
func Unmarshal(raw string, v any) error {
	body := StripFences(raw)

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return ErrNoObject
	}
	return json.Unmarshal([]byte(body[start:end+1]), v)
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, leaving the fenced body.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.Contains(first, "{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
