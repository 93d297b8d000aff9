package subvert

import (
	"encoding/json"

	"subvertnews/internal/core"
)

// extractJSONArray finds the first top-level JSON array or object in s,
// the lenient fallback used when the whole response body does not parse
// cleanly (the model wrapped the array in prose, code fences, etc.).
func extractJSONArray(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '[' || s[i] == '{' {
			start = i
			open, close = s[i], matchingClose(s[i])
			break
		}
	}
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func matchingClose(open byte) byte {
	if open == '[' {
		return ']'
	}
	return '}'
}

// parseAngles decodes a brainstorm response into up to 5 angles. It tries
// the whole body first, then falls back to the first bracketed JSON
// substring, matching the lenient parsing the spec calls for.
func parseAngles(response string) ([]core.AngleSpec, bool) {
	var angles []core.AngleSpec
	if json.Unmarshal([]byte(response), &angles) == nil && len(angles) > 0 {
		return capAngles(angles), true
	}
	if sub := extractJSONArray(response); sub != "" {
		if json.Unmarshal([]byte(sub), &angles) == nil && len(angles) > 0 {
			return capAngles(angles), true
		}
	}
	return nil, false
}

func capAngles(angles []core.AngleSpec) []core.AngleSpec {
	if len(angles) > 5 {
		return angles[:5]
	}
	return angles
}

// parseHeadlines decodes a generate-stage response into a list of
// headline strings, the same whole-body-then-substring leniency as
// parseAngles. Failure yields an empty set, never an error — other
// angles still contribute their own headlines.
func parseHeadlines(response string) []string {
	var texts []string
	if json.Unmarshal([]byte(response), &texts) == nil && len(texts) > 0 {
		return texts
	}
	if sub := extractJSONArray(response); sub != "" {
		if json.Unmarshal([]byte(sub), &texts) == nil {
			return texts
		}
	}
	return nil
}
