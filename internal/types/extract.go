package types

import "strings"

// =============================================================================
// TOLERANT JSON EXTRACTION FROM MODEL OUTPUT
// =============================================================================
//
// Schema-enforced responses are usually clean JSON, but models occasionally
// wrap payloads in markdown fences or prepend commentary. Every agent funnels
// raw completions through ExtractJSON before unmarshaling so a decorated but
// otherwise valid payload is not treated as a generation failure.

// ExtractJSON returns the first JSON object or array embedded in s, stripped
// of any markdown fences or surrounding prose. Returns "" when no balanced
// JSON value is present.
func ExtractJSON(s string) string {
	s = stripFences(s)

	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	switch {
	case objStart == -1 && arrStart == -1:
		return ""
	case objStart == -1:
		return balancedFrom(s, arrStart, '[', ']')
	case arrStart == -1 || objStart < arrStart:
		return balancedFrom(s, objStart, '{', '}')
	default:
		return balancedFrom(s, arrStart, '[', ']')
	}
}

// stripFences removes a ```json ... ``` (or bare ```) wrapper if present.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		rest = rest[nl+1:]
	}
	if end := strings.LastIndex(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// balancedFrom scans forward from start matching open/close pairs, skipping
// over string literals and escapes.
func balancedFrom(s string, start int, open, close byte) string {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// String content is opaque to the matcher.
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
