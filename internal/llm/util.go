package llm

import "strings"

// CleanJSONBlock strips markdown code fences and any prose around the first
// balanced JSON object in a model response. Text without an object is
// returned trimmed.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	if end := balancedEnd(text, start); end > start {
		return text[start : end+1]
	}
	// unbalanced: hand the widest candidate to the decoder and let it fail there
	if end := strings.LastIndex(text, "}"); end > start {
		return text[start : end+1]
	}
	return text
}

// balancedEnd returns the index of the brace closing the object opened at
// start, skipping braces inside JSON strings, or -1.
func balancedEnd(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
