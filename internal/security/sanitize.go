package security

import "strings"

// MaxSanitizeDepth bounds the recursive payload walk. Values nested deeper
// are replaced with DepthExceededPlaceholder so cyclical or adversarial
// structures cannot exhaust the stack.
const MaxSanitizeDepth = 10

// DepthExceededPlaceholder replaces values past the depth bound
const DepthExceededPlaceholder = "[max depth exceeded]"

// SanitizePayload walks a decoded JSON value (maps, slices, scalars) and
// strips script/protocol-injection patterns from string leaves. The walk is a
// closed kind switch; unknown kinds pass through unchanged.
func SanitizePayload(value any) any {
	return sanitizeValue(value, 0)
}

func sanitizeValue(value any, depth int) any {
	if depth >= MaxSanitizeDepth {
		return DepthExceededPlaceholder
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[SanitizeString(key)] = sanitizeValue(item, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item, depth+1)
		}
		return out
	case string:
		return SanitizeString(v)
	default:
		return v
	}
}

// SanitizeString removes injection patterns from a single string. Matching is
// case-insensitive; the scan repeats until no pattern remains so overlapping
// fragments ("<scr<scriptipt") cannot reassemble a stripped pattern.
func SanitizeString(s string) string {
	for {
		lower := strings.ToLower(s)
		found := false
		for _, pattern := range injectionPatterns {
			idx := strings.Index(lower, pattern)
			if idx < 0 {
				continue
			}
			s = s[:idx] + s[idx+len(pattern):]
			found = true
			break
		}
		if !found {
			return s
		}
	}
}
