package security

import (
	"strings"
	"testing"
)

func TestSanitizePayloadStripsScript(t *testing.T) {
	payload := map[string]any{"x": "<script>alert(1)</script>"}

	cleaned := SanitizePayload(payload).(map[string]any)

	s := cleaned["x"].(string)
	if strings.Contains(strings.ToLower(s), "<script") {
		t.Errorf("Expected <script to be stripped, got %q", s)
	}
}

func TestSanitizePayloadStripsProtocolsAndHandlers(t *testing.T) {
	payload := map[string]any{
		"a": "javascript:alert(1)",
		"b": "data:text/html,<h1>x</h1>",
		"c": `<img onerror=alert(1) src=x>`,
		"d": "JaVaScRiPt:alert(1)",
	}

	cleaned := SanitizePayload(payload).(map[string]any)

	for key, value := range cleaned {
		s := strings.ToLower(value.(string))
		for _, pattern := range []string{"javascript:", "data:", "onerror="} {
			if strings.Contains(s, pattern) {
				t.Errorf("Key %s: expected %q to be stripped, got %q", key, pattern, s)
			}
		}
	}
}

func TestSanitizePayloadLeavesCleanValues(t *testing.T) {
	payload := map[string]any{
		"title": "Quarterly report",
		"count": float64(42),
		"ok":    true,
		"tags":  []any{"alpha", "beta"},
	}

	cleaned := SanitizePayload(payload).(map[string]any)

	if cleaned["title"] != "Quarterly report" {
		t.Errorf("Clean string was modified: %v", cleaned["title"])
	}
	if cleaned["count"] != float64(42) || cleaned["ok"] != true {
		t.Error("Non-string scalars were modified")
	}
	tags := cleaned["tags"].([]any)
	if tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("Clean slice was modified: %v", tags)
	}
}

func TestSanitizePayloadTruncatesAtDepthBound(t *testing.T) {
	// Build a value nested 11 levels deep
	leaf := any("deep")
	for i := 0; i < 11; i++ {
		leaf = map[string]any{"next": leaf}
	}

	cleaned := SanitizePayload(leaf)

	current := cleaned
	depth := 0
	for {
		m, isMap := current.(map[string]any)
		if !isMap {
			break
		}
		current = m["next"]
		depth++
	}

	if current != DepthExceededPlaceholder {
		t.Errorf("Expected placeholder at the depth bound, got %v after %d levels", current, depth)
	}
	if depth > MaxSanitizeDepth {
		t.Errorf("Walk descended %d levels, bound is %d", depth, MaxSanitizeDepth)
	}
}

func TestSanitizeStringReassembledPattern(t *testing.T) {
	// Stripping the inner pattern must not leave a new one behind
	s := SanitizeString("<scr<scriptipt>alert(1)")
	if strings.Contains(strings.ToLower(s), "<script") {
		t.Errorf("Expected reassembled pattern to be stripped, got %q", s)
	}
}
