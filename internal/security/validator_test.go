package security

import (
	"strings"
	"testing"
)

func TestValidateTargetURLAcceptsPublicHTTPS(t *testing.T) {
	v := NewValidator(0)

	result := v.ValidateTargetURL("https://example.com/hook")
	if !result.Valid {
		t.Errorf("Expected https://example.com/hook to be accepted, got reason %q", result.Reason)
	}
}

func TestValidateTargetURLRejectsPrivateRanges(t *testing.T) {
	v := NewValidator(0)

	blocked := []string{
		"http://127.0.0.1/hook",
		"https://10.0.0.5/x",
		"https://192.168.1.1/x",
		"https://172.16.0.1/x",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/hook",
		"http://0.0.0.0/hook",
		"http://localhost/hook",
	}

	for _, raw := range blocked {
		result := v.ValidateTargetURL(raw)
		if result.Valid {
			t.Errorf("Expected %s to be rejected", raw)
		}
	}
}

func TestValidateTargetURLRejectsSchemesAndTLDs(t *testing.T) {
	v := NewValidator(0)

	blocked := []string{
		"ftp://example.com/hook",
		"file:///etc/passwd",
		"https://service.internal/hook",
		"https://demo.example/hook",
		"https://box.local/hook",
		"https://unit.test/hook",
	}

	for _, raw := range blocked {
		result := v.ValidateTargetURL(raw)
		if result.Valid {
			t.Errorf("Expected %s to be rejected", raw)
		}
	}
}

func TestValidateTargetURLRejectsBadPort(t *testing.T) {
	v := NewValidator(0)

	if result := v.ValidateTargetURL("https://example.com:99999/hook"); result.Valid {
		t.Error("Expected out-of-range port to be rejected")
	}
	if result := v.ValidateTargetURL("https://example.com:8443/hook"); !result.Valid {
		t.Errorf("Expected valid port to be accepted, got %q", result.Reason)
	}
}

func TestValidateRateLimits(t *testing.T) {
	v := NewValidator(0)

	if result := v.ValidateRateLimits(100, 1000); !result.Valid {
		t.Errorf("Expected 100/hour 1000/day to be accepted, got %q", result.Reason)
	}
	if result := v.ValidateRateLimits(0, 1000); result.Valid {
		t.Error("Expected perHour=0 to be rejected")
	}
	if result := v.ValidateRateLimits(100, 50); result.Valid {
		t.Error("Expected perDay < perHour to be rejected")
	}
	if result := v.ValidateRateLimits(20000, 50000); result.Valid {
		t.Error("Expected perHour above bound to be rejected")
	}
	if result := v.ValidateRateLimits(100, 200000); result.Valid {
		t.Error("Expected perDay above bound to be rejected")
	}
}

func TestValidateHeadersRejectsProtectedNames(t *testing.T) {
	v := NewValidator(0)

	for _, name := range []string{"Authorization", "cookie", "Host", "X-Forwarded-For", "Content-Length"} {
		result := v.ValidateHeaders(map[string]string{name: "value"})
		if result.Valid {
			t.Errorf("Expected header %s to be rejected", name)
		}
	}

	result := v.ValidateHeaders(map[string]string{"X-Custom-Tag": "billing"})
	if !result.Valid {
		t.Errorf("Expected benign custom header to be accepted, got %q", result.Reason)
	}
}

func TestValidateHeadersRejectsOversizedAndInjected(t *testing.T) {
	v := NewValidator(0)

	if result := v.ValidateHeaders(map[string]string{"X-Tag": strings.Repeat("a", 1001)}); result.Valid {
		t.Error("Expected oversized header value to be rejected")
	}
	if result := v.ValidateHeaders(map[string]string{"X-Tag": "<script>alert(1)</script>"}); result.Valid {
		t.Error("Expected script injection in header to be rejected")
	}
	if result := v.ValidateHeaders(map[string]string{"X-Tag": "a\r\nX-Smuggled: 1"}); result.Valid {
		t.Error("Expected CRLF in header value to be rejected")
	}
}

func TestValidatePayloadSize(t *testing.T) {
	v := NewValidator(1024)

	if result := v.ValidatePayloadSize(512); !result.Valid {
		t.Errorf("Expected payload under limit to be accepted, got %q", result.Reason)
	}
	if result := v.ValidatePayloadSize(2048); result.Valid {
		t.Error("Expected payload over limit to be rejected")
	}
}
