package security

import (
	"strings"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s := NewSigner(0)
	now := time.Now()
	payload := []byte(`{"event":"document.uploaded","data":{"id":"doc-1"}}`)

	header := s.Sign(payload, "secret-1", now)

	if !strings.HasPrefix(header, "t=") || !strings.Contains(header, "sha256=") {
		t.Fatalf("Unexpected signature format: %s", header)
	}
	if !s.Verify(payload, header, "secret-1", now) {
		t.Error("Expected signature to verify with the signing secret")
	}
}

func TestVerifyFailsOnTamper(t *testing.T) {
	s := NewSigner(0)
	now := time.Now()
	payload := []byte(`{"x":1}`)

	header := s.Sign(payload, "secret-1", now)

	if s.Verify([]byte(`{"x":2}`), header, "secret-1", now) {
		t.Error("Expected verification to fail for a modified payload")
	}
	if s.Verify(payload, header, "secret-2", now) {
		t.Error("Expected verification to fail for a different secret")
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	s := NewSigner(5 * time.Minute)
	signedAt := time.Now()
	payload := []byte(`{"x":1}`)

	header := s.Sign(payload, "secret-1", signedAt)

	// Within tolerance
	if !s.Verify(payload, header, "secret-1", signedAt.Add(4*time.Minute)) {
		t.Error("Expected signature within tolerance to verify")
	}

	// Outside tolerance, digest still matches
	if s.Verify(payload, header, "secret-1", signedAt.Add(6*time.Minute)) {
		t.Error("Expected out-of-tolerance timestamp to fail verification")
	}
	if s.Verify(payload, header, "secret-1", signedAt.Add(-6*time.Minute)) {
		t.Error("Expected future-skewed timestamp to fail verification")
	}
}

func TestVerifyAcceptsBareDigestFormat(t *testing.T) {
	s := NewSigner(0)
	payload := []byte(`{"x":1}`)

	digest := hmacSHA256Hex(payload, "secret-1")
	if !s.Verify(payload, "sha256="+digest, "secret-1", time.Now()) {
		t.Error("Expected bare sha256=<hex> header to verify")
	}
}

func TestVerifyRejectsMalformedHeader(t *testing.T) {
	s := NewSigner(0)
	payload := []byte(`{"x":1}`)

	for _, header := range []string{"", "garbage", "t=abc,sha256=00", "md5=00", "t=123"} {
		if s.Verify(payload, header, "secret-1", time.Now()) {
			t.Errorf("Expected malformed header %q to fail verification", header)
		}
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret returned error: %v", err)
	}
	b, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret returned error: %v", err)
	}

	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("Expected distinct secrets across calls")
	}
}
