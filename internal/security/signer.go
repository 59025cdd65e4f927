package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.hookrelay.dev/internal/common/metrics"
)

// SignatureHeader is the HTTP header carrying the payload signature
const SignatureHeader = "X-Webhook-Signature"

// TimestampHeader is the HTTP header carrying the signing timestamp
const TimestampHeader = "X-Webhook-Timestamp"

// DefaultReplayTolerance is the maximum accepted clock skew between the
// embedded signing timestamp and verification time
const DefaultReplayTolerance = 5 * time.Minute

// Signer generates and verifies HMAC-SHA256 signatures for webhook payloads.
//
// The digest covers "<unix timestamp>.<payload>" so a captured request cannot
// be replayed outside the tolerance window even with a valid digest. The wire
// format is "t=<unix>,sha256=<hex>"; a bare "sha256=<hex>" is accepted on
// verification for subscribers that strip the timestamp segment.
type Signer struct {
	tolerance time.Duration
}

// NewSigner creates a signer. tolerance <= 0 selects DefaultReplayTolerance.
func NewSigner(tolerance time.Duration) *Signer {
	if tolerance <= 0 {
		tolerance = DefaultReplayTolerance
	}
	return &Signer{tolerance: tolerance}
}

// Sign signs payload with secret at time now and returns the signature
// header value.
func (s *Signer) Sign(payload []byte, secret string, now time.Time) string {
	ts := now.Unix()
	digest := hmacSHA256Hex(signingInput(ts, payload), secret)
	return fmt.Sprintf("t=%d,sha256=%s", ts, digest)
}

// Verify checks a signature header against payload and secret. The embedded
// timestamp must be within the replay tolerance of now; an out-of-window
// timestamp fails verification even when the digest matches.
func (s *Signer) Verify(payload []byte, header, secret string, now time.Time) bool {
	ts, digest, err := parseSignatureHeader(header)
	if err != nil {
		metrics.SecurityRejections.WithLabelValues("signature").Inc()
		return false
	}

	if ts != 0 {
		skew := now.Unix() - ts
		if skew < 0 {
			skew = -skew
		}
		if time.Duration(skew)*time.Second > s.tolerance {
			metrics.SecurityRejections.WithLabelValues("signature").Inc()
			return false
		}
	}

	expected := hmacSHA256Hex(signingInput(ts, payload), secret)
	if !hmac.Equal([]byte(expected), []byte(digest)) {
		metrics.SecurityRejections.WithLabelValues("signature").Inc()
		return false
	}
	return true
}

// parseSignatureHeader parses "t=<unix>,sha256=<hex>" or "sha256=<hex>".
// A zero timestamp means the header carried none.
func parseSignatureHeader(header string) (int64, string, error) {
	var ts int64
	var digest string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, "", fmt.Errorf("malformed signature segment %q", part)
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("malformed signature timestamp: %w", err)
			}
			ts = parsed
		case "sha256":
			digest = value
		default:
			return 0, "", fmt.Errorf("unknown signature segment %q", key)
		}
	}

	if digest == "" {
		return 0, "", fmt.Errorf("signature header has no sha256 digest")
	}
	return ts, digest, nil
}

// signingInput builds the byte string covered by the digest. A zero
// timestamp signs the bare payload for compatibility verification.
func signingInput(ts int64, payload []byte) []byte {
	if ts == 0 {
		return payload
	}
	prefix := strconv.FormatInt(ts, 10) + "."
	input := make([]byte, 0, len(prefix)+len(payload))
	input = append(input, prefix...)
	input = append(input, payload...)
	return input
}

func hmacSHA256Hex(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateSecret returns a new random hex-encoded 32-byte signing secret for
// hmac_sha256 subscriptions.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
