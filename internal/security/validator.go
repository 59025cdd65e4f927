// Package security provides the stateless validation layer for the delivery
// subsystem: target URL vetting (anti-SSRF), rate-limit bounds, header and
// payload checks, payload sanitization, and HMAC request signing.
//
// Every check returns a ValidationResult rather than an error: callers turn
// Valid=false into a hard rejection. Validation failures are never retried.
package security

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"go.hookrelay.dev/internal/common/metrics"
)

// ValidationResult is the structured outcome of a validator check
type ValidationResult struct {
	Valid   bool           `json:"valid"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func ok() ValidationResult {
	return ValidationResult{Valid: true}
}

func rejected(check, reason string, details map[string]any) ValidationResult {
	metrics.SecurityRejections.WithLabelValues(check).Inc()
	return ValidationResult{Valid: false, Reason: reason, Details: details}
}

// Bounds for subscription rate limits
const (
	MinRatePerHour = 1
	MaxRatePerHour = 10000
	MinRatePerDay  = 1
	MaxRatePerDay  = 100000
)

// DefaultMaxPayloadBytes is the default outbound payload cap (10 MiB)
const DefaultMaxPayloadBytes = 10 * 1024 * 1024

// blockedTLDs are throwaway top-level domains never valid as delivery targets
var blockedTLDs = []string{
	".test",
	".invalid",
	".localhost",
	".local",
	".example",
	".internal",
}

// protectedHeaders are authority-sensitive header names a subscription may
// not override with custom headers
var protectedHeaders = map[string]bool{
	"authorization":     true,
	"cookie":            true,
	"set-cookie":        true,
	"host":              true,
	"content-length":    true,
	"x-forwarded-for":   true,
	"x-forwarded-host":  true,
	"x-forwarded-proto": true,
	"x-real-ip":         true,
}

// injectionPatterns are substrings rejected in header values and stripped
// from payload string leaves
var injectionPatterns = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"data:",
	"onerror=",
	"onload=",
	"onclick=",
	"onmouseover=",
}

// MaxHeaderValueLength bounds custom header values
const MaxHeaderValueLength = 1000

// Validator performs stateless security checks against a configuration
type Validator struct {
	maxPayloadBytes int64
}

// NewValidator creates a validator. maxPayloadBytes <= 0 selects the default.
func NewValidator(maxPayloadBytes int64) *Validator {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Validator{maxPayloadBytes: maxPayloadBytes}
}

// ValidateTargetURL checks that a subscription target is a safe, public
// HTTP(S) endpoint. Loopback, link-local, RFC-1918 and otherwise non-global
// addresses are rejected to prevent server-side request forgery.
func (v *Validator) ValidateTargetURL(raw string) ValidationResult {
	if raw == "" {
		return rejected("target_url", "target URL is required", nil)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return rejected("target_url", "target URL is not parseable", map[string]any{"error": err.Error()})
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return rejected("target_url", "target URL scheme must be http or https",
			map[string]any{"scheme": u.Scheme})
	}

	host := u.Hostname()
	if host == "" {
		return rejected("target_url", "target URL has no host", nil)
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return rejected("target_url", "target URL port is out of range",
				map[string]any{"port": portStr})
		}
	}

	lowerHost := strings.ToLower(strings.TrimSuffix(host, "."))
	if lowerHost == "localhost" || strings.HasSuffix(lowerHost, ".localhost") {
		return rejected("target_url", "target URL resolves to loopback",
			map[string]any{"host": host})
	}

	for _, tld := range blockedTLDs {
		if strings.HasSuffix(lowerHost, tld) {
			return rejected("target_url", "target URL uses a blocked top-level domain",
				map[string]any{"host": host, "tld": tld})
		}
	}

	// Literal IP hosts are checked directly; hostnames are checked when they
	// parse as IPs after bracket stripping (IPv6)
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if reason := addrBlockReason(addr); reason != "" {
			return rejected("target_url", reason, map[string]any{"host": host})
		}
	}

	return ok()
}

// addrBlockReason classifies a literal address, returning a non-empty reason
// when the address must not be dialed.
func addrBlockReason(addr netip.Addr) string {
	switch {
	case addr.IsLoopback():
		return "target URL resolves to loopback"
	case addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
		return "target URL resolves to a link-local address"
	case addr.IsPrivate():
		return "target URL resolves to a private network range"
	case addr.IsUnspecified():
		return "target URL resolves to an unspecified address"
	case addr.IsMulticast():
		return "target URL resolves to a multicast address"
	}
	return ""
}

// IsBlockedIP reports whether a resolved IP must not be dialed. The dispatch
// executor consults this at connect time so DNS rebinding cannot route a
// validated hostname into a private range.
func IsBlockedIP(ip net.IP) bool {
	addr, okAddr := netip.AddrFromSlice(ip)
	if !okAddr {
		return true
	}
	return addrBlockReason(addr.Unmap()) != ""
}

// ValidateRateLimits bounds the per-hour and per-day delivery caps and
// requires perDay >= perHour.
func (v *Validator) ValidateRateLimits(perHour, perDay int) ValidationResult {
	if perHour < MinRatePerHour || perHour > MaxRatePerHour {
		return rejected("rate_limits",
			fmt.Sprintf("rateLimitPerHour must be between %d and %d", MinRatePerHour, MaxRatePerHour),
			map[string]any{"perHour": perHour})
	}
	if perDay < MinRatePerDay || perDay > MaxRatePerDay {
		return rejected("rate_limits",
			fmt.Sprintf("rateLimitPerDay must be between %d and %d", MinRatePerDay, MaxRatePerDay),
			map[string]any{"perDay": perDay})
	}
	if perDay < perHour {
		return rejected("rate_limits", "rateLimitPerDay must be at least rateLimitPerHour",
			map[string]any{"perHour": perHour, "perDay": perDay})
	}
	return ok()
}

// ValidateHeaders rejects custom headers that override authority-sensitive
// names, exceed the value length bound, or carry injection patterns.
func (v *Validator) ValidateHeaders(headers map[string]string) ValidationResult {
	for name, value := range headers {
		lower := strings.ToLower(strings.TrimSpace(name))
		if protectedHeaders[lower] {
			return rejected("headers", "custom header overrides a protected header",
				map[string]any{"header": name})
		}
		if len(value) > MaxHeaderValueLength {
			return rejected("headers", "custom header value exceeds maximum length",
				map[string]any{"header": name, "length": len(value)})
		}
		if strings.ContainsAny(value, "\r\n") {
			return rejected("headers", "custom header value contains line breaks",
				map[string]any{"header": name})
		}
		lowerValue := strings.ToLower(value)
		for _, pattern := range injectionPatterns {
			if strings.Contains(lowerValue, pattern) {
				return rejected("headers", "custom header value contains an injection pattern",
					map[string]any{"header": name, "pattern": pattern})
			}
		}
	}
	return ok()
}

// ValidatePayloadSize enforces the configured maximum serialized payload size.
func (v *Validator) ValidatePayloadSize(size int64) ValidationResult {
	if size > v.maxPayloadBytes {
		return rejected("payload_size", "payload exceeds maximum size",
			map[string]any{"size": size, "max": v.maxPayloadBytes})
	}
	return ok()
}
