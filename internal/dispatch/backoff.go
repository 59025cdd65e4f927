package dispatch

import (
	"math"
	"time"

	"go.hookrelay.dev/internal/registry"
)

// backoffDelay computes the wait before the next attempt:
// min(maxBackoff, base * multiplier^attempts), attempts being the count
// after the failed attempt was recorded.
func backoffDelay(policy registry.DeliveryPolicy, attempts int) time.Duration {
	base := float64(policy.BackoffBaseSeconds)
	if base <= 0 {
		base = float64(registry.DefaultBackoffBaseSeconds)
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = registry.DefaultBackoffMultiplier
	}
	maxSeconds := float64(policy.MaxBackoffSeconds)
	if maxSeconds <= 0 {
		maxSeconds = float64(registry.DefaultMaxBackoffSeconds)
	}

	seconds := base * math.Pow(multiplier, float64(attempts))
	if seconds > maxSeconds {
		seconds = maxSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}
