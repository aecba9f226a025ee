// Package backoff provides exponential backoff utilities with jitter for
// the LLM gateway retry loop.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Multiplier scales the exponential term.
	Multiplier float64
	// MinWait is the lower clamp on the computed wait.
	MinWait time.Duration
	// MaxWait is the upper clamp on the computed wait.
	MaxWait time.Duration
	// Jitter is the randomization factor (0.0 to 1.0) applied on top of
	// the base wait.
	Jitter float64
}

// DefaultPolicy returns the gateway's default retry policy.
// Multiplier: 8, MinWait: 8s, MaxWait: 64s, Jitter: 10%.
func DefaultPolicy() Policy {
	return Policy{
		Multiplier: 8,
		MinWait:    8 * time.Second,
		MaxWait:    64 * time.Second,
		Jitter:     0.1,
	}
}

// Compute calculates the wait before retry attempt n (attempts start at 1).
// The base is multiplier * 2^(attempt-1) seconds, clamped to
// [MinWait, MaxWait]; jitter is added after clamping the base.
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand calculates the wait using a provided random value in
// [0.0, 1.0). Useful for deterministic tests.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.Multiplier * math.Pow(2, exp) * float64(time.Second)

	base = math.Min(base, float64(policy.MaxWait))
	base = math.Max(base, float64(policy.MinWait))

	jitter := base * policy.Jitter * randomValue
	total := math.Min(base+jitter, float64(policy.MaxWait))

	return time.Duration(total)
}
