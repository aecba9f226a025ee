package backoff

import (
	"testing"
	"time"
)

func TestComputeWithRand(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name    string
		attempt int
		random  float64
		want    time.Duration
	}{
		{"first attempt at minimum", 1, 0, 8 * time.Second},
		{"second attempt doubles", 2, 0, 16 * time.Second},
		{"third attempt", 3, 0, 32 * time.Second},
		{"fourth attempt at maximum", 4, 0, 64 * time.Second},
		{"fifth attempt clamped", 5, 0, 64 * time.Second},
		{"jitter added below cap", 2, 1.0, 16*time.Second + 1600*time.Millisecond},
		{"jitter never exceeds cap", 4, 1.0, 64 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWithRand(policy, tt.attempt, tt.random)
			if got != tt.want {
				t.Errorf("ComputeWithRand(attempt=%d, r=%v) = %v, want %v", tt.attempt, tt.random, got, tt.want)
			}
		})
	}
}

func TestComputeClampsToMinWait(t *testing.T) {
	policy := Policy{Multiplier: 1, MinWait: 5 * time.Second, MaxWait: 60 * time.Second, Jitter: 0}
	if got := ComputeWithRand(policy, 1, 0); got != 5*time.Second {
		t.Errorf("got %v, want MinWait clamp 5s", got)
	}
}

func TestComputeWithinBounds(t *testing.T) {
	policy := DefaultPolicy()
	for attempt := 1; attempt <= 10; attempt++ {
		got := Compute(policy, attempt)
		if got < policy.MinWait || got > policy.MaxWait {
			t.Errorf("attempt %d: %v outside [%v, %v]", attempt, got, policy.MinWait, policy.MaxWait)
		}
	}
}
