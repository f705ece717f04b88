// Package backoff computes exponential backoff delays. Policies are pure
// values: the delay for an attempt depends only on the policy, the attempt
// number and an optional random value.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines exponential backoff parameters.
type Policy struct {
	// Base is the delay before the second attempt.
	Base time.Duration `yaml:"base"`
	// Max caps every computed delay.
	Max time.Duration `yaml:"max"`
	// Factor is the multiplier applied per attempt.
	Factor float64 `yaml:"factor"`
	// Jitter is the randomization fraction (0.0 to 1.0) added on top of the base delay.
	Jitter float64 `yaml:"jitter"`
}

// Delay returns the wait after the given failed attempt. Attempt numbers
// start at 1; attempt 1 yields Base.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand is Delay with a caller-supplied random value in [0.0, 1.0).
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	p = p.normalized()

	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Base) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*randomValue

	if total > float64(p.Max) {
		total = float64(p.Max)
	}
	return time.Duration(math.Round(total))
}

// Schedule lists the delays between attempts for maxAttempts tries, with no
// jitter. A policy retried three times has two waits.
func (p Policy) Schedule(maxAttempts int) []time.Duration {
	if maxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, 0, maxAttempts-1)
	for attempt := 1; attempt < maxAttempts; attempt++ {
		out = append(out, p.DelayWithRand(attempt, 0))
	}
	return out
}

func (p Policy) normalized() Policy {
	if p.Base <= 0 {
		p.Base = 100 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 30 * time.Second
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// RecordingPolicy is used when a call recording is not yet available:
// 2s, then 4s, capped at 10s, without jitter.
func RecordingPolicy() Policy {
	return Policy{
		Base:   2 * time.Second,
		Max:    10 * time.Second,
		Factor: 2,
	}
}

// NotificationPolicy is used for operator notification delivery.
// Initial: 500ms, Max: 30s, Factor: 2, Jitter: 20%
func NotificationPolicy() Policy {
	return Policy{
		Base:   500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}
