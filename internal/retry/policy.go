// Package retry computes backoff schedules for failed delivery attempts.
// The policy is pure: current time and randomness are inputs, never read
// from ambient state, so schedules are reproducible in tests.
package retry

import (
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 5 * time.Minute
	defaultJitterRatio = 0.2
)

// Policy holds the retry/backoff configuration for one worker deployment.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterRatio float64

	// randFloat returns a value in [0, 1). Injected for determinism.
	randFloat func() float64
}

// NewPolicy builds a policy, normalizing out-of-range values to defaults.
func NewPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, jitterRatio float64) Policy {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	if jitterRatio < 0 || jitterRatio > 1 {
		jitterRatio = defaultJitterRatio
	}

	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		JitterRatio: jitterRatio,
		randFloat:   rand.Float64,
	}
}

// WithRand returns a copy of the policy using randFn for jitter.
func (p Policy) WithRand(randFn func() float64) Policy {
	p.randFloat = randFn
	return p
}

// NextEligible returns when the delivery becomes claimable again after the
// given attempt number (1-based). Exponential growth from BaseDelay capped at
// MaxDelay, with bounded jitter in both directions. The result is never
// before now: backoff is always forward-looking.
func (p Policy) NextEligible(now time.Time, attemptNumber int) time.Time {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterRatio > 0 && p.randFloat != nil {
		// randFloat in [0,1) maps to jitter in [-ratio, +ratio).
		jitter := (p.randFloat()*2 - 1) * p.JitterRatio
		delay += time.Duration(float64(delay) * jitter)
	}
	if delay < 0 {
		delay = 0
	}

	return now.Add(delay)
}

// IsExhausted reports whether attemptCount has used up the attempt budget.
func (p Policy) IsExhausted(attemptCount int) bool {
	return attemptCount >= p.MaxAttempts
}
