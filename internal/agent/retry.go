// internal/agent/retry.go
package agent

import (
	"math"
	"time"

	"github.com/xkilldash9x/uipilot/internal/config"
)

// RetryPolicy decides how long to wait after a failed cycle and when to give
// up. The zero MaxConsecutiveFailures retries forever.
type RetryPolicy struct {
	BaseDelay              time.Duration
	Multiplier             float64
	MaxDelay               time.Duration
	MaxConsecutiveFailures int
}

// NewRetryPolicy builds the policy from agent configuration.
func NewRetryPolicy(cfg config.AgentConfig) RetryPolicy {
	return RetryPolicy{
		BaseDelay:              cfg.FailureDelay,
		Multiplier:             cfg.Retry.BackoffMultiplier,
		MaxDelay:               cfg.Retry.MaxFailureDelay,
		MaxConsecutiveFailures: cfg.Retry.MaxConsecutiveFailures,
	}
}

// Delay returns the wait before the next cycle after the given number of
// consecutive failures (1 for the first failure).
func (p RetryPolicy) Delay(consecutive int) time.Duration {
	if consecutive < 1 {
		consecutive = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(consecutive-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Exhausted reports whether the run should stop after this many
// consecutive failures.
func (p RetryPolicy) Exhausted(consecutive int) bool {
	return p.MaxConsecutiveFailures > 0 && consecutive >= p.MaxConsecutiveFailures
}
