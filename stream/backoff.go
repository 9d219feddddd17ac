package stream

import (
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// reconnectPlan is the ephemeral output of the planner: which attempt this is
// and how long to wait before it
type reconnectPlan struct {
	attempt int
	delay   time.Duration
}

// reconnectPlanner computes retry delays as
// min(initial * multiplier^attempt, max). Randomization is deliberately off:
// a kiosk is the only client of its own stream, so jitter buys nothing and
// determinism keeps the behavior auditable.
type reconnectPlanner struct {
	attempt int
	params  *backoff.ExponentialBackOff
}

func newReconnectPlanner(initial, max time.Duration, multiplier float64) *reconnectPlanner {
	params := backoff.NewExponentialBackOff()
	params.InitialInterval = initial
	params.MaxInterval = max
	params.Multiplier = multiplier
	params.RandomizationFactor = 0
	// The circuit breaker decides when to stop retrying, not elapsed time
	params.MaxElapsedTime = 0
	params.Reset()

	return &reconnectPlanner{params: params}
}

// next returns the plan for the upcoming retry and advances the progression
func (p *reconnectPlanner) next() reconnectPlan {
	plan := reconnectPlan{
		attempt: p.attempt,
		delay:   p.params.NextBackOff(),
	}
	p.attempt++
	return plan
}

func (p *reconnectPlanner) reset() {
	p.attempt = 0
	p.params.Reset()
}
