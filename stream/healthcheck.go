package stream

import (
	"fmt"
	"time"
)

// healthSchedule exists only while the circuit breaker is open. It owns the
// probe interval progression and the two hard caps that permanently end
// health checking: a maximum attempt count and a maximum total wall-clock
// duration since the circuit opened.
type healthSchedule struct {
	attempt   int
	startedAt time.Time
	planner   *reconnectPlanner

	maxAttempts int
	maxElapsed  time.Duration
}

func newHealthSchedule(conf Config, now time.Time) *healthSchedule {
	return &healthSchedule{
		startedAt:   now,
		planner:     newReconnectPlanner(conf.HealthCheckInitialInterval, conf.HealthCheckMaxInterval, conf.HealthCheckMultiplier),
		maxAttempts: conf.HealthCheckMaxAttempts,
		maxElapsed:  conf.HealthCheckMaxElapsed,
	}
}

// exhausted reports whether either hard cap has been hit. Once it returns a
// non-nil error the schedule must never be consulted again.
func (h *healthSchedule) exhausted(now time.Time) error {
	if h.attempt >= h.maxAttempts {
		return &HealthCheckExhaustedError{
			Attempts: h.attempt,
			Elapsed:  now.Sub(h.startedAt),
			Reason:   fmt.Sprintf("reached the maximum of %d attempts", h.maxAttempts),
		}
	}

	if elapsed := now.Sub(h.startedAt); elapsed >= h.maxElapsed {
		return &HealthCheckExhaustedError{
			Attempts: h.attempt,
			Elapsed:  elapsed,
			Reason:   fmt.Sprintf("exceeded the maximum total duration of %s", h.maxElapsed),
		}
	}

	return nil
}

// nextInterval returns the delay before the next probe and counts it as an
// attempt
func (h *healthSchedule) nextInterval() time.Duration {
	h.attempt++
	return h.planner.next().delay
}
