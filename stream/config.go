package stream

import "time"

// Config holds the client's tuning constants. These are constants in spirit:
// the zero value gets the defaults below, and production kiosks run with
// them. Tests shrink the durations.
type Config struct {
	// Reconnect backoff: delay grows as
	// min(InitialReconnectDelay * ReconnectMultiplier^attempt, MaxReconnectDelay)
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	ReconnectMultiplier   float64

	// Consecutive failures before the circuit breaker opens
	CircuitBreakerThreshold int

	// How long a connection attempt may remain unconfirmed, and the single
	// grace extension granted for a late first message
	ConnectTimeout     time.Duration
	ConnectGracePeriod time.Duration

	// Health-check probing while the circuit is open; same backoff formula
	// with its own (larger) ceiling
	HealthCheckInitialInterval time.Duration
	HealthCheckMaxInterval     time.Duration
	HealthCheckMultiplier      float64

	// Hard, irreversible stops for health checking
	HealthCheckMaxAttempts int
	HealthCheckMaxElapsed  time.Duration

	// How long each health-check attempt is given to resolve before the next
	// probe is scheduled
	HealthCheckSettle time.Duration

	// Offline queue capacity; oldest entries are evicted beyond this
	QueueCapacity int
}

func (c Config) withDefaults() Config {
	if c.InitialReconnectDelay == 0 {
		c.InitialReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.ReconnectMultiplier == 0 {
		c.ReconnectMultiplier = 2.0
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ConnectGracePeriod == 0 {
		c.ConnectGracePeriod = 2 * time.Second
	}
	if c.HealthCheckInitialInterval == 0 {
		c.HealthCheckInitialInterval = 5 * time.Second
	}
	if c.HealthCheckMaxInterval == 0 {
		c.HealthCheckMaxInterval = 5 * time.Minute
	}
	if c.HealthCheckMultiplier == 0 {
		c.HealthCheckMultiplier = 2.0
	}
	if c.HealthCheckMaxAttempts == 0 {
		c.HealthCheckMaxAttempts = 20
	}
	if c.HealthCheckMaxElapsed == 0 {
		c.HealthCheckMaxElapsed = time.Hour
	}
	if c.HealthCheckSettle == 0 {
		c.HealthCheckSettle = 2 * time.Second
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 100
	}
	return c
}
