package stream

import "time"

// ConnectionState is the single lifecycle state of the stream client. Only
// the client's event loop mutates it.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Open
	Backoff
	CircuitOpen
	HealthChecking
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Backoff:
		return "backoff"
	case CircuitOpen:
		return "circuit-open"
	case HealthChecking:
		return "health-checking"
	default:
		return "unknown"
	}
}

// failureTracker counts consecutive transport failures and owns the circuit
// breaker flag. The circuit opens exactly when the count reaches the
// configured threshold and is cleared only by a confirmed connection.
type failureTracker struct {
	consecutiveFailures int
	lastFailureAt       time.Time
	circuitOpen         bool
}

// failure records one transport failure and reports whether this failure is
// the one that opened the circuit
func (f *failureTracker) failure(now time.Time, threshold int) (opened bool) {
	f.consecutiveFailures++
	f.lastFailureAt = now

	if !f.circuitOpen && f.consecutiveFailures >= threshold {
		f.circuitOpen = true
		return true
	}
	return false
}

func (f *failureTracker) reset() {
	f.consecutiveFailures = 0
	f.circuitOpen = false
}
