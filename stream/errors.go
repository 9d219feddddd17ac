package stream

import (
	"errors"
	"fmt"
	"time"
)

// ErrSendUnsupported is returned by Send; the event stream is receive-only
var ErrSendUnsupported = errors.New("the event stream is receive-only and does not support sending")

// TransportFailureError means the underlying connection errored or closed
// unexpectedly. Retryable; the client handles it internally.
type TransportFailureError struct {
	InnerErr error
}

func (e *TransportFailureError) Error() string {
	if e.InnerErr == nil {
		return "the stream transport failed"
	}
	return fmt.Sprintf("the stream transport failed: %s", e.InnerErr)
}

func (e *TransportFailureError) Unwrap() error { return e.InnerErr }

// ConnectionTimeoutError means the connection watchdog expired (grace period
// included) without a confirmed connection. Treated like any other transport
// failure.
type ConnectionTimeoutError struct {
	Timeout time.Duration
}

func (e *ConnectionTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting %s for the connection to be confirmed", e.Timeout)
}

func (e *ConnectionTimeoutError) Unwrap() error { return nil }

// ResourceGoneError means the existence probe confirmed the stream's resource
// has been removed server-side. Terminal: the client will never reconnect.
type ResourceGoneError struct {
	ClientId string
}

func (e *ResourceGoneError) Error() string {
	return fmt.Sprintf("the stream resource for client %s no longer exists on the backend", e.ClientId)
}

func (e *ResourceGoneError) Unwrap() error { return nil }

// HealthCheckExhaustedError means the health-check scheduler hit one of its
// hard caps while the circuit was open. Terminal: the client will never
// reconnect.
type HealthCheckExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Reason   string
}

func (e *HealthCheckExhaustedError) Error() string {
	return fmt.Sprintf("health checking stopped permanently after %d attempts over %s: %s", e.Attempts, e.Elapsed.Round(time.Second), e.Reason)
}

func (e *HealthCheckExhaustedError) Unwrap() error { return nil }

// IsTerminal reports whether an error surfaced through OnError means the
// client has permanently stopped reconnecting and the kiosk needs to do
// something user-visible about it. Everything else is expected to self-heal.
func IsTerminal(err error) bool {
	var gone *ResourceGoneError
	var exhausted *HealthCheckExhaustedError
	return errors.As(err, &gone) || errors.As(err, &exhausted)
}
