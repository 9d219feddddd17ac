package message

import "fmt"

// ValidationError means an inbound frame was structurally or semantically
// invalid. It is logged by the stream client and never surfaced to consumers.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message failed validation: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return nil }
