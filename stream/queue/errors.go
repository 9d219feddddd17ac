package queue

import "fmt"

// PersistenceError means the durable store could not be read or written. The
// queue keeps operating in memory when this happens.
type PersistenceError struct {
	Operation string
	InnerErr  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("offline queue failed to %s its snapshot: %s", e.Operation, e.InnerErr)
}

func (e *PersistenceError) Unwrap() error { return e.InnerErr }
