package dispatch

import (
	"errors"
	"fmt"
)

// ErrNoHandler is returned when an event type or batch operation has no
// registered handler.
var ErrNoHandler = errors.New("no handler registered")

// HandlerError wraps a fault raised by a handler. Index is the position of
// the failing item in a batch, or -1 for a single dispatch.
type HandlerError struct {
	EventType string
	Index     int
	Err       error
}

func (e *HandlerError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("handler %s failed on item %d: %v", e.EventType, e.Index, e.Err)
	}
	return fmt.Sprintf("handler %s failed: %v", e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
