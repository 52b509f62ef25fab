package stepwire

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when a task is started while another
	// one is active on the same bridge.
	ErrAlreadyRunning = errors.New("task already running")

	// ErrTaskActive is returned by ClearLog while a task is in flight.
	ErrTaskActive = errors.New("task is active")

	// ErrUnknownTask is returned when no definition is registered under
	// the requested name.
	ErrUnknownTask = errors.New("unknown task")
)

// TransportError represents a connection-level I/O failure. A task that
// ends this way is treated as terminated, not cancelled.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("transport: %s", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// newTransportError wraps a connection-level failure.
func newTransportError(op string, cause error) *TransportError {
	return &TransportError{Op: op, Cause: cause}
}
