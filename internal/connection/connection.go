package connection

import (
	"fmt"

	"github.com/edgecomet/eventrelay/internal/event"
)

// Connection delivers events to a reporting backend.
//
// Send attempts delivery of one event and returns a *DeliveryError when the
// transport fails. Close releases held resources; callers must not rely on it
// being safe to call more than once.
type Connection interface {
	Send(ev *event.Event) error
	Close() error
}

// DeliveryError reports that a single event could not be transmitted
type DeliveryError struct {
	EventID   string
	Transport string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: failed to deliver event %s: %v", e.Transport, e.EventID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// WrappedCloseError is returned by AsyncConnection.Close when the wrapped
// connection failed to release its resources
type WrappedCloseError struct {
	Err error
}

func (e *WrappedCloseError) Error() string {
	return fmt.Sprintf("failed to close wrapped connection: %v", e.Err)
}

func (e *WrappedCloseError) Unwrap() error {
	return e.Err
}

// NoopConnection discards every event. Used when delivery is disabled.
type NoopConnection struct{}

// Send does nothing
func (NoopConnection) Send(*event.Event) error { return nil }

// Close returns nil
func (NoopConnection) Close() error { return nil }
