package connection

import (
	"errors"

	"github.com/edgecomet/eventrelay/internal/event"
)

// MultiConnection sends every event through several connections
type MultiConnection struct {
	connections []Connection
}

// NewMultiConnection fans out to all provided connections
func NewMultiConnection(connections ...Connection) *MultiConnection {
	return &MultiConnection{connections: connections}
}

// Send delivers to every connection, even when one fails, and joins the errors
func (m *MultiConnection) Send(ev *event.Event) error {
	var errs []error
	for _, c := range m.connections {
		if err := c.Send(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all connections and returns any errors combined
func (m *MultiConnection) Close() error {
	var errs []error
	for _, c := range m.connections {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
