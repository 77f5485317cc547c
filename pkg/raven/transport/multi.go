// multi.go fans messages out to several transports.

package transport

import (
	"context"
	"errors"
)

// MultiTransport sends every message to all of its transports.
type MultiTransport struct {
	transports []Transport
}

// NewMulti creates a transport that sends to all ts in order. Nil entries
// are skipped.
func NewMulti(ts ...Transport) *MultiTransport {
	m := &MultiTransport{}
	for _, t := range ts {
		if t != nil {
			m.transports = append(m.transports, t)
		}
	}
	return m
}

// Send delivers msg to every transport, even if some fail, and joins their
// errors.
func (m *MultiTransport) Send(ctx context.Context, msg *Message) error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport, collecting any errors.
func (m *MultiTransport) Close() error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
