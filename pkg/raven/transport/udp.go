// udp.go sends events as single datagrams.

package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// UDPTransport writes each event as one "<auth>\n\n<body>" datagram. There
// is no acknowledgement: a successful write counts as logged.
type UDPTransport struct {
	dialer  net.Dialer
	timeout time.Duration
	logger  *zap.Logger
	closed  atomic.Bool
}

// NewUDP creates a UDP transport.
func NewUDP(opts ...Option) *UDPTransport {
	o := newOptions(opts)
	return &UDPTransport{
		dialer:  net.Dialer{Timeout: o.timeout},
		timeout: o.timeout,
		logger:  o.logger,
	}
}

// Send writes the datagram.
func (t *UDPTransport) Send(ctx context.Context, msg *Message) error {
	if t.closed.Load() {
		return ErrClosed
	}

	conn, err := t.dialer.DialContext(ctx, "udp", msg.Endpoint.Address())
	if err != nil {
		return fmt.Errorf("dial udp %s: %w", msg.Endpoint.Address(), err)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)

	packet := make([]byte, 0, len(msg.Auth)+2+len(msg.Body))
	packet = append(packet, msg.Auth...)
	packet = append(packet, '\n', '\n')
	packet = append(packet, msg.Body...)

	if _, err := conn.Write(packet); err != nil {
		t.logger.Debug("UDP write failed",
			zap.String("event_id", msg.EventID),
			zap.Error(err))
		return fmt.Errorf("write udp: %w", err)
	}
	t.logger.Debug("event sent",
		zap.String("event_id", msg.EventID),
		zap.Int("bytes", len(packet)))
	return nil
}

// Close marks the transport closed. Sockets are per-send, nothing is pooled.
func (t *UDPTransport) Close() error {
	t.closed.Store(true)
	return nil
}
