// Package transport delivers encoded events to a Sentry endpoint.
//
// A [Transport] sends one [Message] per call. Implementations exist for
// HTTP and HTTPS (optionally through a proxy), UDP and a stderr debug
// transport. [ForScheme] picks the implementation for a DSN wire scheme.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/strongdm/raven-observe/pkg/raven/dsn"
)

var (
	// ErrQueueFull is returned when the in-flight ceiling for an endpoint is
	// reached. The message was not sent.
	ErrQueueFull = errors.New("client req queue is full")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("transport is closed")
)

// Transport delivers messages. Implementations must be safe for concurrent use.
type Transport interface {
	// Send delivers msg and returns nil once the endpoint accepted it.
	// Send blocks until delivery completes, fails or times out.
	Send(ctx context.Context, msg *Message) error

	// Close releases pooled resources. Send returns ErrClosed afterwards.
	Close() error
}

// Message is one encoded event ready for the wire.
type Message struct {
	EventID  string
	Endpoint *dsn.Endpoint

	// Auth is the value of the X-Sentry-Auth header.
	Auth string

	// Body is base64(deflate(JSON(event))).
	Body []byte
}

// Outcome is the disposition of a send.
type Outcome int

const (
	// Logged means the endpoint accepted the event, or for UDP that the
	// datagram was handed to the operating system.
	Logged Outcome = iota

	// Failed means the send did not succeed; Result.Err holds the reason.
	Failed
)

func (o Outcome) String() string {
	if o == Logged {
		return "logged"
	}
	return "failed"
}

// Result reports what happened to one event.
type Result struct {
	EventID string
	Outcome Outcome
	Err     error
}

// NewResult builds the result of a Send call.
func NewResult(eventID string, err error) Result {
	if err != nil {
		return Result{EventID: eventID, Outcome: Failed, Err: err}
	}
	return Result{EventID: eventID, Outcome: Logged}
}

// SendError describes a failed HTTP delivery.
type SendError struct {
	// StatusCode is 0 for connection-level failures.
	StatusCode int

	// Reason is the server supplied X-Sentry-Error header, if any.
	Reason string

	Err error
}

func (e *SendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("send failed: %v", e.Err)
	}
	return fmt.Sprintf("HTTP Error (%d): %s", e.StatusCode, e.Reason)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Factory builds a transport from options.
type Factory func(opts ...Option) (Transport, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"http":  newHTTPFactory,
		"https": newHTTPFactory,
		"udp":   newUDPFactory,
	}
)

func newHTTPFactory(opts ...Option) (Transport, error) { return NewHTTP(opts...) }
func newUDPFactory(opts ...Option) (Transport, error)  { return NewUDP(opts...), nil }

// Register adds a transport for a wire scheme and makes the scheme
// acceptable to dsn.Parse.
func Register(scheme string, defaultPort int, f Factory) {
	registryMu.Lock()
	registry[scheme] = f
	registryMu.Unlock()
	dsn.RegisterScheme(scheme, defaultPort)
}

// ForScheme builds the transport registered for scheme.
func ForScheme(scheme string, opts ...Option) (Transport, error) {
	registryMu.RLock()
	f, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", dsn.ErrUnsupportedTransport, scheme)
	}
	return f(opts...)
}

// Schemes lists the registered schemes.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
