// options.go holds the functional options shared by all transports.

package transport

import (
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single send.
	DefaultTimeout = time.Second

	// DefaultMaxInFlight is the per-endpoint in-flight request ceiling.
	DefaultMaxInFlight = 100
)

// Option configures a transport.
type Option func(*options)

type options struct {
	timeout     time.Duration
	maxInFlight int
	caPEM       []byte
	proxy       *ProxyConfig
	logger      *zap.Logger
	headers     map[string]string
	roundTrip   http.RoundTripper
	writer      io.Writer
	verbose     bool
}

func newOptions(opts []Option) *options {
	o := &options{
		timeout:     DefaultTimeout,
		maxInFlight: DefaultMaxInFlight,
		logger:      zap.NewNop(),
		headers:     map[string]string{},
		writer:      os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTimeout bounds each send (default: 1s).
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxInFlight sets how many requests may be in flight to one endpoint
// before new sends fail with ErrQueueFull (default: 100).
func WithMaxInFlight(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxInFlight = n
		}
	}
}

// WithCA trusts the given PEM encoded certificates for HTTPS.
func WithCA(pem []byte) Option {
	return func(o *options) {
		o.caPEM = pem
	}
}

// WithProxy routes HTTP and HTTPS sends through a proxy.
func WithProxy(p ProxyConfig) Option {
	return func(o *options) {
		o.proxy = &p
	}
}

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHeader adds a header to every HTTP request, e.g. a Cookie.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

// WithRoundTripper replaces the pooled HTTP transport.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.roundTrip = rt
	}
}

// WithWriter sets the destination of the stderr transport.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

// WithVerbose makes the stderr transport print decoded event bodies.
func WithVerbose() Option {
	return func(o *options) {
		o.verbose = true
	}
}
