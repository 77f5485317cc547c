// options.go holds client configuration and its functional options.

package raven

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/strongdm/raven-observe/pkg/raven/transport"
)

// Environment variables read when the matching option is not given.
const (
	EnvDSN         = "SENTRY_DSN"
	EnvName        = "SENTRY_NAME"
	EnvRelease     = "SENTRY_RELEASE"
	EnvEnvironment = "SENTRY_ENVIRONMENT"
)

// DataCallback may modify or replace an event before it is sent. Returning
// nil drops the event.
type DataCallback func(ev *Event) *Event

// ShouldSendCallback decides whether an event is sent at all.
type ShouldSendCallback func(ev *Event) bool

// AutoBreadcrumbs selects the automatic breadcrumb sources.
type AutoBreadcrumbs struct {
	// Console records entries logged through the global zap logger. The
	// global logger carries no context, so these breadcrumbs always go to
	// the global scope and are not attached to events captured on a local
	// scope. Log through zap.New(Client.BreadcrumbCore(ctx, level)) to
	// record breadcrumbs on the scope of a request.
	Console bool `yaml:"console"`

	// HTTP records outgoing requests made through http.DefaultTransport.
	HTTP bool `yaml:"http"`
}

// Option configures a Client.
type Option func(*config)

type config struct {
	dsn         *string
	name        *string
	root        string
	release     *string
	environment *string
	loggerName  string

	tags  map[string]string
	extra map[string]any

	dataCallback   DataCallback
	shouldSend     ShouldSendCallback
	transport      transport.Transport
	extraTransport []transport.Transport
	sendTimeout    time.Duration
	maxInFlight    int
	maxBreadcrumbs int
	ca             []byte
	proxy          *transport.ProxyConfig
	headers        map[string]string

	legacyChecksum bool
	signature      bool
	observers      []Observer
	logger         *zap.Logger
	modules        map[string]string
	scrubber       *Scrubber
	auto           AutoBreadcrumbs

	lookupEnv  func(string) (string, bool)
	readSource func(string) ([]byte, error)
	now        func() time.Time
}

func newConfig(opts []Option) *config {
	cfg := &config{
		sendTimeout:    transport.DefaultTimeout,
		maxInFlight:    transport.DefaultMaxInFlight,
		maxBreadcrumbs: DefaultMaxBreadcrumbs,
		headers:        map[string]string{},
		logger:         zap.NewNop(),
		lookupEnv:      os.LookupEnv,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// env returns the explicit value if set, else the environment variable.
func (c *config) env(explicit *string, key string) string {
	if explicit != nil {
		return *explicit
	}
	v, _ := c.lookupEnv(key)
	return v
}

// WithDSN sets the connection string. An empty DSN disables the client.
// Without this option SENTRY_DSN is used.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = &dsn
	}
}

// WithName sets the reported server name (default: SENTRY_NAME, then the
// hostname).
func WithName(name string) Option {
	return func(c *config) {
		c.name = &name
	}
}

// WithRoot sets the application root used to derive frame modules
// (default: the working directory).
func WithRoot(root string) Option {
	return func(c *config) {
		c.root = root
	}
}

// WithRelease sets the release (default: SENTRY_RELEASE).
func WithRelease(release string) Option {
	return func(c *config) {
		c.release = &release
	}
}

// WithEnvironment sets the environment (default: SENTRY_ENVIRONMENT).
func WithEnvironment(env string) Option {
	return func(c *config) {
		c.environment = &env
	}
}

// WithLoggerName sets the logger name reported on events.
func WithLoggerName(name string) Option {
	return func(c *config) {
		c.loggerName = name
	}
}

// WithTags sets tags on the global scope.
func WithTags(tags map[string]string) Option {
	return func(c *config) {
		c.tags = tags
	}
}

// WithExtra sets extra data on the global scope.
func WithExtra(extra map[string]any) Option {
	return func(c *config) {
		c.extra = extra
	}
}

// WithDataCallback sets the first data callback. See Client.SetDataCallback
// for composing more.
func WithDataCallback(cb DataCallback) Option {
	return func(c *config) {
		c.dataCallback = cb
	}
}

// WithShouldSendCallback sets the send predicate. Events it rejects are
// dropped without a logged or error signal; CaptureObservers see OnFiltered.
func WithShouldSendCallback(cb ShouldSendCallback) Option {
	return func(c *config) {
		c.shouldSend = cb
	}
}

// WithTransport replaces the transport picked from the DSN scheme.
func WithTransport(t transport.Transport) Option {
	return func(c *config) {
		c.transport = t
	}
}

// WithAdditionalTransport also sends every event through t, alongside the
// primary transport. Delivery fails if any transport fails.
func WithAdditionalTransport(t transport.Transport) Option {
	return func(c *config) {
		if t != nil {
			c.extraTransport = append(c.extraTransport, t)
		}
	}
}

// WithSendTimeout bounds each send (default: 1s).
func WithSendTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sendTimeout = d
		}
	}
}

// WithMaxReqQueueCount sets the in-flight request ceiling per endpoint
// (default: 100).
func WithMaxReqQueueCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxInFlight = n
		}
	}
}

// WithMaxBreadcrumbs sets the breadcrumb capacity of each scope (default: 30,
// at most 100). Zero disables breadcrumbs.
func WithMaxBreadcrumbs(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxBreadcrumbs = min(n, MaxBreadcrumbsLimit)
		}
	}
}

// WithCA trusts the given PEM encoded certificates for HTTPS.
func WithCA(pem []byte) Option {
	return func(c *config) {
		c.ca = pem
	}
}

// WithProxy sends HTTP and HTTPS events through a proxy.
func WithProxy(p transport.ProxyConfig) Option {
	return func(c *config) {
		c.proxy = &p
	}
}

// WithHeader adds a header, such as a Cookie, to every HTTP request.
func WithHeader(key, value string) Option {
	return func(c *config) {
		c.headers[key] = value
	}
}

// WithLegacyChecksum sets the checksum field to the MD5 of the message.
func WithLegacyChecksum() Option {
	return func(c *config) {
		c.legacyChecksum = true
	}
}

// WithSignature adds the legacy HMAC-SHA1 signature to the auth header. It
// has no effect when the DSN carries no private key.
func WithSignature() Option {
	return func(c *config) {
		c.signature = true
	}
}

// WithObserver registers an observer for the client's lifetime.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLogger sets the logger used for client diagnostics (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithModules replaces the module snapshot read from the build info.
func WithModules(modules map[string]string) Option {
	return func(c *config) {
		c.modules = modules
	}
}

// WithScrubbing redacts sensitive data before events are sent.
func WithScrubbing(cfg ScrubberConfig) Option {
	return func(c *config) {
		c.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() Option {
	return WithScrubbing(DefaultScrubberConfig())
}

// WithAutoBreadcrumbs installs automatic breadcrumb sources. They hook
// process-wide defaults and are removed again by Client.Close.
func WithAutoBreadcrumbs(auto AutoBreadcrumbs) Option {
	return func(c *config) {
		c.auto = auto
	}
}
