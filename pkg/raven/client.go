// client.go provides the Client interface and default implementation.

package raven

import (
	"context"
	"maps"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/strongdm/raven-observe/pkg/raven/dsn"
	"github.com/strongdm/raven-observe/pkg/raven/stacktrace"
	"github.com/strongdm/raven-observe/pkg/raven/transport"
)

// Version is the client version reported in the auth header.
const Version = "1.0.0"

// UserAgent identifies this client to the server.
const UserAgent = "raven-go/" + Version

// Client captures events and ships them to Sentry.
//
// Capture calls never fail and never block on the network: they return the
// event id (empty for a disabled client) and deliver in the background.
// Delivery outcomes are reported to observers.
type Client interface {
	// CaptureMessage records a message event.
	CaptureMessage(ctx context.Context, message string, opts *CaptureOptions) string

	// CaptureException records an exception event. Values that are not
	// errors are wrapped in a ValueError.
	CaptureException(ctx context.Context, v any, opts *CaptureOptions) string

	// CaptureError is CaptureException for error values.
	CaptureError(ctx context.Context, err error, opts *CaptureOptions) string

	// CaptureQuery records a query event (legacy).
	CaptureQuery(ctx context.Context, query, engine string, opts *CaptureOptions) string

	// CaptureBreadcrumb adds a breadcrumb to the active scope.
	CaptureBreadcrumb(ctx context.Context, crumb Breadcrumb)

	// SetUserContext replaces the user on the active scope.
	SetUserContext(ctx context.Context, user *User)

	// SetExtraContext merges extra data into the active scope.
	SetExtraContext(ctx context.Context, extra map[string]any)

	// SetTagsContext merges tags into the active scope.
	SetTagsContext(ctx context.Context, tags map[string]string)

	// ActiveScope returns the local scope of ctx, or the global scope.
	ActiveScope(ctx context.Context) *Scope

	// GlobalScope returns the client's global scope.
	GlobalScope() *Scope

	// BranchScope returns a context carrying a new local scope branched from
	// the active scope of ctx.
	BranchScope(ctx context.Context) (context.Context, *Scope)

	// RunScoped runs fn with a new local scope. Everything fn starts with the
	// given context, including goroutines, shares that scope.
	RunScoped(ctx context.Context, fn func(ctx context.Context))

	// SetDataCallback composes a new data callback. fn receives the current
	// callback (possibly nil) and returns its replacement.
	SetDataCallback(fn func(prev DataCallback) DataCallback)

	// SetShouldSendCallback composes a new send predicate like SetDataCallback.
	SetShouldSendCallback(fn func(prev ShouldSendCallback) ShouldSendCallback)

	// AddObserver registers o and returns a function removing it.
	AddObserver(o Observer) (remove func())

	// BreadcrumbCore returns a zap core recording log entries as breadcrumbs
	// on the active scope of ctx.
	BreadcrumbCore(ctx context.Context, enab zapcore.LevelEnabler) zapcore.Core

	// Enabled reports whether a DSN is configured.
	Enabled() bool

	// Endpoint returns the parsed DSN, or nil for a disabled client.
	Endpoint() *dsn.Endpoint

	// Flush waits for in-flight sends to finish or ctx to be done.
	Flush(ctx context.Context) error

	// Close waits for in-flight sends, releases the transport and removes
	// automatic breadcrumb hooks.
	Close() error
}

type client struct {
	cfg       *config
	enabled   bool
	endpoint  *dsn.Endpoint
	transport transport.Transport
	resolver  *stacktrace.Resolver
	global    *Scope
	logger    *zap.Logger
	observers *observerSet

	serverName  string
	release     string
	environment string
	modules     map[string]string

	cbMu         sync.Mutex
	dataCallback atomic.Pointer[DataCallback]
	shouldSend   atomic.Pointer[ShouldSendCallback]

	inflight  sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	restores  []func()
}

// New creates a client. A missing or empty DSN yields a disabled client whose
// capture calls do nothing. Malformed DSNs and unknown schemes are errors.
func New(opts ...Option) (Client, error) {
	cfg := newConfig(opts)

	endpoint, err := dsn.Parse(cfg.env(cfg.dsn, EnvDSN))
	if err != nil {
		return nil, err
	}

	c := &client{
		cfg:         cfg,
		endpoint:    endpoint,
		enabled:     endpoint != nil,
		logger:      cfg.logger,
		observers:   newObserverSet(cfg.observers),
		serverName:  cfg.env(cfg.name, EnvName),
		release:     cfg.env(cfg.release, EnvRelease),
		environment: cfg.env(cfg.environment, EnvEnvironment),
	}
	if c.serverName == "" {
		c.serverName = hostname()
	}

	root := cfg.root
	if root == "" {
		root, _ = os.Getwd()
	}
	c.resolver = &stacktrace.Resolver{Root: root, ReadFile: cfg.readSource}

	if cfg.modules != nil {
		c.modules = maps.Clone(cfg.modules)
	} else {
		c.modules = buildModules()
	}

	c.global = newScope(cfg.maxBreadcrumbs)
	c.global.now = cfg.now
	c.global.SetTags(cfg.tags)
	c.global.SetExtra(cfg.extra)

	dataCallback := cfg.dataCallback
	if cfg.scrubber != nil {
		dataCallback = cfg.scrubber.DataCallback(dataCallback)
	}
	if dataCallback != nil {
		c.dataCallback.Store(&dataCallback)
	}
	if cfg.shouldSend != nil {
		shouldSend := cfg.shouldSend
		c.shouldSend.Store(&shouldSend)
	}

	if !c.enabled {
		c.logger.Debug("no DSN configured, client disabled")
		return c, nil
	}

	c.transport = cfg.transport
	if c.transport == nil {
		c.transport, err = transport.ForScheme(endpoint.Scheme, c.transportOptions()...)
		if err != nil {
			return nil, err
		}
	}
	if len(cfg.extraTransport) > 0 {
		c.transport = transport.NewMulti(append([]transport.Transport{c.transport}, cfg.extraTransport...)...)
	}

	c.installAutoBreadcrumbs()
	c.logger.Debug("client configured",
		zap.String("endpoint", endpoint.String()),
		zap.String("server_name", c.serverName))
	return c, nil
}

func (c *client) transportOptions() []transport.Option {
	opts := []transport.Option{
		transport.WithTimeout(c.cfg.sendTimeout),
		transport.WithMaxInFlight(c.cfg.maxInFlight),
		transport.WithLogger(c.logger),
	}
	if len(c.cfg.ca) > 0 {
		opts = append(opts, transport.WithCA(c.cfg.ca))
	}
	if c.cfg.proxy != nil {
		opts = append(opts, transport.WithProxy(*c.cfg.proxy))
	}
	for k, v := range c.cfg.headers {
		opts = append(opts, transport.WithHeader(k, v))
	}
	return opts
}

func (c *client) installAutoBreadcrumbs() {
	if c.cfg.auto.Console {
		core := zapcore.NewTee(zap.L().Core(), c.BreadcrumbCore(context.Background(), zapcore.DebugLevel))
		c.restores = append(c.restores, zap.ReplaceGlobals(zap.New(core)))
	}
	if c.cfg.auto.HTTP {
		prev := http.DefaultTransport
		http.DefaultTransport = NewBreadcrumbTransport(c, prev)
		c.restores = append(c.restores, func() { http.DefaultTransport = prev })
	}
}

func (c *client) CaptureMessage(ctx context.Context, message string, opts *CaptureOptions) string {
	if !c.enabled {
		return ""
	}
	return c.capture(ctx, capture{kind: kindMessage, message: message, opts: opts})
}

func (c *client) CaptureException(ctx context.Context, v any, opts *CaptureOptions) string {
	if !c.enabled {
		return ""
	}
	err := asError(v)
	return c.capture(ctx, capture{kind: kindException, err: err, stack: stackFor(err, opts, stacktrace.Callers(1)), opts: opts})
}

func (c *client) CaptureError(ctx context.Context, err error, opts *CaptureOptions) string {
	if !c.enabled {
		return ""
	}
	e := asError(err)
	return c.capture(ctx, capture{kind: kindException, err: e, stack: stackFor(e, opts, stacktrace.Callers(1)), opts: opts})
}

func (c *client) CaptureQuery(ctx context.Context, query, engine string, opts *CaptureOptions) string {
	if !c.enabled {
		return ""
	}
	return c.capture(ctx, capture{kind: kindQuery, query: query, engine: engine, opts: opts})
}

// capture runs the pipeline for one event: build, filter, transform, send.
func (c *client) capture(ctx context.Context, cp capture) string {
	ev, stackErr := c.build(ctx, cp)
	id := ev.EventID

	if should := c.shouldSend.Load(); should != nil && !(*should)(ev) {
		c.logger.Debug("event filtered", zap.String("event_id", id))
		c.observers.filtered(id)
		return id
	}
	if cb := c.dataCallback.Load(); cb != nil {
		if ev = (*cb)(ev); ev == nil {
			c.logger.Debug("event dropped by data callback", zap.String("event_id", id))
			c.observers.filtered(id)
			return id
		}
		id = ev.EventID
	}

	if stackErr != nil {
		c.logger.Warn("sending event without stacktrace", zap.String("event_id", id), zap.Error(stackErr))
		c.observers.result(transport.NewResult(id, stackErr))
	}

	c.observers.captured(ev)
	var onResult func(transport.Result)
	if cp.opts != nil {
		onResult = cp.opts.OnResult
	}
	c.send(ev, onResult)
	return id
}

// send encodes ev on the calling goroutine and delivers it in the background.
func (c *client) send(ev *Event, onResult func(transport.Result)) {
	report := func(r transport.Result) {
		c.observers.result(r)
		if onResult != nil {
			onResult(r)
		}
	}

	msg, err := c.encode(ev)
	if err != nil {
		c.logger.Warn("failed to encode event", zap.String("event_id", ev.EventID), zap.Error(err))
		report(transport.NewResult(ev.EventID, err))
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.sendTimeout)
		defer cancel()

		err := c.transport.Send(ctx, msg)
		if err != nil {
			c.logger.Warn("failed to send event", zap.String("event_id", msg.EventID), zap.Error(err))
		}
		report(transport.NewResult(msg.EventID, err))
	}()
}

func (c *client) encode(ev *Event) (*transport.Message, error) {
	payload, err := MarshalEvent(ev)
	if err != nil {
		return nil, err
	}
	body, err := transport.Encode(payload)
	if err != nil {
		return nil, err
	}

	ts := c.cfg.now()
	auth := transport.Auth{
		Timestamp:  ts,
		Client:     UserAgent,
		PublicKey:  c.endpoint.PublicKey,
		PrivateKey: c.endpoint.PrivateKey,
		ProjectID:  c.endpoint.ProjectID,
	}
	if c.cfg.signature && c.endpoint.PrivateKey != "" {
		auth.Signature = transport.Sign(c.endpoint.PrivateKey, body, ts)
	}

	return &transport.Message{
		EventID:  ev.EventID,
		Endpoint: c.endpoint,
		Auth:     auth.Header(),
		Body:     body,
	}, nil
}

func (c *client) CaptureBreadcrumb(ctx context.Context, crumb Breadcrumb) {
	c.ActiveScope(ctx).AddBreadcrumb(crumb)
}

func (c *client) SetUserContext(ctx context.Context, user *User) {
	c.ActiveScope(ctx).SetUser(user)
}

func (c *client) SetExtraContext(ctx context.Context, extra map[string]any) {
	c.ActiveScope(ctx).SetExtra(extra)
}

func (c *client) SetTagsContext(ctx context.Context, tags map[string]string) {
	c.ActiveScope(ctx).SetTags(tags)
}

func (c *client) ActiveScope(ctx context.Context) *Scope {
	if s, ok := ScopeFromContext(ctx); ok {
		return s
	}
	return c.global
}

func (c *client) GlobalScope() *Scope {
	return c.global
}

func (c *client) BranchScope(ctx context.Context) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := c.ActiveScope(ctx).branch()
	return WithScope(ctx, s), s
}

func (c *client) RunScoped(ctx context.Context, fn func(ctx context.Context)) {
	scoped, _ := c.BranchScope(ctx)
	fn(scoped)
}

func (c *client) SetDataCallback(fn func(prev DataCallback) DataCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	var prev DataCallback
	if p := c.dataCallback.Load(); p != nil {
		prev = *p
	}
	next := fn(prev)
	if next == nil {
		c.dataCallback.Store(nil)
		return
	}
	c.dataCallback.Store(&next)
}

func (c *client) SetShouldSendCallback(fn func(prev ShouldSendCallback) ShouldSendCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	var prev ShouldSendCallback
	if p := c.shouldSend.Load(); p != nil {
		prev = *p
	}
	next := fn(prev)
	if next == nil {
		c.shouldSend.Store(nil)
		return
	}
	c.shouldSend.Store(&next)
}

func (c *client) AddObserver(o Observer) func() {
	return c.observers.add(o)
}

func (c *client) Enabled() bool {
	return c.enabled
}

func (c *client) Endpoint() *dsn.Endpoint {
	return c.endpoint
}

func (c *client) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *client) Close() error {
	c.closeOnce.Do(func() {
		for i := len(c.restores) - 1; i >= 0; i-- {
			c.restores[i]()
		}
		c.inflight.Wait()
		if c.transport != nil {
			c.closeErr = c.transport.Close()
		}
	})
	return c.closeErr
}
