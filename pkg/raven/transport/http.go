// http.go sends events over HTTP and HTTPS, optionally through a proxy.

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/sync/semaphore"
)

// ProxyConfig describes an HTTP(S) proxy. HTTPS sends are tunneled with
// CONNECT; plain HTTP sends are forwarded with an absolute request URI.
type ProxyConfig struct {
	// Scheme of the proxy itself, "http" (default) or "https".
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`

	// User and Password are sent as Proxy-Authorization basic auth when set.
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// NoProxy lists hosts that bypass the proxy, in NO_PROXY syntax.
	NoProxy string `yaml:"no_proxy"`
}

// URL returns the proxy URL including credentials.
func (p ProxyConfig) URL() *url.URL {
	scheme := p.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	u := &url.URL{Scheme: scheme, Host: host}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

// proxyFunc resolves the proxy for a request. Without an explicit config the
// HTTPS_PROXY, HTTP_PROXY and NO_PROXY environment variables apply.
func proxyFunc(p *ProxyConfig) func(*http.Request) (*url.URL, error) {
	var cfg *httpproxy.Config
	if p == nil {
		cfg = httpproxy.FromEnvironment()
	} else {
		u := p.URL().String()
		cfg = &httpproxy.Config{HTTPProxy: u, HTTPSProxy: u, NoProxy: p.NoProxy}
	}
	resolve := cfg.ProxyFunc()
	return func(r *http.Request) (*url.URL, error) {
		return resolve(r.URL)
	}
}

func newPool(o *options) (*http.Transport, error) {
	tr := &http.Transport{
		Proxy: proxyFunc(o.proxy),
		DialContext: (&net.Dialer{
			Timeout:   o.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        o.maxInFlight,
		MaxIdleConnsPerHost: o.maxInFlight,
		MaxConnsPerHost:     o.maxInFlight,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if len(o.caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(o.caPEM) {
			return nil, errors.New("no certificates found in CA bundle")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return tr, nil
}

var (
	sharedPoolOnce sync.Once
	sharedPool     *http.Transport
)

// defaultPool is the keep-alive pool shared by every HTTP transport built
// without CA, proxy or ceiling customization.
func defaultPool() *http.Transport {
	sharedPoolOnce.Do(func() {
		sharedPool, _ = newPool(newOptions(nil))
	})
	return sharedPool
}

// HTTPTransport posts events to the store endpoint.
type HTTPTransport struct {
	client  *resty.Client
	logger  *zap.Logger
	ceiling int64
	closed  atomic.Bool

	mu       sync.Mutex
	inFlight map[string]*semaphore.Weighted
}

// NewHTTP creates an HTTP/HTTPS transport.
func NewHTTP(opts ...Option) (*HTTPTransport, error) {
	o := newOptions(opts)

	rt := o.roundTrip
	if rt == nil {
		if o.proxy == nil && len(o.caPEM) == 0 && o.maxInFlight == DefaultMaxInFlight {
			rt = defaultPool()
		} else {
			pool, err := newPool(o)
			if err != nil {
				return nil, err
			}
			rt = pool
		}
	}

	client := resty.NewWithClient(&http.Client{Transport: rt}).
		SetTimeout(o.timeout).
		SetLogger(o.logger.Sugar()).
		SetHeaders(o.headers)

	return &HTTPTransport{
		client:   client,
		logger:   o.logger,
		ceiling:  int64(o.maxInFlight),
		inFlight: make(map[string]*semaphore.Weighted),
	}, nil
}

// limiter returns the in-flight semaphore for an endpoint address.
func (t *HTTPTransport) limiter(addr string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()
	sem, ok := t.inFlight[addr]
	if !ok {
		sem = semaphore.NewWeighted(t.ceiling)
		t.inFlight[addr] = sem
	}
	return sem
}

// Send posts msg. It fails fast with ErrQueueFull when the endpoint already
// has the maximum number of requests in flight.
func (t *HTTPTransport) Send(ctx context.Context, msg *Message) error {
	if t.closed.Load() {
		return ErrClosed
	}

	sem := t.limiter(msg.Endpoint.Address())
	if !sem.TryAcquire(1) {
		t.logger.Warn("request queue is full, dropping event",
			zap.String("event_id", msg.EventID),
			zap.String("endpoint", msg.Endpoint.Address()))
		return ErrQueueFull
	}
	defer sem.Release(1)

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("X-Sentry-Auth", msg.Auth).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(msg.Body).
		Post(msg.Endpoint.StoreURL())
	if err != nil {
		t.logger.Debug("HTTP request failed",
			zap.String("event_id", msg.EventID),
			zap.Error(err))
		return &SendError{Err: err}
	}

	if !resp.IsSuccess() {
		reason := resp.Header().Get("X-Sentry-Error")
		t.logger.Debug("event rejected",
			zap.String("event_id", msg.EventID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("reason", reason))
		return &SendError{StatusCode: resp.StatusCode(), Reason: reason}
	}

	t.logger.Debug("event sent",
		zap.String("event_id", msg.EventID),
		zap.Int("status_code", resp.StatusCode()))
	return nil
}

// Close drops idle pooled connections.
func (t *HTTPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.GetClient().CloseIdleConnections()
	return nil
}
