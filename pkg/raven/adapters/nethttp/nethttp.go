// Package nethttp integrates raven with net/http servers.
//
// [Middleware] gives every request its own scope carrying the request
// description and captures panics. [ErrorHandler] additionally captures the
// errors returned by handlers.
//
//	client, _ := raven.New()
//	mux := http.NewServeMux()
//	mux.Handle("/orders", nethttp.ErrorHandler(client, createOrder))
//	http.ListenAndServe(":8080", nethttp.Middleware(client)(mux))
package nethttp

import (
	"net"
	"net/http"
	"strings"

	"github.com/strongdm/raven-observe/pkg/raven"
	"github.com/strongdm/raven-observe/pkg/raven/stacktrace"
)

// EventIDHeader carries the id of the event captured for a failed request.
const EventIDHeader = "X-Sentry-ID"

// BodyUnavailable is reported as request data; bodies are never read.
const BodyUnavailable = "<body unavailable>"

// Option configures the middleware.
type Option func(*options)

type options struct {
	repanic bool
	respond func(w http.ResponseWriter, r *http.Request, eventID string)
}

// WithRepanic re-raises panics after they were captured instead of answering
// 500, for stacks where an outer handler owns recovery.
func WithRepanic() Option {
	return func(o *options) {
		o.repanic = true
	}
}

// WithResponder replaces the default 500 response written after a captured
// panic or handler error. It is not called when the handler already wrote a
// response header.
func WithResponder(fn func(w http.ResponseWriter, r *http.Request, eventID string)) Option {
	return func(o *options) {
		if fn != nil {
			o.respond = fn
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{respond: internalError}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func internalError(w http.ResponseWriter, _ *http.Request, eventID string) {
	if eventID != "" {
		w.Header().Set(EventIDHeader, eventID)
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Middleware branches a scope per request, attaches the request to it and
// captures panics of the wrapped handler as fatal events.
// http.ErrAbortHandler is passed through untouched.
func Middleware(c raven.Client, opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, scope := c.BranchScope(r.Context())
			scope.SetRequest(NewRequest(r))
			r = r.WithContext(ctx)
			sw := &statusWriter{ResponseWriter: w}

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				id := c.CaptureException(ctx, &raven.PanicError{Value: rec}, &raven.CaptureOptions{
					Level:  raven.LevelFatal,
					Frames: stacktrace.PanicFrames(0),
				})
				if o.repanic {
					panic(rec)
				}
				if !sw.wroteHeader {
					o.respond(sw, r, id)
				}
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

// HandlerFunc is an HTTP handler that can fail.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ErrorHandler adapts fn to http.Handler. Returned errors are captured with
// the request attached and answered with a 500 carrying the event id.
// Use it inside Middleware to share the request scope; on its own it branches
// a scope itself.
func ErrorHandler(c raven.Client, fn HandlerFunc, opts ...Option) http.Handler {
	o := newOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := raven.ScopeFromContext(r.Context()); !ok {
			ctx, scope := c.BranchScope(r.Context())
			scope.SetRequest(NewRequest(r))
			r = r.WithContext(ctx)
		}
		sw := &statusWriter{ResponseWriter: w}

		err := fn(sw, r)
		if err == nil {
			return
		}
		id := c.CaptureError(r.Context(), err, nil)
		if !sw.wroteHeader {
			o.respond(sw, r, id)
		}
	})
}

// NewRequest describes r for the sentry.interfaces.Http interface. The body
// is not read.
func NewRequest(r *http.Request) *raven.Request {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if k == "Cookie" {
			continue
		}
		headers[k] = strings.Join(v, ", ")
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}

	var cookies map[string]string
	if cs := r.Cookies(); len(cs) > 0 {
		cookies = make(map[string]string, len(cs))
		for _, ck := range cs {
			cookies[ck.Name] = ck.Value
		}
	}

	req := &raven.Request{
		Method:      r.Method,
		URL:         scheme + "://" + r.Host + r.URL.Path,
		QueryString: r.URL.RawQuery,
		Headers:     headers,
		Cookies:     cookies,
		Data:        BodyUnavailable,
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		req.Env = map[string]string{"REMOTE_ADDR": host}
	}
	return req
}

// statusWriter records whether a response header was sent.
type statusWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
