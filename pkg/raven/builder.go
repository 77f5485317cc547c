// builder.go assembles events from captures, scopes and client config.

package raven

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/strongdm/raven-observe/pkg/raven/stacktrace"
	"github.com/strongdm/raven-observe/pkg/raven/transport"
)

// CaptureOptions are per-capture additions. They take precedence over the
// active scope and the global scope.
type CaptureOptions struct {
	Tags        map[string]string
	Extra       map[string]any
	User        *User
	Fingerprint []string

	// Level defaults to error for exceptions and info otherwise.
	Level Level

	// Logger overrides the client's logger name.
	Logger string

	Request *Request

	// Frames replaces the stack captured at the call site, innermost call
	// first. Only used for exceptions.
	Frames []stacktrace.RawFrame

	// OnResult is called once with the delivery outcome. It is not called
	// for events that are filtered out or captured by a disabled client.
	OnResult func(transport.Result)
}

type captureKind int

const (
	kindMessage captureKind = iota
	kindException
	kindQuery
)

// capture describes one capture call.
type capture struct {
	kind    captureKind
	message string
	err     error
	stack   []stacktrace.RawFrame
	query   string
	engine  string
	opts    *CaptureOptions
}

// newEventID returns a random UUID without hyphens.
func newEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// build creates the event for cp. The returned error wraps
// ErrStackResolution when an exception event had to be built without a
// stacktrace; the event is usable either way.
func (c *client) build(ctx context.Context, cp capture) (*Event, error) {
	opts := cp.opts
	if opts == nil {
		opts = &CaptureOptions{}
	}

	// Breadcrumbs are consumed from the active scope only.
	local, hasLocal := ScopeFromContext(ctx)
	global := c.global.snapshot(!hasLocal)
	var scoped scopeData
	crumbs := global.breadcrumbs
	if hasLocal {
		scoped = local.snapshot(true)
		crumbs = scoped.breadcrumbs
	}

	now := c.cfg.now()
	ev := &Event{
		EventID:     newEventID(),
		Timestamp:   Timestamp(now),
		Level:       lo.CoalesceOrEmpty(opts.Level, defaultLevel(cp.kind)),
		Logger:      lo.CoalesceOrEmpty(opts.Logger, c.cfg.loggerName),
		Platform:    Platform,
		ServerName:  c.serverName,
		Release:     c.release,
		Environment: c.environment,
		Tags:        lo.Assign(global.tags, scoped.tags, opts.Tags),
		Extra:       lo.Assign(map[string]any{"go": runtime.Version()}, global.extra, scoped.extra, opts.Extra),
		User:        lo.CoalesceOrEmpty(opts.User, scoped.user, global.user),
		Fingerprint: firstNonEmpty(opts.Fingerprint, scoped.fingerprint, global.fingerprint),
		Request:     lo.CoalesceOrEmpty(opts.Request, scoped.request, global.request),
		Breadcrumbs: crumbs,
		Modules:     c.modules,
		Contexts:    runtimeContexts(now),
	}
	if c.endpoint != nil {
		ev.Project = c.endpoint.ProjectID
	}

	var stackErr error
	switch cp.kind {
	case kindMessage:
		ev.Message = cp.message
		ev.MessageInterface = &MessageInterface{Message: cp.message, Params: []any{}}

	case kindException:
		value := errorMessage(cp.err)
		if value == "" {
			value = "<no message>"
		}
		typ := errorType(cp.err)
		ev.Message = typ + ": " + value
		ev.MessageInterface = &MessageInterface{Message: ev.Message, Params: []any{}}
		ev.Exception = &Exception{Type: typ, Value: value}

		var frames []stacktrace.Frame
		frames, stackErr = c.resolveStack(cp.stack)
		if stackErr == nil {
			ev.Exception.Stacktrace = &Stacktrace{Frames: frames}
			if f, ok := stacktrace.CulpritFrame(frames); ok {
				ev.Culprit = stacktrace.Culprit(f)
			}
		}

	case kindQuery:
		ev.Message = cp.query
		ev.Query = &Query{Query: cp.query, Engine: cp.engine}
	}

	if c.cfg.legacyChecksum {
		ev.Checksum = Checksum(ev.Message)
	}
	return ev, stackErr
}

func defaultLevel(kind captureKind) Level {
	if kind == kindException {
		return LevelError
	}
	return LevelInfo
}

func firstNonEmpty(candidates ...[]string) []string {
	for _, c := range candidates {
		if len(c) > 0 {
			return c
		}
	}
	return nil
}

// stackFor picks the raw stack of an exception: explicit frames, then the
// stack recorded by the error itself, then the capture site.
func stackFor(err error, opts *CaptureOptions, site []uintptr) []stacktrace.RawFrame {
	if opts != nil && len(opts.Frames) > 0 {
		return opts.Frames
	}
	var st stacktrace.StackTracer
	if !isNilPointer(err) && errors.As(err, &st) {
		if pcs := st.StackTrace(); len(pcs) > 0 {
			return stacktrace.FromPCs(pcs)
		}
	}
	return stacktrace.FromPCs(site)
}

// resolveStack never panics; a failing resolver degrades to no stacktrace.
func (c *client) resolveStack(raw []stacktrace.RawFrame) (frames []stacktrace.Frame, err error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no frames captured", ErrStackResolution)
	}
	defer func() {
		if r := recover(); r != nil {
			frames, err = nil, fmt.Errorf("%w: %v", ErrStackResolution, r)
		}
	}()
	return c.resolver.Resolve(raw), nil
}
