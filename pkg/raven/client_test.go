package raven

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/raven-observe/pkg/raven/dsn"
	"github.com/strongdm/raven-observe/pkg/raven/stacktrace"
	"github.com/strongdm/raven-observe/pkg/raven/transport"
)

func TestNew_WithoutDSNIsDisabled(t *testing.T) {
	tr := &recordingTransport{}
	c, err := New(withEnv(nil), WithTransport(tr))
	require.NoError(t, err)

	assert.False(t, c.Enabled())
	assert.Nil(t, c.Endpoint())
	assert.Empty(t, c.CaptureMessage(context.Background(), "hello", nil))
	assert.Empty(t, c.CaptureError(context.Background(), errors.New("boom"), nil))
	assert.Empty(t, c.CaptureQuery(context.Background(), "SELECT 1", "postgres", nil))
	require.NoError(t, c.Close())
	assert.Empty(t, tr.getMessages())
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(WithDSN("not a dsn"), withEnv(nil))
	assert.ErrorIs(t, err, dsn.ErrInvalidDSN)
}

func TestNew_UnsupportedScheme(t *testing.T) {
	_, err := New(WithDSN("gopher://pub@sentry.example.com/1"), withEnv(nil))
	assert.ErrorIs(t, err, dsn.ErrUnsupportedTransport)
}

func TestNew_EnvironmentFallback(t *testing.T) {
	tr := &recordingTransport{}
	c, err := New(WithTransport(tr), withEnv(map[string]string{
		EnvDSN:         testDSN,
		EnvName:        "env-host",
		EnvRelease:     "r1",
		EnvEnvironment: "staging",
	}))
	require.NoError(t, err)
	defer c.Close()

	c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)

	p := tr.only(t)
	assert.Equal(t, "env-host", p["server_name"])
	assert.Equal(t, "r1", p["release"])
	assert.Equal(t, "staging", p["environment"])
}

func TestNew_ExplicitOptionsWinOverEnvironment(t *testing.T) {
	env := withEnv(map[string]string{EnvDSN: testDSN, EnvRelease: "r1"})

	c, err := New(env, WithDSN(""))
	require.NoError(t, err)
	assert.False(t, c.Enabled(), "an explicit empty DSN disables the client")

	tr := &recordingTransport{}
	c, err = New(env, WithTransport(tr), WithRelease("r2"))
	require.NoError(t, err)
	defer c.Close()
	c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)
	assert.Equal(t, "r2", tr.only(t)["release"])
}

func TestNew_ReleaseOmittedWhenUnset(t *testing.T) {
	c, tr := newTestClient(t)
	c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)

	p := tr.only(t)
	assert.NotContains(t, p, "release")
	assert.NotContains(t, p, "environment")
}

func TestCaptureMessage_Payload(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	c, tr := newTestClient(t, withNow(func() time.Time { return now }), WithLoggerName("app"))

	id := c.CaptureMessage(context.Background(), "hello world", nil)
	flush(t, c)

	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")

	p := tr.only(t)
	assert.Equal(t, id, p["event_id"])
	assert.Equal(t, "hello world", p["message"])
	assert.Equal(t, "info", p["level"])
	assert.Equal(t, "app", p["logger"])
	assert.Equal(t, "go", p["platform"])
	assert.Equal(t, "test-host", p["server_name"])
	assert.Equal(t, float64(269), p["project"])
	assert.Equal(t, "2024-05-01T12:30:45", p["timestamp"])
	assert.Equal(t, map[string]any{"message": "hello world", "params": []any{}}, p["sentry.interfaces.Message"])
	assert.Equal(t, map[string]any{"example.com/app": "v1.2.3"}, p["modules"])
	assert.Equal(t, runtime.Version(), p["extra"].(map[string]any)["go"])
	assert.Contains(t, p["contexts"], "runtime")
	assert.NotContains(t, p, "sentry.interfaces.Exception")
}

func TestCaptureMessage_AuthHeader(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	c, tr := newTestClient(t, withNow(func() time.Time { return now }))

	c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)

	msgs := tr.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 269, msgs[0].Endpoint.ProjectID)
	assert.Equal(t,
		"Sentry sentry_version=7, sentry_timestamp=1700000000123, sentry_client=raven-go/1.0.0, sentry_key=public, sentry_secret=secret",
		msgs[0].Auth)
}

func TestCaptureMessage_Signature(t *testing.T) {
	c, tr := newTestClient(t, WithSignature())

	c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)

	msgs := tr.getMessages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Auth, "sentry_signature=")
	assert.Contains(t, msgs[0].Auth, "project_id=269")
}

func TestCaptureError_ExceptionInterface(t *testing.T) {
	c, tr := newTestClient(t)

	c.CaptureError(context.Background(), errors.New("boom"), nil)
	flush(t, c)

	p := tr.only(t)
	assert.Equal(t, "error", p["level"])
	assert.Equal(t, "*errors.errorString: boom", p["message"])

	exc := p["sentry.interfaces.Exception"].(map[string]any)
	assert.Equal(t, "*errors.errorString", exc["type"])
	assert.Equal(t, "boom", exc["value"])

	frames := exc["stacktrace"].(map[string]any)["frames"].([]any)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1].(map[string]any)
	assert.Equal(t, "TestCaptureError_ExceptionInterface", last["function"])
	assert.Equal(t, true, last["in_app"])
	assert.NotEmpty(t, last["context_line"])
	assert.Equal(t, "client_test at TestCaptureError_ExceptionInterface", p["culprit"])
}

func TestCaptureError_EmptyMessage(t *testing.T) {
	c, tr := newTestClient(t)

	c.CaptureError(context.Background(), errors.New(""), nil)
	flush(t, c)

	p := tr.only(t)
	assert.Equal(t, "*errors.errorString: <no message>", p["message"])
}

func TestCaptureError_TypedNil(t *testing.T) {
	c, tr := newTestClient(t)

	var pathErr *os.PathError
	require.NotPanics(t, func() {
		c.CaptureError(context.Background(), pathErr, nil)
	})
	flush(t, c)

	exc := tr.only(t)["sentry.interfaces.Exception"].(map[string]any)
	assert.Equal(t, "*fs.PathError", exc["type"])
	assert.Equal(t, "<nil>", exc["value"])
	assert.Contains(t, exc, "stacktrace")
}

type panickyError struct{}

func (panickyError) Error() string { panic("no message for you") }

func TestCaptureError_PanickingErrorMethod(t *testing.T) {
	c, tr := newTestClient(t)

	require.NotPanics(t, func() {
		c.CaptureError(context.Background(), panickyError{}, nil)
	})
	flush(t, c)

	exc := tr.only(t)["sentry.interfaces.Exception"].(map[string]any)
	assert.Equal(t, "raven.panickyError", exc["type"])
	assert.Equal(t, "<Error() panicked: no message for you>", exc["value"])
}

func TestCaptureException_NonErrorValue(t *testing.T) {
	c, tr := newTestClient(t)

	c.CaptureException(context.Background(), "just a string", nil)
	flush(t, c)

	exc := tr.only(t)["sentry.interfaces.Exception"].(map[string]any)
	assert.Equal(t, "*raven.ValueError", exc["type"])
	assert.Equal(t, "just a string", exc["value"])
	assert.Contains(t, exc, "stacktrace")
}

type tracedError struct {
	pcs []uintptr
}

func (e *tracedError) Error() string         { return "traced" }
func (e *tracedError) StackTrace() []uintptr { return e.pcs }

func makeTracedError() error {
	return &tracedError{pcs: stacktrace.Callers(0)}
}

func TestCaptureError_UsesRecordedStack(t *testing.T) {
	c, tr := newTestClient(t)

	c.CaptureError(context.Background(), fmt.Errorf("wrapped: %w", makeTracedError()), nil)
	flush(t, c)

	exc := tr.only(t)["sentry.interfaces.Exception"].(map[string]any)
	frames := exc["stacktrace"].(map[string]any)["frames"].([]any)
	last := frames[len(frames)-1].(map[string]any)
	assert.Equal(t, "makeTracedError", last["function"])
}

func TestCaptureException_ExplicitFrames(t *testing.T) {
	c, tr := newTestClient(t,
		WithRoot("/srv/app"),
		withReadSource(func(string) ([]byte, error) { return nil, errors.New("no source") }))

	c.CaptureException(context.Background(), errors.New("boom"), &CaptureOptions{
		Frames: []stacktrace.RawFrame{
			{Function: "handle", Filename: "/srv/app/api/handler.go", Lineno: 12},
			{Function: "main", Filename: "/srv/app/main.go", Lineno: 3},
		},
	})
	flush(t, c)

	p := tr.only(t)
	frames := p["sentry.interfaces.Exception"].(map[string]any)["stacktrace"].(map[string]any)["frames"].([]any)
	require.Len(t, frames, 2)
	assert.Equal(t, "main", frames[0].(map[string]any)["function"])
	assert.Equal(t, "handle", frames[1].(map[string]any)["function"])
	assert.Equal(t, "api:handler at handle", p["culprit"])
}

func TestCaptureException_StackResolutionFailureStillSends(t *testing.T) {
	obs := &recordingObserver{}
	c, tr := newTestClient(t,
		WithObserver(obs),
		withReadSource(func(string) ([]byte, error) { panic("resolver exploded") }))

	results := make(chan transport.Result, 1)
	id := c.CaptureError(context.Background(), errors.New("boom"), &CaptureOptions{
		OnResult: func(r transport.Result) { results <- r },
	})
	flush(t, c)

	p := tr.only(t)
	exc := p["sentry.interfaces.Exception"].(map[string]any)
	assert.Equal(t, "boom", exc["value"])
	assert.NotContains(t, exc, "stacktrace")
	assert.NotContains(t, p, "culprit")

	logged, errs, _ := obs.snapshot()
	assert.Equal(t, []string{id}, logged, "the degraded event is still delivered")
	require.Len(t, errs[id], 1)
	assert.ErrorIs(t, errs[id][0], ErrStackResolution)

	r := <-results
	assert.Equal(t, transport.Logged, r.Outcome, "OnResult reports only the delivery")
}

func TestCaptureQuery(t *testing.T) {
	c, tr := newTestClient(t)

	c.CaptureQuery(context.Background(), "SELECT * FROM users", "postgres", nil)
	flush(t, c)

	p := tr.only(t)
	assert.Equal(t, "SELECT * FROM users", p["message"])
	assert.Equal(t, "info", p["level"])
	assert.Equal(t, map[string]any{"query": "SELECT * FROM users", "engine": "postgres"}, p["sentry.interfaces.Query"])
}

func TestCapture_LevelAndLoggerOverride(t *testing.T) {
	c, tr := newTestClient(t, WithLoggerName("default"))

	c.CaptureMessage(context.Background(), "careful", &CaptureOptions{Level: LevelWarning, Logger: "audit"})
	flush(t, c)

	p := tr.only(t)
	assert.Equal(t, "warning", p["level"])
	assert.Equal(t, "audit", p["logger"])
}

func TestCapture_MergePrecedence(t *testing.T) {
	c, tr := newTestClient(t,
		WithTags(map[string]string{"a": "global", "b": "global"}),
		WithExtra(map[string]any{"x": "global", "y": "global"}))

	c.RunScoped(context.Background(), func(ctx context.Context) {
		c.SetTagsContext(ctx, map[string]string{"b": "scope", "c": "scope"})
		c.SetExtraContext(ctx, map[string]any{"y": "scope"})
		c.CaptureMessage(ctx, "merged", &CaptureOptions{
			Tags:  map[string]string{"c": "capture"},
			Extra: map[string]any{"z": "capture"},
		})
	})
	flush(t, c)

	p := tr.only(t)
	assert.Equal(t, map[string]any{"a": "global", "b": "scope", "c": "capture"}, p["tags"])
	extra := p["extra"].(map[string]any)
	assert.Equal(t, "global", extra["x"])
	assert.Equal(t, "scope", extra["y"])
	assert.Equal(t, "capture", extra["z"])
}

func TestCapture_UserIsReplacedNotMerged(t *testing.T) {
	c, tr := newTestClient(t)
	ctx := context.Background()

	c.SetUserContext(ctx, &User{ID: "1", Email: "first@example.com"})
	c.SetUserContext(ctx, &User{ID: "2"})
	c.CaptureMessage(ctx, "who", nil)
	flush(t, c)

	assert.Equal(t, map[string]any{"id": "2"}, tr.only(t)["user"])
}

func TestCapture_CaptureUserBeatsScope(t *testing.T) {
	c, tr := newTestClient(t)
	ctx := context.Background()

	c.SetUserContext(ctx, &User{ID: "scope"})
	c.CaptureMessage(ctx, "who", &CaptureOptions{User: &User{ID: "capture"}})
	flush(t, c)

	assert.Equal(t, map[string]any{"id": "capture"}, tr.only(t)["user"])
}

func TestCapture_Fingerprint(t *testing.T) {
	c, tr := newTestClient(t)

	c.RunScoped(context.Background(), func(ctx context.Context) {
		c.ActiveScope(ctx).SetFingerprint([]string{"{{ default }}", "db"})
		c.CaptureMessage(ctx, "grouped", nil)
	})
	flush(t, c)

	assert.Equal(t, []any{"{{ default }}", "db"}, tr.only(t)["fingerprint"])
}

func TestRunScoped_ConcurrentIsolation(t *testing.T) {
	c, tr := newTestClient(t)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RunScoped(context.Background(), func(ctx context.Context) {
				req := fmt.Sprint(i)
				c.SetTagsContext(ctx, map[string]string{"request": req})
				c.SetUserContext(ctx, &User{ID: req})
				c.CaptureBreadcrumb(ctx, Breadcrumb{Message: "step " + req})
				c.CaptureMessage(ctx, req, nil)
			})
		}()
	}
	wg.Wait()
	flush(t, c)

	payloads := tr.payloads(t)
	require.Len(t, payloads, n)
	for _, p := range payloads {
		req := p["message"].(string)
		assert.Equal(t, req, p["tags"].(map[string]any)["request"])
		assert.Equal(t, req, p["user"].(map[string]any)["id"])
		crumbs := p["breadcrumbs"].([]any)
		require.Len(t, crumbs, 1)
		assert.Equal(t, "step "+req, crumbs[0].(map[string]any)["message"])
	}
	assert.Empty(t, c.GlobalScope().Tags())
	assert.Nil(t, c.GlobalScope().User())
}

func TestRunScoped_SharedWithGoroutines(t *testing.T) {
	c, tr := newTestClient(t)

	c.RunScoped(context.Background(), func(ctx context.Context) {
		c.SetTagsContext(ctx, map[string]string{"job": "import"})
		done := make(chan struct{})
		go func() {
			defer close(done)
			c.CaptureMessage(ctx, "from goroutine", nil)
		}()
		<-done
	})
	flush(t, c)

	assert.Equal(t, "import", tr.only(t)["tags"].(map[string]any)["job"])
}

func TestBranchScope_CopiesParent(t *testing.T) {
	c, _ := newTestClient(t, WithTags(map[string]string{"service": "api"}))

	ctx, parent := c.BranchScope(context.Background())
	parent.SetTags(map[string]string{"layer": "parent"})

	_, child := c.BranchScope(ctx)
	child.SetTags(map[string]string{"layer": "child"})

	assert.Equal(t, map[string]string{"service": "api", "layer": "parent"}, parent.Tags())
	assert.Equal(t, map[string]string{"service": "api", "layer": "child"}, child.Tags())
	assert.Equal(t, map[string]string{"service": "api"}, c.GlobalScope().Tags())
	assert.Same(t, parent, c.ActiveScope(ctx))
}

func TestBreadcrumbs_DrainedByCapture(t *testing.T) {
	c, tr := newTestClient(t)
	ctx := context.Background()

	for i := range 3 {
		c.CaptureBreadcrumb(ctx, Breadcrumb{Category: "step", Message: fmt.Sprint(i)})
	}
	c.CaptureMessage(ctx, "first", nil)
	c.CaptureMessage(ctx, "second", nil)
	flush(t, c)

	byMessage := map[string]map[string]any{}
	for _, p := range tr.payloads(t) {
		byMessage[p["message"].(string)] = p
	}
	crumbs := byMessage["first"]["breadcrumbs"].([]any)
	require.Len(t, crumbs, 3)
	for i, b := range crumbs {
		assert.Equal(t, fmt.Sprint(i), b.(map[string]any)["message"])
		assert.Contains(t, b, "timestamp")
	}
	assert.NotContains(t, byMessage["second"], "breadcrumbs")
}

func TestBreadcrumbs_LocalCaptureLeavesGlobal(t *testing.T) {
	c, tr := newTestClient(t)

	c.CaptureBreadcrumb(context.Background(), Breadcrumb{Message: "global"})
	c.RunScoped(context.Background(), func(ctx context.Context) {
		c.CaptureBreadcrumb(ctx, Breadcrumb{Message: "local"})
		c.CaptureMessage(ctx, "scoped", nil)
	})
	flush(t, c)

	crumbs := tr.only(t)["breadcrumbs"].([]any)
	require.Len(t, crumbs, 1)
	assert.Equal(t, "local", crumbs[0].(map[string]any)["message"])
	assert.Len(t, c.GlobalScope().Breadcrumbs(), 1)
}

func TestBreadcrumbs_CapacityEvictsOldest(t *testing.T) {
	c, tr := newTestClient(t, WithMaxBreadcrumbs(2))
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c"} {
		c.CaptureBreadcrumb(ctx, Breadcrumb{Message: m})
	}
	c.CaptureMessage(ctx, "evicted", nil)
	flush(t, c)

	crumbs := tr.only(t)["breadcrumbs"].([]any)
	require.Len(t, crumbs, 2)
	assert.Equal(t, "b", crumbs[0].(map[string]any)["message"])
	assert.Equal(t, "c", crumbs[1].(map[string]any)["message"])
}

func TestShouldSendFalse_NoDeliverySignals(t *testing.T) {
	obs := &recordingObserver{}
	c, tr := newTestClient(t,
		WithObserver(obs),
		WithShouldSendCallback(func(*Event) bool { return false }))

	id := c.CaptureMessage(context.Background(), "hidden", nil)
	flush(t, c)

	assert.NotEmpty(t, id)
	assert.Empty(t, tr.getMessages())
	logged, errs, filtered := obs.snapshot()
	assert.Empty(t, logged)
	assert.Empty(t, errs)
	assert.Equal(t, []string{id}, filtered)
}

func TestDataCallback_ModifiesEvent(t *testing.T) {
	c, tr := newTestClient(t, WithDataCallback(func(ev *Event) *Event {
		ev.Tags["callback"] = "yes"
		return ev
	}))

	c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)

	assert.Equal(t, "yes", tr.only(t)["tags"].(map[string]any)["callback"])
}

func TestDataCallback_NilDropsEvent(t *testing.T) {
	obs := &recordingObserver{}
	c, tr := newTestClient(t, WithObserver(obs), WithDataCallback(func(*Event) *Event { return nil }))

	id := c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)

	assert.Empty(t, tr.getMessages())
	logged, errs, filtered := obs.snapshot()
	assert.Empty(t, logged)
	assert.Empty(t, errs)
	assert.Equal(t, []string{id}, filtered)
}

func TestSetDataCallback_ComposesWithPrevious(t *testing.T) {
	var order []string
	c, tr := newTestClient(t, WithDataCallback(func(ev *Event) *Event {
		order = append(order, "first")
		return ev
	}))

	c.SetDataCallback(func(prev DataCallback) DataCallback {
		return func(ev *Event) *Event {
			order = append(order, "second")
			return prev(ev)
		}
	})
	c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)

	assert.Equal(t, []string{"second", "first"}, order)
	assert.Len(t, tr.getMessages(), 1)
}

func TestSetShouldSendCallback_ComposesWithPrevious(t *testing.T) {
	c, tr := newTestClient(t, WithShouldSendCallback(func(ev *Event) bool {
		return ev.Level != LevelDebug
	}))

	c.SetShouldSendCallback(func(prev ShouldSendCallback) ShouldSendCallback {
		return func(ev *Event) bool {
			return prev(ev) && ev.Message != "noise"
		}
	})
	ctx := context.Background()
	c.CaptureMessage(ctx, "noise", nil)
	c.CaptureMessage(ctx, "verbose", &CaptureOptions{Level: LevelDebug})
	c.CaptureMessage(ctx, "signal", nil)
	flush(t, c)

	assert.Equal(t, "signal", tr.only(t)["message"])
}

func TestObservers_LoggedAndError(t *testing.T) {
	obs := &recordingObserver{}
	c, tr := newTestClient(t, WithObserver(obs))

	okID := c.CaptureMessage(context.Background(), "ok", nil)
	flush(t, c)

	sendErr := &transport.SendError{StatusCode: 403, Reason: "Creation of this event was denied"}
	tr.mu.Lock()
	tr.sendErr = sendErr
	tr.mu.Unlock()
	badID := c.CaptureMessage(context.Background(), "bad", nil)
	flush(t, c)

	logged, errs, _ := obs.snapshot()
	assert.Equal(t, []string{okID}, logged)
	require.Len(t, errs[badID], 1)
	var se *transport.SendError
	require.ErrorAs(t, errs[badID][0], &se)
	assert.Equal(t, 403, se.StatusCode)
}

func TestAddObserver_Remove(t *testing.T) {
	c, _ := newTestClient(t)
	obs := &recordingObserver{}

	remove := c.AddObserver(obs)
	c.CaptureMessage(context.Background(), "seen", nil)
	flush(t, c)
	remove()
	remove()
	c.CaptureMessage(context.Background(), "unseen", nil)
	flush(t, c)

	logged, _, _ := obs.snapshot()
	assert.Len(t, logged, 1)
}

func TestCaptureOptions_OnResult(t *testing.T) {
	c, _ := newTestClient(t)

	results := make(chan transport.Result, 1)
	id := c.CaptureMessage(context.Background(), "hello", &CaptureOptions{
		OnResult: func(r transport.Result) { results <- r },
	})

	select {
	case r := <-results:
		assert.Equal(t, id, r.EventID)
		assert.Equal(t, transport.Logged, r.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("OnResult was not called")
	}
}

func TestLegacyChecksum(t *testing.T) {
	c, tr := newTestClient(t, WithLegacyChecksum())

	c.CaptureMessage(context.Background(), "hello", nil)
	flush(t, c)

	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", tr.only(t)["checksum"])
}

func TestCapture_CircularExtra(t *testing.T) {
	c, tr := newTestClient(t)

	self := map[string]any{"name": "loop"}
	self["self"] = self
	c.CaptureMessage(context.Background(), "cycle", &CaptureOptions{Extra: map[string]any{"data": self}})
	flush(t, c)

	data := tr.only(t)["extra"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "loop", data["name"])
	assert.Equal(t, CircularSentinel, data["self"])
}

func TestFlush_HonorsContext(t *testing.T) {
	c, tr := newTestClient(t)
	tr.block = make(chan struct{})
	defer close(tr.block)

	c.CaptureMessage(context.Background(), "slow", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Flush(ctx), context.DeadlineExceeded)
}

func TestClose_ClosesTransportOnce(t *testing.T) {
	tr := &recordingTransport{}
	c, err := New(WithDSN(testDSN), WithTransport(tr), withEnv(nil))
	require.NoError(t, err)

	c.CaptureMessage(context.Background(), "before close", nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.True(t, tr.closed)
	assert.Len(t, tr.getMessages(), 1, "Close waits for in-flight sends")
}

func TestAdditionalTransport_ReceivesEveryEvent(t *testing.T) {
	echo := &recordingTransport{}
	c, tr := newTestClient(t, WithAdditionalTransport(echo))

	c.CaptureMessage(context.Background(), "twice", nil)
	flush(t, c)

	assert.Len(t, tr.getMessages(), 1)
	assert.Len(t, echo.getMessages(), 1)

	require.NoError(t, c.Close())
	assert.True(t, tr.closed)
	assert.True(t, echo.closed)
}

func TestAdditionalTransport_FailureFailsDelivery(t *testing.T) {
	echo := &recordingTransport{sendErr: errors.New("echo down")}
	results := make(chan transport.Result, 1)
	c, tr := newTestClient(t, WithAdditionalTransport(echo))

	c.CaptureMessage(context.Background(), "partial", &CaptureOptions{
		OnResult: func(r transport.Result) { results <- r },
	})
	r := <-results

	assert.Equal(t, transport.Failed, r.Outcome)
	assert.ErrorContains(t, r.Err, "echo down")
	assert.Len(t, tr.getMessages(), 1, "primary still receives the event")
}

func TestEventID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := newEventID()
		assert.False(t, seen[id])
		assert.False(t, strings.Contains(id, "-"))
		seen[id] = true
	}
}
