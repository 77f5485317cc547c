// recover.go provides panic capture for deferred calls and goroutines.

package raven

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strongdm/raven-observe/pkg/raven/stacktrace"
	"github.com/strongdm/raven-observe/pkg/raven/transport"
)

// Recover captures a panic as a fatal exception and returns the recovered
// value. It does not re-panic. It must be deferred directly, not called from
// a deferred closure:
//
//	func handler(ctx context.Context) {
//	    defer raven.Recover(ctx, client)
//	    // code that might panic
//	}
func Recover(ctx context.Context, c Client) any {
	r := recover()
	if r == nil {
		return nil
	}
	capturePanic(ctx, c, r, nil)
	return r
}

// RecoverTo is Recover that stores the panic in *errp as a *PanicError:
//
//	func handler(ctx context.Context) (err error) {
//	    defer raven.RecoverTo(ctx, client, &err)
//	    // code that might panic
//	}
func RecoverTo(ctx context.Context, c Client, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	capturePanic(ctx, c, r, nil)
	if errp != nil {
		*errp = &PanicError{Value: r}
	}
}

func capturePanic(ctx context.Context, c Client, r any, onResult func(transport.Result)) string {
	return c.CaptureException(ctx, &PanicError{Value: r}, &CaptureOptions{
		Level:    LevelFatal,
		Frames:   stacktrace.PanicFrames(1),
		OnResult: onResult,
	})
}

// DefaultPanicWait bounds how long a GlobalHandler waits for the panic event
// to be delivered.
const DefaultPanicWait = 2 * time.Second

// GlobalHandlerCallback is told whether the panic event was sent and what
// was recovered.
type GlobalHandlerCallback func(sent bool, err error)

// GlobalHandler captures panics of goroutines it guards. Go has no process
// wide uncaught-panic hook, so every goroutine opts in with Guard or Go.
//
// While one panic is being reported, further panics are not captured again;
// they go straight to the callback with sent=false.
//
// Without a callback the panic is re-raised after the event was delivered or
// the wait expired, so the process still crashes.
type GlobalHandler struct {
	client    Client
	callback  GlobalHandlerCallback
	wait      time.Duration
	installed atomic.Bool
	inFlight  atomic.Bool
}

// InstallGlobalHandler returns an installed handler for c. cb may be nil.
func InstallGlobalHandler(c Client, cb GlobalHandlerCallback) *GlobalHandler {
	h := &GlobalHandler{client: c, callback: cb, wait: DefaultPanicWait}
	h.installed.Store(true)
	return h
}

// Uninstall stops the handler from capturing. Guarded goroutines re-panic.
func (h *GlobalHandler) Uninstall() {
	h.installed.Store(false)
}

// Go runs fn in a new goroutine guarded by h.
func (h *GlobalHandler) Go(fn func()) {
	go func() {
		defer h.Guard()
		fn()
	}()
}

// Guard handles a panic of the calling goroutine. It must be deferred
// directly.
func (h *GlobalHandler) Guard() {
	r := recover()
	if r == nil {
		return
	}
	if !h.installed.Load() {
		panic(r)
	}
	pe := &PanicError{Value: r}

	if !h.inFlight.CompareAndSwap(false, true) {
		if h.callback != nil {
			h.callback(false, pe)
			return
		}
		panic(r)
	}

	done := make(chan transport.Result, 1)
	var once sync.Once
	id := capturePanic(context.Background(), h.client, r, func(res transport.Result) {
		once.Do(func() { done <- res })
	})

	sent := false
	if id != "" {
		timer := time.NewTimer(h.wait)
		select {
		case res := <-done:
			sent = res.Outcome == transport.Logged
		case <-timer.C:
		}
		timer.Stop()
	}
	h.inFlight.Store(false)

	if h.callback != nil {
		h.callback(sent, pe)
		return
	}
	panic(r)
}
