// observer.go defines how callers learn the outcome of captured events.

package raven

import (
	"sync"

	"github.com/strongdm/raven-observe/pkg/raven/transport"
)

// Observer receives delivery outcomes. Calls happen on the sending goroutine
// and may arrive in any order across events. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	// OnLogged is called once the endpoint accepted the event.
	OnLogged(eventID string)

	// OnError is called when an event could not be sent. It is also called,
	// with an error wrapping ErrStackResolution, when an event was built
	// without a stacktrace; that event is still sent, so OnLogged or a second
	// OnError for the delivery follows for the same id. Use errors.Is to tell
	// the two apart.
	OnError(eventID string, err error)
}

// CaptureObserver is optionally implemented by observers that also want to
// see events before they are sent and events dropped by the send predicate.
type CaptureObserver interface {
	Observer

	OnCaptured(ev *Event)
	OnFiltered(eventID string)
}

// ObserverFuncs adapts functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Logged func(eventID string)
	Error  func(eventID string, err error)
}

func (o ObserverFuncs) OnLogged(eventID string) {
	if o.Logged != nil {
		o.Logged(eventID)
	}
}

func (o ObserverFuncs) OnError(eventID string, err error) {
	if o.Error != nil {
		o.Error(eventID, err)
	}
}

// observerSet is the client's observer registry.
type observerSet struct {
	mu      sync.RWMutex
	nextID  int
	entries map[int]Observer
}

func newObserverSet(initial []Observer) *observerSet {
	s := &observerSet{entries: map[int]Observer{}}
	for _, o := range initial {
		s.add(o)
	}
	return s
}

// add registers o and returns a function removing it again.
func (s *observerSet) add(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.entries[id] = o
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.entries, id)
			s.mu.Unlock()
		})
	}
}

func (s *observerSet) snapshot() []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Observer, 0, len(s.entries))
	for _, o := range s.entries {
		out = append(out, o)
	}
	return out
}

func (s *observerSet) result(r transport.Result) {
	for _, o := range s.snapshot() {
		if r.Outcome == transport.Logged {
			o.OnLogged(r.EventID)
		} else {
			o.OnError(r.EventID, r.Err)
		}
	}
}

func (s *observerSet) captured(ev *Event) {
	for _, o := range s.snapshot() {
		if co, ok := o.(CaptureObserver); ok {
			co.OnCaptured(ev)
		}
	}
}

func (s *observerSet) filtered(eventID string) {
	for _, o := range s.snapshot() {
		if co, ok := o.(CaptureObserver); ok {
			co.OnFiltered(eventID)
		}
	}
}
