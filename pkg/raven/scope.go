// scope.go implements the context bag shared by the captures of one
// logical operation.

package raven

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Scope holds tags, extra data, the user, a fingerprint, the current request
// and breadcrumbs. A client owns one global scope; local scopes are branched
// from it (or from another local scope) and travel in a context.Context.
//
// A branched scope starts with a copy of its parent's tags, extra, user,
// fingerprint and request and an empty breadcrumb buffer. Changes made to
// either scope afterwards are not visible to the other.
//
// Scope methods are safe for concurrent use.
type Scope struct {
	mu          sync.Mutex
	tags        map[string]string
	extra       map[string]any
	user        *User
	fingerprint []string
	request     *Request
	crumbs      *breadcrumbBuffer
	now         func() time.Time
}

func newScope(maxBreadcrumbs int) *Scope {
	return &Scope{
		tags:   map[string]string{},
		extra:  map[string]any{},
		crumbs: newBreadcrumbBuffer(maxBreadcrumbs),
		now:    time.Now,
	}
}

// branch returns a child scope holding a snapshot of s.
func (s *Scope) branch() *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Scope{
		tags:        maps.Clone(s.tags),
		extra:       maps.Clone(s.extra),
		user:        s.user,
		fingerprint: slices.Clone(s.fingerprint),
		request:     s.request,
		crumbs:      newBreadcrumbBuffer(s.crumbs.maxSize),
		now:         s.now,
	}
}

// SetUser replaces the user. A nil user clears it.
func (s *Scope) SetUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// SetExtra merges extra into the scope's extra data.
func (s *Scope) SetExtra(extra map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = lo.Assign(s.extra, extra)
}

// SetTags merges tags into the scope's tags.
func (s *Scope) SetTags(tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = lo.Assign(s.tags, tags)
}

// SetFingerprint sets the grouping fingerprint for subsequent events.
func (s *Scope) SetFingerprint(fingerprint []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = slices.Clone(fingerprint)
}

// SetRequest attaches the HTTP request being served.
func (s *Scope) SetRequest(req *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.request = req
}

// AddBreadcrumb appends a breadcrumb, stamping it with the current time when
// it has none. The oldest breadcrumb is evicted once the buffer is full.
func (s *Scope) AddBreadcrumb(crumb Breadcrumb) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if crumb.Timestamp.IsZero() {
		crumb.Timestamp = s.now()
	}
	crumb.Data = maps.Clone(crumb.Data)
	s.crumbs.Add(crumb)
}

// Breadcrumbs returns the buffered breadcrumbs, oldest first, without
// consuming them.
func (s *Scope) Breadcrumbs() []Breadcrumb {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crumbs.GetAll()
}

// Tags returns a copy of the scope's tags.
func (s *Scope) Tags() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.tags)
}

// Extra returns a copy of the scope's extra data.
func (s *Scope) Extra() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.extra)
}

// User returns the scope's user, or nil.
func (s *Scope) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// scopeData is a point-in-time copy of a scope used by the event builder.
type scopeData struct {
	tags        map[string]string
	extra       map[string]any
	user        *User
	fingerprint []string
	request     *Request
	breadcrumbs []Breadcrumb
}

// snapshot copies the scope. With drain set, the breadcrumbs are consumed.
func (s *Scope) snapshot(drain bool) scopeData {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := scopeData{
		tags:        maps.Clone(s.tags),
		extra:       maps.Clone(s.extra),
		user:        s.user,
		fingerprint: slices.Clone(s.fingerprint),
		request:     s.request,
	}
	if drain {
		d.breadcrumbs = s.crumbs.Drain()
	}
	return d
}
