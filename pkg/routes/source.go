package routes

import (
	"strings"
	"sync"
)

// MemorySource is an in-memory definition store with validated CRUD.
// Deletion addresses definitions by content-derived identity (slug or
// from-path), never by position: positions drift under concurrent edits.
type MemorySource struct {
	opts Options

	mu        sync.RWMutex
	revision  uint64
	routes    []FeedRoute
	redirects []RedirectRule
}

// NewMemorySource creates an empty definition store.
func NewMemorySource(opts Options) *MemorySource {
	return &MemorySource{opts: opts, revision: 1}
}

// Revision returns the current revision counter. It changes on every
// successful mutation.
func (s *MemorySource) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Snapshot returns a copy of the current definitions.
func (s *MemorySource) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Routes:    append([]FeedRoute(nil), s.routes...),
		Redirects: append([]RedirectRule(nil), s.redirects...),
	}
}

// AddRoute validates and appends a route. A failed validation leaves the
// definitions untouched.
func (s *MemorySource) AddRoute(route FeedRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Routes: s.routes, Redirects: s.redirects}
	if err := ValidateRoute(route, snap, s.opts); err != nil {
		return err
	}

	s.routes = append(s.routes, route)
	s.revision++
	return nil
}

// DeleteRoute removes the route with the given slug.
func (s *MemorySource) DeleteRoute(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, route := range s.routes {
		if route.Slug == slug {
			s.routes = append(s.routes[:i], s.routes[i+1:]...)
			s.revision++
			return nil
		}
	}
	return ErrNotFound
}

// AddRedirect validates and appends a redirect rule. The from-path is
// stored normalized so deletion and conflict checks address one canonical
// form.
func (s *MemorySource) AddRedirect(rule RedirectRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule.FromPath = normalizePath(strings.TrimSpace(rule.FromPath))

	snap := Snapshot{Routes: s.routes, Redirects: s.redirects}
	if err := ValidateRedirect(rule, snap, s.opts); err != nil {
		return err
	}

	s.redirects = append(s.redirects, rule)
	s.revision++
	return nil
}

// DeleteRedirect removes the rule matching the given from-path.
func (s *MemorySource) DeleteRedirect(fromPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromPath = normalizePath(fromPath)
	for i, rule := range s.redirects {
		if rule.FromPath == fromPath {
			s.redirects = append(s.redirects[:i], s.redirects[i+1:]...)
			s.revision++
			return nil
		}
	}
	return ErrNotFound
}
