// Package testutil provides testing utilities for the feed engine.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/feedgate/feedgate/pkg/feedgen"
)

// StubPostSource is a configurable in-memory PostSource for testing.
type StubPostSource struct {
	mu    sync.RWMutex
	posts []feedgen.Post
	err   error
	delay time.Duration

	// Tracking
	ListCount     int
	LastPostTypes []string
	LastLimit     int
}

// NewStubPostSource creates a stub source with the given posts.
func NewStubPostSource(posts ...feedgen.Post) *StubPostSource {
	return &StubPostSource{posts: posts}
}

// ListPosts implements feedgen.PostSource.
func (s *StubPostSource) ListPosts(ctx context.Context, postTypes []string, limit int) ([]feedgen.Post, error) {
	s.mu.Lock()
	s.ListCount++
	s.LastPostTypes = append([]string(nil), postTypes...)
	s.LastLimit = limit
	posts, err, delay := s.posts, s.err, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(postTypes))
	for _, t := range postTypes {
		wanted[t] = true
	}

	var out []feedgen.Post
	for _, p := range posts {
		if wanted[p.Type] {
			out = append(out, p)
		}
	}
	return out, nil
}

// SetPosts replaces the post set.
func (s *StubPostSource) SetPosts(posts ...feedgen.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = posts
}

// SetError makes every ListPosts call fail with err until reset.
func (s *StubPostSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SetDelay makes every ListPosts call block for d (or until ctx cancels).
func (s *StubPostSource) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Reset clears tracking counters.
func (s *StubPostSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCount = 0
	s.LastPostTypes = nil
	s.LastLimit = 0
}

// GeneratePosts builds n posts of the given type with descending
// publication dates, newest first.
func GeneratePosts(postType string, n int) []feedgen.Post {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	posts := make([]feedgen.Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, feedgen.Post{
			ID:          fmt.Sprintf("%s-%d", postType, i+1),
			Type:        postType,
			Title:       fmt.Sprintf("%s %d", postType, i+1),
			Link:        fmt.Sprintf("https://example.com/%s/%d", postType, i+1),
			Summary:     fmt.Sprintf("Summary of %s %d", postType, i+1),
			Author:      "author",
			PublishedAt: base.Add(-time.Duration(i) * time.Hour),
			UpdatedAt:   base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return posts
}
