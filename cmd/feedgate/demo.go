package main

import (
	"context"
	"fmt"
	"time"

	"github.com/feedgate/feedgate/pkg/feedgen"
)

// demoSource serves generated sample content so the standalone binary has
// something to feed. Embedding hosts provide a real PostSource over their
// content layer instead (see examples/embedded).
type demoSource struct{}

func (demoSource) ListPosts(ctx context.Context, postTypes []string, limit int) ([]feedgen.Post, error) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	var posts []feedgen.Post
	for _, postType := range postTypes {
		for i := 0; i < limit && i < 20; i++ {
			posts = append(posts, feedgen.Post{
				ID:          fmt.Sprintf("%s-%d", postType, i+1),
				Type:        postType,
				Title:       fmt.Sprintf("Sample %s %d", postType, i+1),
				Link:        fmt.Sprintf("https://example.com/%s/%d", postType, i+1),
				Summary:     fmt.Sprintf("Sample %s number %d", postType, i+1),
				Author:      "feedgate",
				PublishedAt: base.Add(-time.Duration(i) * time.Hour),
				UpdatedAt:   base.Add(-time.Duration(i) * time.Hour),
			})
		}
	}
	return posts, nil
}
