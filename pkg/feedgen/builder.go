package feedgen

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/feeds"
	"github.com/rs/zerolog"
)

// Post is one content item as provided by the host platform.
type Post struct {
	ID          string
	Type        string
	Title       string
	Link        string
	Summary     string
	Content     string
	Author      string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

// PostSource lists posts for feed assembly. Implemented by the host
// platform's content layer.
type PostSource interface {
	// ListPosts returns posts of the given types, at most limit of them.
	// Ordering is applied by the Builder, so implementations may return
	// posts in any order.
	ListPosts(ctx context.Context, postTypes []string, limit int) ([]Post, error)
}

// SiteInfo is the channel-level metadata of generated feeds.
type SiteInfo struct {
	Title       string
	Link        string
	Description string
	Author      string
}

// Builder is the reference Generator. It renders RSS 2.0, Atom and JSON
// Feed via gorilla/feeds from a PostSource.
type Builder struct {
	source   PostSource
	site     SiteInfo
	maxItems int
	logger   zerolog.Logger
}

// NewBuilder creates a feed builder. maxItems is the hard cap applied on
// top of any per-request limit.
func NewBuilder(source PostSource, site SiteInfo, maxItems int, logger zerolog.Logger) *Builder {
	if maxItems <= 0 {
		maxItems = 50
	}
	return &Builder{
		source:   source,
		site:     site,
		maxItems: maxItems,
		logger:   logger,
	}
}

// Generate builds the feed body for req.
func (b *Builder) Generate(ctx context.Context, req Request) (Result, error) {
	limit := req.ItemLimit
	if limit <= 0 || limit > b.maxItems {
		limit = b.maxItems
	}
	page := pageFrom(req.Params)

	// Fetch enough to cover the requested page window.
	posts, err := b.source.ListPosts(ctx, req.PostTypes, limit*page)
	if err != nil {
		return Result{}, fmt.Errorf("list posts: %w", err)
	}

	sortPosts(posts, req.OrderBy, req.OrderDirection)
	posts = pageWindow(posts, page, limit)

	feed := b.buildFeed(req, posts)

	var body string
	switch req.Format {
	case "rss2", "":
		body, err = feed.ToRss()
	case "atom":
		body, err = feed.ToAtom()
	case "json":
		body, err = feed.ToJSON()
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownFormat, req.Format)
	}
	if err != nil {
		return Result{}, fmt.Errorf("render %s feed: %w", req.Format, err)
	}

	b.logger.Debug().
		Str("identity", req.Identity).
		Str("format", req.Format).
		Int("items", len(posts)).
		Msg("Generated feed body")

	return Result{
		Body:        []byte(body),
		ContentType: ContentTypeFor(req.Format),
	}, nil
}

func (b *Builder) buildFeed(req Request, posts []Post) *feeds.Feed {
	title := req.Title
	if title == "" {
		title = b.site.Title
	}
	description := req.Description
	if description == "" {
		description = b.site.Description
	}

	items := make([]*feeds.Item, 0, len(posts))
	for _, post := range posts {
		items = append(items, &feeds.Item{
			Id:          post.ID,
			Title:       post.Title,
			Link:        &feeds.Link{Href: post.Link},
			Description: post.Summary,
			Content:     post.Content,
			Author:      &feeds.Author{Name: post.Author},
			Created:     post.PublishedAt,
			Updated:     post.UpdatedAt,
		})
	}

	return &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: b.site.Link},
		Description: description,
		Author:      &feeds.Author{Name: b.site.Author},
		Created:     time.Now().UTC(),
		Items:       items,
	}
}

// pageFrom reads the page number from recognized request parameters.
// "paged" wins over "page"; anything unparsable means page one.
func pageFrom(params map[string]string) int {
	for _, name := range []string{"paged", "page"} {
		if v, ok := params[name]; ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

// pageWindow slices the page-th window of size limit out of posts.
func pageWindow(posts []Post, page, limit int) []Post {
	offset := (page - 1) * limit
	if offset >= len(posts) {
		return nil
	}
	posts = posts[offset:]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts
}

// sortPosts orders posts by the requested field. Unknown fields fall back
// to publication date; the default direction is descending (newest first).
func sortPosts(posts []Post, orderBy, direction string) {
	less := func(a, b Post) bool { return a.PublishedAt.Before(b.PublishedAt) }
	switch orderBy {
	case "modified":
		less = func(a, b Post) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "title":
		less = func(a, b Post) bool { return a.Title < b.Title }
	}

	asc := direction == "asc"
	sort.SliceStable(posts, func(i, j int) bool {
		if asc {
			return less(posts[i], posts[j])
		}
		return less(posts[j], posts[i])
	})
}
