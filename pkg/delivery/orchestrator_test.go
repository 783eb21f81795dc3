package delivery

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedgate/feedgate/pkg/cache"
	"github.com/feedgate/feedgate/pkg/compress"
	"github.com/feedgate/feedgate/pkg/feedgen"
	"github.com/feedgate/feedgate/pkg/routes"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   atomic.Int64
	body    []byte
	delay   time.Duration
	err     error
	lastReq feedgen.Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req feedgen.Request) (feedgen.Result, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.lastReq = req
	body, delay, err := g.body, g.delay, g.err
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return feedgen.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return feedgen.Result{}, err
	}
	if body == nil {
		body = []byte("<rss>" + req.Identity + ":" + req.Format + "</rss>")
	}
	return feedgen.Result{Body: body, ContentType: feedgen.ContentTypeFor(req.Format)}, nil
}

// failingStore simulates a broken cache backend.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	return nil, errors.New("backend down")
}
func (failingStore) Set(ctx context.Context, key string, body []byte, contentType string, params cache.Params, ttl time.Duration) (*cache.Entry, error) {
	return nil, errors.New("backend down")
}
func (failingStore) Delete(ctx context.Context, key string) error { return errors.New("backend down") }
func (failingStore) DeleteMatching(ctx context.Context, match func(cache.Params) bool) (int, error) {
	return 0, errors.New("backend down")
}
func (failingStore) ClearAll(ctx context.Context) error { return errors.New("backend down") }

func newTestOrchestrator(t *testing.T, store cache.Store, gen feedgen.Generator) *Orchestrator {
	t.Helper()

	source := routes.NewMemorySource(routes.DefaultOptions())
	if err := source.AddRoute(routes.FeedRoute{
		Slug: "podcast", Title: "Podcast",
		PostTypes: []string{"episode"}, ItemLimit: 20, Enabled: true,
	}); err != nil {
		t.Fatalf("AddRoute failed: %v", err)
	}
	if err := source.AddRedirect(routes.RedirectRule{
		FromPath: "/feed/old", ToPath: "/feed/podcast", StatusCode: 301, Enabled: true,
	}); err != nil {
		t.Fatalf("AddRedirect failed: %v", err)
	}
	registry := routes.NewRegistry(source, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.TTL = time.Minute
	cfg.GenerationTimeout = 200 * time.Millisecond
	cfg.Compression = compress.Config{Enabled: true, MinSize: 64}
	return New(store, registry, gen, cfg, zerolog.Nop())
}

func doRequest(o *Orchestrator, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTP_DefaultFeed(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})

	rec := doRequest(o, http.MethodGet, "/feed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/rss+xml; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `"`) || !strings.HasSuffix(etag, `"`) {
		t.Errorf("ETag %q is not quoted", etag)
	}
	if rec.Header().Get("Last-Modified") == "" {
		t.Error("Last-Modified missing")
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=") {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !strings.Contains(rec.Body.String(), "default:rss2") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestServeHTTP_SecondRequestHitsCache(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)

	first := doRequest(o, http.MethodGet, "/feed", nil)
	second := doRequest(o, http.MethodGet, "/feed", nil)

	if got := gen.calls.Load(); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}
	if first.Header().Get("ETag") != second.Header().Get("ETag") {
		t.Error("ETag changed between cached responses")
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("cached body differs from generated body")
	}
}

func TestServeHTTP_IfNoneMatch304(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})

	first := doRequest(o, http.MethodGet, "/feed", nil)
	etag := first.Header().Get("ETag")

	rec := doRequest(o, http.MethodGet, "/feed", http.Header{"If-None-Match": {etag}})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("304 response carries a body")
	}
	if rec.Header().Get("ETag") != etag {
		t.Error("304 response lost its ETag")
	}
	if rec.Header().Get("Content-Type") != "" {
		t.Error("304 response carries a Content-Type")
	}
}

func TestServeHTTP_IfNoneMatchTakesPrecedence(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})
	doRequest(o, http.MethodGet, "/feed", nil)

	// Stale ETag must force a full response even when If-Modified-Since
	// alone would produce a 304.
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	rec := doRequest(o, http.MethodGet, "/feed", http.Header{
		"If-None-Match":     {`"deadbeefdeadbeef"`},
		"If-Modified-Since": {future},
	})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (If-Modified-Since must be ignored)", rec.Code)
	}
}

func TestServeHTTP_IfModifiedSince304(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})
	doRequest(o, http.MethodGet, "/feed", nil)

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	rec := doRequest(o, http.MethodGet, "/feed", http.Header{"If-Modified-Since": {future}})
	if rec.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", rec.Code)
	}
}

func TestServeHTTP_GzipNegotiation(t *testing.T) {
	gen := &fakeGenerator{body: bytes.Repeat([]byte("<item>feed content</item>"), 50)}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)

	rec := doRequest(o, http.MethodGet, "/feed", http.Header{"Accept-Encoding": {"gzip"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ce := rec.Header().Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", ce)
	}
	if rec.Header().Get("Vary") != "Accept-Encoding" {
		t.Error("Vary header missing")
	}

	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("body is not gzip: %v", err)
	}
	decoded, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gzip read failed: %v", err)
	}
	if !bytes.Equal(decoded, gen.body) {
		t.Error("decompressed body does not match the generated body")
	}

	// The cached entry is uncompressed; a client without gzip support
	// gets the identity body.
	plain := doRequest(o, http.MethodGet, "/feed", nil)
	if plain.Header().Get("Content-Encoding") != "" {
		t.Error("identity request got a compressed body")
	}
	if !bytes.Equal(plain.Body.Bytes(), gen.body) {
		t.Error("identity body does not match the generated body")
	}
}

func TestServeHTTP_SmallBodyNotCompressed(t *testing.T) {
	gen := &fakeGenerator{body: []byte("<rss/>")}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)

	rec := doRequest(o, http.MethodGet, "/feed", http.Header{"Accept-Encoding": {"gzip"}})
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("tiny body was compressed")
	}
}

func TestServeHTTP_Redirect(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})

	rec := doRequest(o, http.MethodGet, "/feed/old", nil)
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/feed/podcast" {
		t.Errorf("Location = %q", loc)
	}
}

func TestServeHTTP_NotFound(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})

	if rec := doRequest(o, http.MethodGet, "/feed/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServeHTTP_FormatOverride(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})

	rec := doRequest(o, http.MethodGet, "/feed?format=atom", nil)
	if ct := rec.Header().Get("Content-Type"); ct != "application/atom+xml; charset=utf-8" {
		t.Errorf("Content-Type = %q, want atom", ct)
	}
	if !strings.Contains(rec.Body.String(), "default:atom") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}

	// Unknown override values fall back to the resolved format.
	rec = doRequest(o, http.MethodGet, "/feed?format=opml", nil)
	if ct := rec.Header().Get("Content-Type"); ct != "application/rss+xml; charset=utf-8" {
		t.Errorf("Content-Type = %q, want rss", ct)
	}
}

func TestServeHTTP_GenerationErrorNotCached(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("source down")}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)

	if rec := doRequest(o, http.MethodGet, "/feed", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	// The failure was not cached: a later request regenerates and succeeds.
	gen.mu.Lock()
	gen.err = nil
	gen.mu.Unlock()

	if rec := doRequest(o, http.MethodGet, "/feed", nil); rec.Code != http.StatusOK {
		t.Errorf("status after recovery = %d, want 200", rec.Code)
	}
	if got := gen.calls.Load(); got != 2 {
		t.Errorf("generator called %d times, want 2", got)
	}
}

func TestServeHTTP_GenerationTimeout503(t *testing.T) {
	gen := &fakeGenerator{delay: time.Second}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)

	if rec := doRequest(o, http.MethodGet, "/feed", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServeHTTP_BrokenCacheDegradesToMiss(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(t, failingStore{}, gen)

	rec := doRequest(o, http.MethodGet, "/feed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite broken cache", rec.Code)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("uncached response lost its ETag")
	}

	// Every request regenerates while the backend is down.
	doRequest(o, http.MethodGet, "/feed", nil)
	if got := gen.calls.Load(); got != 2 {
		t.Errorf("generator called %d times, want 2", got)
	}
}

func TestServeHTTP_CustomRoute(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})

	rec := doRequest(o, http.MethodGet, "/feed/podcast", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "custom:podcast") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestServeHTTP_QueryVariantsCacheSeparately(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)

	doRequest(o, http.MethodGet, "/feed", nil)
	doRequest(o, http.MethodGet, "/feed?paged=2", nil)
	if got := gen.calls.Load(); got != 2 {
		t.Errorf("generator called %d times, want 2 (paged variant is a distinct key)", got)
	}

	// Tracking parameters do not fragment the cache.
	doRequest(o, http.MethodGet, "/feed?utm_source=x", nil)
	if got := gen.calls.Load(); got != 2 {
		t.Errorf("generator called %d times, want 2 (tracking param must share the key)", got)
	}
}

func TestServeHTTP_RecognizedParamsReachGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	store := cache.NewMemoryStore()
	o := newTestOrchestrator(t, store, gen)

	doRequest(o, http.MethodGet, "/feed?paged=2&utm_source=x", nil)

	gen.mu.Lock()
	params := gen.lastReq.Params
	gen.mu.Unlock()
	// A parameter that fragments the key must also reach generation;
	// tracking noise must reach neither.
	if params["paged"] != "2" {
		t.Errorf("generator params = %v, want paged=2", params)
	}
	if _, ok := params["utm_source"]; ok {
		t.Error("tracking parameter leaked into the generator request")
	}

	// The stored entry carries the same query so invalidation can see it.
	n, err := store.DeleteMatching(context.Background(), func(p cache.Params) bool {
		return p.Query["paged"] == "2"
	})
	if err != nil {
		t.Fatalf("DeleteMatching failed: %v", err)
	}
	if n != 1 {
		t.Errorf("entries matched by query = %d, want 1", n)
	}
}

func TestServeHTTP_HeadRequest(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})

	rec := doRequest(o, http.MethodHead, "/feed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("HEAD response carries a body")
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("HEAD response missing ETag")
	}
}

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	o := newTestOrchestrator(t, cache.NewMemoryStore(), &fakeGenerator{})

	if rec := doRequest(o, http.MethodPost, "/feed", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServeHTTP_LeaderDisconnectDoesNotFailWaiters(t *testing.T) {
	gen := &fakeGenerator{delay: 120 * time.Millisecond}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		req := httptest.NewRequest(http.MethodGet, "/feed", nil).WithContext(leaderCtx)
		o.ServeHTTP(httptest.NewRecorder(), req)
	}()

	// Let the leader start generating, then drop its connection.
	time.Sleep(30 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := doRequest(o, http.MethodGet, "/feed", nil)
			if rec.Code != http.StatusOK {
				t.Errorf("waiter status = %d, want 200 after leader disconnect", rec.Code)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	wg.Wait()
	<-leaderDone

	if got := gen.calls.Load(); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}
}

func TestServeHTTP_ExpiredEntryRegenerates(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)
	o.cfg.TTL = 50 * time.Millisecond

	first := doRequest(o, http.MethodGet, "/feed", nil)
	etag := first.Header().Get("ETag")

	// Within the TTL the validator still matches.
	rec := doRequest(o, http.MethodGet, "/feed", http.Header{"If-None-Match": {etag}})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status within TTL = %d, want 304", rec.Code)
	}

	time.Sleep(80 * time.Millisecond)

	// Past the TTL the entry is gone and content has moved on; the stale
	// validator gets a fresh 200 with a new ETag.
	gen.mu.Lock()
	gen.body = []byte("<rss>updated</rss>")
	gen.mu.Unlock()

	rec = doRequest(o, http.MethodGet, "/feed", http.Header{"If-None-Match": {etag}})
	if rec.Code != http.StatusOK {
		t.Errorf("status past TTL = %d, want 200", rec.Code)
	}
	if rec.Header().Get("ETag") == etag {
		t.Error("regenerated entry kept the stale ETag despite new content")
	}
	if got := gen.calls.Load(); got != 2 {
		t.Errorf("generator called %d times, want 2", got)
	}
}

func TestServeHTTP_ConcurrentMissesCollapse(t *testing.T) {
	gen := &fakeGenerator{delay: 50 * time.Millisecond}
	o := newTestOrchestrator(t, cache.NewMemoryStore(), gen)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := doRequest(o, http.MethodGet, "/feed", nil)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		}()
	}
	wg.Wait()

	if got := gen.calls.Load(); got != 1 {
		t.Errorf("generator called %d times, want 1 (stampede not collapsed)", got)
	}
}
