package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"
)

type fetcherStub struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls map[string]int
}

func newFetcherStub() *fetcherStub {
	return &fetcherStub{data: map[string][]byte{}, calls: map[string]int{}}
}

func (f *fetcherStub) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	data, ok := f.data[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *fetcherStub) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPreloadMakesURLReady(t *testing.T) {
	fetcher := newFetcherStub()
	fetcher.data["img/a"] = pngBytes(t)
	cache, err := New(fetcher, Config{Capacity: 10}, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	if cache.IsReady("img/a") {
		t.Fatal("URL ready before preload")
	}
	if !cache.Preload(context.Background(), "img/a") {
		t.Fatal("preload of a decodable image must succeed")
	}
	if !cache.IsReady("img/a") {
		t.Fatal("URL not ready after preload")
	}
}

func TestPreloadCachesFailuresNegatively(t *testing.T) {
	fetcher := newFetcherStub()
	fetcher.data["img/broken"] = []byte("not an image")
	cache, err := New(fetcher, Config{Capacity: 10}, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	if cache.Preload(context.Background(), "img/broken") {
		t.Fatal("undecodable bytes must not report success")
	}
	if cache.IsReady("img/broken") {
		t.Fatal("failed decode must not read as ready")
	}
	if cache.Preload(context.Background(), "img/missing") {
		t.Fatal("fetch failure must not report success")
	}
	if stats := cache.Stats(); stats.Entries != 2 {
		t.Fatalf("failures must still occupy entries, got %d", stats.Entries)
	}
}

func TestFailedPreloadIsNotRefetched(t *testing.T) {
	fetcher := newFetcherStub()
	fetcher.data["img/broken"] = []byte("not an image")
	cache, err := New(fetcher, Config{Capacity: 10}, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	// The lookahead reissues preloads on every deck change; a known-bad
	// URL must not hit the network each time.
	for i := 0; i < 3; i++ {
		if cache.Preload(context.Background(), "img/broken") {
			t.Fatalf("preload %d of a broken URL reported success", i)
		}
	}
	if got := fetcher.fetchCount("img/broken"); got != 1 {
		t.Fatalf("expected a single fetch for a failed URL, got %d", got)
	}

	// After the cooldown the URL gets one more chance.
	cache.now = func() time.Time { return time.Now().Add(retryFailedAfter + time.Second) }
	if cache.Preload(context.Background(), "img/broken") {
		t.Fatal("still-broken URL reported success after cooldown")
	}
	if got := fetcher.fetchCount("img/broken"); got != 2 {
		t.Fatalf("expected a retry after the cooldown, got %d fetches", got)
	}
}

func TestRepeatedPreloadFetchesOnce(t *testing.T) {
	fetcher := newFetcherStub()
	fetcher.data["img/a"] = pngBytes(t)
	cache, err := New(fetcher, Config{Capacity: 10}, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !cache.Preload(context.Background(), "img/a") {
			t.Fatalf("preload %d failed", i)
		}
	}
	if got := fetcher.fetchCount("img/a"); got != 1 {
		t.Fatalf("expected a single fetch for a cached URL, got %d", got)
	}
}

func TestEvictsLeastRecentlyAccessed(t *testing.T) {
	fetcher := newFetcherStub()
	img := pngBytes(t)
	for i := 0; i < 4; i++ {
		fetcher.data[fmt.Sprintf("img/%d", i)] = img
	}
	cache, err := New(fetcher, Config{Capacity: 3}, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	ctx := context.Background()
	cache.Preload(ctx, "img/0")
	cache.Preload(ctx, "img/1")
	cache.Preload(ctx, "img/2")

	// Touch img/0 so img/1 becomes the eviction candidate.
	if !cache.IsReady("img/0") {
		t.Fatal("img/0 should be ready")
	}

	cache.Preload(ctx, "img/3")

	if !cache.IsReady("img/0") {
		t.Fatal("recently accessed entry was evicted")
	}
	if cache.IsReady("img/1") {
		t.Fatal("least recently accessed entry survived past capacity")
	}
	if !cache.IsReady("img/2") || !cache.IsReady("img/3") {
		t.Fatal("expected img/2 and img/3 cached")
	}

	stats := cache.Stats()
	if stats.Entries != 3 || stats.Capacity != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestPreloadEmptyURL(t *testing.T) {
	cache, err := New(newFetcherStub(), Config{}, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if cache.Preload(context.Background(), "") {
		t.Fatal("empty URL must not preload")
	}
}
