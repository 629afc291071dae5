package contextcache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/contextcache"
	"github.com/tropicallease/adcontext/internal/persist"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T, cfg contextcache.Config) (*contextcache.Store, *fakeClock, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page_context.json")
	backing, err := persist.New(path)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := contextcache.New(backing, cfg, clock, nil)
	require.NoError(t, err)
	return store, clock, path
}

func enrichedFor(url string) *ads.EnrichedPageContext {
	return &ads.EnrichedPageContext{
		URL:         url,
		Title:       "Trail Guide",
		Topics:      []string{"outdoor"},
		MainContent: "Deep in the backcountry.",
	}
}

func TestRoundTripWithinTTL(t *testing.T) {
	store, clock, _ := newTestStore(t, contextcache.Config{TTL: time.Hour})

	require.NoError(t, store.StoreEnrichedContext(enrichedFor("https://example.com/trails/")))

	got := store.GetEnriched("https://example.com/trails#top")
	require.NotNil(t, got)
	assert.Equal(t, "Trail Guide", got.Title)

	clock.Advance(59 * time.Minute)
	assert.NotNil(t, store.GetEnriched("https://example.com/trails"))

	clock.Advance(2 * time.Minute)
	assert.Nil(t, store.GetEnriched("https://example.com/trails"))
	// Expired, not deleted.
	assert.Equal(t, 1, store.Len())
}

func TestCrawlingStatusStaleness(t *testing.T) {
	store, clock, _ := newTestStore(t, contextcache.Config{
		TTL:            24 * time.Hour,
		CrawlStaleness: 5 * time.Minute,
	})

	url := "https://example.com/article"
	assert.False(t, store.IsBeingCrawled(url))

	require.NoError(t, store.SetCrawlingStatus(url, true))
	assert.True(t, store.IsBeingCrawled(url))

	// Past the staleness window the flag no longer blocks a new crawl.
	clock.Advance(6 * time.Minute)
	assert.False(t, store.IsBeingCrawled(url))

	require.NoError(t, store.SetCrawlingStatus(url, false))
	assert.False(t, store.IsBeingCrawled(url))
}

func TestStoreResetsCrawlState(t *testing.T) {
	store, _, _ := newTestStore(t, contextcache.Config{})

	url := "https://example.com/post"
	require.NoError(t, store.SetCrawlingStatus(url, true))
	require.NoError(t, store.StoreEnrichedContext(enrichedFor(url)))

	assert.False(t, store.IsBeingCrawled(url))
	entry, ok := store.Get(url)
	require.True(t, ok)
	assert.False(t, entry.IsCrawling)
	require.NotNil(t, entry.Enriched)
}

func TestPersistenceAcrossRestarts(t *testing.T) {
	store, clock, path := newTestStore(t, contextcache.Config{TTL: time.Hour})
	require.NoError(t, store.StoreEnrichedContext(enrichedFor("https://example.com/a")))

	backing, err := persist.New(path)
	require.NoError(t, err)
	reloaded, err := contextcache.New(backing, contextcache.Config{TTL: time.Hour}, clock, nil)
	require.NoError(t, err)

	got := reloaded.GetEnriched("https://example.com/a")
	require.NotNil(t, got)
	assert.Equal(t, "Trail Guide", got.Title)
}

func TestMalformedRecordSkippedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page_context.json")
	payload := `{
		"https://example.com/good": {"url": "https://example.com/good", "cached_at": "2026-03-01T12:00:00Z"},
		"https://example.com/bad": "not an entry"
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	backing, err := persist.New(path)
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)}
	store, err := contextcache.New(backing, contextcache.Config{TTL: time.Hour}, clock, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("https://example.com/good")
	assert.True(t, ok)
}

func TestInvalidateAndClear(t *testing.T) {
	store, _, _ := newTestStore(t, contextcache.Config{})
	require.NoError(t, store.StoreEnrichedContext(enrichedFor("https://example.com/a")))
	require.NoError(t, store.StoreEnrichedContext(enrichedFor("https://example.com/b")))

	require.NoError(t, store.Invalidate("https://example.com/a/"))
	assert.Nil(t, store.GetEnriched("https://example.com/a"))
	assert.NotNil(t, store.GetEnriched("https://example.com/b"))

	require.NoError(t, store.Clear())
	assert.Equal(t, 0, store.Len())
}

func TestNormalizedURLSingleEntry(t *testing.T) {
	store, _, _ := newTestStore(t, contextcache.Config{})
	require.NoError(t, store.StoreEnrichedContext(enrichedFor("https://example.com/page/")))
	require.NoError(t, store.StoreEnrichedContext(enrichedFor("https://example.com/page#frag")))
	assert.Equal(t, 1, store.Len())
}
