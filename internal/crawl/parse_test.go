package crawl_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/crawl"
)

func TestFromRecordTruncatesContent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := ads.RawCrawlRecord{
		Title:       "Long Read",
		MainContent: strings.Repeat("é", 3000),
		Topics:      []string{"lifestyle"},
	}

	enriched := crawl.FromRecord("https://example.com/long", rec, 0, now)
	assert.Equal(t, "https://example.com/long", enriched.URL)
	assert.Equal(t, "Long Read", enriched.Title)
	// Default cap counts characters, not bytes.
	assert.Equal(t, 2000, len([]rune(enriched.MainContent)))
	assert.Equal(t, now, enriched.CrawledAt)
	assert.Equal(t, []string{"lifestyle"}, enriched.Topics)
}

func TestFromRecordShortContentUntouched(t *testing.T) {
	rec := ads.RawCrawlRecord{MainContent: "short"}
	enriched := crawl.FromRecord("https://example.com/s", rec, 100, time.Now())
	assert.Equal(t, "short", enriched.MainContent)
}
