package crawl

import (
	"time"

	"github.com/tropicallease/adcontext/internal/ads"
)

const defaultMaxContentChars = 2000

// FromRecord converts one raw backend record into an enriched context for
// the given normalized URL. Stored main content is truncated to
// maxContentChars characters; collections come through as-is.
func FromRecord(pageURL string, rec ads.RawCrawlRecord, maxContentChars int, now time.Time) *ads.EnrichedPageContext {
	if maxContentChars <= 0 {
		maxContentChars = defaultMaxContentChars
	}
	return &ads.EnrichedPageContext{
		URL:          pageURL,
		Title:        rec.Title,
		Headings:     rec.Headings,
		MainContent:  truncate(rec.MainContent, maxContentChars),
		Description:  rec.Description,
		Author:       rec.Author,
		Keywords:     rec.Keywords,
		Topics:       rec.Topics,
		VisualStyles: rec.VisualStyles,
		SystemInfo:   rec.SystemInfo,
		CrawledAt:    now,
	}
}

// truncate cuts at character boundaries, not bytes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
