// Package ads defines core types shared across subsystems.
package ads

import (
	"time"
)

// CrawlStatus represents the lifecycle state of a remote crawl run.
type CrawlStatus string

// Crawl status values reported by a crawl backend.
const (
	CrawlStatusRunning   CrawlStatus = "RUNNING"
	CrawlStatusSucceeded CrawlStatus = "SUCCEEDED"
	CrawlStatusFailed    CrawlStatus = "FAILED"
	CrawlStatusAborted   CrawlStatus = "ABORTED"
	CrawlStatusTimedOut  CrawlStatus = "TIMED-OUT"
)

// Terminal reports whether the status ends a crawl run.
func (s CrawlStatus) Terminal() bool {
	switch s {
	case CrawlStatusSucceeded, CrawlStatusFailed, CrawlStatusAborted, CrawlStatusTimedOut:
		return true
	default:
		return false
	}
}

// Product is an advertised item held by the catalog. The embedding is
// populated lazily and then treated as immutable until a re-ingest.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       *float64  `json:"price,omitempty"`
	Currency    string    `json:"currency"`
	ImageURL    string    `json:"image_url"`
	LandingURL  string    `json:"landing_url"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Embedding   []float64 `json:"embedding,omitempty"`
}

// EnrichedPageContext is the normalized record produced by one successful
// crawl. It is immutable after creation except for embedding back-fill.
type EnrichedPageContext struct {
	URL          string            `json:"url"`
	Title        string            `json:"title,omitempty"`
	Headings     []string          `json:"headings,omitempty"`
	MainContent  string            `json:"main_content,omitempty"`
	Description  string            `json:"description,omitempty"`
	Author       string            `json:"author,omitempty"`
	Keywords     []string          `json:"keywords,omitempty"`
	Topics       []string          `json:"topics,omitempty"`
	VisualStyles map[string]any    `json:"visual_styles,omitempty"`
	SystemInfo   map[string]any    `json:"system_info,omitempty"`
	Embedding    []float64         `json:"embedding,omitempty"`
	RunID        string            `json:"run_id,omitempty"`
	CrawledAt    time.Time         `json:"crawled_at"`
	CachedAt     time.Time         `json:"cached_at"`
}

// PageContextEntry is the cache record kept per normalized URL.
type PageContextEntry struct {
	URL                string               `json:"url"`
	Enriched           *EnrichedPageContext `json:"enriched_context,omitempty"`
	IsCrawling         bool                 `json:"is_crawling"`
	LastCrawlTriggered *time.Time           `json:"last_crawl_triggered,omitempty"`
	CachedAt           time.Time            `json:"cached_at"`
}

// RawCrawlRecord is one structured item returned by a crawl backend,
// camelCase to match the actor's dataset format.
type RawCrawlRecord struct {
	URL          string         `json:"url"`
	Title        string         `json:"title"`
	Headings     []string       `json:"headings"`
	MainContent  string         `json:"mainContent"`
	Description  string         `json:"description"`
	Author       string         `json:"author"`
	Keywords     []string       `json:"keywords"`
	Topics       []string       `json:"topics"`
	VisualStyles map[string]any `json:"visualStyles"`
	SystemInfo   map[string]any `json:"systemInfo"`
}

// RequestContext is the minimal context an ad request carries: the page URL
// plus browser environment and slot geometry.
type RequestContext struct {
	URL            string `json:"url"`
	DeviceType     string `json:"device_type,omitempty"`
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	SlotID         string `json:"slot_id,omitempty"`
	SlotWidth      int    `json:"slot_width,omitempty"`
	SlotHeight     int    `json:"slot_height,omitempty"`
}

// MergedContext is the total result of enrichment. When HasEnriched is false
// only the URL is populated and the collection fields are empty, never nil.
type MergedContext struct {
	URL          string         `json:"url"`
	Title        string         `json:"title,omitempty"`
	Headings     []string       `json:"headings"`
	VisibleText  string         `json:"visible_text,omitempty"`
	Keywords     []string       `json:"keywords"`
	Topics       []string       `json:"topics"`
	VisualStyles map[string]any `json:"visual_styles"`
	SystemInfo   map[string]any `json:"system_info"`
	HasEnriched  bool           `json:"has_enriched"`
}

// Category is the four-way product classification used for boosting and
// diversification.
type Category string

// Product categories, in matching priority order.
const (
	CategoryTechnology Category = "technology"
	CategoryOutdoor    Category = "outdoor"
	CategoryLifestyle  Category = "lifestyle"
	CategoryOther      Category = "other"
)

// MatchResult is one ranked product for a page. Transient, recomputed per
// request.
type MatchResult struct {
	Product  Product  `json:"product"`
	Score    float64  `json:"score"`
	RawScore float64  `json:"raw_score"`
	Category Category `json:"category"`
}

// ContextReadyEvent announces that an enriched context was stored for a URL.
type ContextReadyEvent struct {
	URL       string    `json:"url"`
	RunID     string    `json:"run_id,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	CrawledAt time.Time `json:"crawled_at"`
}
