package ads

import (
	"context"
	"time"
)

// EmbeddingProvider maps text to fixed-dimension vectors. Empty or
// whitespace-only text maps to a zero vector of the provider's dimension.
type EmbeddingProvider interface {
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	// EmbedBatch preserves input order and substitutes zero vectors for
	// empty inputs without failing the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// CrawlBackend is the external crawl actor seen through its control API.
type CrawlBackend interface {
	Submit(ctx context.Context, url string) (string, error)
	Status(ctx context.Context, runID string) (CrawlStatus, error)
	Results(ctx context.Context, runID string) ([]RawCrawlRecord, error)
}

// ContextStore is the TTL-aware per-URL enrichment cache. Mutations are
// durably reflected to backing storage before they return.
type ContextStore interface {
	Get(url string) (PageContextEntry, bool)
	GetEnriched(url string) *EnrichedPageContext
	IsBeingCrawled(url string) bool
	SetCrawlingStatus(url string, crawling bool) error
	StoreEnrichedContext(enriched *EnrichedPageContext) error
	Invalidate(url string) error
	Clear() error
}

// Publisher pushes context-ready events to downstream consumers.
type Publisher interface {
	PublishContextReady(ctx context.Context, event ContextReadyEvent) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
