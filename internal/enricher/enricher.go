// Package enricher resolves an ad request's minimal context into a merged
// context, crawling on cache misses. GetOrEnrich is total from the caller's
// point of view: it never fails, it degrades.
package enricher

import (
	"context"

	"go.uber.org/zap"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/embedding"
	"github.com/tropicallease/adcontext/internal/telemetry"
)

// crawlWaiter is the slice of the crawl coordinator the enricher needs.
type crawlWaiter interface {
	CrawlAndWait(ctx context.Context, url string) (*ads.EnrichedPageContext, error)
}

// Enricher merges request context with cached or freshly crawled page
// context.
type Enricher struct {
	store    ads.ContextStore
	crawler  crawlWaiter
	embedder ads.EmbeddingProvider
	textCfg  embedding.TextConfig
	logger   *zap.Logger
}

// New wires an enricher.
func New(store ads.ContextStore, crawler crawlWaiter, embedder ads.EmbeddingProvider, textCfg embedding.TextConfig, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		store:    store,
		crawler:  crawler,
		embedder: embedder,
		textCfg:  textCfg,
		logger:   logger,
	}
}

// GetOrEnrich returns the merged context for a request. On a cache miss it
// crawls and waits; on any failure it returns the degraded minimal context
// rather than an error.
func (e *Enricher) GetOrEnrich(ctx context.Context, req ads.RequestContext) ads.MergedContext {
	enriched := e.GetEnriched(ctx, req.URL)
	if enriched != nil {
		telemetry.ObserveEnrich(telemetry.EnrichOutcomeHit)
		return Merge(req, enriched)
	}

	enriched, err := e.crawler.CrawlAndWait(ctx, req.URL)
	if err != nil {
		e.logger.Info("crawl did not produce context",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		// A concurrent or earlier crawl may have landed in the cache while
		// we waited.
		enriched = e.GetEnriched(ctx, req.URL)
	}

	if enriched == nil {
		telemetry.ObserveEnrich(telemetry.EnrichOutcomeDegraded)
	} else {
		telemetry.ObserveEnrich(telemetry.EnrichOutcomeCrawled)
	}
	return Merge(req, enriched)
}

// GetEnriched returns the fresh cached context for a URL, back-filling a
// missing embedding from the stored structured fields and persisting it.
func (e *Enricher) GetEnriched(ctx context.Context, url string) *ads.EnrichedPageContext {
	enriched := e.store.GetEnriched(url)
	if enriched == nil || len(enriched.Embedding) > 0 {
		return enriched
	}

	vec, err := e.embedder.Embed(ctx, embedding.PageText(enriched, e.textCfg))
	if err != nil {
		e.logger.Warn("embedding backfill failed", zap.String("url", url), zap.Error(err))
		return enriched
	}
	enriched.Embedding = vec
	if err := e.store.StoreEnrichedContext(enriched); err != nil {
		e.logger.Warn("failed to persist backfilled embedding", zap.String("url", url), zap.Error(err))
	}
	return enriched
}

// Merge combines the request with an enriched context. Collection fields
// are always present, never nil, so downstream consumers need no nil checks.
func Merge(req ads.RequestContext, enriched *ads.EnrichedPageContext) ads.MergedContext {
	merged := ads.MergedContext{
		URL:          req.URL,
		Headings:     []string{},
		Keywords:     []string{},
		Topics:       []string{},
		VisualStyles: map[string]any{},
		SystemInfo:   map[string]any{},
	}
	if enriched == nil {
		return merged
	}

	merged.URL = enriched.URL
	merged.Title = enriched.Title
	merged.VisibleText = enriched.MainContent
	merged.HasEnriched = true
	if enriched.Headings != nil {
		merged.Headings = enriched.Headings
	}
	if enriched.Keywords != nil {
		merged.Keywords = enriched.Keywords
	}
	if enriched.Topics != nil {
		merged.Topics = enriched.Topics
	}
	if enriched.VisualStyles != nil {
		merged.VisualStyles = enriched.VisualStyles
	}
	if enriched.SystemInfo != nil {
		merged.SystemInfo = enriched.SystemInfo
	}
	return merged
}
