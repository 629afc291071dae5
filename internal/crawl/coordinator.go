package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/embedding"
	"github.com/tropicallease/adcontext/internal/telemetry"
)

// CoordinatorConfig tunes crawl waiting.
type CoordinatorConfig struct {
	PollInterval    time.Duration
	Timeout         time.Duration
	MaxContentChars int
}

// Coordinator runs crawl-and-wait requests with a single-flight guarantee:
// per normalized URL at most one crawl is in flight, and concurrent callers
// share its outcome instead of triggering duplicate runs.
type Coordinator struct {
	backend   ads.CrawlBackend
	store     ads.ContextStore
	embedder  ads.EmbeddingProvider
	textCfg   embedding.TextConfig
	publisher ads.Publisher
	clock     ads.Clock
	logger    *zap.Logger
	cfg       CoordinatorConfig

	flights singleflight.Group
}

// NewCoordinator wires a coordinator. publisher may be nil when no
// downstream consumers exist.
func NewCoordinator(
	backend ads.CrawlBackend,
	store ads.ContextStore,
	embedder ads.EmbeddingProvider,
	textCfg embedding.TextConfig,
	publisher ads.Publisher,
	clock ads.Clock,
	cfg CoordinatorConfig,
	logger *zap.Logger,
) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		backend:   backend,
		store:     store,
		embedder:  embedder,
		textCfg:   textCfg,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// CrawlAndWait crawls a URL, waits for the terminal state, stores the
// enriched context and returns it. The flight itself runs detached from the
// caller's context: a caller hanging up stops its own wait but never aborts
// a crawl other callers may be sharing, and a late success still lands in
// the cache.
func (c *Coordinator) CrawlAndWait(ctx context.Context, rawURL string) (*ads.EnrichedPageContext, error) {
	key := ads.NormalizeURL(rawURL)

	ch := c.flights.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
		defer cancel()
		return c.runCrawl(flightCtx, key)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("crawl wait abandoned: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ads.EnrichedPageContext), nil
	}
}

func (c *Coordinator) runCrawl(ctx context.Context, pageURL string) (*ads.EnrichedPageContext, error) {
	start := time.Now()
	if err := c.store.SetCrawlingStatus(pageURL, true); err != nil {
		c.logger.Warn("failed to mark crawl in flight", zap.String("url", pageURL), zap.Error(err))
	}

	// StoreEnrichedContext resets the flag on the success path.
	success := false
	defer func() {
		if success {
			return
		}
		if err := c.store.SetCrawlingStatus(pageURL, false); err != nil {
			c.logger.Warn("failed to clear crawl flag", zap.String("url", pageURL), zap.Error(err))
		}
	}()

	runID, err := c.backend.Submit(ctx, pageURL)
	if err != nil {
		telemetry.ObserveCrawl("submit_error", time.Since(start))
		return nil, fmt.Errorf("submit crawl: %w", err)
	}
	c.logger.Info("crawl submitted", zap.String("url", pageURL), zap.String("run_id", runID))

	status, err := c.awaitTerminal(ctx, runID)
	if err != nil {
		telemetry.ObserveCrawl("timeout", time.Since(start))
		return nil, err
	}
	if status != ads.CrawlStatusSucceeded {
		telemetry.ObserveCrawl(string(status), time.Since(start))
		return nil, fmt.Errorf("crawl %s ended with status %s", runID, status)
	}

	records, err := c.backend.Results(ctx, runID)
	if err != nil {
		telemetry.ObserveCrawl("results_error", time.Since(start))
		return nil, fmt.Errorf("fetch crawl results: %w", err)
	}
	if len(records) == 0 {
		telemetry.ObserveCrawl("empty", time.Since(start))
		return nil, fmt.Errorf("crawl %s returned no records", runID)
	}

	// Only the first record is consumed; the backend crawls a single page.
	enriched := FromRecord(pageURL, records[0], c.cfg.MaxContentChars, c.clock.Now())
	enriched.RunID = runID

	if vec, err := c.embedder.Embed(ctx, embedding.PageText(enriched, c.textCfg)); err != nil {
		c.logger.Warn("embedding generation failed, caching context without it",
			zap.String("url", pageURL), zap.Error(err))
	} else {
		enriched.Embedding = vec
	}

	if err := c.store.StoreEnrichedContext(enriched); err != nil {
		telemetry.ObserveCrawl("store_error", time.Since(start))
		return nil, fmt.Errorf("store enriched context: %w", err)
	}
	success = true
	telemetry.ObserveCrawl(string(ads.CrawlStatusSucceeded), time.Since(start))
	c.logger.Info("crawl completed",
		zap.String("url", pageURL),
		zap.String("run_id", runID),
		zap.Duration("took", time.Since(start)),
	)

	if c.publisher != nil {
		event := ads.ContextReadyEvent{
			URL:       pageURL,
			RunID:     runID,
			Topics:    enriched.Topics,
			CrawledAt: enriched.CrawledAt,
		}
		if err := c.publisher.PublishContextReady(ctx, event); err != nil {
			c.logger.Warn("context-ready publish failed", zap.String("url", pageURL), zap.Error(err))
		}
	}
	return enriched, nil
}

// awaitTerminal polls run status at the configured interval until the run
// reaches a terminal state or ctx expires. Transient status errors are
// retried on the next tick.
func (c *Coordinator) awaitTerminal(ctx context.Context, runID string) (ads.CrawlStatus, error) {
	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("await crawl %s: %w", runID, ctx.Err())
		case <-timer.C:
		}

		status, err := c.backend.Status(ctx, runID)
		if err != nil {
			c.logger.Debug("crawl status poll failed", zap.String("run_id", runID), zap.Error(err))
		} else if status.Terminal() {
			return status, nil
		}
		timer.Reset(c.cfg.PollInterval)
	}
}
