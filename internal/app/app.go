// Package app initializes and holds the long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/api"
	"github.com/tropicallease/adcontext/internal/catalog"
	"github.com/tropicallease/adcontext/internal/clock/system"
	"github.com/tropicallease/adcontext/internal/config"
	"github.com/tropicallease/adcontext/internal/contextcache"
	"github.com/tropicallease/adcontext/internal/crawl"
	"github.com/tropicallease/adcontext/internal/embedding"
	"github.com/tropicallease/adcontext/internal/enricher"
	"github.com/tropicallease/adcontext/internal/id/uuid"
	"github.com/tropicallease/adcontext/internal/matcher"
	"github.com/tropicallease/adcontext/internal/persist"
	"github.com/tropicallease/adcontext/internal/publisher"
	"github.com/tropicallease/adcontext/internal/publisher/pubsub"
	"github.com/tropicallease/adcontext/internal/telemetry"
)

// App holds all shared, long-lived services. It is initialized once at
// startup and passed to the components that need it.
type App struct {
	Logger      *zap.Logger
	Config      config.Config
	Store       *contextcache.Store
	Catalog     *catalog.Catalog
	Embedder    ads.EmbeddingProvider
	Backend     ads.CrawlBackend
	Publisher   ads.Publisher
	Coordinator *crawl.Coordinator
	Enricher    *enricher.Enricher
	Matcher     *matcher.Matcher
	Server      *api.Server

	closers []io.Closer
}

// New builds the full service graph from configuration, failing fast when a
// critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger.Info("initializing application services")
	telemetry.Init()

	clk := system.Clock{}
	ids := uuid.Generator{}

	cacheBacking, err := persist.New(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("open page-context store: %w", err)
	}
	store, err := contextcache.New(cacheBacking, contextcache.Config{
		TTL:            cfg.CacheTTL(),
		CrawlStaleness: cfg.CrawlStaleness(),
	}, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("load page-context cache: %w", err)
	}

	catalogBacking, err := persist.New(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("open product store: %w", err)
	}
	cat, err := catalog.New(catalogBacking, ids, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("load product catalog: %w", err)
	}
	logger.Info("catalog loaded", zap.Int("products", cat.Len()))

	embedder := embedding.NewOpenAI(embedding.OpenAIConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Embedding.MaxRetries,
	}, logger)

	var backend ads.CrawlBackend
	switch cfg.Crawl.Provider {
	case "apify":
		if cfg.Apify.Token == "" {
			logger.Warn("apify token is not set; crawl submissions will be rejected upstream")
		}
		backend = crawl.NewApify(crawl.ApifyConfig{
			BaseURL: cfg.Apify.BaseURL,
			Token:   cfg.Apify.Token,
			ActorID: cfg.Apify.ActorID,
		}, logger)
	case "local":
		backend = crawl.NewLocal(crawl.LocalConfig{
			UserAgent:         cfg.Local.UserAgent,
			RequestTimeout:    time.Duration(cfg.Local.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Local.RPS,
		}, ids, logger)
	default:
		return nil, fmt.Errorf("unknown crawl provider: %s", cfg.Crawl.Provider)
	}

	a := &App{Logger: logger, Config: cfg}

	var pub ads.Publisher
	if cfg.PubSub.Enabled {
		logger.Info("connecting to pub/sub",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
		p, err := pubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize pub/sub publisher: %w", err)
		}
		a.closers = append(a.closers, p)
		pub = p
	} else {
		pub = publisher.NewNoOp()
	}

	textCfg := embedding.TextConfig{
		MaxKeywords:     cfg.Embedding.MaxKeywords,
		MaxContentChars: cfg.Embedding.MaxContentChars,
		MaxHeadings:     cfg.Embedding.MaxHeadings,
	}

	coordinator := crawl.NewCoordinator(backend, store, embedder, textCfg, pub, clk, crawl.CoordinatorConfig{
		PollInterval:    cfg.PollInterval(),
		Timeout:         cfg.CrawlTimeout(),
		MaxContentChars: cfg.Crawl.MaxContentChars,
	}, logger)

	enr := enricher.New(store, coordinator, embedder, textCfg, logger)
	m := matcher.New(matcher.DefaultTables(), matcher.Config{
		DominanceThreshold: cfg.Matcher.DominanceThreshold,
		CategoryBoost:      cfg.Matcher.CategoryBoost,
		CategoryPenalty:    cfg.Matcher.CategoryPenalty,
	}, logger)

	a.Store = store
	a.Catalog = cat
	a.Embedder = embedder
	a.Backend = backend
	a.Publisher = pub
	a.Coordinator = coordinator
	a.Enricher = enr
	a.Matcher = m
	a.Server = api.NewServer(enr, m, cat, store, embedder, cfg, logger)

	logger.Info("application services initialized")
	return a, nil
}

// Close shuts down services that hold external connections and flushes the
// logger.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Logger.Warn("error closing service", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
