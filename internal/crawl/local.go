package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/matcher"
)

const maxLocalHeadings = 20

// LocalConfig configures the in-process crawl backend.
type LocalConfig struct {
	UserAgent         string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// LocalBackend is an in-process, single-page crawl backend for deployments
// without a hosted actor. It mirrors the remote backend's job lifecycle so
// the coordinator cannot tell the two apart.
type LocalBackend struct {
	base    *colly.Collector
	ids     ads.IDGenerator
	logger  *zap.Logger
	perHost rate.Limit

	mu       sync.Mutex
	jobs     map[string]*localJob
	limiters map[string]*rate.Limiter
}

type localJob struct {
	status  ads.CrawlStatus
	records []ads.RawCrawlRecord
	err     error
}

// NewLocal builds a colly-backed local crawl backend.
func NewLocal(cfg LocalConfig, ids ads.IDGenerator, logger *zap.Logger) *LocalBackend {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "adcontext-crawler/1.0"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &LocalBackend{
		base:     base,
		ids:      ids,
		logger:   logger,
		perHost:  rate.Limit(cfg.RequestsPerSecond),
		jobs:     make(map[string]*localJob),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Submit starts an asynchronous single-page crawl and returns its job ID.
func (b *LocalBackend) Submit(ctx context.Context, pageURL string) (string, error) {
	id, err := b.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("allocate job id: %w", err)
	}

	b.mu.Lock()
	b.jobs[id] = &localJob{status: ads.CrawlStatusRunning}
	limiter := b.limiterLocked(hostOf(pageURL))
	b.mu.Unlock()

	go b.crawl(id, pageURL, limiter)
	return id, nil
}

// Status reports the job's lifecycle status.
func (b *LocalBackend) Status(ctx context.Context, runID string) (ads.CrawlStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[runID]
	if !ok {
		return "", fmt.Errorf("unknown crawl job %s", runID)
	}
	return job.status, nil
}

// Results returns the records of a succeeded job.
func (b *LocalBackend) Results(ctx context.Context, runID string) ([]ads.RawCrawlRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[runID]
	if !ok {
		return nil, fmt.Errorf("unknown crawl job %s", runID)
	}
	if job.err != nil {
		return nil, job.err
	}
	if job.status != ads.CrawlStatusSucceeded {
		return nil, fmt.Errorf("crawl job %s not finished (status %s)", runID, job.status)
	}
	return job.records, nil
}

func (b *LocalBackend) crawl(jobID, pageURL string, limiter *rate.Limiter) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := limiter.Wait(ctx); err != nil {
		b.finish(jobID, ads.CrawlStatusTimedOut, nil, fmt.Errorf("rate limit wait: %w", err))
		return
	}

	record, err := b.fetch(pageURL)
	if err != nil {
		b.logger.Warn("local crawl failed", zap.String("url", pageURL), zap.Error(err))
		b.finish(jobID, ads.CrawlStatusFailed, nil, err)
		return
	}
	b.finish(jobID, ads.CrawlStatusSucceeded, []ads.RawCrawlRecord{record}, nil)
}

func (b *LocalBackend) fetch(pageURL string) (ads.RawCrawlRecord, error) {
	record := ads.RawCrawlRecord{URL: pageURL}
	var content strings.Builder
	var fetchErr error

	collector := b.base.Clone()
	collector.OnHTML("title", func(e *colly.HTMLElement) {
		if record.Title == "" {
			record.Title = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML("h1, h2, h3", func(e *colly.HTMLElement) {
		if len(record.Headings) >= maxLocalHeadings {
			return
		}
		if text := strings.TrimSpace(e.Text); text != "" {
			record.Headings = append(record.Headings, text)
		}
	})
	collector.OnHTML("meta[name=description]", func(e *colly.HTMLElement) {
		record.Description = strings.TrimSpace(e.Attr("content"))
	})
	collector.OnHTML("meta[name=author]", func(e *colly.HTMLElement) {
		record.Author = strings.TrimSpace(e.Attr("content"))
	})
	collector.OnHTML("meta[name=keywords]", func(e *colly.HTMLElement) {
		for _, kw := range strings.Split(e.Attr("content"), ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				record.Keywords = append(record.Keywords, kw)
			}
		}
	})
	collector.OnHTML("p", func(e *colly.HTMLElement) {
		if text := strings.TrimSpace(e.Text); text != "" {
			content.WriteString(text)
			content.WriteString("\n")
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(pageURL); err != nil {
		return ads.RawCrawlRecord{}, err
	}
	collector.Wait()

	if fetchErr != nil {
		return ads.RawCrawlRecord{}, fetchErr
	}
	record.MainContent = content.String()
	record.Topics = tagTopics(record)
	return record, nil
}

func (b *LocalBackend) finish(jobID string, status ads.CrawlStatus, records []ads.RawCrawlRecord, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[jobID]
	if !ok {
		return
	}
	job.status = status
	job.records = records
	job.err = err
}

// limiterLocked returns the per-host limiter, creating it on first use.
// Caller holds b.mu.
func (b *LocalBackend) limiterLocked(host string) *rate.Limiter {
	limiter, ok := b.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(b.perHost, 1)
		b.limiters[host] = limiter
	}
	return limiter
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	return strings.ToLower(u.Host)
}

// localTopicOrder fixes the tagging order so repeated crawls of the same
// page produce the same topic list.
var localTopicOrder = []string{"outdoor", "technology", "lifestyle", "health", "business"}

// tagTopics derives coarse topics from page text using the matcher's
// fallback keyword table, the same vocabulary the matcher diversifies on.
func tagTopics(record ads.RawCrawlRecord) []string {
	text := strings.ToLower(strings.Join([]string{
		record.Title,
		record.Description,
		strings.Join(record.Keywords, " "),
		record.MainContent,
	}, " "))

	table := matcher.DefaultTables().FallbackTopicKeywords
	var topics []string
	for _, topic := range localTopicOrder {
		for _, kw := range table[topic] {
			if strings.Contains(text, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}
