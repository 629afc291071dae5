// Package contextcache implements the TTL-aware per-URL page-context cache.
// Every mutation is written through to the persist store before it returns,
// so the in-memory and durable views never diverge for longer than one
// operation.
package contextcache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/persist"
	"github.com/tropicallease/adcontext/internal/telemetry"
)

// Config controls cache freshness windows.
type Config struct {
	// TTL is how long a stored context is served before it is treated as
	// absent.
	TTL time.Duration
	// CrawlStaleness bounds how long an entry may claim "crawling". Past
	// the window the flag is ignored, so a crawl that hung without ever
	// reaching a terminal state cannot starve a URL forever.
	CrawlStaleness time.Duration
}

// Store is the process-wide page-context cache.
type Store struct {
	mu      sync.RWMutex
	entries map[string]ads.PageContextEntry
	persist *persist.Store
	cfg     Config
	clock   ads.Clock
	logger  *zap.Logger
}

// New loads the cache from the persist store. Malformed records are skipped
// with a warning; they are not fatal.
func New(backing *persist.Store, cfg Config, clock ads.Clock, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.CrawlStaleness <= 0 {
		cfg.CrawlStaleness = 5 * time.Minute
	}

	s := &Store{
		entries: make(map[string]ads.PageContextEntry),
		persist: backing,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}

	raw, err := backing.Load()
	if err != nil {
		return nil, fmt.Errorf("load page contexts: %w", err)
	}
	for url, data := range raw {
		var entry ads.PageContextEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			logger.Warn("skipping malformed page context record",
				zap.String("url", url),
				zap.Error(err),
			)
			continue
		}
		s.entries[url] = entry
	}
	return s, nil
}

// Get returns the entry for a URL if it exists and is within TTL. Expired
// entries behave as absent but are not deleted; a later successful crawl
// overwrites them.
func (s *Store) Get(url string) (ads.PageContextEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[ads.NormalizeURL(url)]
	if !ok {
		telemetry.ObserveCacheLookup("miss")
		return ads.PageContextEntry{}, false
	}
	if s.clock.Now().Sub(entry.CachedAt) > s.cfg.TTL {
		telemetry.ObserveCacheLookup("expired")
		return ads.PageContextEntry{}, false
	}
	telemetry.ObserveCacheLookup("hit")
	return entry, true
}

// GetEnriched returns the enriched context for a URL if one is cached and
// fresh.
func (s *Store) GetEnriched(url string) *ads.EnrichedPageContext {
	entry, ok := s.Get(url)
	if !ok {
		return nil
	}
	return entry.Enriched
}

// IsBeingCrawled reports whether a crawl for the URL is in flight and was
// triggered within the staleness window.
func (s *Store) IsBeingCrawled(url string) bool {
	entry, ok := s.Get(url)
	if !ok || !entry.IsCrawling || entry.LastCrawlTriggered == nil {
		return false
	}
	return s.clock.Now().Sub(*entry.LastCrawlTriggered) < s.cfg.CrawlStaleness
}

// SetCrawlingStatus transitions the crawl-state flag, recording the trigger
// time when a crawl starts.
func (s *Store) SetCrawlingStatus(url string, crawling bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := ads.NormalizeURL(url)
	now := s.clock.Now()
	entry, ok := s.entries[normalized]
	if !ok {
		entry = ads.PageContextEntry{URL: normalized, CachedAt: now}
	}
	entry.IsCrawling = crawling
	if crawling {
		entry.LastCrawlTriggered = &now
	}
	s.entries[normalized] = entry
	return s.flushLocked()
}

// StoreEnrichedContext upserts the context for its URL, replacing any prior
// context wholesale, resetting crawl-state to idle and the cache timestamp.
func (s *Store) StoreEnrichedContext(enriched *ads.EnrichedPageContext) error {
	if enriched == nil {
		return fmt.Errorf("nil enriched context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := ads.NormalizeURL(enriched.URL)
	now := s.clock.Now()
	enriched.CachedAt = now
	s.entries[normalized] = ads.PageContextEntry{
		URL:      normalized,
		Enriched: enriched,
		CachedAt: now,
	}
	return s.flushLocked()
}

// Invalidate evicts the entry for a URL.
func (s *Store) Invalidate(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := ads.NormalizeURL(url)
	if _, ok := s.entries[normalized]; !ok {
		return nil
	}
	delete(s.entries, normalized)
	return s.flushLocked()
}

// Clear evicts every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]ads.PageContextEntry)
	return s.flushLocked()
}

// Len reports the number of entries, fresh or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) flushLocked() error {
	if err := s.persist.Save(s.entries); err != nil {
		return fmt.Errorf("flush page contexts: %w", err)
	}
	return nil
}
