// Package crawl talks to crawl backends and coordinates crawl-and-wait
// requests so that each URL has at most one crawl in flight.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/tropicallease/adcontext/internal/ads"
)

// ApifyConfig configures the hosted actor backend.
type ApifyConfig struct {
	BaseURL string
	Token   string
	ActorID string
}

// ApifyClient drives a hosted Apify actor through its REST API. It
// implements ads.CrawlBackend.
type ApifyClient struct {
	cfg    ApifyConfig
	client *http.Client
	logger *zap.Logger
}

// NewApify builds an actor-backed crawl client.
func NewApify(cfg ApifyConfig, logger *zap.Logger) *ApifyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.apify.com/v2"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApifyClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type apifyRun struct {
	ID               string          `json:"id"`
	Status           ads.CrawlStatus `json:"status"`
	DefaultDatasetID string          `json:"defaultDatasetId"`
}

type apifyRunEnvelope struct {
	Data apifyRun `json:"data"`
}

// Submit starts an actor run for a single URL and returns the run ID.
func (c *ApifyClient) Submit(ctx context.Context, pageURL string) (string, error) {
	input := map[string]any{
		"startUrls":           []map[string]string{{"url": pageURL}},
		"maxRequestsPerCrawl": 1,
		"maxConcurrency":      1,
	}
	body, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/acts/%s/runs", c.cfg.BaseURL, c.cfg.ActorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger actor run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("trigger actor run: unexpected status %d", resp.StatusCode)
	}

	var envelope apifyRunEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode run response: %w", err)
	}
	if envelope.Data.ID == "" {
		return "", fmt.Errorf("trigger actor run: response missing run id")
	}

	c.logger.Debug("triggered actor run",
		zap.String("url", pageURL),
		zap.String("run_id", envelope.Data.ID),
	)
	return envelope.Data.ID, nil
}

// Status reports the run's current lifecycle status.
func (c *ApifyClient) Status(ctx context.Context, runID string) (ads.CrawlStatus, error) {
	run, err := c.run(ctx, runID)
	if err != nil {
		return "", err
	}
	return run.Status, nil
}

// Results fetches the run's default dataset items.
func (c *ApifyClient) Results(ctx context.Context, runID string) ([]ads.RawCrawlRecord, error) {
	run, err := c.run(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.DefaultDatasetID == "" {
		return nil, fmt.Errorf("run %s has no dataset", runID)
	}

	endpoint := fmt.Sprintf("%s/datasets/%s/items?token=%s",
		c.cfg.BaseURL, run.DefaultDatasetID, url.QueryEscape(c.cfg.Token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build dataset request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset items: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch dataset items: unexpected status %d", resp.StatusCode)
	}

	var records []ads.RawCrawlRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}
	return records, nil
}

func (c *ApifyClient) run(ctx context.Context, runID string) (apifyRun, error) {
	endpoint := fmt.Sprintf("%s/actor-runs/%s?token=%s",
		c.cfg.BaseURL, url.PathEscape(runID), url.QueryEscape(c.cfg.Token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apifyRun{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apifyRun{}, fmt.Errorf("fetch run status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apifyRun{}, fmt.Errorf("fetch run status: unexpected status %d", resp.StatusCode)
	}

	var envelope apifyRunEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return apifyRun{}, fmt.Errorf("decode run status: %w", err)
	}
	return envelope.Data, nil
}
