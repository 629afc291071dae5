package crawl_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/crawl"
	"github.com/tropicallease/adcontext/internal/id/uuid"
)

const localTestPage = `<!DOCTYPE html>
<html>
<head>
<title>Weekend Camping Guide</title>
<meta name="description" content="Plan the perfect camping weekend.">
<meta name="keywords" content="camping, gear, hiking">
<meta name="author" content="Field Team">
</head>
<body>
<h1>Weekend Camping Guide</h1>
<h2>What to Pack</h2>
<p>A good tent makes or breaks the trip.</p>
<p>Bring layers for cold nights outdoors.</p>
</body>
</html>`

func awaitJob(t *testing.T, backend ads.CrawlBackend, runID string) ads.CrawlStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := backend.Status(context.Background(), runID)
		require.NoError(t, err)
		if status.Terminal() {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("crawl job never reached a terminal status")
	return ""
}

func TestLocalBackendCrawlsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(localTestPage))
	}))
	defer srv.Close()

	backend := crawl.NewLocal(crawl.LocalConfig{RequestsPerSecond: 100}, uuid.Generator{}, nil)

	runID, err := backend.Submit(context.Background(), srv.URL+"/guide")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	status := awaitJob(t, backend, runID)
	require.Equal(t, ads.CrawlStatusSucceeded, status)

	records, err := backend.Results(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Weekend Camping Guide", rec.Title)
	assert.Equal(t, "Plan the perfect camping weekend.", rec.Description)
	assert.Equal(t, "Field Team", rec.Author)
	assert.Equal(t, []string{"camping", "gear", "hiking"}, rec.Keywords)
	assert.Contains(t, rec.Headings, "What to Pack")
	assert.Contains(t, rec.MainContent, "tent")
	assert.Contains(t, rec.Topics, "outdoor")
}

func TestLocalBackendFailedFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	backend := crawl.NewLocal(crawl.LocalConfig{RequestsPerSecond: 100}, uuid.Generator{}, nil)

	runID, err := backend.Submit(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)

	status := awaitJob(t, backend, runID)
	assert.Equal(t, ads.CrawlStatusFailed, status)

	_, err = backend.Results(context.Background(), runID)
	assert.Error(t, err)
}

func TestLocalBackendUnknownJob(t *testing.T) {
	backend := crawl.NewLocal(crawl.LocalConfig{}, uuid.Generator{}, nil)

	_, err := backend.Status(context.Background(), "nope")
	assert.ErrorContains(t, err, "unknown crawl job")

	_, err = backend.Results(context.Background(), "nope")
	assert.ErrorContains(t, err, "unknown crawl job")
}
