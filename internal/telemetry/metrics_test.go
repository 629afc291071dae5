package telemetry_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicallease/adcontext/internal/telemetry"
)

func TestInitIdempotent(t *testing.T) {
	telemetry.Init()
	require.NotPanics(t, telemetry.Init)

	// Observations after Init must not panic either.
	telemetry.ObserveEnrich(telemetry.EnrichOutcomeHit)
	telemetry.ObserveCrawl("SUCCEEDED", 2*time.Second)
	telemetry.ObserveMatch(5*time.Millisecond, 3)
	telemetry.ObserveCacheLookup("miss")
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	telemetry.Init()

	r := chi.NewRouter()
	r.Use(telemetry.Middleware)
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandlerServesMetrics(t *testing.T) {
	telemetry.Init()
	rec := httptest.NewRecorder()
	telemetry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}
