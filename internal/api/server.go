// Package api exposes the HTTP interface for the ad-context service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/catalog"
	"github.com/tropicallease/adcontext/internal/config"
	"github.com/tropicallease/adcontext/internal/enricher"
	"github.com/tropicallease/adcontext/internal/matcher"
	"github.com/tropicallease/adcontext/internal/telemetry"
)

// Server wires HTTP handlers to the enricher, matcher and catalog.
type Server struct {
	router   chi.Router
	enricher *enricher.Enricher
	matcher  *matcher.Matcher
	catalog  *catalog.Catalog
	store    ads.ContextStore
	embedder ads.EmbeddingProvider
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	enr *enricher.Enricher,
	m *matcher.Matcher,
	cat *catalog.Catalog,
	store ads.ContextStore,
	embedder ads.EmbeddingProvider,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		enricher: enr,
		matcher:  m,
		catalog:  cat,
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	// Enrichment can legitimately wait out a full crawl, so the request
	// deadline sits above the crawl budget.
	r.Use(timeoutMiddleware(cfg.CrawlTimeout() + 30*time.Second))
	r.Use(telemetry.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/context/enrich", s.enrichContext)
		r.Post("/ads/match", s.matchAds)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/", s.createProduct)
			r.Post("/backfill", s.backfillEmbeddings)
			r.Route("/{product_id}", func(r chi.Router) {
				r.Get("/", s.getProduct)
				r.Patch("/", s.updateProduct)
				r.Delete("/", s.deleteProduct)
			})
		})

		r.Route("/cache", func(r chi.Router) {
			r.Post("/invalidate", s.invalidateCache)
			r.Post("/clear", s.clearCache)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) enrichContext(w http.ResponseWriter, r *http.Request) {
	var req ads.RequestContext
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url is required")
		return
	}
	merged := s.enricher.GetOrEnrich(r.Context(), req)
	writeJSON(s.logger, w, http.StatusOK, merged)
}

type matchRequest struct {
	Context  ads.RequestContext `json:"context"`
	TopK     int                `json:"top_k"`
	MinScore *float64           `json:"min_score"`
}

type matchResponse struct {
	Context  ads.MergedContext `json:"context"`
	Matches  []ads.MatchResult `json:"matches"`
	Fallback bool              `json:"fallback"`
}

func (s *Server) matchAds(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Context.URL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "context.url is required")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.Matcher.DefaultTopK
	}
	minScore := s.cfg.Matcher.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	merged := s.enricher.GetOrEnrich(r.Context(), req.Context)

	var pageEmbedding []float64
	if enrichedCtx := s.store.GetEnriched(merged.URL); enrichedCtx != nil {
		pageEmbedding = enrichedCtx.Embedding
	}

	start := time.Now()
	resp := matchResponse{Context: merged, Matches: []ads.MatchResult{}}
	active := s.catalog.All(true)

	if len(pageEmbedding) > 0 {
		resp.Matches = s.matcher.FindBestProducts(pageEmbedding, active, topK, minScore, merged.Topics)
	} else {
		// No embedding available, fall back to keyword matching.
		resp.Fallback = true
		for _, p := range s.matcher.MatchByTopics(merged.Topics, active) {
			if len(resp.Matches) >= topK {
				break
			}
			resp.Matches = append(resp.Matches, ads.MatchResult{
				Product:  p,
				Category: s.matcher.Categorize(p),
			})
		}
	}
	telemetry.ObserveMatch(time.Since(start), len(resp.Matches))

	writeJSON(s.logger, w, http.StatusOK, resp)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"products": s.catalog.All(activeOnly),
	})
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.NewProduct
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, err := s.catalog.Create(req)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, p)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.catalog.Get(chi.URLParam(r, "product_id"))
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch catalog.ProductPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, err := s.catalog.Update(chi.URLParam(r, "product_id"), patch)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "product not found")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(chi.URLParam(r, "product_id")); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "product not found")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) backfillEmbeddings(w http.ResponseWriter, r *http.Request) {
	updated, err := s.catalog.BackfillEmbeddings(r.Context(), s.embedder)
	if err != nil {
		writeError(s.logger, w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]int{"updated": updated})
}

type invalidateRequest struct {
	URL string `json:"url"`
}

func (s *Server) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url is required")
		return
	}
	if err := s.store.Invalidate(req.URL); err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(); err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "cleared"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(zap.NewNop(), w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
