package embedding_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicallease/adcontext/internal/embedding"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
}

// fakeEmbeddingsServer answers /embeddings with one small vector per input,
// in reversed index order to exercise response reordering.
func fakeEmbeddingsServer(t *testing.T, calls *atomic.Int64, failures int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= int64(failures) {
			http.Error(w, "upstream overloaded", http.StatusInternalServerError)
			return
		}

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i) + 1, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embedding",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		}))
	}))
}

func newTestProvider(baseURL string) *embedding.OpenAIProvider {
	return embedding.NewOpenAI(embedding.OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL + "/v1",
		Model:        "test-embedding",
		Dimension:    2,
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
	}, nil)
}

func TestEmbedEmptyTextSkipsAPI(t *testing.T) {
	var calls atomic.Int64
	srv := fakeEmbeddingsServer(t, &calls, 0)
	defer srv.Close()

	provider := newTestProvider(srv.URL)

	vec, err := provider.Embed(context.Background(), "   \n\t")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, vec)
	assert.Zero(t, calls.Load())
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	var calls atomic.Int64
	srv := fakeEmbeddingsServer(t, &calls, 0)
	defer srv.Close()

	provider := newTestProvider(srv.URL)

	vectors, err := provider.EmbedBatch(context.Background(), []string{"first", "", "third"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// "first" and "third" were the only inputs sent, indexes 0 and 1.
	assert.Equal(t, []float64{1, 0}, vectors[0])
	assert.Equal(t, []float64{0, 0}, vectors[1])
	assert.Equal(t, []float64{2, 0}, vectors[2])
	assert.Equal(t, int64(1), calls.Load())
}

func TestEmbedBatchAllEmpty(t *testing.T) {
	var calls atomic.Int64
	srv := fakeEmbeddingsServer(t, &calls, 0)
	defer srv.Close()

	provider := newTestProvider(srv.URL)

	vectors, err := provider.EmbedBatch(context.Background(), []string{"", "  "})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0, 0}, vectors[0])
	assert.Equal(t, []float64{0, 0}, vectors[1])
	assert.Zero(t, calls.Load())
}

func TestEmbedRetriesOnFailure(t *testing.T) {
	var calls atomic.Int64
	srv := fakeEmbeddingsServer(t, &calls, 1)
	defer srv.Close()

	provider := newTestProvider(srv.URL)

	vec, err := provider.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, vec)
	assert.Equal(t, int64(2), calls.Load())
}

func TestEmbedGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int64
	srv := fakeEmbeddingsServer(t, &calls, 100)
	defer srv.Close()

	provider := newTestProvider(srv.URL)

	_, err := provider.Embed(context.Background(), "doomed")
	assert.Error(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestDimension(t *testing.T) {
	provider := embedding.NewOpenAI(embedding.OpenAIConfig{Dimension: 384}, nil)
	assert.Equal(t, 384, provider.Dimension())
}
