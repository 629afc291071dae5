package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig holds configuration for the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Dimension     int
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// OpenAIProvider implements ads.EmbeddingProvider against an OpenAI-style
// embeddings endpoint.
type OpenAIProvider struct {
	client        *openai.Client
	model         string
	dimension     int
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	logger        *zap.Logger
}

// NewOpenAI builds a provider from configuration.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = 1536
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	backoff := cfg.BackoffFactor
	if backoff < 1 {
		backoff = 2.0
	}

	return &OpenAIProvider{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         model,
		dimension:     dimension,
		maxRetries:    maxRetries,
		initialDelay:  initialDelay,
		backoffFactor: backoff,
		logger:        logger,
	}
}

// Dimension returns the provider's vector dimension.
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Embed returns the embedding for a single text. Empty or whitespace-only
// input maps to a zero vector without an API call.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return p.zeroVector(), nil
	}
	vectors, err := p.requestEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one API call, preserving input order.
// Empty inputs receive zero vectors and do not short-circuit the batch.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float64, len(texts))
	var valid []string
	var validIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			result[i] = p.zeroVector()
			continue
		}
		valid = append(valid, text)
		validIdx = append(validIdx, i)
	}
	if len(valid) == 0 {
		return result, nil
	}

	vectors, err := p.requestEmbeddings(ctx, valid)
	if err != nil {
		return nil, err
	}
	for i, vec := range vectors {
		result[validIdx[i]] = vec
	}
	return result, nil
}

// requestEmbeddings performs the API call with retry and backoff. The
// response is reordered by index so callers always see input order.
func (p *OpenAIProvider) requestEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}

	delay := p.initialDelay
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn("retrying embedding request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("embedding retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * p.backoffFactor)
		}

		resp, err := p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Data) != len(texts) {
			lastErr = fmt.Errorf("embedding response count mismatch: got %d, want %d", len(resp.Data), len(texts))
			continue
		}

		vectors := make([][]float64, len(texts))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(texts) {
				return nil, fmt.Errorf("embedding response index %d out of range", item.Index)
			}
			vec := make([]float64, len(item.Embedding))
			for i, v := range item.Embedding {
				vec[i] = float64(v)
			}
			vectors[item.Index] = vec
		}
		return vectors, nil
	}
	return nil, fmt.Errorf("embedding request failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

func (p *OpenAIProvider) zeroVector() []float64 {
	return make([]float64, p.dimension)
}
