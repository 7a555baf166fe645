package embedding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"cinegraph/backend/internal/metrics"
	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// OpenAIEmbedder calls an OpenAI compatible /v1/embeddings endpoint
// (LiteLLM, a local gateway, or the hosted API).
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	maxRetries int
	backoff    time.Duration
	breaker    *gobreaker.CircuitBreaker[[][]float32]
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates an embedder for baseURL. The breaker opens after
// five consecutive failed calls and probes again after thirty seconds.
func NewOpenAIEmbedder(baseURL, apiKey, model string) *OpenAIEmbedder {
	// Gateways accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	log := logger.Named("embedding")
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		maxRetries: 3,
		backoff:    time.Second,
		logger:     log,
		breaker: gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
			Name:        "embedding",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("Embedding circuit breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// Embed sends texts as one request, retrying transient failures
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.breaker.Execute(func() ([][]float32, error) {
		return e.embedWithRetry(ctx, texts)
	})
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, errors.NewUpstreamFailure("embedding", err)
	}
	metrics.EmbeddingRequests.WithLabelValues("ok").Inc()
	return vecs, nil
}

func (e *OpenAIEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * e.backoff
			e.logger.Warn("Retrying embedding request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err = e.client.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}
		e.logger.Error("Embedding request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("texts", len(texts)),
			zap.String("model", e.model),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to embed after %d attempts: %w", e.maxRetries, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(resp.Data), len(texts))
	}
	// The API documents Index as the input position; don't trust response order
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
