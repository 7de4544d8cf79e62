// Package embedbackend adapts Recall's embedding calls to the configured
// provider, and caches results on disk (msgpack) and optionally in a shared
// Redis cache so repeated text never pays for a second API round trip.
package embedbackend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/errs"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

const maxBatch = 2048

// New builds a provider Embedder wrapped with an on-disk + optional Redis
// cache and rate limiting, selected by the same dialect-detection rule the
// LLM backend uses.
func New(cfg *config.Config, cache *Cache, limiter *RateLimiter) (Embedder, error) {
	base := cfg.EmbeddingAPIBase
	model := cfg.EmbeddingModel

	var inner Embedder
	var err error
	switch detectDialect(base, model) {
	case "google":
		inner, err = newGoogleEmbedder(cfg)
	default:
		inner, err = newOpenAIEmbedder(cfg)
	}
	if err != nil {
		return nil, err
	}

	return &cachedEmbedder{inner: inner, cache: cache, limiter: limiter, model: model}, nil
}

func detectDialect(base, model string) string {
	if contains(base, "generativelanguage") || hasPrefix(model, "text-embedding-004") || hasPrefix(model, "gemini") {
		return "google"
	}
	return "openai"
}

func contains(s, sub string) bool { return len(sub) > 0 && indexOf(s, sub) >= 0 }
func hasPrefix(s, p string) bool  { return len(s) >= len(p) && s[:len(p)] == p }
func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func cacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// cachedEmbedder checks the cache before calling the provider, and is the
// only place that enforces the configured rate limit.
type cachedEmbedder struct {
	inner   Embedder
	cache   *Cache
	limiter *RateLimiter
	model   string
}

func (c *cachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *cachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var miss []string
	var missIdx []int

	for i, t := range texts {
		key := cacheKey(c.model, t)
		if c.cache != nil {
			if v, ok := c.cache.Get(ctx, key); ok {
				result[i] = v
				continue
			}
		}
		miss = append(miss, t)
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(miss); start += maxBatch {
		end := start + maxBatch
		if end > len(miss) {
			end = len(miss)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, errs.Wrap(errs.RateLimited, "embedding rate limit wait failed", err)
			}
		}
		vecs, err := c.inner.EmbedBatch(ctx, miss[start:end])
		if err != nil {
			return nil, errs.Wrap(errs.BackendUnavailable, "embedding call failed", err)
		}
		for j, v := range vecs {
			idx := missIdx[start+j]
			result[idx] = v
			if c.cache != nil {
				c.cache.Put(ctx, cacheKey(c.model, miss[start+j]), v)
			}
		}
	}
	return result, nil
}

type openAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func newOpenAIEmbedder(cfg *config.Config) (*openAIEmbedder, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.EmbeddingAPIKey),
		option.WithHTTPClient(http.DefaultClient),
	}
	if cfg.EmbeddingAPIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.EmbeddingAPIBase))
	}
	client := openai.NewClient(opts...)
	return &openAIEmbedder{client: &client, model: cfg.EmbeddingModel, dim: cfg.EmbeddingDimension}, nil
}

func (o *openAIEmbedder) Dimension() int { return o.dim }

func (o *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (o *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(o.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			continue
		}
		v := make([]float32, len(item.Embedding))
		for i, f := range item.Embedding {
			v[i] = float32(f)
		}
		vecs[idx] = v
	}
	return vecs, nil
}

type googleEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

func newGoogleEmbedder(cfg *config.Config) (*googleEmbedder, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.EmbeddingAPIKey})
	if err != nil {
		return nil, err
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = "text-embedding-004"
	}
	return &googleEmbedder{client: client, model: model, dim: cfg.EmbeddingDimension}, nil
}

func (g *googleEmbedder) Dimension() int { return g.dim }

func (g *googleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *googleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		resp, err := g.client.Models.EmbedContent(ctx, g.model, []*genai.Content{
			{Parts: []*genai.Part{{Text: t}}},
		}, nil)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Embeddings) == 0 {
			continue
		}
		out[i] = resp.Embeddings[0].Values
	}
	return out, nil
}
