package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"AlphaNebula/internal/domain/service"
	pkghttp "AlphaNebula/pkg/http"
)

// OllamaEmbedder calls the Ollama embeddings endpoint, one text per request.
type OllamaEmbedder struct {
	client      *pkghttp.Client
	model       string
	dims        int
	concurrency int
}

// OllamaOption configures OllamaEmbedder.
type OllamaOption func(*ollamaConfig)

type ollamaConfig struct {
	baseURL     string
	model       string
	dims        int
	timeout     time.Duration
	rps         float64
	burst       int
	concurrency int
}

func WithOllamaURL(u string) OllamaOption {
	return func(c *ollamaConfig) { c.baseURL = u }
}

func WithOllamaModel(model string, dims int) OllamaOption {
	return func(c *ollamaConfig) {
		c.model = model
		c.dims = dims
	}
}

func WithOllamaTimeout(d time.Duration) OllamaOption {
	return func(c *ollamaConfig) { c.timeout = d }
}

// WithOllamaRateLimit throttles requests across all callers.
func WithOllamaRateLimit(rps float64, burst int) OllamaOption {
	return func(c *ollamaConfig) {
		c.rps = rps
		c.burst = burst
	}
}

func WithOllamaConcurrency(n int) OllamaOption {
	return func(c *ollamaConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func NewOllamaEmbedder(opts ...OllamaOption) *OllamaEmbedder {
	cfg := &ollamaConfig{
		baseURL:     "http://localhost:11434",
		model:       "all-minilm",
		dims:        384,
		timeout:     10 * time.Second,
		rps:         20,
		burst:       5,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &OllamaEmbedder{
		client: pkghttp.NewClient(
			pkghttp.WithBaseURL(cfg.baseURL),
			pkghttp.WithTimeout(cfg.timeout),
			pkghttp.WithRateLimit(cfg.rps, cfg.burst),
		),
		model:       cfg.model,
		dims:        cfg.dims,
		concurrency: cfg.concurrency,
	}
}

var _ service.Embedder = (*OllamaEmbedder)(nil)

func (o *OllamaEmbedder) Name() string    { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

var errEmptyEmbedding = errors.New("empty embedding")

func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaResponse
	err := o.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    "/api/embeddings",
		Body:   ollamaRequest{Model: o.model, Prompt: text},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: %w", errEmptyEmbedding)
	}
	if o.dims > 0 && len(resp.Embedding) != o.dims {
		return nil, fmt.Errorf("ollama embed: got %d dimensions, want %d", len(resp.Embedding), o.dims)
	}
	return resp.Embedding, nil
}

// EmbedBatch fans out with bounded concurrency; the first error cancels the rest.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, t := range texts {
		i, t := i, t
		g.Go(func() error {
			v, err := o.Embed(gctx, t)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
