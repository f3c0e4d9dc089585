// Package embedding provides text embedders for the semantic reranker.
package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/service"
)

const (
	wordWeight = 1.0
	gramWeight = 0.5
)

// HashEmbedder maps words and character trigrams into a fixed number of signed
// buckets and L2-normalizes the result. It needs no model and is deterministic.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

var _ service.Embedder = (*HashEmbedder)(nil)

func (h *HashEmbedder) Name() string    { return "hash" }
func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	acc := make([]float64, h.dims)
	for _, w := range strings.Fields(models.NormalizeName(text)) {
		h.add(acc, "w:"+w, wordWeight)
		runes := []rune("<" + w + ">")
		for i := 0; i+3 <= len(runes); i++ {
			h.add(acc, "g:"+string(runes[i:i+3]), gramWeight)
		}
	}
	return normalize(acc)
}

func (h *HashEmbedder) add(acc []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dims)
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	acc[idx] += weight
}

func normalize(acc []float64) []float32 {
	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, len(acc))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero or
// the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}
