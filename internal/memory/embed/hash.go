package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
)

const defaultHashDimensions = 384

// HashEmbedder produces deterministic unit vectors from an FNV hash of the
// text. It has no semantic understanding: identical text maps to identical
// vectors and nothing else is guaranteed. Suitable for tests and for local
// setups without an embedding model.
type HashEmbedder struct {
	dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = defaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (e *HashEmbedder) ModelID() string {
	return "hash-embedder"
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embed: input text is required")
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		// LCG keeps the expansion deterministic per hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	scale := 1 / float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v * scale
	}
	return vec
}
