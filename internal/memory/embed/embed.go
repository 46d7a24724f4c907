// Package embed converts text into fixed-dimension vectors for the
// semantic index. The embedding model is an external capability; this
// package only defines the boundary and two implementations of it.
package embed

import "context"

// Embedder turns text into a vector. Output dimension must be constant
// for a given ModelID, and deterministic per model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}
