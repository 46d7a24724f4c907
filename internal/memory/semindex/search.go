package semindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"keepsake/internal/memory"
)

// Search ranks the collection by cosine distance to the query embedding,
// keeps the nResults nearest, converts distance to similarity (1 − d),
// drops entries below threshold, and re-sorts descending by similarity.
// The re-sort is deliberate: output order must not depend on internal
// ranking beyond the score itself. Ties keep scan order. An empty or
// whitespace query returns an empty result, not an error.
func (x *Index) Search(ctx context.Context, query string, nResults int, threshold float64) ([]memory.Match, error) {
	if x == nil || x.db == nil {
		return nil, memory.ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return []memory.Match{}, nil
	}
	if nResults <= 0 {
		nResults = memory.DefaultNResults
	}

	queryVec, err := x.embedText(ctx, query)
	if err != nil {
		return nil, err
	}

	entries, err := x.loadEntries(ctx, true)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		entry    entry
		distance float64
	}
	candidates := make([]ranked, 0, len(entries))
	for _, e := range entries {
		d := cosineDistance(queryVec, e.embedding)
		if math.IsNaN(d) {
			continue
		}
		candidates = append(candidates, ranked{entry: e, distance: d})
	}

	// Nearest-n first, threshold second: the cut below the threshold must
	// only ever shrink this set, mirroring how a capped index query
	// followed by a similarity filter behaves.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > nResults {
		candidates = candidates[:nResults]
	}

	matches := []memory.Match{}
	for _, c := range candidates {
		similarity := 1 - c.distance
		if similarity < threshold {
			continue
		}
		matches = append(matches, memory.Match{
			VectorID:   c.entry.vectorID,
			MemoryID:   c.entry.memoryID,
			Document:   c.entry.document,
			Metadata:   c.entry.metadata(),
			Similarity: similarity,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

// SimilarTo finds entries similar to an already-indexed memory. The
// reference entry is resolved deterministically as the earliest added_at
// (then vector_id) among entries with that memory id. It then searches
// with the reference document asking for one extra result and discards the
// top hit, assuming it is the reference matching itself. That is an
// approximation: near-duplicate content can put another entry on top, in
// which case that entry is the one discarded. An unknown memory id yields
// an empty result.
func (x *Index) SimilarTo(ctx context.Context, memoryID string, nResults int) ([]memory.Match, error) {
	if x == nil || x.db == nil {
		return nil, memory.ErrClosed
	}
	if nResults <= 0 {
		nResults = memory.DefaultSimilarNResults
	}
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return []memory.Match{}, nil
	}

	var document string
	err := x.db.QueryRowContext(ctx, `
		SELECT document FROM vector_entries
		WHERE collection = ? AND memory_id = ?
		ORDER BY added_at ASC, vector_id ASC
		LIMIT 1
	`, x.collection, memoryID).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []memory.Match{}, nil
		}
		return nil, fmt.Errorf("semantic index: similar lookup: %w", err)
	}

	matches, err := x.Search(ctx, document, nResults+1, memory.DefaultSimilarityThreshold)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return matches, nil
	}
	return matches[1:], nil
}

// cosineDistance is 1 − cosine similarity. Zero-norm or mismatched vectors
// yield NaN so callers can drop them.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
