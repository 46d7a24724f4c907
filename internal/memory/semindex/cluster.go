package semindex

import (
	"context"
	"fmt"

	"keepsake/internal/memory"
)

// clusterSeed fixes k-means initialization so repeated clustering of the
// same entries produces the same grouping.
const clusterSeed = 42

// Cluster groups all indexed entries into min(k, entryCount) thematic
// clusters by k-means over their embeddings. Keys are cluster_0..cluster_N.
// An empty index yields an empty map. Every entry lands in exactly one
// cluster, so the group sizes always sum to the entry count.
func (x *Index) Cluster(ctx context.Context, k int) (map[string][]memory.ClusterEntry, error) {
	if x == nil || x.db == nil {
		return nil, memory.ErrClosed
	}
	if k <= 0 {
		k = memory.DefaultClusterCount
	}

	entries, err := x.loadEntries(ctx, true)
	if err != nil {
		return nil, err
	}
	clusters := map[string][]memory.ClusterEntry{}
	if len(entries) == 0 {
		return clusters, nil
	}
	if k > len(entries) {
		k = len(entries)
	}

	dim := len(entries[0].embedding)
	vectors := make([]float32, 0, len(entries)*dim)
	for _, e := range entries {
		if len(e.embedding) != dim {
			// Mixed dimensions cannot be clustered together.
			return clusters, nil
		}
		vectors = append(vectors, e.embedding...)
	}

	labels := kmeansAssign(vectors, dim, k, clusterSeed)
	for i, e := range entries {
		key := fmt.Sprintf("cluster_%d", labels[i])
		clusters[key] = append(clusters[key], memory.ClusterEntry{
			VectorID: e.vectorID,
			MemoryID: e.memoryID,
			Document: e.document,
			Metadata: e.metadata(),
		})
	}
	return clusters, nil
}
