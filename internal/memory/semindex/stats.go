package semindex

import (
	"context"
	"encoding/json"
	"os"

	"keepsake/internal/memory"
)

// Stats scans all entry metadata and aggregates emotion and tag
// histograms. Tags may have been stored either as a native JSON array or
// as a serialized JSON string of an array; both are counted. Aggregation
// is best-effort: malformed metadata counts as "unknown" rather than
// failing the scan.
func (x *Index) Stats(ctx context.Context) (memory.IndexStats, error) {
	if x == nil || x.db == nil {
		return memory.IndexStats{}, memory.ErrClosed
	}

	entries, err := x.loadEntries(ctx, false)
	if err != nil {
		return memory.IndexStats{}, err
	}

	stats := memory.IndexStats{
		Total:      len(entries),
		Collection: x.collection,
		Model:      x.embedder.ModelID(),
		Emotions:   map[string]int{},
		Tags:       map[string]int{},
	}
	for _, e := range entries {
		meta := e.metadata()

		emotion := "unknown"
		if v, ok := meta["emotion"].(string); ok && v != "" {
			emotion = v
		}
		stats.Emotions[emotion]++

		for _, tag := range tagList(meta["tags"]) {
			stats.Tags[tag]++
		}
	}

	if info, err := os.Stat(x.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}
	return stats, nil
}

// tagList accepts the two representations a tags metadata field shows up
// in: a native sequence, or a JSON-encoded string of one.
func tagList(v any) []string {
	switch tags := v.(type) {
	case []string:
		return tags
	case []any:
		out := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(tags), &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}
