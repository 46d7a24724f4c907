package semindex

import (
	"context"
	"time"

	"keepsake/internal/fsutil"
	"keepsake/internal/memory"
)

type exportDocument struct {
	Collection string        `json:"collection_name"`
	Model      string        `json:"model_name"`
	ExportDate string        `json:"export_date"`
	Memories   []exportEntry `json:"memories"`
}

type exportEntry struct {
	VectorID  string         `json:"vector_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// Export dumps the whole collection, raw embeddings included, as one JSON
// document written atomically. Returns the number of exported entries.
func (x *Index) Export(ctx context.Context, path string) (int, error) {
	if x == nil || x.db == nil {
		return 0, memory.ErrClosed
	}

	entries, err := x.loadEntries(ctx, true)
	if err != nil {
		return 0, err
	}

	doc := exportDocument{
		Collection: x.collection,
		Model:      x.embedder.ModelID(),
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		Memories:   make([]exportEntry, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Memories = append(doc.Memories, exportEntry{
			VectorID:  e.vectorID,
			Content:   e.document,
			Metadata:  e.metadata(),
			Embedding: e.embedding,
		})
	}

	if err := fsutil.WriteJSONAtomic(path, doc, 0o644); err != nil {
		return 0, err
	}
	return len(doc.Memories), nil
}
