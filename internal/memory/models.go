package memory

import (
	"errors"
	"time"
)

var (
	ErrEmptyContent      = errors.New("memory: content is empty")
	ErrDecrypt           = errors.New("memory: decrypt failed")
	ErrTimeout           = errors.New("memory: operation timed out")
	ErrDimensionMismatch = errors.New("memory: embedding dimension mismatch")
	ErrClosed            = errors.New("memory: store closed")
)

const (
	DefaultEmotion             = "neutral"
	DefaultSearchLimit         = 50
	DefaultNResults            = 10
	DefaultSimilarNResults     = 5
	DefaultSimilarityThreshold = 0.5
	DefaultClusterCount        = 5
)

// Derived metadata keys attached to every indexed entry.
const (
	MetaMemoryID       = "memory_id"
	MetaContentLength  = "content_length"
	MetaAddedAt        = "added_at"
	MetaContentPreview = "content_preview"
)

// Memory is one decrypted record from the content store.
// ID is the hex SHA-256 of the raw content and doubles as the dedup key.
type Memory struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Content   string         `json:"content"`
	Emotion   string         `json:"emotion"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsPrivate bool           `json:"is_private"`
}

// PutOptions carries the optional fields of a store write.
// The zero value means emotion "neutral", no tags, private record;
// Public is inverted so the zero value keeps records private.
type PutOptions struct {
	Emotion  string
	Tags     []string
	Metadata map[string]any
	Public   bool
}

// SearchParams filters a content store search. Tags and Emotion are applied
// at the storage layer, Query as a substring pass over decrypted content.
type SearchParams struct {
	Query   string
	Tags    []string
	Emotion string
	Limit   int
}

// Match is one semantic search hit.
type Match struct {
	VectorID   string         `json:"vector_id"`
	MemoryID   string         `json:"memory_id"`
	Document   string         `json:"document"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity float64        `json:"similarity_score"`
}

// ClusterEntry is one indexed entry as grouped by Cluster.
type ClusterEntry struct {
	VectorID string         `json:"vector_id"`
	MemoryID string         `json:"memory_id"`
	Document string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StoreStats aggregates the content store.
// DailyCounts is keyed by calendar date (YYYY-MM-DD) and holds at most the
// 30 most recent distinct dates.
type StoreStats struct {
	Total       int            `json:"total_memories"`
	Emotions    map[string]int `json:"emotions"`
	DailyCounts map[string]int `json:"daily_counts"`
	DBPath      string         `json:"db_path"`
	DBSizeBytes int64          `json:"db_size_bytes"`
}

// IndexStats aggregates the semantic index metadata.
type IndexStats struct {
	Total       int            `json:"total_memories"`
	Collection  string         `json:"collection_name"`
	Model       string         `json:"model_name"`
	Emotions    map[string]int `json:"emotions"`
	Tags        map[string]int `json:"tags"`
	DBSizeBytes int64          `json:"db_size_bytes"`
}

// Receipt reports a recorder write across both stores.
type Receipt struct {
	MemoryID string `json:"memory_id"`
	VectorID string `json:"vector_id"`
	Created  bool   `json:"created"`
}

// Recollection is a semantic match resolved back through the content store.
// When the logical id has no content store record (loose coupling), Resolved
// is false and Memory carries only the index document text.
type Recollection struct {
	Match
	Memory   Memory `json:"memory"`
	Resolved bool   `json:"resolved"`
}
