// Package semindex is the vector similarity side of the memory system.
// Entries are keyed by an opaque vector id and carry a denormalized copy of
// the logical memory id for lookup and deletion. One logical memory id may
// map to any number of entries; nothing enforces uniqueness.
package semindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"keepsake/internal/memory"
	"keepsake/internal/memory/embed"
)

const (
	defaultCollection   = "memories"
	defaultEmbedTimeout = 30 * time.Second
	previewLength       = 100
)

// Options tunes an Index beyond its required dependencies.
type Options struct {
	// Collection names the entry namespace inside the database file.
	Collection string
	// EmbedTimeout bounds every call into the embedding capability.
	EmbedTimeout time.Duration
}

// Index holds one long-lived session to its backing database.
type Index struct {
	path         string
	collection   string
	embedder     embed.Embedder
	embedTimeout time.Duration
	db           *sql.DB

	mu  sync.Mutex
	dim int // 0 until the first entry fixes the dimension
}

func Open(path string, embedder embed.Embedder, opts Options) (*Index, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("semantic index: db path is required")
	}
	if embedder == nil {
		return nil, errors.New("semantic index: embedder is required")
	}
	collection := strings.TrimSpace(opts.Collection)
	if collection == "" {
		collection = defaultCollection
	}
	embedTimeout := opts.EmbedTimeout
	if embedTimeout <= 0 {
		embedTimeout = defaultEmbedTimeout
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("semantic index: create dir: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("semantic index: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	x := &Index{
		path:         path,
		collection:   collection,
		embedder:     embedder,
		embedTimeout: embedTimeout,
		db:           db,
	}
	if err := x.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := x.loadDimension(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("semantic index: chmod: %w", err)
	}
	return x, nil
}

func (x *Index) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

// Collection returns the entry namespace this index serves.
func (x *Index) Collection() string {
	return x.collection
}

// Add embeds content and inserts a fresh entry under a random vector id.
// There is no dedup: adding the same memory id twice creates two
// independent entries. Caller metadata is merged with the derived keys
// (memory_id, content_length, added_at, content_preview); derived keys win.
func (x *Index) Add(ctx context.Context, memoryID, content string, meta map[string]any) (string, error) {
	if x == nil || x.db == nil {
		return "", memory.ErrClosed
	}
	if strings.TrimSpace(content) == "" {
		return "", memory.ErrEmptyContent
	}
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return "", errors.New("semantic index: memory id is required")
	}

	vec, err := x.embedText(ctx, content)
	if err != nil {
		return "", err
	}
	if err := x.checkDimension(len(vec)); err != nil {
		return "", err
	}

	addedAt := time.Now().UTC()
	merged := make(map[string]any, len(meta)+4)
	for k, v := range meta {
		merged[k] = v
	}
	merged[memory.MetaMemoryID] = memoryID
	merged[memory.MetaContentLength] = len(content)
	merged[memory.MetaAddedAt] = addedAt.Format(time.RFC3339)
	merged[memory.MetaContentPreview] = memory.Preview(content, previewLength)

	metaJSON, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("semantic index: marshal metadata: %w", err)
	}
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("semantic index: marshal embedding: %w", err)
	}

	vectorID := uuid.NewString()
	_, err = x.db.ExecContext(ctx, `
		INSERT INTO vector_entries (vector_id, collection, memory_id, document, metadata_json, embedding_json, dim, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, vectorID, x.collection, memoryID, content, string(metaJSON), string(vecJSON), len(vec), addedAt)
	if err != nil {
		return "", fmt.Errorf("semantic index: insert: %w", err)
	}
	return vectorID, nil
}

// Delete removes every entry whose logical memory id matches. Reports
// whether anything was removed.
func (x *Index) Delete(ctx context.Context, memoryID string) (bool, error) {
	if x == nil || x.db == nil {
		return false, memory.ErrClosed
	}
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return false, errors.New("semantic index: memory id is required")
	}
	res, err := x.db.ExecContext(ctx, `
		DELETE FROM vector_entries WHERE collection = ? AND memory_id = ?
	`, x.collection, memoryID)
	if err != nil {
		return false, fmt.Errorf("semantic index: delete: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Reset discards every entry of the collection irreversibly and leaves it
// empty under the same name. The embedding dimension unfixes with it.
func (x *Index) Reset(ctx context.Context) error {
	if x == nil || x.db == nil {
		return memory.ErrClosed
	}
	if _, err := x.db.ExecContext(ctx, `DELETE FROM vector_entries WHERE collection = ?`, x.collection); err != nil {
		return fmt.Errorf("semantic index: reset: %w", err)
	}
	x.mu.Lock()
	x.dim = 0
	x.mu.Unlock()
	return nil
}

func (x *Index) embedText(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, x.embedTimeout)
	defer cancel()
	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("semantic index: embed: %w", memory.ErrTimeout)
		}
		return nil, fmt.Errorf("semantic index: embed: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("semantic index: embedder returned empty vector")
	}
	return vec, nil
}

// checkDimension fixes the collection dimension on first insert and
// rejects vectors of any other size afterwards.
func (x *Index) checkDimension(dim int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dim == 0 {
		x.dim = dim
		return nil
	}
	if x.dim != dim {
		return fmt.Errorf("%w: index has %d, got %d", memory.ErrDimensionMismatch, x.dim, dim)
	}
	return nil
}

func (x *Index) loadDimension(ctx context.Context) error {
	var dim int
	err := x.db.QueryRowContext(ctx, `
		SELECT dim FROM vector_entries WHERE collection = ? LIMIT 1
	`, x.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("semantic index: load dimension: %w", err)
	}
	x.dim = dim
	return nil
}

func (x *Index) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vector_entries (
			vector_id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			memory_id TEXT NOT NULL,
			document TEXT NOT NULL,
			metadata_json TEXT NOT NULL,
			embedding_json TEXT NOT NULL,
			dim INTEGER NOT NULL,
			added_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_entries_collection_memory
			ON vector_entries(collection, memory_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_entries_collection_added
			ON vector_entries(collection, added_at)`,
	}
	for _, stmt := range stmts {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("semantic index: migrate: %w", err)
		}
	}
	return nil
}

// entry is one scanned row. Embedding is decoded lazily by callers that
// need it.
type entry struct {
	vectorID  string
	memoryID  string
	document  string
	metaJSON  string
	vecJSON   string
	addedAt   time.Time
	embedding []float32
}

func (e *entry) metadata() map[string]any {
	meta := map[string]any{}
	_ = json.Unmarshal([]byte(e.metaJSON), &meta)
	return meta
}

// loadEntries returns all entries of the collection in deterministic order
// (added_at, then vector_id). Rows whose embedding no longer parses are
// skipped when embeddings were requested; a single corrupt row must not
// fail a whole scan.
func (x *Index) loadEntries(ctx context.Context, withEmbeddings bool) ([]entry, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT vector_id, memory_id, document, metadata_json, embedding_json, added_at
		FROM vector_entries
		WHERE collection = ?
		ORDER BY added_at ASC, vector_id ASC
	`, x.collection)
	if err != nil {
		return nil, fmt.Errorf("semantic index: scan: %w", err)
	}
	defer rows.Close()

	entries := []entry{}
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.vectorID, &e.memoryID, &e.document, &e.metaJSON, &e.vecJSON, &e.addedAt); err != nil {
			return nil, fmt.Errorf("semantic index: scan: %w", err)
		}
		if withEmbeddings {
			if err := json.Unmarshal([]byte(e.vecJSON), &e.embedding); err != nil || len(e.embedding) == 0 {
				continue
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic index: scan: %w", err)
	}
	return entries, nil
}
