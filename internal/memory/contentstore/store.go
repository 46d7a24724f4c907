// Package contentstore is the durable, encrypted, deduplicated record store
// for memory content. Records are keyed by the hex SHA-256 of their raw
// content; identical content collapses to one record.
package contentstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"keepsake/internal/memory"
	"keepsake/internal/memory/cipher"
)

const (
	defaultDirMode  = 0o755
	defaultFileMode = 0o600
)

// Store owns the memories table and the encryption key. No other component
// may decrypt its ciphertext.
type Store struct {
	path string
	box  *cipher.Box
	db   *sql.DB
}

func Open(path string, box *cipher.Box) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("content store: db path is required")
	}
	if box == nil {
		return nil, errors.New("content store: cipher is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("content store: create dir: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("content store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{path: path, box: box, db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := os.Chmod(path, defaultFileMode); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("content store: chmod: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores content once. A repeated Put with identical content is
// side-effect free: the insert is a single conflict-ignoring statement, so
// concurrent writers of the same hash resolve to one persisted record, and
// no existing field is overwritten. created reports whether a row was
// actually inserted.
func (s *Store) Put(ctx context.Context, content string, opts memory.PutOptions) (id string, created bool, err error) {
	if s == nil || s.db == nil {
		return "", false, memory.ErrClosed
	}
	if strings.TrimSpace(content) == "" {
		return "", false, memory.ErrEmptyContent
	}
	opts = memory.NormalizePutOptions(opts)

	sum := sha256.Sum256([]byte(content))
	id = hex.EncodeToString(sum[:])

	tagsJSON, err := json.Marshal(opts.Tags)
	if err != nil {
		return "", false, fmt.Errorf("content store: marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(opts.Metadata)
	if err != nil {
		return "", false, fmt.Errorf("content store: marshal metadata: %w", err)
	}
	sealed, err := s.box.Seal([]byte(content))
	if err != nil {
		return "", false, fmt.Errorf("content store: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (timestamp, content_hash, ciphertext, emotion, tags_json, metadata_json, is_private)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`, time.Now().UTC(), id, sealed, opts.Emotion, string(tagsJSON), string(metaJSON), !opts.Public)
	if err != nil {
		return "", false, fmt.Errorf("content store: insert: %w", err)
	}
	affected, _ := res.RowsAffected()
	return id, affected > 0, nil
}

// Get looks up one record by content hash. A miss is (zero, false, nil);
// a record that no longer decrypts under the store key is an error.
func (s *Store) Get(ctx context.Context, id string) (memory.Memory, bool, error) {
	if s == nil || s.db == nil {
		return memory.Memory{}, false, memory.ErrClosed
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return memory.Memory{}, false, errors.New("content store: id is required")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT timestamp, content_hash, ciphertext, emotion, tags_json, metadata_json, is_private
		FROM memories
		WHERE content_hash = ?
		LIMIT 1
	`, id)
	mem, err := s.scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memory.Memory{}, false, nil
		}
		return memory.Memory{}, false, err
	}
	return mem, true, nil
}

// Delete removes one record. Reports whether a row existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, memory.ErrClosed
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("content store: id is required")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE content_hash = ?`, id)
	if err != nil {
		return false, fmt.Errorf("content store: delete: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

type scanFunc func(dest ...any) error

// scanRecord decodes and decrypts one memories row.
func (s *Store) scanRecord(scan scanFunc) (memory.Memory, error) {
	var (
		mem       memory.Memory
		sealed    []byte
		tagsJSON  string
		metaJSON  string
		isPrivate bool
	)
	if err := scan(&mem.Timestamp, &mem.ID, &sealed, &mem.Emotion, &tagsJSON, &metaJSON, &isPrivate); err != nil {
		return memory.Memory{}, err
	}
	plaintext, err := s.box.Open(sealed)
	if err != nil {
		return memory.Memory{}, fmt.Errorf("content store: record %s: %w", mem.ID, err)
	}
	mem.Content = string(plaintext)
	mem.IsPrivate = isPrivate
	if err := json.Unmarshal([]byte(tagsJSON), &mem.Tags); err != nil {
		return memory.Memory{}, fmt.Errorf("content store: record %s: tags: %w", mem.ID, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &mem.Metadata); err != nil {
		return memory.Memory{}, fmt.Errorf("content store: record %s: metadata: %w", mem.ID, err)
	}
	return mem, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			ciphertext BLOB NOT NULL,
			emotion TEXT NOT NULL,
			tags_json TEXT NOT NULL,
			metadata_json TEXT NOT NULL,
			is_private INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_emotion ON memories(emotion)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("content store: migrate: %w", err)
		}
	}
	return nil
}
