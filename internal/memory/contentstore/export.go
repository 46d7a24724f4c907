package contentstore

import (
	"context"
	"errors"
	"fmt"

	"keepsake/internal/fsutil"
	"keepsake/internal/memory"
)

// Export writes all records as a JSON array of decrypted, flattened
// entries. Private records are excluded unless includePrivate is set.
// Records that no longer decrypt are omitted rather than failing the
// export; the returned count is the number actually written.
func (s *Store) Export(ctx context.Context, path string, includePrivate bool) (int, error) {
	if s == nil || s.db == nil {
		return 0, memory.ErrClosed
	}

	query := `
		SELECT timestamp, content_hash, ciphertext, emotion, tags_json, metadata_json, is_private
		FROM memories`
	if !includePrivate {
		query += ` WHERE is_private = 0`
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("content store: export: %w", err)
	}
	defer rows.Close()

	records := []memory.Memory{}
	for rows.Next() {
		mem, err := s.scanRecord(rows.Scan)
		if err != nil {
			if errors.Is(err, memory.ErrDecrypt) {
				continue
			}
			return 0, err
		}
		records = append(records, mem)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("content store: export: %w", err)
	}

	if err := fsutil.WriteJSONAtomic(path, records, 0o644); err != nil {
		return 0, fmt.Errorf("content store: export: %w", err)
	}
	return len(records), nil
}
