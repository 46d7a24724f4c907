package contentstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"keepsake/internal/memory"
)

// predicate is one parameterized filter condition. Conditions are composed
// as a conjunction; values always travel as bind parameters.
type predicate struct {
	expr string
	args []any
}

func emotionEquals(emotion string) predicate {
	return predicate{expr: "emotion = ?", args: []any{emotion}}
}

// tagContains matches by substring against the serialized tag list. This is
// containment over the JSON text, not exact set membership: a tag "art"
// also matches records tagged "cartography". Kept intentionally.
func tagContains(tag string) predicate {
	return predicate{expr: "tags_json LIKE ?", args: []any{"%" + tag + "%"}}
}

func conjunction(preds []predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	exprs := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		exprs = append(exprs, p.expr)
		args = append(args, p.args...)
	}
	return "WHERE " + strings.Join(exprs, " AND "), args
}

// Search runs the two-phase filter: the storage layer applies the
// emotion/tag conjunction ordered by timestamp descending and capped at the
// limit, then the query string is applied as a case-insensitive substring
// match over the decrypted content. The second phase can only shrink the
// result set; there is no re-fetch to backfill up to the limit. Rows that
// fail to decrypt are skipped.
func (s *Store) Search(ctx context.Context, params memory.SearchParams) ([]memory.Memory, error) {
	if s == nil || s.db == nil {
		return nil, memory.ErrClosed
	}
	params = memory.NormalizeSearchParams(params)

	var preds []predicate
	if params.Emotion != "" {
		preds = append(preds, emotionEquals(params.Emotion))
	}
	for _, tag := range params.Tags {
		preds = append(preds, tagContains(tag))
	}
	where, args := conjunction(preds)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT timestamp, content_hash, ciphertext, emotion, tags_json, metadata_json, is_private
		FROM memories %s
		ORDER BY timestamp DESC
		LIMIT ?
	`, where), append(args, params.Limit)...)
	if err != nil {
		return nil, fmt.Errorf("content store: search: %w", err)
	}
	defer rows.Close()

	query := strings.ToLower(params.Query)
	results := []memory.Memory{}
	for rows.Next() {
		mem, err := s.scanRecord(rows.Scan)
		if err != nil {
			if errors.Is(err, memory.ErrDecrypt) {
				continue
			}
			return nil, err
		}
		if query != "" && !strings.Contains(strings.ToLower(mem.Content), query) {
			continue
		}
		results = append(results, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content store: search: %w", err)
	}
	return results, nil
}
