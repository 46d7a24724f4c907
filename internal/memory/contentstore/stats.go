package contentstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"keepsake/internal/memory"
)

const maxDailyBuckets = 30

// Stats aggregates the store: total record count, emotion histogram, and
// per-day counts over the 30 most recent distinct calendar dates.
// Aggregation is best-effort by design and never decrypts content.
func (s *Store) Stats(ctx context.Context) (memory.StoreStats, error) {
	if s == nil || s.db == nil {
		return memory.StoreStats{}, memory.ErrClosed
	}
	stats := memory.StoreStats{
		Emotions:    map[string]int{},
		DailyCounts: map[string]int{},
		DBPath:      s.path,
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&stats.Total); err != nil {
		return memory.StoreStats{}, fmt.Errorf("content store: stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT emotion, COUNT(*) FROM memories GROUP BY emotion`)
	if err != nil {
		return memory.StoreStats{}, fmt.Errorf("content store: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var emotion string
		var count int
		if err := rows.Scan(&emotion, &count); err != nil {
			return memory.StoreStats{}, fmt.Errorf("content store: stats: %w", err)
		}
		stats.Emotions[emotion] = count
	}
	if err := rows.Err(); err != nil {
		return memory.StoreStats{}, fmt.Errorf("content store: stats: %w", err)
	}

	if err := s.fillDailyCounts(ctx, &stats); err != nil {
		return memory.StoreStats{}, err
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}
	return stats, nil
}

// fillDailyCounts buckets timestamps by calendar date in Go rather than
// with SQL date functions, so the bucketing does not depend on how the
// driver serializes time values. Scanning newest-first means the bucket
// cap keeps exactly the most recent distinct dates.
func (s *Store) fillDailyCounts(ctx context.Context, stats *memory.StoreStats) error {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp FROM memories ORDER BY timestamp DESC`)
	if err != nil {
		return fmt.Errorf("content store: stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return fmt.Errorf("content store: stats: %w", err)
		}
		day := ts.UTC().Format("2006-01-02")
		if _, seen := stats.DailyCounts[day]; !seen && len(stats.DailyCounts) >= maxDailyBuckets {
			break
		}
		stats.DailyCounts[day]++
	}
	return rows.Err()
}
