package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"keepsake/internal/memory"
	"keepsake/internal/memory/cipher"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	key, err := cipher.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	box, err := cipher.New(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	store, err := Open(filepath.Join(t.TempDir(), "memories.db"), box)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, created, err := store.Put(ctx, "Today was sunny and warm", memory.PutOptions{
		Emotion: "happy",
		Tags:    []string{"weather"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for first put")
	}
	if len(id) != 64 {
		t.Fatalf("expected hex sha-256 id, got %q", id)
	}

	mem, ok, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}
	if mem.Content != "Today was sunny and warm" {
		t.Fatalf("unexpected content: %q", mem.Content)
	}
	if mem.Emotion != "happy" {
		t.Fatalf("unexpected emotion: %q", mem.Emotion)
	}
	if len(mem.Tags) != 1 || mem.Tags[0] != "weather" {
		t.Fatalf("unexpected tags: %v", mem.Tags)
	}
	if !mem.IsPrivate {
		t.Fatal("expected record to default to private")
	}

	removed, err := store.Delete(ctx, id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Fatal("expected delete to report removal")
	}

	_, ok, err = store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if ok {
		t.Fatal("expected record to be gone")
	}
}

func TestStoreDeduplicatesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, created, err := store.Put(ctx, "same words", memory.PutOptions{Emotion: "happy"})
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if !created {
		t.Fatal("expected first put to create")
	}

	second, created, err := store.Put(ctx, "same words", memory.PutOptions{Emotion: "sad", Tags: []string{"other"}})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if created {
		t.Fatal("expected second put to dedup")
	}
	if first != second {
		t.Fatalf("expected identical id for identical content, got %q vs %q", first, second)
	}

	// The original record's fields survive the dedup hit.
	mem, ok, err := store.Get(ctx, first)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if mem.Emotion != "happy" {
		t.Fatalf("expected original emotion to win, got %q", mem.Emotion)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("expected 1 record after dedup, got %d", stats.Total)
	}
}

func TestStorePutRejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, _, err := store.Put(ctx, content, memory.PutOptions{}); err != memory.ErrEmptyContent {
			t.Fatalf("content %q: expected ErrEmptyContent, got %v", content, err)
		}
	}
}

func TestStoreGetMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	mem, ok, err := store.Get(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
	if mem.ID != "" {
		t.Fatalf("expected zero record, got %+v", mem)
	}

	removed, err := store.Delete(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed {
		t.Fatal("expected delete of missing id to report false")
	}
}

func TestStoreSearchFilters(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	seed := []struct {
		content string
		emotion string
		tags    []string
	}{
		{"Went fishing at the lake with grandpa", "happy", []string{"family", "outdoors"}},
		{"Fishing alone in the rain", "sad", []string{"outdoors"}},
		{"Baked bread all afternoon", "happy", []string{"home"}},
	}
	for _, s := range seed {
		if _, _, err := store.Put(ctx, s.content, memory.PutOptions{Emotion: s.emotion, Tags: s.tags}); err != nil {
			t.Fatalf("put %q: %v", s.content, err)
		}
	}

	results, err := store.Search(ctx, memory.SearchParams{Emotion: "happy"})
	if err != nil {
		t.Fatalf("search by emotion: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 happy memories, got %d", len(results))
	}

	results, err = store.Search(ctx, memory.SearchParams{Tags: []string{"outdoors"}})
	if err != nil {
		t.Fatalf("search by tag: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 outdoors memories, got %d", len(results))
	}

	// Query is a case-insensitive substring pass over decrypted content,
	// applied after the storage filters.
	results, err = store.Search(ctx, memory.SearchParams{Query: "FISHING", Emotion: "happy"})
	if err != nil {
		t.Fatalf("combined search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].Content != "Went fishing at the lake with grandpa" {
		t.Fatalf("unexpected match: %q", results[0].Content)
	}

	results, err = store.Search(ctx, memory.SearchParams{Query: "no such memory"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no matches, got %d", len(results))
	}
}

func TestStoreSearchLimit(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	contents := []string{"first memory", "second memory", "third memory"}
	for _, c := range contents {
		if _, _, err := store.Put(ctx, c, memory.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	results, err := store.Search(ctx, memory.SearchParams{Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(results))
	}
}

func TestStoreStats(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, s := range []struct{ content, emotion string }{
		{"a quiet morning", "calm"},
		{"an argument at work", "angry"},
		{"another quiet evening", "calm"},
	} {
		if _, _, err := store.Put(ctx, s.content, memory.PutOptions{Emotion: s.emotion}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("expected total=3, got %d", stats.Total)
	}
	if stats.Emotions["calm"] != 2 || stats.Emotions["angry"] != 1 {
		t.Fatalf("unexpected emotion counts: %v", stats.Emotions)
	}
	if len(stats.DailyCounts) != 1 {
		t.Fatalf("expected a single daily bucket, got %v", stats.DailyCounts)
	}
	for _, count := range stats.DailyCounts {
		if count != 3 {
			t.Fatalf("expected 3 writes today, got %d", count)
		}
	}
	if stats.DBSizeBytes <= 0 {
		t.Fatalf("expected positive db size, got %d", stats.DBSizeBytes)
	}
}

func TestStoreExportRespectsPrivacy(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, _, err := store.Put(ctx, "a private thought", memory.PutOptions{}); err != nil {
		t.Fatalf("put private: %v", err)
	}
	if _, _, err := store.Put(ctx, "a public story", memory.PutOptions{Public: true}); err != nil {
		t.Fatalf("put public: %v", err)
	}

	out := filepath.Join(t.TempDir(), "export.json")
	n, err := store.Export(ctx, out, false)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 public record exported, got %d", n)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var records []memory.Memory
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(records) != 1 || records[0].Content != "a public story" {
		t.Fatalf("unexpected export contents: %+v", records)
	}

	n, err = store.Export(ctx, out, true)
	if err != nil {
		t.Fatalf("export with private: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records exported, got %d", n)
	}
}

func TestStoreSurvivesUndecryptableRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "memories.db")

	keyA, err := cipher.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	boxA, err := cipher.New(keyA)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	store, err := Open(dbPath, boxA)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	unreadable, _, err := store.Put(ctx, "sealed under the old key", memory.PutOptions{Public: true})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen the same database under a different key. The old record is
	// now permanently unreadable.
	keyB, err := cipher.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	boxB, err := cipher.New(keyB)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	store, err = Open(dbPath, boxB)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	readable, _, err := store.Put(ctx, "sealed under the new key", memory.PutOptions{Public: true})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	// A point lookup surfaces the failure.
	if _, _, err := store.Get(ctx, unreadable); !errors.Is(err, memory.ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}

	// Bulk paths skip the bad row instead of failing the scan.
	results, err := store.Search(ctx, memory.SearchParams{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != readable {
		t.Fatalf("expected only the readable record, got %+v", results)
	}

	out := filepath.Join(dir, "export.json")
	n, err := store.Export(ctx, out, true)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 exported record, got %d", n)
	}

	// Stats never decrypts and still counts both rows.
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("expected total=2, got %d", stats.Total)
	}
}

func TestStoreReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "memories.db")

	key, err := cipher.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	box, err := cipher.New(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	store, err := Open(dbPath, box)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id, _, err := store.Put(ctx, "persists across restarts", memory.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(dbPath, box)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	mem, ok, err := store.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if mem.Content != "persists across restarts" {
		t.Fatalf("unexpected content after reopen: %q", mem.Content)
	}
}
