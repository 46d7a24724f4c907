// keepsake stores short personal narrative records durably and privately,
// and finds them again by exact identity or by meaning. Every invocation
// is one-shot: it opens the archive, performs a single operation, and
// exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"keepsake/internal/config"
	"keepsake/internal/memory"
	"keepsake/internal/memory/cipher"
	"keepsake/internal/memory/contentstore"
	"keepsake/internal/memory/embed"
	"keepsake/internal/memory/recorder"
	"keepsake/internal/memory/semindex"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "init":
		code = handleInit(os.Args[2:])
	case "remember":
		code = handleRemember(ctx, os.Args[2:])
	case "recall":
		code = handleRecall(ctx, os.Args[2:])
	case "similar":
		code = handleSimilar(ctx, os.Args[2:])
	case "search":
		code = handleSearch(ctx, os.Args[2:])
	case "get":
		code = handleGet(ctx, os.Args[2:])
	case "forget":
		code = handleForget(ctx, os.Args[2:])
	case "clusters":
		code = handleClusters(ctx, os.Args[2:])
	case "reset":
		code = handleReset(ctx, os.Args[2:])
	case "stats":
		code = handleStats(ctx, os.Args[2:])
	case "export":
		code = handleExport(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		code = 2
	}

	os.Exit(code)
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "usage: keepsake <subcommand> [flags]")
	fmt.Fprintln(w, "subcommands: init, remember, recall, similar, search, get, forget, clusters, reset, stats, export")
}

func configPath() string {
	return filepath.Join(config.DefaultDir, "config.json")
}

type components struct {
	cfg   config.Config
	store *contentstore.Store
	index *semindex.Index
	rec   *recorder.Recorder
}

func (c *components) close() {
	if c.index != nil {
		_ = c.index.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

func open() (*components, error) {
	cfg, err := config.LoadOrDefault(configPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key, err := cipher.LoadOrCreateKey(cfg.Store.KeyFile)
	if err != nil {
		return nil, err
	}
	box, err := cipher.New(key)
	if err != nil {
		return nil, err
	}
	store, err := contentstore.Open(cfg.Store.Path, box)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	index, err := semindex.Open(cfg.Index.Path, embedder, semindex.Options{
		Collection:   cfg.Index.Collection,
		EmbedTimeout: time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	rec, err := recorder.New(store, index)
	if err != nil {
		_ = index.Close()
		_ = store.Close()
		return nil, err
	}
	return &components{cfg: cfg, store: store, index: index, rec: rec}, nil
}

func buildEmbedder(cfg config.EmbeddingConfig) (embed.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "hash":
		return embed.NewHashEmbedder(cfg.Dimensions), nil
	case "openai":
		apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
		if apiKey == "" {
			return nil, fmt.Errorf("embedding api key env %s is empty", cfg.APIKeyEnv)
		}
		return embed.NewOpenAIEmbedder(cfg.BaseURL, apiKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	return 1
}

func handleInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path := configPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "already initialized: %s exists\n", path)
		return 1
	}
	cfg := config.Default(".")
	if err := config.Save(path, cfg); err != nil {
		return fail(err)
	}
	if _, err := cipher.LoadOrCreateKey(cfg.Store.KeyFile); err != nil {
		return fail(err)
	}
	fmt.Printf("initialized archive: config %s, key %s\n", path, cfg.Store.KeyFile)
	return 0
}

func handleRemember(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remember", flag.ContinueOnError)
	text := fs.String("text", "", "memory content (required)")
	emotion := fs.String("emotion", "", "emotion label (default neutral)")
	tags := fs.String("tags", "", "comma-separated tags")
	public := fs.Bool("public", false, "mark the memory as public")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	receipt, err := c.rec.Remember(ctx, *text, memory.PutOptions{
		Emotion: *emotion,
		Tags:    splitTags(*tags),
		Public:  *public,
	})
	if err != nil {
		return fail(err)
	}
	if receipt.Created {
		fmt.Printf("remembered %s (vector %s)\n", receipt.MemoryID, receipt.VectorID)
	} else {
		fmt.Printf("already known %s (vector %s)\n", receipt.MemoryID, receipt.VectorID)
	}
	return 0
}

func handleRecall(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("recall", flag.ContinueOnError)
	query := fs.String("query", "", "what to recall (required)")
	n := fs.Int("n", 0, "max results")
	threshold := fs.Float64("threshold", -1, "similarity threshold [0,1]")
	emotion := fs.String("emotion", "", "recall by feeling instead of query")
	timeframe := fs.String("timeframe", "", "recall by life period instead of query")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	if *n <= 0 {
		*n = c.cfg.Search.NResults
	}
	if *threshold < 0 {
		*threshold = c.cfg.Search.Threshold
	}

	var recollections []memory.Recollection
	switch {
	case *emotion != "":
		recollections, err = c.rec.RecallEmotion(ctx, *emotion, *n)
	case *timeframe != "":
		recollections, err = c.rec.RecallTimeframe(ctx, *timeframe, *n)
	default:
		recollections, err = c.rec.Recall(ctx, *query, *n, *threshold)
	}
	if err != nil {
		return fail(err)
	}
	printRecollections(recollections)
	return 0
}

func handleSimilar(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("similar", flag.ContinueOnError)
	id := fs.String("id", "", "memory id (required)")
	n := fs.Int("n", 5, "max results")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	recollections, err := c.rec.Similar(ctx, *id, *n)
	if err != nil {
		return fail(err)
	}
	printRecollections(recollections)
	return 0
}

func handleSearch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	query := fs.String("query", "", "substring filter over content")
	emotion := fs.String("emotion", "", "filter by emotion")
	tags := fs.String("tags", "", "comma-separated tag filters")
	limit := fs.Int("limit", 0, "max rows")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	if *limit <= 0 {
		*limit = c.cfg.Search.Limit
	}
	results, err := c.store.Search(ctx, memory.SearchParams{
		Query:   *query,
		Emotion: *emotion,
		Tags:    splitTags(*tags),
		Limit:   *limit,
	})
	if err != nil {
		return fail(err)
	}
	for _, mem := range results {
		fmt.Printf("%s  %s  [%s]  %s\n", mem.ID[:12], mem.Timestamp.Format("2006-01-02"), mem.Emotion, memory.Preview(mem.Content, 80))
	}
	fmt.Printf("%d memories\n", len(results))
	return 0
}

func handleGet(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	id := fs.String("id", "", "memory id (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	mem, ok, err := c.store.Get(ctx, *id)
	if err != nil {
		return fail(err)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "not found")
		return 1
	}
	fmt.Printf("id:        %s\n", mem.ID)
	fmt.Printf("timestamp: %s\n", mem.Timestamp.Format(time.RFC3339))
	fmt.Printf("emotion:   %s\n", mem.Emotion)
	fmt.Printf("tags:      %s\n", strings.Join(mem.Tags, ", "))
	fmt.Printf("private:   %v\n", mem.IsPrivate)
	fmt.Printf("content:   %s\n", mem.Content)
	return 0
}

func handleForget(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("forget", flag.ContinueOnError)
	id := fs.String("id", "", "memory id (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	removed, err := c.rec.Forget(ctx, *id)
	if err != nil {
		return fail(err)
	}
	if !removed {
		fmt.Fprintln(os.Stderr, "not found")
		return 1
	}
	fmt.Println("forgotten")
	return 0
}

func handleClusters(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("clusters", flag.ContinueOnError)
	k := fs.Int("k", 5, "number of clusters")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	clusters, err := c.index.Cluster(ctx, *k)
	if err != nil {
		return fail(err)
	}
	for name, entries := range clusters {
		fmt.Printf("%s (%d entries)\n", name, len(entries))
		for _, e := range entries {
			fmt.Printf("  %s  %s\n", e.MemoryID[:min(12, len(e.MemoryID))], memory.Preview(e.Document, 70))
		}
	}
	return 0
}

func handleReset(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	confirm := fs.Bool("yes", false, "actually discard the whole semantic index")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !*confirm {
		fmt.Fprintln(os.Stderr, "reset discards every index entry irreversibly; rerun with -yes")
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	if err := c.index.Reset(ctx); err != nil {
		return fail(err)
	}
	fmt.Printf("semantic index %q reset\n", c.index.Collection())
	return 0
}

func handleStats(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	storeStats, err := c.store.Stats(ctx)
	if err != nil {
		return fail(err)
	}
	indexStats, err := c.index.Stats(ctx)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("content store: %d memories, %s on disk (%s)\n",
		storeStats.Total, humanize.Bytes(uint64(storeStats.DBSizeBytes)), storeStats.DBPath)
	for emotion, count := range storeStats.Emotions {
		fmt.Printf("  %-12s %d\n", emotion, count)
	}
	fmt.Printf("semantic index: %d entries, %s on disk (collection %q, model %s)\n",
		indexStats.Total, humanize.Bytes(uint64(indexStats.DBSizeBytes)), indexStats.Collection, indexStats.Model)
	for tag, count := range indexStats.Tags {
		fmt.Printf("  #%-11s %d\n", tag, count)
	}
	return 0
}

func handleExport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "export", "output directory")
	private := fs.Bool("private", false, "include private memories in the store export")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := open()
	if err != nil {
		return fail(err)
	}
	defer c.close()

	storePath := filepath.Join(*out, "memories.json")
	n, err := c.store.Export(ctx, storePath, *private)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("exported %d memories to %s\n", n, storePath)

	indexPath := filepath.Join(*out, "embeddings.json")
	n, err = c.index.Export(ctx, indexPath)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("exported %d index entries to %s\n", n, indexPath)
	return 0
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func printRecollections(recollections []memory.Recollection) {
	for _, rec := range recollections {
		marker := " "
		if !rec.Resolved {
			marker = "?"
		}
		fmt.Printf("%.3f %s %s  %s\n", rec.Similarity, marker, rec.MemoryID[:min(12, len(rec.MemoryID))], memory.Preview(rec.Memory.Content, 80))
	}
	if len(recollections) == 0 {
		fmt.Println("nothing recalled")
	}
}
