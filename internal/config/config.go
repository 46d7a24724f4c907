// Package config holds the on-disk configuration for a keepsake archive.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"keepsake/internal/fsutil"
)

const DefaultDir = ".keepsake"

type Config struct {
	Store     StoreConfig     `json:"store"`
	Index     IndexConfig     `json:"index"`
	Embedding EmbeddingConfig `json:"embedding"`
	Search    SearchConfig    `json:"search"`
}

type StoreConfig struct {
	Path    string `json:"path"`
	KeyFile string `json:"key_file"`
}

type IndexConfig struct {
	Path       string `json:"path"`
	Collection string `json:"collection"`
}

// EmbeddingConfig selects the embedding capability. Provider "hash" needs
// no credentials; "openai" targets any OpenAI-compatible endpoint.
type EmbeddingConfig struct {
	Provider       string `json:"provider"`
	Model          string `json:"model,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	APIKeyEnv      string `json:"api_key_env,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type SearchConfig struct {
	Limit     int     `json:"limit"`
	NResults  int     `json:"n_results"`
	Threshold float64 `json:"similarity_threshold"`
}

// Default returns the configuration rooted at baseDir.
func Default(baseDir string) Config {
	root := filepath.Join(baseDir, DefaultDir)
	return Config{
		Store: StoreConfig{
			Path:    filepath.Join(root, "memories.db"),
			KeyFile: filepath.Join(root, "memory.key"),
		},
		Index: IndexConfig{
			Path:       filepath.Join(root, "vectors.db"),
			Collection: "memories",
		},
		Embedding: EmbeddingConfig{
			Provider:       "hash",
			TimeoutSeconds: 30,
		},
		Search: SearchConfig{
			Limit:     50,
			NResults:  10,
			Threshold: 0.5,
		},
	}
}

func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.normalized(), nil
}

// LoadOrDefault reads the config at path, falling back to defaults rooted
// next to it when the file does not exist.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(filepath.Dir(filepath.Dir(path))), nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config atomically, keeping a .bak copy of the previous
// version when one exists.
func Save(path string, cfg Config) error {
	if old, err := os.ReadFile(path); err == nil {
		if err := fsutil.WriteFileAtomic(path+".bak", old, 0o600); err != nil {
			return fmt.Errorf("config: write backup: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg.normalized(), "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return fsutil.WriteFileAtomic(path, append(data, '\n'), 0o600)
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.Index.Collection) == "" {
		c.Index.Collection = "memories"
	}
	if strings.TrimSpace(c.Embedding.Provider) == "" {
		c.Embedding.Provider = "hash"
	}
	if c.Embedding.TimeoutSeconds <= 0 {
		c.Embedding.TimeoutSeconds = 30
	}
	if c.Search.Limit <= 0 {
		c.Search.Limit = 50
	}
	if c.Search.NResults <= 0 {
		c.Search.NResults = 10
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		c.Search.Threshold = 0.5
	}
	return c
}

// Validate reports problems a normalized config can still have.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("config: store path is required")
	}
	if strings.TrimSpace(c.Store.KeyFile) == "" {
		return errors.New("config: store key file is required")
	}
	if strings.TrimSpace(c.Index.Path) == "" {
		return errors.New("config: index path is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Embedding.Provider)) {
	case "hash":
	case "openai":
		if strings.TrimSpace(c.Embedding.BaseURL) == "" {
			return errors.New("config: embedding base_url is required for provider openai")
		}
		if strings.TrimSpace(c.Embedding.Model) == "" {
			return errors.New("config: embedding model is required for provider openai")
		}
	default:
		return fmt.Errorf("config: unsupported embedding provider: %s", c.Embedding.Provider)
	}
	return nil
}
