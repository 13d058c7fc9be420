// Package config provides configuration loading and structs for the bunken
// command line tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Library   LibraryConfig   `yaml:"library"`
	Search    SearchConfig    `yaml:"search"`
	Facets    FacetsConfig    `yaml:"facets"`
	Highlight HighlightConfig `yaml:"highlight"`
	History   HistoryConfig   `yaml:"history"`
}

// LibraryConfig holds the bibliography database path and attachment
// settings.
type LibraryConfig struct {
	DatabasePath     string   `yaml:"database_path"`
	AttachmentDirs   []string `yaml:"attachment_dirs"`
	Extensions       []string `yaml:"extensions"`
	IndexAttachments *bool    `yaml:"index_attachments"`
	MaxContentKB     int      `yaml:"max_content_kb"`
	WatchDebounceMS  int      `yaml:"watch_debounce_ms"`
}

// IndexAttachmentsOrDefault returns whether attachment text is extracted
// into the index; defaults to true when unset.
func (l *LibraryConfig) IndexAttachmentsOrDefault() bool {
	if l.IndexAttachments != nil {
		return *l.IndexAttachments
	}
	return true
}

// SearchConfig holds backend selection and ranking settings.
type SearchConfig struct {
	Backend       string             `yaml:"backend"` // "memory" or "bleve"
	DefaultLimit  int                `yaml:"default_limit"`
	MaxLimit      int                `yaml:"max_limit"`
	Ranker        string             `yaml:"ranker"` // "bm25" or "tfidf"
	BM25K1        float64            `yaml:"bm25_k1"`
	BM25B         float64            `yaml:"bm25_b"`
	RecencyBoost  bool               `yaml:"recency_boost"`
	RecencyDecay  float64            `yaml:"recency_decay"`
	FuzzyDistance int                `yaml:"fuzzy_distance"`
	FieldWeights  map[string]float64 `yaml:"field_weights"`
}

// FacetsConfig overrides the built-in facet configuration. Zero values keep
// the per-field defaults.
type FacetsConfig struct {
	Fields    []string `yaml:"fields"`
	MaxValues int      `yaml:"max_values"`
	MinCount  int      `yaml:"min_count"`
}

// HighlightConfig holds snippet and markup settings.
type HighlightConfig struct {
	SnippetLength int    `yaml:"snippet_length"`
	MaxPerField   int    `yaml:"max_per_field"`
	MaxSnippets   int    `yaml:"max_snippets"`
	Tag           string `yaml:"tag"`
}

// HistoryConfig holds search history persistence settings.
type HistoryConfig struct {
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Library.DatabasePath = expandPath(cfg.Library.DatabasePath, configDir)
	cfg.History.Path = expandPath(cfg.History.Path, configDir)
	for i := range cfg.Library.AttachmentDirs {
		cfg.Library.AttachmentDirs[i] = expandPath(cfg.Library.AttachmentDirs[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting attachment directory
// add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
