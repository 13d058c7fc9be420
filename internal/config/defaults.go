package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Library.DatabasePath == "" {
		cfg.Library.DatabasePath = ".local/share/bunken/library.db"
	}
	if cfg.Library.Extensions == nil {
		cfg.Library.Extensions = []string{".pdf", ".docx", ".xlsx", ".txt", ".md"}
	}
	if cfg.Library.MaxContentKB == 0 {
		cfg.Library.MaxContentKB = 1024
	}
	if cfg.Library.WatchDebounceMS == 0 {
		cfg.Library.WatchDebounceMS = 400
	}
	if cfg.Search.Backend == "" {
		cfg.Search.Backend = "memory"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.Ranker == "" {
		cfg.Search.Ranker = "bm25"
	}
	if cfg.Search.BM25K1 == 0 {
		cfg.Search.BM25K1 = 1.2
	}
	if cfg.Search.BM25B == 0 {
		cfg.Search.BM25B = 0.75
	}
	if cfg.Search.RecencyDecay == 0 {
		cfg.Search.RecencyDecay = 0.1
	}
	if cfg.Search.FuzzyDistance == 0 {
		cfg.Search.FuzzyDistance = 2
	}
	if cfg.Highlight.SnippetLength == 0 {
		cfg.Highlight.SnippetLength = 200
	}
	if cfg.Highlight.MaxPerField == 0 {
		cfg.Highlight.MaxPerField = 3
	}
	if cfg.Highlight.MaxSnippets == 0 {
		cfg.Highlight.MaxSnippets = 1
	}
	if cfg.Highlight.Tag == "" {
		cfg.Highlight.Tag = "mark"
	}
	if cfg.History.Path == "" {
		cfg.History.Path = ".cache/bunken/history"
	}
	if cfg.History.MaxEntries == 0 {
		cfg.History.MaxEntries = 1000
	}
}
