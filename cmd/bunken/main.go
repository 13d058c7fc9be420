// Package main is the bunken CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunken/internal/analysis"
	"github.com/hyperjump/bunken/internal/attach"
	"github.com/hyperjump/bunken/internal/cli"
	"github.com/hyperjump/bunken/internal/config"
	"github.com/hyperjump/bunken/internal/extract"
	"github.com/hyperjump/bunken/internal/facet"
	"github.com/hyperjump/bunken/internal/highlight"
	"github.com/hyperjump/bunken/internal/history"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/ranking"
	"github.com/hyperjump/bunken/internal/search"
	"github.com/hyperjump/bunken/internal/storage"
	"github.com/hyperjump/bunken/internal/watcher"
	"github.com/hyperjump/bunken/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bunken/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so "bunken search" from the project dir picks up the project's
// config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		// No config file at all is fine for a personal tool: run on defaults.
		if os.IsNotExist(err) || strings.Contains(err.Error(), "no such file") {
			cfg = &config.Config{}
			config.ApplyDefaults(cfg)
			if home, homeErr := os.UserHomeDir(); homeErr == nil {
				cfg.Library.DatabasePath = filepath.Join(home, cfg.Library.DatabasePath)
				cfg.History.Path = filepath.Join(home, cfg.History.Path)
			}
			return cfg, "", nil
		}
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "search":
		runSearch()
	case "similar":
		runSimilar()
	case "import":
		runImport()
	case "show":
		runShow()
	case "index":
		runIndex()
	case "locate":
		runLocate()
	case "status":
		runStatus()
	case "history":
		runHistory()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("bunken version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// buildQueryString joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildQueryString(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "bunken search query -limit 5"
// would otherwise leave -limit unparsed.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// facetFlags collects repeated -facet field=value selections.
type facetFlags struct {
	filters map[string][]string
}

func (f *facetFlags) String() string {
	if f == nil || len(f.filters) == 0 {
		return ""
	}
	var parts []string
	for field, values := range f.filters {
		for _, v := range values {
			parts = append(parts, field+"="+v)
		}
	}
	return strings.Join(parts, ",")
}

func (f *facetFlags) Set(value string) error {
	field, v, ok := strings.Cut(value, "=")
	if !ok || field == "" || v == "" {
		return fmt.Errorf("facet filter must be field=value, got %q", value)
	}
	if f.filters == nil {
		f.filters = make(map[string][]string)
	}
	f.filters[field] = append(f.filters[field], v)
	return nil
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: bunken search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Query syntax:
  machine learning                 terms (implicit AND)
  "exact phrase"                   phrase match
  author:knuth                     restrict a term to one field
  title:"art of programming"       fielded phrase
  year:2015..2020                  numeric range (also year:>=2015, year:<2000)
  optimiz*                         wildcard
  bayes~ or bayes~1                fuzzy (edit distance, default 2)
  neural NOT convolutional         negation
  sorting OR searching             explicit OR

Examples:
  bunken search distributed consensus
  bunken search 'author:lamport year:>=1990'
  bunken search -facet entry_type=article -facet year=2010-2019 paxos
  bunken search -sort date_desc -limit 5 byzantine
`)
}

func runSearch() {
	args := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 0, "number of results per page (default from config)")
	offset := fs.Int("offset", 0, "number of results to skip")
	sortFlag := fs.String("sort", "relevance", "sort order: relevance, date_asc, date_desc, title_asc, title_desc, author_asc, author_desc")
	minScore := fs.Float64("min-score", 0, "drop results scoring below this value")
	noHighlight := fs.Bool("no-highlight", false, "disable snippet highlighting")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	var facets facetFlags
	fs.Var(&facets, "facet", "facet filter as field=value; repeatable, AND across fields")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(args)

	queryStr := buildQueryString(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	sortBy, err := models.ParseSortOrder(*sortFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	components := mustInitialize(*configPath, *debug)
	defer components.Close()

	ctx := context.Background()
	if err := components.buildIndex(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}

	highlight := !*noHighlight
	request := models.SearchRequest{
		Query:     queryStr,
		Limit:     *limit,
		Offset:    *offset,
		SortBy:    sortBy,
		Filters:   facets.filters,
		Highlight: &highlight,
	}
	results, err := components.Engine.Search(ctx, request)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if *minScore > 0 {
		results = results.FilterByScore(*minScore)
	}

	if components.History != nil {
		if err := components.History.Record(queryStr, results.Total, time.Duration(results.Statistics.SearchTimeMS)*time.Millisecond); err != nil && *debug {
			fmt.Fprintf(os.Stderr, "history not recorded: %v\n", err)
		}
	}

	if err := cli.WriteSearchResults(os.Stdout, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runSimilar() {
	args := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 10, "number of similar entries")
	minScore := fs.Float64("min-score", 0, "drop entries scoring below this value")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunken similar [flags] <entry-key>")
		os.Exit(1)
	}
	key := fs.Arg(0)

	format := cli.OutputText
	if *outputFormat == "json" {
		format = cli.OutputJSON
	}

	components := mustInitialize(*configPath, *debug)
	defer components.Close()

	ctx := context.Background()
	if err := components.buildIndex(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}

	results, err := components.Engine.MoreLikeThis(ctx, key, *minScore, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Similar search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// importedEntry is the wire shape of one entry in an import file.
type importedEntry struct {
	Key    string            `json:"key"`
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields"`
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunken import [flags] <entries.json>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		os.Exit(1)
	}
	var imported []importedEntry
	if err := json.Unmarshal(data, &imported); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse %s: %v\n", path, err)
		os.Exit(1)
	}

	entries := make([]*models.Entry, 0, len(imported))
	for _, e := range imported {
		if strings.TrimSpace(e.Key) == "" {
			fmt.Fprintf(os.Stderr, "Skipping entry with empty key\n")
			continue
		}
		entries = append(entries, &models.Entry{Key: e.Key, Type: e.Type, Fields: e.Fields})
	}

	components := mustInitialize(*configPath, *debug)
	defer components.Close()

	ctx := context.Background()
	if err := components.Repo.PutBatch(ctx, entries); err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d entries from %s\n", len(entries), path)
}

func runShow() {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunken show [flags] <entry-key>")
		os.Exit(1)
	}
	key := fs.Arg(0)

	components := mustInitialize(*configPath, *debug)
	defer components.Close()

	entry, err := components.Repo.Find(context.Background(), key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lookup failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entry); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	components := mustInitialize(*configPath, *debug)
	defer components.Close()

	start := time.Now()
	report, err := components.Service.IndexAll(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d entries in %dms\n", report.Processed, time.Since(start).Milliseconds())
	for _, key := range report.FailedKeys() {
		fmt.Printf("  failed: %s: %v\n", key, report.Failed[key])
	}
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

func runLocate() {
	fs := flag.NewFlagSet("locate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	useRegex := fs.Bool("regex", false, "treat the pattern as a regular expression")
	orphans := fs.Bool("orphans", false, "list PDF files no entry links to")
	verify := fs.Bool("verify", false, "list linked attachments missing from disk")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	components := mustInitialize(*configPath, *debug)
	defer components.Close()

	entries, err := components.Repo.All(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load entries: %v\n", err)
		os.Exit(1)
	}
	locator := attach.NewLocator(components.Config.Library.AttachmentDirs)

	switch {
	case *orphans:
		files, err := locator.Orphaned(entries)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Orphan scan failed: %v\n", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
		fmt.Printf("%d orphaned file(s)\n", len(files))
	case *verify:
		existing, missing := locator.Verify(entries)
		for _, m := range missing {
			fmt.Printf("missing: %s (%s)\n", m.Path, m.EntryKey)
		}
		fmt.Printf("%d attachment(s) present, %d missing\n", len(existing), len(missing))
		if len(missing) > 0 {
			os.Exit(1)
		}
	default:
		if fs.NArg() < 1 {
			fmt.Println("Usage: bunken locate [flags] <pattern>")
			os.Exit(1)
		}
		result, err := locator.Locate(fs.Arg(0), entries, attach.Options{Regex: *useRegex})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Locate failed: %v\n", err)
			os.Exit(1)
		}
		for _, m := range result.Matches {
			marker := " "
			if !m.Exists {
				marker = "!"
			}
			fmt.Printf("%s %s  %s\n", marker, m.EntryKey, m.Path)
		}
		fmt.Printf("%d match(es), %d missing\n", result.TotalFound, result.MissingCount)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	components := mustInitialize(*configPath, *debug)
	defer components.Close()

	ctx := context.Background()
	if err := components.buildIndex(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	stats, err := components.Service.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	entries, err := components.Repo.All(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load entries: %v\n", err)
		os.Exit(1)
	}
	attachStats := attach.NewLocator(components.Config.Library.AttachmentDirs).Statistics(entries)

	switch *outputFormat {
	case "json":
		out := struct {
			search.ServiceStats
			Attachments attach.Statistics `json:"attachments"`
		}{stats, attachStats}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("entries:         %d\n", stats.Entries)
		fmt.Printf("indexed_docs:    %d\n", stats.IndexedDocs)
		fmt.Printf("indexed_terms:   %d\n", stats.IndexedTerms)
		fmt.Printf("backend:         %s\n", stats.Backend)
		fmt.Println()
		fmt.Printf("attachments:     %d linked, %d missing\n", attachStats.TotalFiles, attachStats.MissingFiles)
		if attachStats.ExistingFiles > 0 {
			fmt.Printf("attachment_size: %d bytes total, %.0f avg\n", attachStats.TotalSizeBytes, attachStats.AverageSizeBytes())
		}
		if attachStats.BaseDirBytes > 0 {
			fmt.Printf("attachment_dirs: %d bytes on disk\n", attachStats.BaseDirBytes)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runHistory() {
	if len(os.Args) < 3 {
		printHistoryUsage()
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 10, "number of entries to show")
	olderThan := fs.Duration("older-than", 0, "with clear: only remove entries older than this (e.g. 720h)")
	_ = fs.Parse(os.Args[3:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	hist, err := history.New(cfg.History.Path, history.WithMaxEntries(cfg.History.MaxEntries))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history: %v\n", err)
		os.Exit(1)
	}

	switch sub {
	case "recent":
		for _, e := range hist.Recent(*limit) {
			fmt.Printf("%s  %-40q %d results, %dms\n",
				e.Timestamp.Format("2006-01-02 15:04"), e.Query, e.ResultCount, e.SearchTimeMS)
		}
	case "popular":
		for _, qc := range hist.Popular(*limit) {
			fmt.Printf("%4d  %s\n", qc.Count, qc.Query)
		}
	case "clear":
		if *olderThan > 0 {
			removed, err := hist.ClearOlderThan(*olderThan)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Removed %d entries\n", removed)
			return
		}
		if err := hist.Clear(); err != nil {
			fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("History cleared")
	case "save":
		if fs.NArg() < 2 {
			fmt.Println("Usage: bunken history save <name> <query...>")
			os.Exit(1)
		}
		name := fs.Arg(0)
		query := buildQueryString(fs.Args()[1:])
		if _, err := hist.SaveSearch(name, query, ""); err != nil {
			fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved %q as %s\n", query, name)
	case "list":
		for _, s := range hist.ListSaved() {
			fmt.Printf("%-20s %q (used %d times)\n", s.Name, s.Query, s.UseCount)
		}
	case "delete":
		if fs.NArg() < 1 {
			fmt.Println("Usage: bunken history delete <name>")
			os.Exit(1)
		}
		existed, err := hist.DeleteSaved(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		if !existed {
			fmt.Printf("No saved search named %q\n", fs.Arg(0))
			os.Exit(1)
		}
		fmt.Println("Deleted")
	case "stats":
		s := hist.Statistics()
		fmt.Printf("searches:        %d (%d unique queries)\n", s.TotalSearches, s.UniqueQueries)
		fmt.Printf("avg_time:        %.1fms\n", s.AvgSearchTimeMS)
		fmt.Printf("avg_results:     %.1f\n", s.AvgResultCount)
		fmt.Printf("saved_searches:  %d\n", s.SavedSearches)
	default:
		fmt.Printf("Unknown history subcommand: %s\n", sub)
		printHistoryUsage()
		os.Exit(1)
	}
}

func printHistoryUsage() {
	fmt.Println(`Usage: bunken history <subcommand> [flags]
  bunken history recent [-limit N]       Show recent searches
  bunken history popular [-limit N]      Show most frequent queries
  bunken history clear [-older-than D]   Clear history (optionally only old entries)
  bunken history save <name> <query>     Save a named search
  bunken history list                    List saved searches
  bunken history delete <name>           Delete a saved search
  bunken history stats                   Show history statistics`)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	components := mustInitialize(*configPath, *debug)
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := components.buildIndex(ctx); err != nil {
		components.Logger.Fatal("initial indexing failed", zap.Error(err))
	}

	cfg := components.Config
	extractor := extract.NewExtractor(extract.WithMaxContentBytes(cfg.Library.MaxContentKB * 1024))
	sync := newAttachmentSync(components, extractor)

	watchOpts := []watcher.Option{
		watcher.WithDebounce(time.Duration(cfg.Library.WatchDebounceMS) * time.Millisecond),
		watcher.WithExtensions(cfg.Library.Extensions),
	}
	if *debug || cfg.Debug {
		watchOpts = append(watchOpts, watcher.WithLogger(components.Logger))
	}
	w := watcher.NewWatcher(
		cfg.Library.DatabasePath,
		cfg.Library.AttachmentDirs,
		func() {
			if _, err := components.Service.IndexAll(ctx); err != nil {
				components.Logger.Warn("reindex after library change failed", zap.Error(err))
			}
			sync.refresh(ctx)
		},
		func(path string) { sync.changed(ctx, path) },
		func(path string) { sync.removed(ctx, path) },
		watchOpts...,
	)
	if err := w.Start(ctx); err != nil {
		components.Logger.Fatal("failed to start watcher", zap.Error(err))
	}
	defer w.Stop()
	sync.refresh(ctx)
	if cfg.Library.IndexAttachmentsOrDefault() {
		w.SyncExisting()
	}

	go components.Service.LogStatsPeriodically(ctx, 10*time.Minute)

	components.Logger.Info("watching library",
		zap.String("database", cfg.Library.DatabasePath),
		zap.Strings("attachment_dirs", cfg.Library.AttachmentDirs))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	components.Logger.Info("shutting down")
}

// attachmentSync reacts to attachment file events by re-extracting text into
// the owning entry's content field and reindexing it.
type attachmentSync struct {
	components *Components
	extractor  *extract.Extractor
	keysByPath map[string]string
}

func newAttachmentSync(components *Components, extractor *extract.Extractor) *attachmentSync {
	return &attachmentSync{
		components: components,
		extractor:  extractor,
		keysByPath: make(map[string]string),
	}
}

// refresh rebuilds the attachment path to entry key mapping from the
// repository.
func (s *attachmentSync) refresh(ctx context.Context) {
	entries, err := s.components.Repo.All(ctx)
	if err != nil {
		s.components.Logger.Warn("failed to load entries for attachment sync", zap.Error(err))
		return
	}
	keys := make(map[string]string, len(entries))
	for _, entry := range entries {
		if path := entry.AttachmentPath(); path != "" {
			keys[filepath.Clean(path)] = entry.Key
		}
	}
	s.keysByPath = keys
}

func (s *attachmentSync) changed(ctx context.Context, path string) {
	key, ok := s.keysByPath[filepath.Clean(path)]
	if !ok {
		return
	}
	if !s.components.Config.Library.IndexAttachmentsOrDefault() {
		return
	}
	text, err := s.extractor.Extract(path)
	if err != nil {
		s.components.Logger.Warn("attachment extraction failed",
			zap.String("path", path), zap.Error(err))
		return
	}
	s.setContent(ctx, key, text)
}

func (s *attachmentSync) removed(ctx context.Context, path string) {
	key, ok := s.keysByPath[filepath.Clean(path)]
	if !ok {
		return
	}
	s.setContent(ctx, key, "")
}

func (s *attachmentSync) setContent(ctx context.Context, key, text string) {
	entry, err := s.components.Repo.Find(ctx, key)
	if err != nil {
		s.components.Logger.Warn("entry lookup failed during attachment sync",
			zap.String("key", key), zap.Error(err))
		return
	}
	if entry.Fields == nil {
		entry.Fields = make(map[string]string)
	}
	if text == "" {
		delete(entry.Fields, "content")
	} else {
		entry.Fields["content"] = text
	}
	if err := s.components.Repo.Put(ctx, entry); err != nil {
		s.components.Logger.Warn("entry update failed during attachment sync",
			zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.components.Service.OnEntryChanged(ctx, key); err != nil {
		s.components.Logger.Warn("reindex failed during attachment sync",
			zap.String("key", key), zap.Error(err))
	}
}

// Components holds initialized services.
type Components struct {
	Config  *config.Config
	Logger  *zap.Logger
	Repo    storage.EntryRepository
	Backend search.Backend
	Engine  *search.Engine
	Service *search.Service
	History *history.History

	indexed bool
}

func (c *Components) Close() {
	if c.Backend != nil {
		_ = c.Backend.Close()
	}
	if c.Repo != nil {
		_ = c.Repo.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

// buildIndex populates the in-process index from the repository once per
// invocation.
func (c *Components) buildIndex(ctx context.Context) error {
	if c.indexed {
		return nil
	}
	if _, err := c.Service.IndexAll(ctx); err != nil {
		return err
	}
	c.indexed = true
	return nil
}

func mustInitialize(configPath string, debug bool) *Components {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	return components
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	repo, err := storage.NewSQLiteRepository(cfg.Library.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open library database: %w", err)
	}

	schema := analysis.NewSchema()
	var backend search.Backend
	switch cfg.Search.Backend {
	case "bleve":
		backend, err = search.NewBleveBackend(schema)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to create bleve backend: %w", err)
		}
	case "", "memory":
		backend = search.NewMemoryBackend(schema, analysis.NewManager())
	default:
		_ = repo.Close()
		return nil, fmt.Errorf("unknown search backend %q (use memory or bleve)", cfg.Search.Backend)
	}

	engineOpts := []search.EngineOption{
		search.WithRanker(rankerFromConfig(&cfg.Search)),
		search.WithFacetConfig(facetConfigFromSettings(&cfg.Facets)),
		search.WithHighlighter(highlighterFromConfig(&cfg.Highlight)),
	}
	if debug {
		engineOpts = append(engineOpts, search.WithLogger(logger))
	}
	engine, err := search.NewEngine(backend, repo, engineOpts...)
	if err != nil {
		_ = backend.Close()
		_ = repo.Close()
		return nil, fmt.Errorf("failed to create search engine: %w", err)
	}

	var svcLogger *zap.Logger
	if debug {
		svcLogger = logger
	}
	service := search.NewService(repo, backend, engine, svcLogger)

	// History is best-effort; a read-only home directory should not block
	// searching.
	var hist *history.History
	if h, err := history.New(cfg.History.Path, history.WithMaxEntries(cfg.History.MaxEntries), history.WithLogger(logger)); err == nil {
		hist = h
	} else if debug {
		logger.Warn("search history disabled", zap.Error(err))
	}

	return &Components{
		Config:  cfg,
		Logger:  logger,
		Repo:    repo,
		Backend: backend,
		Engine:  engine,
		Service: service,
		History: hist,
	}, nil
}

// rankerFromConfig builds the ranking algorithm selected by the search
// configuration.
func rankerFromConfig(cfg *config.SearchConfig) ranking.Algorithm {
	weights := ranking.NewFieldWeights(cfg.FieldWeights)

	var base ranking.Algorithm
	switch cfg.Ranker {
	case "tfidf":
		base = ranking.NewTFIDF(weights)
	default:
		base = ranking.NewBM25(&ranking.BM25Params{K1: cfg.BM25K1, B: cfg.BM25B}, weights)
	}
	if cfg.RecencyBoost {
		return ranking.NewRecency(base, cfg.RecencyDecay, time.Now())
	}
	return base
}

// facetConfigFromSettings narrows and tunes the default facet configuration.
// Named fields keep their built-in kind (ranges for year, terms elsewhere);
// fields without a built-in configuration facet as plain terms.
func facetConfigFromSettings(cfg *config.FacetsConfig) *facet.Config {
	defaults := facet.DefaultConfig()
	if len(cfg.Fields) == 0 && cfg.MaxValues == 0 && cfg.MinCount == 0 {
		return defaults
	}

	fields := cfg.Fields
	if len(fields) == 0 {
		fields = defaults.Fields()
	}
	out := facet.NewConfig()
	for _, field := range fields {
		fc, ok := defaults.Field(field)
		if !ok {
			fc = facet.FieldConfig{Kind: models.FacetTerms, Size: 10}
		}
		if cfg.MaxValues > 0 && fc.Kind == models.FacetTerms {
			fc.Size = cfg.MaxValues
		}
		if cfg.MinCount > 0 && fc.Kind == models.FacetTerms {
			fc.MinCount = cfg.MinCount
		}
		out.Set(field, fc)
	}
	return out
}

// highlighterFromConfig builds the highlighter with the configured snippet
// settings.
func highlighterFromConfig(cfg *config.HighlightConfig) *highlight.Highlighter {
	return highlight.New(&highlight.Options{
		MaxPerField:   cfg.MaxPerField,
		MaxSnippets:   cfg.MaxSnippets,
		SnippetLength: cfg.SnippetLength,
		Tag:           cfg.Tag,
	})
}

func printUsage() {
	fmt.Println(`bunken - Full-text search for your bibliography

Usage:
  bunken search [flags] <query>    Search the library
  bunken similar [flags] <key>     Find entries similar to one entry
  bunken import [flags] <file>     Import entries from a JSON file
  bunken show [flags] <key>        Print one entry
  bunken index [flags]             Rebuild the index and report failures
  bunken locate [flags] <pattern>  Find attachment files
  bunken status [flags]            Show library and index statistics
  bunken history <subcommand>      Search history and saved searches
  bunken watch [flags]             Keep the index in sync with the library
  bunken version                   Show version
  bunken help                      Show this help

Common flags:
  --config string    Config file path (default: /usr/local/etc/bunken/config.yaml,
                     falling back to ./config.yaml, then to built-in defaults)
  --debug            Enable debug logging

Examples:
  bunken import library.json
  bunken search 'author:knuth sorting'
  bunken search -facet entry_type=article -sort date_desc "neural networks"
  bunken similar knuth1973
  bunken locate -orphans
  bunken history popular`)
}
