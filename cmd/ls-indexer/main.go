// ls-indexer searches torrent trackers from the terminal. Each configured
// tracker is an indexer with its own cookies, retries and health record; a
// search fans out to all of them and merges the results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/litescript/ls-indexer/internal/cache"
	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/indexer/definition"
	"github.com/litescript/ls-indexer/internal/indexer/generic"
	"github.com/litescript/ls-indexer/internal/logger"
	"github.com/litescript/ls-indexer/internal/metrics"
	"github.com/litescript/ls-indexer/internal/qbit"
	"github.com/litescript/ls-indexer/internal/tui"
	"github.com/litescript/ls-indexer/internal/version"
	"github.com/litescript/ls-indexer/internal/webclient"
)

type options struct {
	version     bool
	configPath  string
	query       string
	categories  string
	limit       int
	test        bool
	importINI   string
	metricsAddr string
	downloadDir string
	noUpdate    bool
}

func parseFlags() options {
	var o options
	flag.BoolVar(&o.version, "version", false, "print the version and exit")
	flag.StringVar(&o.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	flag.StringVar(&o.query, "query", "", "search once, print the results and exit")
	flag.StringVar(&o.categories, "categories", "", "comma separated category ids or names for --query")
	flag.IntVar(&o.limit, "limit", 50, "maximum results for --query")
	flag.BoolVar(&o.test, "test", false, "apply every indexer's configuration, report and exit")
	flag.StringVar(&o.importINI, "import-ini", "", "merge indexers from an INI file into the config and exit")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flag.StringVar(&o.downloadDir, "download-dir", ".", "where the TUI saves .torrent and .magnet files")
	flag.BoolVar(&o.noUpdate, "no-update-check", false, "skip the startup update check")
	flag.Parse()
	return o
}

func main() {
	os.Exit(run(parseFlags()))
}

func run(o options) int {
	if o.version {
		fmt.Printf("ls-indexer v%s\n", version.Version)
		return 0
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	path := o.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if o.importINI != "" {
		return importIndexers(path, cfg, o.importINI)
	}

	// The store mirrors the file; overrides only reach the live copy.
	store := config.NewStore(path, cfg)
	config.ApplyEnv(&cfg)

	// The TUI owns the terminal, so it logs to the configured file only.
	logOpts := logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	interactive := o.query == "" && !o.test
	if interactive {
		logOpts.File = cfg.Log.File
	}
	closer, err := logger.Init(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closer.Close()
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()
	if addr := firstNonEmpty(o.metricsAddr, cfg.Metrics.Addr); addr != "" {
		srv := serveMetrics(addr, collector, log)
		defer srv.Close()
	}

	results := openCache(cfg, log)
	defer results.Close()

	exec := webclient.NewHTTPExecutor(webclient.Options{
		Timeout:      cfg.HTTP.Timeout.Or(30 * time.Second),
		UserAgent:    cfg.HTTP.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})

	registry := indexer.NewRegistry(indexer.RuntimeOptions{
		Executor: exec,
		Cache:    results,
		Metrics:  collector,
		Cookies:  store,
		Logger:   logger.WithComponent("indexer"),
	})
	registry.Register(config.TypeGeneric, generic.Factory)
	registry.Register(config.TypeDefinition, definition.Factory)

	if err := registry.Sync(cfg); err != nil {
		log.Warn().Err(err).Msg("Some indexers could not be loaded")
		if !interactive {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	log.Info().Int("indexers", len(registry.All())).Str("config", path).Msg("Indexers loaded")

	switch {
	case o.test:
		return testIndexers(ctx, registry)
	case o.query != "":
		q, err := buildQuery(o.query, o.categories, o.limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
		res := registry.Aggregator(indexer.AggregatorOptions{}).Search(ctx, q)
		printResults(os.Stdout, res)
		if len(res.Releases) == 0 && len(res.Errors) > 0 {
			return 1
		}
		return 0
	}

	watcher, err := config.NewWatcher(path, func(next config.Config) {
		store.Replace(next)
		config.ApplyEnv(&next)
		if err := registry.Sync(next); err != nil {
			log.Warn().Err(err).Msg("Some indexers could not be reloaded")
		}
	}, logger.WithComponent("config"))
	if err != nil {
		log.Warn().Err(err).Msg("Config hot reload disabled")
	} else {
		defer watcher.Stop()
	}

	if err := os.MkdirAll(o.downloadDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create download dir: %v\n", err)
	}

	tuiOpts := tui.Options{
		Backend: tui.RegistryBackend{
			Registry: registry,
			Options:  indexer.AggregatorOptions{SkipFailing: true},
		},
		DownloadDir: o.downloadDir,
		Palette:     tui.DetectPalette(),
		Logger:      logger.WithComponent("tui"),
	}
	if cfg.Client.URL != "" {
		tuiOpts.Client = qbit.NewClient(qbit.Options{
			URL:      cfg.Client.URL,
			Username: cfg.Client.Username,
			Password: cfg.Client.Password,
			SavePath: cfg.Client.SavePath,
			Category: cfg.Client.Category,
			Retries:  config.DefaultRetryCount,
		}, exec, logger.WithComponent("qbittorrent"))
	}
	if !o.noUpdate {
		tuiOpts.CheckUpdate = func(ctx context.Context) version.UpdateInfo {
			return version.CheckForUpdate(ctx, exec)
		}
	}

	p := tea.NewProgram(tui.NewModel(tuiOpts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func serveMetrics(addr string, c *metrics.Collector, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}

// openCache falls back to memory only when the persistent store can't open.
func openCache(cfg config.Config, log zerolog.Logger) *cache.ResultCache {
	ttl := cfg.Cache.TTL.Or(cache.DefaultTTL)
	opts := cache.Options{TTL: ttl}
	if cfg.Cache.Persist {
		store, err := cache.OpenLevelStore(cfg.Cache.Path, ttl)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("Persistent cache unavailable")
		} else {
			opts.Store = store
		}
	}
	return cache.New(opts)
}

func importIndexers(path string, cfg config.Config, iniPath string) int {
	imported, err := config.ImportINI(iniPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	ids := cfg.Merge(imported)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Imported %d indexers into %s: %v\n", len(ids), path, ids)
	return 0
}
