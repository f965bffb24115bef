// Package config handles application configuration via TOML files.
// Configuration is stored at ~/.config/ls-indexer/config.toml and includes
// logging, cache and metrics settings plus one entry per configured indexer.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Indexer types understood by the registry.
const (
	TypeGeneric    = "generic"
	TypeDefinition = "definition"
)

// DefaultRetryCount is used when an indexer does not set retries.
const DefaultRetryCount = 2

// Config holds application configuration
type Config struct {
	Log      LogConfig       `toml:"log"`
	Cache    CacheConfig     `toml:"cache"`
	Metrics  MetricsConfig   `toml:"metrics"`
	HTTP     HTTPConfig      `toml:"http"`
	Client   ClientConfig    `toml:"qbittorrent"`
	Indexers []IndexerConfig `toml:"indexers"`

	// Sources is the old flat list of site URLs. Load converts every entry
	// into a generic indexer and clears it.
	Sources []SourceConfig `toml:"sources,omitempty"`
}

// SourceConfig holds a legacy torrent source
type SourceConfig struct {
	Name    string `toml:"name"`
	URL     string `toml:"url"`
	Enabled bool   `toml:"enabled"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File receives logs while the TUI owns the terminal.
	File string `toml:"file"`
}

// CacheConfig holds result cache settings
type CacheConfig struct {
	TTL Duration `toml:"ttl"`
	// Persist keeps results in a goleveldb database under Path.
	Persist bool   `toml:"persist"`
	Path    string `toml:"path"`
}

// MetricsConfig holds the Prometheus endpoint
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// HTTPConfig holds shared HTTP client settings
type HTTPConfig struct {
	Timeout      Duration `toml:"timeout"`
	UserAgent    string   `toml:"user_agent"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
}

// ClientConfig holds the qBittorrent connection. An empty URL disables
// sending releases to it.
type ClientConfig struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	SavePath string `toml:"save_path,omitempty"`
	Category string `toml:"category,omitempty"`
}

// IndexerConfig holds the settings of one indexer
type IndexerConfig struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Type    string `toml:"type"`
	URL     string `toml:"url"`
	Enabled bool   `toml:"enabled"`

	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	// Cookie is the last resolved cookie header. It is rewritten by the
	// indexer whenever the site hands out new cookies.
	Cookie string `toml:"cookie,omitempty"`

	RetryCount   *int     `toml:"retries,omitempty"`
	RequestDelay Duration `toml:"request_delay,omitempty"`
	QueryTimeout Duration `toml:"query_timeout,omitempty"`

	// Definition is the YAML file describing a definition indexer.
	Definition string `toml:"definition,omitempty"`
	// Encoding overrides the page charset, e.g. "windows-1251".
	Encoding string `toml:"encoding,omitempty"`

	Extra map[string]string `toml:"extra,omitempty"`
}

// Retries returns the configured retry count or DefaultRetryCount.
func (ic IndexerConfig) Retries() int {
	if ic.RetryCount == nil {
		return DefaultRetryCount
	}
	return *ic.RetryCount
}

// DisplayName falls back to the id.
func (ic IndexerConfig) DisplayName() string {
	if ic.Name != "" {
		return ic.Name
	}
	return ic.ID
}

// Clone returns a copy that shares no maps or pointers with ic.
func (ic IndexerConfig) Clone() IndexerConfig {
	out := ic
	if ic.RetryCount != nil {
		n := *ic.RetryCount
		out.RetryCount = &n
	}
	if ic.Extra != nil {
		out.Extra = make(map[string]string, len(ic.Extra))
		for k, v := range ic.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Redacted masks credentials so the config can travel inside errors.
func (ic IndexerConfig) Redacted() IndexerConfig {
	out := ic.Clone()
	if out.Password != "" {
		out.Password = "********"
	}
	if out.Cookie != "" {
		out.Cookie = "<redacted>"
	}
	return out
}

// Clone deep copies the config.
func (c Config) Clone() Config {
	out := c
	out.Indexers = make([]IndexerConfig, len(c.Indexers))
	for i, ic := range c.Indexers {
		out.Indexers[i] = ic.Clone()
	}
	out.Sources = append([]SourceConfig(nil), c.Sources...)
	return out
}

// Indexer returns the entry with id.
func (c Config) Indexer(id string) (IndexerConfig, bool) {
	for _, ic := range c.Indexers {
		if ic.ID == id {
			return ic.Clone(), true
		}
	}
	return IndexerConfig{}, false
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			File:   filepath.Join(stateDir(), "ls-indexer.log"),
		},
		Cache: CacheConfig{
			TTL:  DurationFrom(9 * time.Minute),
			Path: filepath.Join(stateDir(), "results"),
		},
		HTTP: HTTPConfig{
			Timeout:      DurationFrom(30 * time.Second),
			MaxBodyBytes: 16 << 20,
		},
		// Indexers: nil - users add their own in config.toml
	}
}

func stateDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "ls-indexer")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ls-indexer", "config.toml")
}

// Load reads config from disk or returns defaults when the file is missing.
// An empty path means ConfigPath().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.migrateSources()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes config to disk
func Save(path string, cfg Config) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Write to a temp file first so a crash never leaves half a config.
	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var nonIDChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a display name into an indexer id.
func Slug(name string) string {
	return strings.Trim(nonIDChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func (c *Config) migrateSources() {
	for _, src := range c.Sources {
		id := Slug(src.Name)
		if id == "" {
			id = Slug(src.URL)
		}
		if _, exists := c.Indexer(id); exists {
			continue
		}
		c.Indexers = append(c.Indexers, IndexerConfig{
			ID:      id,
			Name:    src.Name,
			Type:    TypeGeneric,
			URL:     src.URL,
			Enabled: src.Enabled,
		})
	}
	c.Sources = nil
}

// Validate checks ids, types, URLs and retry counts.
func (c Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)

	for i, ic := range c.Indexers {
		label := ic.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		switch {
		case ic.ID == "":
			errs = append(errs, fmt.Errorf("indexer %s: id is required", label))
		case seen[ic.ID]:
			errs = append(errs, fmt.Errorf("indexer %s: duplicate id", label))
		}
		seen[ic.ID] = true

		switch ic.Type {
		case TypeGeneric, "":
		case TypeDefinition:
			if ic.Definition == "" {
				errs = append(errs, fmt.Errorf("indexer %s: definition path is required", label))
			}
		default:
			errs = append(errs, fmt.Errorf("indexer %s: unknown type %q", label, ic.Type))
		}

		if ic.Type != TypeDefinition || ic.URL != "" {
			if u, err := url.Parse(ic.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
				errs = append(errs, fmt.Errorf("indexer %s: invalid url %q", label, ic.URL))
			}
		}

		if ic.RetryCount != nil && *ic.RetryCount < 0 {
			errs = append(errs, fmt.Errorf("indexer %s: retries must not be negative", label))
		}
		if ic.RequestDelay.Duration < 0 || ic.QueryTimeout.Duration < 0 {
			errs = append(errs, fmt.Errorf("indexer %s: durations must not be negative", label))
		}
	}

	return errors.Join(errs...)
}
