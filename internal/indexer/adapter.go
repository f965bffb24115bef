// Package indexer runs tracker adapters: it gives them a shared HTTP runtime
// (cookies, retries, redirects, pacing) and wraps their raw queries with
// caching, filtering and health tracking.
package indexer

import (
	"context"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/release"
)

// Adapter is the per-site part of an indexer. PerformQuery only fetches and
// parses; the caller handles cache, health and filtering.
type Adapter interface {
	PerformQuery(ctx context.Context, q Query) ([]release.Release, error)
}

// ConfigStatus is the result of ApplyConfiguration.
type ConfigStatus int

const (
	StatusCompleted ConfigStatus = iota
	StatusRequiresTesting
)

func (s ConfigStatus) String() string {
	if s == StatusRequiresTesting {
		return "requires testing"
	}
	return "completed"
}

// Configurable adapters validate new settings, typically by logging in.
type Configurable interface {
	ApplyConfiguration(ctx context.Context, cfg config.IndexerConfig) (ConfigStatus, error)
}

// Downloader adapters fetch .torrent payloads themselves.
type Downloader interface {
	Download(ctx context.Context, link string) ([]byte, error)
}

// Factory builds the adapter for one configured indexer.
type Factory func(rt *Runtime, cfg config.IndexerConfig) (Adapter, error)
