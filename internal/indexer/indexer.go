package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/health"
	"github.com/litescript/ls-indexer/internal/metrics"
	"github.com/litescript/ls-indexer/internal/release"
)

// Indexer pairs an adapter with its runtime.
type Indexer struct {
	adapter Adapter
	rt      *Runtime
}

// New wraps adapter. rt must be the runtime the adapter was built with.
func New(adapter Adapter, rt *Runtime) *Indexer {
	return &Indexer{adapter: adapter, rt: rt}
}

func (ix *Indexer) ID() string { return ix.rt.ID() }

func (ix *Indexer) Name() string { return ix.rt.Config().DisplayName() }

func (ix *Indexer) Runtime() *Runtime { return ix.rt }

func (ix *Indexer) Adapter() Adapter { return ix.adapter }

// IsHealthy reports a recent successful query.
func (ix *Indexer) IsHealthy() bool { return ix.rt.health.IsHealthy() }

// IsFailing reports recent failed queries.
func (ix *Indexer) IsFailing() bool { return ix.rt.health.IsFailing() }

func (ix *Indexer) Status() health.Status { return ix.rt.health.Status() }

func (ix *Indexer) HealthSnapshot() health.Snapshot { return ix.rt.health.Snapshot() }

// cacheKey ignores paging: offset and limit are applied after the cache.
func cacheKey(q Query) string {
	q.Limit, q.Offset = 0, 0
	return q.Fingerprint()
}

// ResultsForQuery answers q from the cache when possible, otherwise runs
// the adapter under the query timeout, records health and caches the raw
// results. Category filtering and paging are applied on both paths.
func (ix *Indexer) ResultsForQuery(ctx context.Context, q Query) ([]release.Release, error) {
	rt := ix.rt
	id := rt.ID()
	key := cacheKey(q)

	if rt.cache != nil {
		cached, ok := rt.cache.Search(id, key)
		rt.metrics.CacheLookup(ok)
		if ok {
			out := filterResults(cached, q)
			rt.metrics.QueryFinished(id, metrics.OutcomeCached, 0, len(out))
			rt.logger.Debug().Int("results", len(out)).Msg("Serving cached results")
			return out, nil
		}
	}

	logger := rt.logger.With().Str("query_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, rt.Config().QueryTimeout.Or(DefaultQueryTimeout))
	defer cancel()

	start := time.Now()
	results, err := ix.adapter.PerformQuery(ctx, q)
	took := time.Since(start)
	if err != nil {
		rt.recordFailure(err)
		rt.metrics.QueryFinished(id, outcome(err), took, 0)
		logger.Error().Err(err).Dur("took", took).Str("term", q.SearchTerm).Msg("Query failed")

		var qe *QueryError
		if errors.As(err, &qe) {
			return nil, err
		}
		return nil, &QueryError{Indexer: id, Err: err}
	}

	for i := range results {
		results[i].Normalize(id)
	}

	if rt.cache != nil {
		if err := rt.cache.CacheResults(id, key, results); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache results")
		}
	}
	rt.recordSuccess()

	out := filterResults(results, q)
	rt.metrics.QueryFinished(id, metrics.OutcomeSuccess, took, len(out))
	logger.Info().
		Int("results", len(out)).
		Int("raw", len(results)).
		Dur("took", took).
		Msg("Query completed")
	return out, nil
}

// filterResults keeps releases in the requested categories, then applies
// offset and limit.
func filterResults(in []release.Release, q Query) []release.Release {
	out := make([]release.Release, 0, len(in))
	for _, r := range in {
		if r.MatchesCategories(q.Categories) {
			out = append(out, r)
		}
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []release.Release{}
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// ApplyConfiguration validates and installs new settings. Adapters that log
// in do so here; their failures come back as *ConfigurationIssue.
func (ix *Indexer) ApplyConfiguration(ctx context.Context, cfg config.IndexerConfig) (ConfigStatus, error) {
	cfg.ID = ix.ID()
	previous := ix.rt.Config()
	ix.rt.Reconfigure(cfg)

	status := StatusCompleted
	if c, ok := ix.adapter.(Configurable); ok {
		var err error
		status, err = c.ApplyConfiguration(ctx, cfg)
		if err != nil {
			ix.rt.restore(previous)
			var issue *ConfigurationIssue
			if !errors.As(err, &issue) {
				err = NewConfigurationIssue(cfg, err)
			}
			ix.rt.logger.Warn().Err(err).Msg("Configuration rejected")
			return status, err
		}
	}

	if previous.URL != cfg.URL && ix.rt.cache != nil {
		_, _ = ix.rt.cache.Invalidate(ix.ID())
	}

	if saver, ok := ix.rt.persister.(ConfigSaver); ok {
		current := ix.rt.Config()
		if err := saver.UpdateIndexer(current); err != nil {
			return status, err
		}
	}
	return status, nil
}

// Reconfigure applies settings reloaded from disk without running the
// adapter's login flow.
func (ix *Indexer) Reconfigure(cfg config.IndexerConfig) {
	previous := ix.rt.Config()
	ix.rt.Reconfigure(cfg)
	if previous.URL != cfg.URL && ix.rt.cache != nil {
		_, _ = ix.rt.cache.Invalidate(ix.ID())
	}
}

// Download fetches a release payload, preferring the adapter's own logic.
func (ix *Indexer) Download(ctx context.Context, link string) ([]byte, error) {
	if d, ok := ix.adapter.(Downloader); ok {
		return d.Download(ctx, link)
	}
	return ix.rt.Download(ctx, link)
}
