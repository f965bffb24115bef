package indexer

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/litescript/ls-indexer/internal/release"
)

// AggregatorOptions tunes fan-out.
type AggregatorOptions struct {
	// SkipFailing leaves out indexers whose health record says failing.
	SkipFailing bool
	// Concurrency caps parallel queries; zero means one per indexer.
	Concurrency int
}

// SearchResult is the merged outcome of one fan-out.
type SearchResult struct {
	Releases []release.Release
	Errors   map[string]error
	Skipped  []string
}

// Aggregator queries several indexers at once. One indexer failing never
// fails the search.
type Aggregator struct {
	indexers []*Indexer
	opts     AggregatorOptions
	logger   zerolog.Logger
}

// NewAggregator creates an aggregator over indexers
func NewAggregator(opts AggregatorOptions, logger zerolog.Logger, indexers ...*Indexer) *Aggregator {
	return &Aggregator{indexers: indexers, opts: opts, logger: logger}
}

// Indexers returns the indexers searched.
func (a *Aggregator) Indexers() []*Indexer {
	return a.indexers
}

// Search queries every indexer and merges results, most seeded first.
func (a *Aggregator) Search(ctx context.Context, q Query) SearchResult {
	res := SearchResult{Errors: make(map[string]error)}
	var mu sync.Mutex

	var g errgroup.Group
	if a.opts.Concurrency > 0 {
		g.SetLimit(a.opts.Concurrency)
	}

	for _, ix := range a.indexers {
		if a.opts.SkipFailing && ix.IsFailing() {
			res.Skipped = append(res.Skipped, ix.ID())
			continue
		}

		g.Go(func() error {
			releases, err := ix.ResultsForQuery(ctx, q)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors[ix.ID()] = err
				return nil
			}
			res.Releases = append(res.Releases, releases...)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(res.Releases, func(i, j int) bool {
		if res.Releases[i].Seeders != res.Releases[j].Seeders {
			return res.Releases[i].Seeders > res.Releases[j].Seeders
		}
		return res.Releases[i].Title < res.Releases[j].Title
	})
	if q.Limit > 0 && len(res.Releases) > q.Limit {
		res.Releases = res.Releases[:q.Limit]
	}

	a.logger.Info().
		Str("term", q.SearchTerm).
		Int("indexers", len(a.indexers)).
		Int("results", len(res.Releases)).
		Int("failed", len(res.Errors)).
		Int("skipped", len(res.Skipped)).
		Msg("Search finished")
	return res
}
