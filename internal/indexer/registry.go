package indexer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/litescript/ls-indexer/internal/config"
)

// Registry owns the live indexers built from configuration.
type Registry struct {
	opts RuntimeOptions

	mu        sync.RWMutex
	factories map[string]Factory
	indexers  map[string]*Indexer
	built     map[string]config.IndexerConfig
	order     []string
}

// NewRegistry creates an empty registry. Every indexer shares opts.
func NewRegistry(opts RuntimeOptions) *Registry {
	return &Registry{
		opts:      opts,
		factories: make(map[string]Factory),
		indexers:  make(map[string]*Indexer),
		built:     make(map[string]config.IndexerConfig),
	}
}

// Register binds an indexer type to its factory.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	r.factories[typ] = f
	r.mu.Unlock()
}

// Sync makes the registry match cfg: new enabled indexers are built,
// existing ones reconfigured, removed or disabled ones dropped. A change of
// type or definition file rebuilds the adapter.
func (r *Registry) Sync(cfg config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	keep := make(map[string]bool)
	order := make([]string, 0, len(cfg.Indexers))

	for _, ic := range cfg.Indexers {
		if !ic.Enabled {
			continue
		}
		if ic.Type == "" {
			ic.Type = config.TypeGeneric
		}

		if ix, ok := r.indexers[ic.ID]; ok && !needsRebuild(r.built[ic.ID], ic) {
			ix.Reconfigure(ic)
			r.built[ic.ID] = ic.Clone()
			keep[ic.ID] = true
			order = append(order, ic.ID)
			continue
		}

		ix, err := r.build(ic)
		if err != nil {
			errs = append(errs, fmt.Errorf("indexer %s: %w", ic.ID, err))
			continue
		}
		r.indexers[ic.ID] = ix
		r.built[ic.ID] = ic.Clone()
		keep[ic.ID] = true
		order = append(order, ic.ID)
	}

	for id := range r.indexers {
		if !keep[id] {
			delete(r.indexers, id)
			delete(r.built, id)
			if r.opts.Cache != nil {
				_, _ = r.opts.Cache.Invalidate(id)
			}
		}
	}
	r.order = order

	return errors.Join(errs...)
}

func needsRebuild(prev, next config.IndexerConfig) bool {
	return prev.Type != next.Type || prev.Definition != next.Definition
}

func (r *Registry) build(ic config.IndexerConfig) (*Indexer, error) {
	factory, ok := r.factories[ic.Type]
	if !ok {
		return nil, fmt.Errorf("no factory for type %q", ic.Type)
	}
	rt := NewRuntime(ic, r.opts)
	adapter, err := factory(rt, ic)
	if err != nil {
		return nil, err
	}
	return New(adapter, rt), nil
}

// Get returns the indexer with id.
func (r *Registry) Get(id string) (*Indexer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ix, ok := r.indexers[id]
	return ix, ok
}

// All returns indexers in configuration order.
func (r *Registry) All() []*Indexer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Indexer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.indexers[id])
	}
	return out
}

// Aggregator returns an aggregator over the current indexers.
func (r *Registry) Aggregator(opts AggregatorOptions) *Aggregator {
	return NewAggregator(opts, r.opts.Logger, r.All()...)
}
