package indexer

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-indexer/internal/cache"
	"github.com/litescript/ls-indexer/internal/config"
)

func TestRegistrySync(t *testing.T) {
	built := map[string]int{}
	reg := NewRegistry(RuntimeOptions{Logger: zerolog.Nop(), Cache: cache.New(cache.Options{})})
	reg.Register(config.TypeGeneric, func(rt *Runtime, cfg config.IndexerConfig) (Adapter, error) {
		built[cfg.ID]++
		return &staticAdapter{}, nil
	})
	reg.Register(config.TypeDefinition, func(rt *Runtime, cfg config.IndexerConfig) (Adapter, error) {
		return nil, errors.New("definition missing")
	})

	cfg := config.Config{Indexers: []config.IndexerConfig{
		{ID: "one", URL: "https://one.example", Enabled: true},
		{ID: "two", Type: config.TypeGeneric, URL: "https://two.example", Enabled: true},
		{ID: "off", URL: "https://off.example", Enabled: false},
		{ID: "def", Type: config.TypeDefinition, Definition: "x.yml", Enabled: true},
	}}

	err := reg.Sync(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer def: definition missing")

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "one", all[0].ID())
	assert.Equal(t, "two", all[1].ID())
	_, ok := reg.Get("off")
	assert.False(t, ok)

	// Same type: reconfigured in place, not rebuilt.
	first, _ := reg.Get("one")
	cfg.Indexers[0].URL = "https://one-mirror.example"
	cfg.Indexers = cfg.Indexers[:1]
	require.NoError(t, reg.Sync(cfg))

	again, ok := reg.Get("one")
	require.True(t, ok)
	assert.Same(t, first, again)
	assert.Equal(t, "https://one-mirror.example", again.Runtime().BaseURL())
	assert.Equal(t, 1, built["one"])

	_, ok = reg.Get("two")
	assert.False(t, ok)
	assert.Len(t, reg.Aggregator(AggregatorOptions{}).Indexers(), 1)
}

func TestRegistryUnknownType(t *testing.T) {
	reg := NewRegistry(RuntimeOptions{Logger: zerolog.Nop()})
	err := reg.Sync(config.Config{Indexers: []config.IndexerConfig{
		{ID: "x", Type: "mystery", URL: "https://x.example", Enabled: true},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no factory for type "mystery"`)
}
