package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/release"
)

func TestBuildQuery(t *testing.T) {
	q, err := buildQuery("dune", "2000, Movies/HD,", 10)
	require.NoError(t, err)
	assert.Equal(t, "dune", q.SearchTerm)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, []int{2000, release.CategoryMoviesHD}, q.Categories)

	_, err = buildQuery("dune", "Films", 10)
	assert.ErrorContains(t, err, `unknown category "Films"`)
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, indexer.SearchResult{
		Releases: []release.Release{{Title: "Dune 2021 1080p", Size: 1 << 30, Seeders: 12, Peers: 15, Indexer: "one"}},
		Errors:   map[string]error{"two": errors.New("site down")},
		Skipped:  []string{"three"},
	})

	out := buf.String()
	assert.Contains(t, out, "Dune 2021 1080p")
	assert.Contains(t, out, "1 results")
	assert.Contains(t, out, "two: site down")
	assert.Contains(t, out, "skipped failing: three")
}
