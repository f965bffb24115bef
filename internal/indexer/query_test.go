package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintNormalizes(t *testing.T) {
	a := Query{SearchTerm: "The  Matrix", Categories: []int{2040, 2000, 2040}}
	b := Query{SearchTerm: " the matrix ", Categories: []int{2000, 2040}}
	c := Query{SearchTerm: "the matrix", Categories: []int{2000}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)

	paged := b
	paged.Limit = 10
	assert.NotEqual(t, b.Fingerprint(), paged.Fingerprint())
	assert.Equal(t, cacheKey(b), cacheKey(paged))
}

func TestQueryHelpers(t *testing.T) {
	assert.True(t, Query{}.IsRSS())
	assert.True(t, Query{SearchTerm: "   "}.IsRSS())
	assert.False(t, Query{ImdbID: "tt0133093"}.IsRSS())

	q := Query{SearchTerm: "Some  Show", Season: 1, Episode: "2"}
	assert.Equal(t, "S01E02", q.EpisodeTag())
	assert.Equal(t, "Some Show S01E02", q.Keywords())
	assert.Equal(t, "S03", Query{Season: 3}.EpisodeTag())
	assert.Equal(t, "S2024 03/15", Query{Season: 2024, Episode: "03/15"}.EpisodeTag())
	assert.Equal(t, "plain", Query{SearchTerm: "plain"}.Keywords())
}

func TestSiteDownStatuses(t *testing.T) {
	for _, code := range []int{502, 504, 521, 522, 523} {
		assert.True(t, IsSiteDownStatus(code), code)
	}
	for _, code := range []int{500, 503, 404, 200} {
		assert.False(t, IsSiteDownStatus(code), code)
	}
}
