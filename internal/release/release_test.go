package release

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	orig := []Release{{Title: "a", Category: []int{2000}}}
	cp := CloneAll(orig)
	cp[0].Title = "b"
	cp[0].Category[0] = 5000

	assert.Equal(t, "a", orig[0].Title)
	assert.Equal(t, []int{2000}, orig[0].Category)
	assert.Nil(t, CloneAll(nil))
}

func TestSwarmHealth(t *testing.T) {
	tests := []struct {
		seeders, peers, want int
	}{
		{0, 10, 0},
		{10, 10, 100},
		{30, 40, 75},
		{1, 4, 25},
	}
	for _, tt := range tests {
		r := Release{Seeders: tt.seeders, Peers: tt.peers}
		assert.Equal(t, tt.want, r.SwarmHealth(), "seeders=%d peers=%d", tt.seeders, tt.peers)
	}
}

func TestNormalize(t *testing.T) {
	r := New("")
	r.Title = "  Some.Release.1080p  "
	r.MagnetURI = "magnet:?xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01&dn=Some.Release"
	r.Seeders = 5
	r.Normalize("demo")

	assert.Equal(t, "Some.Release.1080p", r.Title)
	assert.Equal(t, "demo", r.Indexer)
	assert.Equal(t, "ABCDEF0123456789ABCDEF0123456789ABCDEF01", r.InfoHash)
	assert.Equal(t, r.MagnetURI, r.GUID)
	assert.Equal(t, 5, r.Peers)
	assert.False(t, r.FreeLeech())
	assert.Equal(t, r.MagnetURI, r.DownloadTarget())
}

func TestMagnetName(t *testing.T) {
	assert.Equal(t, "Ubuntu 24.04", MagnetName("magnet:?xt=urn:btih:x&dn=Ubuntu+24.04&tr=udp"))
	assert.Equal(t, "plain", MagnetName("magnet:?dn=plain"))
	assert.Empty(t, MagnetName("magnet:?xt=urn:btih:x"))
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"":          0,
		"1024":      1024,
		"1 KB":      1024,
		"1.5 GB":    1610612736,
		"700MiB":    734003200,
		"2,5 GB":    2684354560,
		"1 TB":      1 << 40,
		"garbage":   0,
		"Size: 3MB": 3 << 20,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseSize(in), in)
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "-", FormatSize(0))
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2 GB", FormatSize(2<<30))
}

func TestFindHelpers(t *testing.T) {
	assert.Equal(t, "1.4 GB", FindSize("Size 1.4 gb, uploaded"))
	assert.Equal(t, 42, FindNumber("Seeders: 42 Leechers: 7", []string{"seed"}))
	assert.Equal(t, 7, FindNumber("Leechers: 7", []string{"leech"}))
	assert.Equal(t, 7, FindNumber("Seeders: 42 Leechers: 7", []string{"leech"}))
	assert.Equal(t, 3, FindNumber("3 seeders", []string{"seed"}))
	assert.Equal(t, 0, FindNumber("nothing", []string{"seed"}))
	assert.Equal(t, 12345, ParseInt("12,345"))
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	got, err := ParseDate("3 hours ago", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-3*time.Hour), got)

	got, err = ParseDate("yesterday", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -1), got)

	got, err = ParseDate("2024-05-01 10:00:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("1700000000", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got.Unix())

	_, err = ParseDate("not a date", now)
	assert.Error(t, err)
}

func TestMatchesCategories(t *testing.T) {
	r := Release{Category: []int{CategoryMoviesHD}}

	assert.True(t, r.MatchesCategories(nil))
	assert.True(t, r.MatchesCategories([]int{CategoryMoviesHD}))
	assert.True(t, r.MatchesCategories([]int{CategoryMovies}))
	assert.False(t, r.MatchesCategories([]int{CategoryTV}))
	assert.False(t, Release{}.MatchesCategories([]int{CategoryTV}))

	assert.Equal(t, "Movies/HD", CategoryName(CategoryMoviesHD))
	assert.Equal(t, "Movies", CategoryName(2099))
	id, ok := CategoryByName("tv/anime")
	assert.True(t, ok)
	assert.Equal(t, CategoryTVAnime, id)
}
