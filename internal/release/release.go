// Package release defines the normalized search result every indexer
// produces, plus the helpers adapters use to fill it in.
package release

import (
	"strings"
	"time"
)

// Release represents a search result
type Release struct {
	Title     string
	GUID      string
	Link      string // .torrent download URL
	MagnetURI string
	InfoHash  string
	Details   string // detail page URL
	Comments  string
	Indexer   string

	Category []int
	Size     int64
	Files    int
	Grabs    int
	Seeders  int
	Peers    int // seeders + leechers

	PublishDate time.Time

	DownloadVolumeFactor float64
	UploadVolumeFactor   float64
	MinimumRatio         float64
	MinimumSeedTime      int64 // seconds

	Imdb int64
}

// New returns a release attributed to indexer with neutral volume factors.
func New(indexer string) Release {
	return Release{
		Indexer:              indexer,
		DownloadVolumeFactor: 1,
		UploadVolumeFactor:   1,
	}
}

// Clone returns a deep copy
func (r Release) Clone() Release {
	out := r
	if r.Category != nil {
		out.Category = append([]int(nil), r.Category...)
	}
	return out
}

// CloneAll deep copies a result list. A nil input stays nil.
func CloneAll(in []Release) []Release {
	if in == nil {
		return nil
	}
	out := make([]Release, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// Leechers derives the leecher count from Peers
func (r Release) Leechers() int {
	if r.Peers <= r.Seeders {
		return 0
	}
	return r.Peers - r.Seeders
}

// SwarmHealth returns a health score 0-100 based on seeders/leechers ratio
func (r Release) SwarmHealth() int {
	if r.Seeders == 0 {
		return 0
	}
	leechers := r.Leechers()
	if leechers == 0 {
		return 100
	}

	ratio := float64(r.Seeders) / float64(r.Seeders+leechers) * 100
	if ratio > 100 {
		ratio = 100
	}
	return int(ratio)
}

// DownloadTarget is the link a client should fetch: the magnet when there is
// no .torrent link.
func (r Release) DownloadTarget() string {
	if r.Link != "" {
		return r.Link
	}
	return r.MagnetURI
}

// Normalize fills derived fields: GUID falls back to the download target or
// details page and the info hash is taken from the magnet.
func (r *Release) Normalize(indexer string) {
	r.Title = strings.TrimSpace(r.Title)
	if r.Indexer == "" {
		r.Indexer = indexer
	}
	if r.InfoHash == "" && r.MagnetURI != "" {
		r.InfoHash = InfoHashFromMagnet(r.MagnetURI)
	}
	if r.GUID == "" {
		switch {
		case r.Details != "":
			r.GUID = r.Details
		case r.Link != "":
			r.GUID = r.Link
		default:
			r.GUID = r.MagnetURI
		}
	}
	if r.Peers < r.Seeders {
		r.Peers = r.Seeders
	}
}

// FreeLeech reports a zero download volume factor.
func (r Release) FreeLeech() bool {
	return r.DownloadVolumeFactor == 0
}
