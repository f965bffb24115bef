package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Query is a search request as callers express it.
type Query struct {
	SearchTerm string
	Categories []int
	Limit      int
	Offset     int
	ImdbID     string
	Season     int
	Episode    string
}

// IsRSS reports a query with nothing to search for: the latest releases.
func (q Query) IsRSS() bool {
	return strings.TrimSpace(q.SearchTerm) == "" && q.ImdbID == ""
}

// NormalizedTerm lower-cases the term and collapses whitespace.
func (q Query) NormalizedTerm() string {
	return strings.Join(strings.Fields(strings.ToLower(q.SearchTerm)), " ")
}

// Keywords is the term plus the season/episode tag, e.g. "show s01e02".
func (q Query) Keywords() string {
	term := strings.Join(strings.Fields(q.SearchTerm), " ")
	tag := q.EpisodeTag()
	if tag == "" {
		return term
	}
	if term == "" {
		return tag
	}
	return term + " " + tag
}

// EpisodeTag renders "S01E02", "S01" or "".
func (q Query) EpisodeTag() string {
	if q.Season <= 0 {
		return ""
	}
	tag := fmt.Sprintf("S%02d", q.Season)
	if q.Episode != "" {
		if n, err := strconv.Atoi(q.Episode); err == nil {
			tag += fmt.Sprintf("E%02d", n)
		} else {
			tag += " " + q.Episode
		}
	}
	return tag
}

type fingerprint struct {
	Term       string `json:"t"`
	Categories []int  `json:"c,omitempty"`
	Limit      int    `json:"l,omitempty"`
	Offset     int    `json:"o,omitempty"`
	Imdb       string `json:"i,omitempty"`
	Season     int    `json:"s,omitempty"`
	Episode    string `json:"e,omitempty"`
}

// Fingerprint is the cache key: two queries that differ only in case,
// whitespace or category order share it.
func (q Query) Fingerprint() string {
	cats := slices.Clone(q.Categories)
	slices.Sort(cats)
	cats = slices.Compact(cats)

	b, _ := json.Marshal(fingerprint{
		Term:       q.NormalizedTerm(),
		Categories: cats,
		Limit:      q.Limit,
		Offset:     q.Offset,
		Imdb:       strings.ToLower(strings.TrimSpace(q.ImdbID)),
		Season:     q.Season,
		Episode:    strings.ToLower(strings.TrimSpace(q.Episode)),
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
