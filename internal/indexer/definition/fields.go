package definition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/litescript/ls-indexer/internal/release"
)

// row yields raw field values from one result row.
type row interface {
	value(f Field) (string, bool)
}

type htmlRow struct{ sel *goquery.Selection }

func (r htmlRow) value(f Field) (string, bool) {
	if f.Text != "" {
		return f.Text, true
	}
	s := r.sel
	if f.Selector != "" {
		s = r.sel.Find(f.Selector).First()
		if s.Length() == 0 {
			return "", false
		}
	}
	if f.Attribute != "" {
		v, ok := s.Attr(f.Attribute)
		return strings.TrimSpace(v), ok
	}
	return strings.TrimSpace(s.Text()), true
}

type jsonRow struct{ res gjson.Result }

func (r jsonRow) value(f Field) (string, bool) {
	if f.Text != "" {
		return f.Text, true
	}
	v := r.res.Get(f.Selector)
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	return strings.TrimSpace(v.String()), true
}

// fieldOrder keeps extraction deterministic; seeders precede leechers.
var fieldOrder = []string{
	"title", "details", "download", "magnet", "infohash", "category",
	"size", "files", "grabs", "seeders", "leechers", "peers", "date", "imdb",
	"downloadvolumefactor", "uploadvolumefactor", "minimumratio", "minimumseedtime",
	"freeleech",
}

var errMissingTitle = errors.New("empty title")

// buildRelease maps one row onto a release. resolve turns relative links
// into absolute ones.
func buildRelease(def *Definition, r row, indexerID string, resolve func(string) string, now time.Time) (release.Release, error) {
	out := release.New(indexerID)
	leechers := -1

	for _, name := range fieldOrder {
		f, ok := def.Search.Fields[name]
		if !ok {
			continue
		}
		v, found := r.value(f)

		if name == "freeleech" {
			if found && v != "0" && !strings.EqualFold(v, "false") {
				out.DownloadVolumeFactor = 0
			}
			continue
		}

		if !found || v == "" {
			switch {
			case f.Default != "":
				v = f.Default
			case f.Optional:
				continue
			default:
				if name == "title" {
					return out, errMissingTitle
				}
				return out, fmt.Errorf("field %s not found", name)
			}
		}

		switch name {
		case "title":
			out.Title = v
		case "details":
			out.Details = resolve(v)
		case "download":
			if strings.HasPrefix(v, "magnet:") {
				out.MagnetURI = v
			} else {
				out.Link = resolve(v)
			}
		case "magnet":
			out.MagnetURI = v
		case "infohash":
			out.InfoHash = strings.ToUpper(v)
		case "category":
			out.Category = append(out.Category, categoryFor(def, v))
		case "size":
			out.Size = release.ParseSize(v)
		case "files":
			out.Files = release.ParseInt(v)
		case "grabs":
			out.Grabs = release.ParseInt(v)
		case "seeders":
			out.Seeders = release.ParseInt(v)
		case "leechers":
			leechers = release.ParseInt(v)
		case "peers":
			out.Peers = release.ParseInt(v)
		case "date":
			if t, err := release.ParseDate(v, now); err == nil {
				out.PublishDate = t
			}
		case "imdb":
			out.Imdb = int64(release.ParseInt(v))
		case "downloadvolumefactor":
			out.DownloadVolumeFactor = parseFloat(v, out.DownloadVolumeFactor)
		case "uploadvolumefactor":
			out.UploadVolumeFactor = parseFloat(v, out.UploadVolumeFactor)
		case "minimumratio":
			out.MinimumRatio = parseFloat(v, 0)
		case "minimumseedtime":
			out.MinimumSeedTime = int64(release.ParseInt(v))
		}
	}

	if leechers >= 0 && out.Peers == 0 {
		out.Peers = out.Seeders + leechers
	}
	if out.Title == "" {
		return out, errMissingTitle
	}
	if out.Link == "" && out.MagnetURI == "" {
		return out, errors.New("no download link")
	}
	if len(out.Category) == 0 {
		out.Category = []int{release.CategoryOther}
	}
	return out, nil
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")), 64)
	if err != nil {
		return fallback
	}
	return f
}
