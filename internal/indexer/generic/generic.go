// Package generic scrapes arbitrary torrent sites with heuristics. It works
// with any site that lists magnet links or torrent tables and can log in
// through a plain HTML form.
package generic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/release"
	"github.com/litescript/ls-indexer/internal/webclient"
)

// Extra keys understood by the generic adapter
const (
	KeySearchPath    = "search_path"    // e.g. "/search/%s/"; %s is the escaped term
	KeyCategory      = "category"       // category name applied to every result
	KeyLoginPath     = "login_path"     // enables form login
	KeyUsernameField = "username_field" // defaults to "username"
	KeyPasswordField = "password_field" // defaults to "password"
	KeyLoginCookie   = "login_cookie"   // cookie that proves a session
	loginFormPrefix  = "login_form."    // extra static form fields
)

// ErrLoginFailed is returned when the site keeps showing the login form.
var ErrLoginFailed = errors.New("login failed")

// defaultPatterns are tried in order until one yields results.
var defaultPatterns = []string{
	"/search/%s/",
	"/search/%s",
	"/search?q=%s",
	"/?s=%s",
	"/torrents/?search=%s",
}

// Adapter is the heuristic scraper.
type Adapter struct {
	rt *indexer.Runtime

	mu      sync.Mutex
	pattern string // last search pattern that produced results
}

// Factory builds a generic adapter.
func Factory(rt *indexer.Runtime, cfg config.IndexerConfig) (indexer.Adapter, error) {
	if _, err := ValidateURL(cfg.URL); err != nil {
		return nil, err
	}
	return New(rt), nil
}

// New creates an adapter on rt.
func New(rt *indexer.Runtime) *Adapter {
	return &Adapter{rt: rt}
}

// PerformQuery searches the site, logging in first when configured.
func (a *Adapter) PerformQuery(ctx context.Context, q indexer.Query) ([]release.Release, error) {
	cfg := a.rt.Config()
	if loginConfigured(cfg) && a.rt.Cookies() == "" {
		if err := a.login(ctx, cfg); err != nil {
			return nil, indexer.NewConfigurationIssue(cfg, err)
		}
	}

	if q.IsRSS() {
		doc, _, err := a.fetchDocument(ctx, "/")
		if err != nil {
			return nil, err
		}
		return a.extract(doc, cfg), nil
	}

	term := q.Keywords()
	var lastErr error
	for _, pattern := range a.patterns(cfg) {
		results, err := a.search(ctx, cfg, pattern, term)
		if err != nil {
			var down *indexer.SiteDownError
			if errors.As(err, &down) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(results) > 0 {
			a.mu.Lock()
			a.pattern = pattern
			a.mu.Unlock()
			return results, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return []release.Release{}, nil
}

func (a *Adapter) patterns(cfg config.IndexerConfig) []string {
	var out []string
	if p := cfg.Extra[KeySearchPath]; p != "" {
		out = append(out, p)
	}
	a.mu.Lock()
	if a.pattern != "" {
		out = append(out, a.pattern)
	}
	a.mu.Unlock()
	out = append(out, defaultPatterns...)

	seen := make(map[string]bool, len(out))
	uniq := out[:0]
	for _, p := range out {
		if !seen[p] {
			seen[p] = true
			uniq = append(uniq, p)
		}
	}
	return uniq
}

// SearchPattern returns the pattern that last produced results.
func (a *Adapter) SearchPattern() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pattern
}

func (a *Adapter) search(ctx context.Context, cfg config.IndexerConfig, pattern, term string) ([]release.Release, error) {
	escape := url.PathEscape
	if strings.Contains(pattern, "?") || strings.Contains(pattern, "=") {
		escape = url.QueryEscape
	}
	path := strings.Replace(pattern, "%s", escape(term), 1)

	doc, _, err := a.fetchDocument(ctx, path)
	if err != nil {
		return nil, err
	}

	// Session expired: the site bounced us to its login page.
	if loginConfigured(cfg) && hasPasswordInput(doc) {
		zerolog.Ctx(ctx).Debug().Str("path", path).Msg("Session expired, logging in again")
		if err := a.login(ctx, cfg); err != nil {
			return nil, indexer.NewConfigurationIssue(cfg, err)
		}
		if doc, _, err = a.fetchDocument(ctx, path); err != nil {
			return nil, err
		}
	}

	return a.extract(doc, cfg), nil
}

func (a *Adapter) fetchDocument(ctx context.Context, path string) (*goquery.Document, *webclient.Response, error) {
	resp, err := a.rt.Get(ctx, path)
	if err != nil {
		return nil, resp, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, resp, &indexer.ParseError{Indexer: a.rt.ID(), Preview: resp.Preview(200), Err: err}
	}
	return doc, resp, nil
}

// extract uses heuristics to find torrent info in any page
func (a *Adapter) extract(doc *goquery.Document, cfg config.IndexerConfig) []release.Release {
	var results []release.Release
	seen := make(map[string]bool)

	doc.Find("a[href^='magnet:']").Each(func(i int, link *goquery.Selection) {
		magnet, _ := link.Attr("href")
		if seen[magnet] {
			return
		}
		seen[magnet] = true

		r := a.newRelease(cfg)
		r.MagnetURI = magnet
		r.Title = release.MagnetName(magnet)
		a.fillFromContext(link, &r)

		if r.Title != "" {
			results = append(results, r)
		}
	})

	if len(results) == 0 {
		results = a.extractFromTables(doc, cfg)
	}
	return results
}

func (a *Adapter) newRelease(cfg config.IndexerConfig) release.Release {
	r := release.New(a.rt.ID())
	if id, ok := release.CategoryByName(cfg.Extra[KeyCategory]); ok {
		r.Category = []int{id}
	} else {
		r.Category = []int{release.CategoryOther}
	}
	return r
}

// fillFromContext walks up to the nearest container that carries metadata.
func (a *Adapter) fillFromContext(link *goquery.Selection, r *release.Release) {
	containers := []string{"tr", "div.torrent", "div.result", "li", "article", "div"}

	for _, sel := range containers {
		parent := link.Closest(sel)
		if parent.Length() == 0 {
			continue
		}
		text := parent.Text()

		if r.Title == "" {
			parent.Find("a").Each(func(i int, el *goquery.Selection) {
				href, _ := el.Attr("href")
				candidate := strings.TrimSpace(el.Text())
				if href != "" && !strings.HasPrefix(href, "magnet:") && len(candidate) > len(r.Title) && !isBoilerplate(candidate) {
					r.Title = candidate
				}
			})
		}
		if r.Details == "" {
			if href, ok := detailsLink(parent); ok {
				r.Details = a.rt.ResolveURL(href)
			}
		}

		seeders := release.FindNumber(text, []string{"seed", "se", "s:"})
		leechers := release.FindNumber(text, []string{"leech", "le", "l:", "peer"})
		if r.Seeders == 0 {
			r.Seeders = seeders
			r.Peers = seeders + leechers
		}
		if r.Size == 0 {
			r.Size = release.ParseSize(release.FindSize(text))
		}

		if r.Seeders > 0 || r.Size > 0 {
			break
		}
	}
}

func (a *Adapter) extractFromTables(doc *goquery.Document, cfg config.IndexerConfig) []release.Release {
	var results []release.Release

	doc.Find("table tr").Each(func(j int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return
		}

		r := a.newRelease(cfg)
		text := row.Text()

		row.Find("a").Each(func(k int, link *goquery.Selection) {
			href, _ := link.Attr("href")
			switch {
			case strings.HasPrefix(href, "magnet:"):
				r.MagnetURI = href
				if r.Title == "" {
					r.Title = release.MagnetName(href)
				}
			case strings.HasSuffix(strings.ToLower(href), ".torrent"):
				r.Link = a.rt.ResolveURL(href)
			case r.Details == "" && strings.Contains(href, "torrent"):
				r.Details = a.rt.ResolveURL(href)
				if r.Title == "" {
					r.Title = strings.TrimSpace(link.Text())
				}
			}
		})

		r.Seeders = release.FindNumber(text, []string{"seed"})
		r.Peers = r.Seeders + release.FindNumber(text, []string{"leech", "peer"})
		r.Size = release.ParseSize(release.FindSize(text))

		if r.Title != "" && (r.MagnetURI != "" || r.Details != "" || r.Link != "") {
			results = append(results, r)
		}
	})

	return results
}

// Download resolves a detail page to its magnet or .torrent when needed.
func (a *Adapter) Download(ctx context.Context, link string) ([]byte, error) {
	if link == "" || strings.HasPrefix(link, "magnet:") {
		return a.rt.Download(ctx, link)
	}

	resp, err := a.rt.Fetch(ctx, a.rt.NewRequest(http.MethodGet, link))
	if err != nil {
		return nil, err
	}
	if isTorrentPayload(resp) {
		return resp.Body, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, &indexer.ParseError{Indexer: a.rt.ID(), Preview: resp.Preview(200), Err: err}
	}
	if magnet, ok := doc.Find("a[href^='magnet:']").First().Attr("href"); ok {
		return []byte(magnet), nil
	}
	if href, ok := doc.Find("a[href$='.torrent']").First().Attr("href"); ok {
		return a.rt.Download(ctx, a.rt.ResolveURL(href))
	}
	return nil, fmt.Errorf("%s: no download link on %s", a.rt.ID(), link)
}

func isTorrentPayload(resp *webclient.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.Contains(ct, "bittorrent") || strings.HasPrefix(string(resp.Body), "d8:announce") || strings.HasPrefix(string(resp.Body), "d4:info")
}

func detailsLink(sel *goquery.Selection) (string, bool) {
	var out string
	sel.Find("a").EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if href != "" && !strings.HasPrefix(href, "magnet:") && !strings.HasPrefix(href, "#") &&
			!strings.HasSuffix(strings.ToLower(href), ".torrent") && !isBoilerplate(strings.TrimSpace(a.Text())) {
			out = href
			return false
		}
		return true
	})
	return out, out != ""
}

func isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	boilerplate := []string{
		"home", "search", "login", "register", "about", "contact",
		"download", "magnet", "torrent", "category", "browse",
	}
	for _, b := range boilerplate {
		if lower == b {
			return true
		}
	}
	return len(text) < 3 || len(text) > 300
}
