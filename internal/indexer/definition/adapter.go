package definition

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/release"
	"github.com/litescript/ls-indexer/internal/webclient"
)

// ErrLoginFailed is returned when the site rejects the session.
var ErrLoginFailed = errors.New("login failed")

// Adapter runs one definition.
type Adapter struct {
	rt  *indexer.Runtime
	def *Definition
	now func() time.Time
}

// Factory loads cfg.Definition and builds the adapter.
func Factory(rt *indexer.Runtime, cfg config.IndexerConfig) (indexer.Adapter, error) {
	def, err := Load(cfg.Definition)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" && def.BaseURL() == "" {
		return nil, errors.New("no url configured and definition has no links")
	}
	return New(rt, def), nil
}

// New creates an adapter for def on rt.
func New(rt *indexer.Runtime, def *Definition) *Adapter {
	return &Adapter{rt: rt, def: def, now: time.Now}
}

// Definition returns the parsed definition.
func (a *Adapter) Definition() *Definition { return a.def }

// base prefers the configured URL over the definition's first link.
func (a *Adapter) base() string {
	if b := a.rt.BaseURL(); b != "" {
		return b
	}
	return a.def.BaseURL()
}

func (a *Adapter) url(ref string) string {
	base, err := url.Parse(a.base() + "/")
	if err != nil {
		return ref
	}
	target, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(target).String()
}

func (a *Adapter) request(method, ref string) webclient.Request {
	req := a.rt.NewRequest(method, a.url(ref))
	req.Referer = a.base() + "/"
	if req.Encoding == "" {
		req.Encoding = a.def.Encoding
	}
	return req
}

// PerformQuery logs in when needed, searches and parses the result page.
func (a *Adapter) PerformQuery(ctx context.Context, q indexer.Query) ([]release.Release, error) {
	cfg := a.rt.Config()
	if a.def.HasLogin() && a.rt.Cookies() == "" {
		if err := a.login(ctx, cfg); err != nil {
			return nil, indexer.NewConfigurationIssue(cfg, err)
		}
	}

	resp, err := a.search(ctx, cfg, q)
	if err != nil {
		return nil, err
	}
	if a.bouncedToLogin(resp) {
		zerolog.Ctx(ctx).Debug().Msg("Session expired, logging in again")
		if err := a.login(ctx, cfg); err != nil {
			return nil, indexer.NewConfigurationIssue(cfg, err)
		}
		if resp, err = a.search(ctx, cfg, q); err != nil {
			return nil, err
		}
	}

	return a.parse(ctx, resp)
}

func (a *Adapter) search(ctx context.Context, cfg config.IndexerConfig, q indexer.Query) (*webclient.Response, error) {
	s := a.def.Search
	data := newTemplateData(a.def, cfg, q)

	path, err := render(s.Path, data)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	for k, v := range s.Params {
		rendered, err := render(v, data)
		if err != nil {
			return nil, err
		}
		params.Set(k, rendered)
	}

	method := strings.ToUpper(s.Method)
	if method == "" {
		method = http.MethodGet
	}
	req := a.request(method, path)
	if method == http.MethodPost {
		req.Form = params
	} else if len(params) > 0 {
		sep := "?"
		if strings.Contains(req.URL, "?") {
			sep = "&"
		}
		req.URL += sep + params.Encode()
	}

	return a.rt.Fetch(ctx, req)
}

func (a *Adapter) bouncedToLogin(resp *webclient.Response) bool {
	l := a.def.Login
	if l == nil || l.Method != LoginPost || resp == nil {
		return false
	}
	got, err := url.Parse(resp.Request.URL)
	if err != nil {
		return false
	}
	want, err := url.Parse(a.url(l.Path))
	if err != nil {
		return false
	}
	return got.Path == want.Path
}

// parse skips rows that fail and only reports a ParseError when the page
// itself is unreadable or every row failed.
func (a *Adapter) parse(ctx context.Context, resp *webclient.Response) ([]release.Release, error) {
	var rows []row
	body := resp.String()

	switch a.def.Search.Format {
	case FormatJSON:
		if !gjson.Valid(body) {
			return nil, &indexer.ParseError{Indexer: a.rt.ID(), Preview: resp.Preview(200), Err: errors.New("invalid JSON")}
		}
		gjson.Get(body, a.def.Search.Rows).ForEach(func(_, v gjson.Result) bool {
			rows = append(rows, jsonRow{res: v})
			return true
		})
	default:
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			return nil, &indexer.ParseError{Indexer: a.rt.ID(), Preview: resp.Preview(200), Err: err}
		}
		doc.Find(a.def.Search.Rows).Each(func(_ int, s *goquery.Selection) {
			rows = append(rows, htmlRow{sel: s})
		})
	}

	if a.def.Search.After > 0 {
		rows = rows[min(a.def.Search.After, len(rows)):]
	}

	logger := zerolog.Ctx(ctx)
	now := a.now()
	results := make([]release.Release, 0, len(rows))
	var firstErr error
	for i, r := range rows {
		rel, err := buildRelease(a.def, r, a.rt.ID(), a.url, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Debug().Err(err).Int("row", i).Msg("Skipping row")
			continue
		}
		results = append(results, rel)
	}

	if len(results) == 0 && firstErr != nil {
		return nil, &indexer.ParseError{
			Indexer: a.rt.ID(),
			Preview: resp.Preview(200),
			Err:     fmt.Errorf("all %d rows failed: %w", len(rows), firstErr),
		}
	}
	return results, nil
}

// ApplyConfiguration logs in with the new settings when the site needs it.
func (a *Adapter) ApplyConfiguration(ctx context.Context, cfg config.IndexerConfig) (indexer.ConfigStatus, error) {
	if a.base() == "" {
		return indexer.StatusCompleted, errors.New("no url configured")
	}
	if !a.def.HasLogin() {
		return indexer.StatusCompleted, nil
	}
	if err := a.login(ctx, cfg); err != nil {
		return indexer.StatusCompleted, err
	}
	return indexer.StatusCompleted, nil
}

func (a *Adapter) login(ctx context.Context, cfg config.IndexerConfig) error {
	l := a.def.Login

	switch l.Method {
	case LoginCookie:
		if a.rt.Cookies() == "" {
			return errors.New("cookie is required")
		}
	default:
		data := newTemplateData(a.def, cfg, indexer.Query{})
		form := url.Values{}
		for k, v := range l.Inputs {
			rendered, err := render(v, data)
			if err != nil {
				return err
			}
			form.Set(k, rendered)
		}

		a.rt.ClearCookies()
		target := a.url(l.Path)
		resp, err := a.rt.PostForm(ctx, target, form, target)
		if err != nil {
			return fmt.Errorf("login request: %w", err)
		}
		if l.Error != "" {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
			if err == nil {
				if sel := doc.Find(l.Error); sel.Length() > 0 {
					return fmt.Errorf("%w: %s", ErrLoginFailed, strings.TrimSpace(sel.First().Text()))
				}
			}
		}
	}

	cookies := a.rt.Cookies()
	for _, name := range l.Cookies {
		if _, ok := webclient.CookieValue(cookies, name); !ok {
			return fmt.Errorf("%w: missing cookie %s", ErrLoginFailed, name)
		}
	}

	if l.Test != nil && l.Test.Path != "" {
		resp, err := a.rt.Fetch(ctx, a.request(http.MethodGet, l.Test.Path))
		if err != nil {
			return fmt.Errorf("login test: %w", err)
		}
		if l.Test.Selector != "" {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
			if err != nil || doc.Find(l.Test.Selector).Length() == 0 {
				return fmt.Errorf("%w: %s not found on %s", ErrLoginFailed, l.Test.Selector, l.Test.Path)
			}
		}
	}

	zerolog.Ctx(ctx).Info().Str("indexer", a.rt.ID()).Msg("Logged in")
	return nil
}
