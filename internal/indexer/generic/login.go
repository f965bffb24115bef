package generic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/webclient"
)

func loginConfigured(cfg config.IndexerConfig) bool {
	return cfg.Extra[KeyLoginPath] != ""
}

func extraOr(cfg config.IndexerConfig, key, fallback string) string {
	if v := cfg.Extra[key]; v != "" {
		return v
	}
	return fallback
}

func hasPasswordInput(doc *goquery.Document) bool {
	return doc.Find("input[type='password']").Length() > 0
}

// login posts the credentials to the configured form and checks the
// session cookie or, without one configured, that the form is gone.
func (a *Adapter) login(ctx context.Context, cfg config.IndexerConfig) error {
	if cfg.Username == "" || cfg.Password == "" {
		return errors.New("username and password are required")
	}
	path := cfg.Extra[KeyLoginPath]

	form := url.Values{}
	for k, v := range cfg.Extra {
		if name, ok := strings.CutPrefix(k, loginFormPrefix); ok {
			form.Set(name, v)
		}
	}
	form.Set(extraOr(cfg, KeyUsernameField, "username"), cfg.Username)
	form.Set(extraOr(cfg, KeyPasswordField, "password"), cfg.Password)

	a.rt.ClearCookies()
	resp, err := a.rt.PostForm(ctx, path, form, path)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}

	if name := cfg.Extra[KeyLoginCookie]; name != "" {
		if _, ok := webclient.CookieValue(a.rt.Cookies(), name); !ok {
			return fmt.Errorf("%w: no %s cookie", ErrLoginFailed, name)
		}
	} else {
		if !resp.IsSuccess() {
			return fmt.Errorf("%w: %w", ErrLoginFailed, webclient.NewStatusError(resp))
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
		if err != nil || hasPasswordInput(doc) {
			return fmt.Errorf("%w: login form still present", ErrLoginFailed)
		}
	}

	zerolog.Ctx(ctx).Info().Str("indexer", a.rt.ID()).Msg("Logged in")
	return nil
}

// ApplyConfiguration checks that the site answers and, when a login form is
// configured, that the credentials work.
func (a *Adapter) ApplyConfiguration(ctx context.Context, cfg config.IndexerConfig) (indexer.ConfigStatus, error) {
	if _, err := ValidateURL(cfg.URL); err != nil {
		return indexer.StatusCompleted, err
	}

	if loginConfigured(cfg) {
		if err := a.login(ctx, cfg); err != nil {
			return indexer.StatusCompleted, err
		}
		return indexer.StatusCompleted, nil
	}

	doc, _, err := a.fetchDocument(ctx, "/")
	if err != nil {
		return indexer.StatusCompleted, fmt.Errorf("site unreachable: %w", err)
	}
	if !looksLikeTracker(doc) {
		return indexer.StatusRequiresTesting, nil
	}
	return indexer.StatusCompleted, nil
}

// ValidateURL normalizes rawURL to scheme://host and rejects anything that
// is not http(s).
func ValidateURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.New("URL is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("URL must be http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("URL must have a host")
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

func looksLikeTracker(doc *goquery.Document) bool {
	pageText := strings.ToLower(doc.Text())
	hasMagnet := doc.Find("a[href^='magnet:']").Length() > 0
	hasSearch := doc.Find("input[type='search'], input[name='q'], input[name='search'], form[action*='search']").Length() > 0
	hasTorrentWords := strings.Contains(pageText, "torrent") ||
		strings.Contains(pageText, "magnet") ||
		strings.Contains(pageText, "seeders") ||
		strings.Contains(pageText, "leechers")

	return hasMagnet || hasSearch || hasTorrentWords
}

// TestSearch runs a throwaway search and returns the hit count.
func (a *Adapter) TestSearch(ctx context.Context) (int, error) {
	results, err := a.PerformQuery(ctx, indexer.Query{SearchTerm: "test"})
	if err == nil && len(results) > 0 {
		return len(results), nil
	}
	results, err = a.PerformQuery(ctx, indexer.Query{SearchTerm: "linux"})
	if err != nil {
		return 0, fmt.Errorf("search failed: %w", err)
	}
	return len(results), nil
}
