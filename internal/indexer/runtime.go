package indexer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/litescript/ls-indexer/internal/cache"
	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/health"
	"github.com/litescript/ls-indexer/internal/metrics"
	"github.com/litescript/ls-indexer/internal/webclient"
)

// DefaultQueryTimeout bounds one query including every retry and redirect.
const DefaultQueryTimeout = 2 * time.Minute

// CookiePersister saves an indexer's resolved cookie header. It reports
// whether anything was written.
type CookiePersister interface {
	UpdateIndexerCookie(id, header string) (bool, error)
}

// ConfigSaver is implemented by persisters that can store a whole entry.
type ConfigSaver interface {
	UpdateIndexer(cfg config.IndexerConfig) error
}

// RuntimeOptions are the collaborators shared by every indexer.
type RuntimeOptions struct {
	Executor webclient.Executor
	Cache    *cache.ResultCache
	Health   health.Options
	Metrics  *metrics.Collector
	Cookies  CookiePersister
	Logger   zerolog.Logger

	// Sleep replaces the wait between retries.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Runtime is the HTTP side of one indexer. Adapters issue every request
// through it so cookies, retries and pacing apply uniformly.
type Runtime struct {
	id        string
	exec      webclient.Executor
	cache     *cache.ResultCache
	health    *health.Record
	metrics   *metrics.Collector
	persister CookiePersister
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	// persistMu orders cookie merges with their saves.
	persistMu sync.Mutex

	mu      sync.RWMutex
	cfg     config.IndexerConfig
	cookies string
	limiter *rate.Limiter
}

// NewRuntime creates the runtime for cfg. Without an explicit
// HealthyValidity a healthy claim lasts twice the cache TTL.
func NewRuntime(cfg config.IndexerConfig, opts RuntimeOptions) *Runtime {
	exec := opts.Executor
	if exec == nil {
		exec = webclient.NewHTTPExecutor(webclient.Options{})
	}
	if opts.Health.HealthyValidity <= 0 && opts.Cache != nil {
		opts.Health.HealthyValidity = 2 * opts.Cache.TTL()
	}

	r := &Runtime{
		id:        cfg.ID,
		exec:      exec,
		cache:     opts.Cache,
		health:    health.NewRecord(opts.Health),
		metrics:   opts.Metrics,
		persister: opts.Cookies,
		logger:    opts.Logger.With().Str("indexer", cfg.ID).Logger(),
		sleep:     opts.Sleep,
		cfg:       cfg.Clone(),
		cookies:   webclient.ResolveCookies("", cfg.Cookie),
		limiter:   newLimiter(cfg.RequestDelay.Duration),
	}
	r.cfg.Cookie = r.cookies
	return r
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func (r *Runtime) ID() string { return r.id }

func (r *Runtime) Logger() *zerolog.Logger { return &r.logger }

// Health exposes the record for callers that want a snapshot.
func (r *Runtime) Health() *health.Record { return r.health }

// Config returns a copy of the current settings.
func (r *Runtime) Config() config.IndexerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Clone()
}

// restore puts back settings saved before a rejected reconfiguration,
// persisting the old cookie header again.
func (r *Runtime) restore(previous config.IndexerConfig) {
	r.SetCookies(previous.Cookie)
	r.Reconfigure(previous)
}

// Reconfigure swaps in new settings. A non-empty cookie in cfg replaces the
// current header; Config().Cookie always reports the header in use.
func (r *Runtime) Reconfigure(cfg config.IndexerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.RequestDelay != r.cfg.RequestDelay {
		r.limiter = newLimiter(cfg.RequestDelay.Duration)
	}
	if cfg.Cookie != "" {
		r.cookies = webclient.ResolveCookies("", cfg.Cookie)
	}
	cfg.ID = r.id
	cfg.Cookie = r.cookies
	r.cfg = cfg.Clone()
}

// BaseURL is the configured site root without a trailing slash.
func (r *Runtime) BaseURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return strings.TrimRight(r.cfg.URL, "/")
}

// ResolveURL resolves ref against the site root.
func (r *Runtime) ResolveURL(ref string) string {
	base, err := url.Parse(r.BaseURL() + "/")
	if err != nil {
		return ref
	}
	target, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(target).String()
}

// Cookies returns the current cookie header.
func (r *Runtime) Cookies() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cookies
}

// SetCookies replaces the header and persists it.
func (r *Runtime) SetCookies(header string) {
	r.storeCookies(webclient.ResolveCookies("", header), nil, true)
}

// ClearCookies forgets the session, e.g. before a fresh login.
func (r *Runtime) ClearCookies() {
	r.storeCookies("", nil, true)
}

// storeCookies installs header, or merges it into the current one after
// dropping expired names, and saves the result. Saves happen in merge order.
func (r *Runtime) storeCookies(header string, expired []string, replace bool) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	if !replace {
		current := r.cookies
		for _, name := range expired {
			current = webclient.RemoveCookie(current, name)
		}
		header = webclient.ResolveCookies(current, header)
	}
	if header == r.cookies {
		r.mu.Unlock()
		return
	}
	r.cookies = header
	r.cfg.Cookie = header
	persister := r.persister
	r.mu.Unlock()

	if persister == nil {
		return
	}
	if _, err := persister.UpdateIndexerCookie(r.id, header); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to persist cookies")
	}
}

// NewRequest builds a browser-like request with the indexer's encoding and
// the site root as referer.
func (r *Runtime) NewRequest(method, rawURL string) webclient.Request {
	cfg := r.Config()
	return webclient.Request{
		Method:         method,
		URL:            r.ResolveURL(rawURL),
		Referer:        strings.TrimRight(cfg.URL, "/") + "/",
		Encoding:       cfg.Encoding,
		EmulateBrowser: true,
	}
}

// instrumented paces and counts every exchange, redirect hops included.
func (r *Runtime) instrumented() webclient.Executor {
	return webclient.ExecutorFunc(func(ctx context.Context, req webclient.Request) (*webclient.Response, error) {
		r.mu.RLock()
		limiter := r.limiter
		r.mu.RUnlock()
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := r.exec.Execute(ctx, req)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		r.metrics.Request(r.id, status)
		r.logger.Trace().Str("method", req.Method).Str("url", req.URL).Int("status", status).Msg("HTTP exchange")
		return resp, err
	})
}

func (r *Runtime) retryPolicy() *webclient.RetryPolicy {
	p := webclient.NewRetryPolicy(r.Config().Retries(), r.logger)
	if r.sleep != nil {
		p.Sleep = r.sleep
	}
	p.OnRetry = func(int) { r.metrics.Retry(r.id) }
	return p
}

// DoRaw sends req with retries but leaves redirects alone. The indexer's
// cookies are attached when req has none and response cookies are merged
// back in.
func (r *Runtime) DoRaw(ctx context.Context, req webclient.Request) (*webclient.Response, error) {
	if req.Cookies == "" {
		req.Cookies = r.Cookies()
	}
	exec := r.instrumented()

	resp, err := r.retryPolicy().Do(ctx, func(ctx context.Context) (*webclient.Response, error) {
		return exec.Execute(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if resp.Cookies != "" || len(resp.ExpiredCookies) > 0 {
		r.storeCookies(resp.Cookies, resp.ExpiredCookies, false)
	}
	return resp, nil
}

// Do sends req, follows redirects while collecting cookies and turns gateway
// errors into SiteDownError. Other statuses are returned as-is.
func (r *Runtime) Do(ctx context.Context, req webclient.Request) (*webclient.Response, error) {
	resp, err := r.DoRaw(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.IsRedirect() {
		res, err := webclient.FollowRedirects(ctx, r.instrumented(), resp, webclient.RedirectOptions{
			Cookies:         r.Cookies(),
			OverrideCookies: req.Cookies,
			Accumulate:      true,
			Logger:          &r.logger,
		})
		if err != nil {
			return nil, err
		}
		r.storeCookies(res.Cookies, res.Expired, false)
		resp = res.Response
	}

	if IsSiteDownStatus(resp.StatusCode) {
		return resp, &SiteDownError{Indexer: r.id, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Fetch is Do that also requires a 2xx answer.
func (r *Runtime) Fetch(ctx context.Context, req webclient.Request) (*webclient.Response, error) {
	resp, err := r.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return resp, webclient.NewStatusError(resp)
	}
	return resp, nil
}

// Get fetches a page relative to the site root.
func (r *Runtime) Get(ctx context.Context, rawURL string) (*webclient.Response, error) {
	return r.Fetch(ctx, r.NewRequest(http.MethodGet, rawURL))
}

// PostForm submits form and follows the resulting redirects. The final
// status is not checked; login pages answer 200 on failure too.
func (r *Runtime) PostForm(ctx context.Context, rawURL string, form url.Values, referer string) (*webclient.Response, error) {
	req := r.NewRequest(http.MethodPost, rawURL)
	req.Form = form
	if referer != "" {
		req.Referer = r.ResolveURL(referer)
	}
	return r.Do(ctx, req)
}

// Download fetches a .torrent file. Magnet links are returned verbatim.
func (r *Runtime) Download(ctx context.Context, link string) ([]byte, error) {
	if strings.HasPrefix(link, "magnet:") {
		return []byte(link), nil
	}
	if link == "" {
		return nil, fmt.Errorf("%s: empty download link", r.id)
	}

	resp, err := r.Fetch(ctx, r.NewRequest(http.MethodGet, link))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (r *Runtime) recordSuccess() {
	r.health.Success()
	r.publishHealth()
}

func (r *Runtime) recordFailure(err error) {
	r.health.Failure(err)
	r.publishHealth()
}

func (r *Runtime) publishHealth() {
	snap := r.health.Snapshot()
	var state float64
	switch snap.Status {
	case health.Healthy:
		state = 1
	case health.Failing:
		state = -1
	}
	r.metrics.Health(r.id, state, snap.ErrorCount)
}
