package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-indexer/internal/cache"
	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/health"
	"github.com/litescript/ls-indexer/internal/release"
	"github.com/litescript/ls-indexer/internal/webclient"
)

const twoRows = `<html><body><table>
<tr class="row"><td class="title">Ubuntu 24.04 Desktop</td><td class="seeders">120</td>
<td><a href="magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=ubuntu">m</a></td></tr>
<tr class="row"><td class="title">Debian 12 Netinst</td><td class="seeders">45</td>
<td><a href="magnet:?xt=urn:btih:89abcdef0123456789abcdef0123456789abcdef&dn=debian">m</a></td></tr>
</table></body></html>`

// rowAdapter parses the fixture markup above.
type rowAdapter struct {
	rt *Runtime
}

func (a *rowAdapter) PerformQuery(ctx context.Context, q Query) ([]release.Release, error) {
	resp, err := a.rt.Get(ctx, "/search?q="+url.QueryEscape(q.SearchTerm))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, err
	}

	var out []release.Release
	doc.Find("tr.row").Each(func(_ int, row *goquery.Selection) {
		r := release.New("")
		r.Title = row.Find("td.title").Text()
		r.Seeders = release.ParseInt(row.Find("td.seeders").Text())
		r.MagnetURI, _ = row.Find("a[href^='magnet:']").Attr("href")
		r.Category = []int{release.CategoryPC}
		out = append(out, r)
	})
	return out, nil
}

type recordingPersister struct {
	mu      sync.Mutex
	headers []string
}

func (p *recordingPersister) UpdateIndexerCookie(_ string, header string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.headers = append(p.headers, header)
	return true, nil
}

func (p *recordingPersister) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.headers) == 0 {
		return ""
	}
	return p.headers[len(p.headers)-1]
}

type testEnv struct {
	rt      *Runtime
	ix      *Indexer
	waits   *[]time.Duration
	persist *recordingPersister
}

func newTestEnv(t *testing.T, siteURL string, mutate ...func(*config.IndexerConfig)) testEnv {
	t.Helper()

	cfg := config.IndexerConfig{ID: "demo", Name: "Demo", Type: config.TypeGeneric, URL: siteURL, Enabled: true}
	for _, m := range mutate {
		m(&cfg)
	}

	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	persist := &recordingPersister{}
	rt := NewRuntime(cfg, RuntimeOptions{
		Executor: webclient.NewHTTPExecutor(webclient.Options{Timeout: 5 * time.Second}),
		Cache:    cache.New(cache.Options{}),
		Cookies:  persist,
		Logger:   zerolog.Nop(),
		Sleep: func(_ context.Context, d time.Duration) error {
			mu.Lock()
			waits = append(waits, d)
			mu.Unlock()
			return nil
		},
	})
	return testEnv{rt: rt, ix: New(&rowAdapter{rt: rt}, rt), waits: &waits, persist: persist}
}

func TestResultsForQueryRetriesThenCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, twoRows)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	assert.False(t, env.ix.IsHealthy())

	got, err := env.ix.ResultsForQuery(context.Background(), Query{SearchTerm: "linux"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ubuntu 24.04 Desktop", got[0].Title)
	assert.Equal(t, 120, got[0].Seeders)
	assert.Equal(t, "demo", got[0].Indexer)
	assert.Equal(t, "0123456789ABCDEF0123456789ABCDEF01234567", got[0].InfoHash)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, *env.waits)
	assert.True(t, env.ix.IsHealthy())
	assert.Equal(t, health.Healthy, env.ix.Status())

	again, err := env.ix.ResultsForQuery(context.Background(), Query{SearchTerm: "  LINUX "})
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int32(2), hits.Load(), "second query must come from the cache")
}

func TestResultsForQuerySiteDown(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	_, err := env.ix.ResultsForQuery(context.Background(), Query{SearchTerm: "x"})
	require.Error(t, err)

	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	var down *SiteDownError
	require.ErrorAs(t, err, &down)
	assert.Equal(t, http.StatusBadGateway, down.StatusCode)
	assert.Contains(t, err.Error(), "tracker seems to be down")

	assert.Equal(t, int32(3), hits.Load())
	assert.Len(t, *env.waits, 2)
	assert.True(t, env.ix.IsFailing())
	assert.Equal(t, 1, env.ix.HealthSnapshot().ErrorCount)
}

func TestResultsForQueryClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	_, err := env.ix.ResultsForQuery(context.Background(), Query{SearchTerm: "x"})
	require.Error(t, err)

	assert.Equal(t, http.StatusNotFound, webclient.StatusCode(err))
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, *env.waits)
	assert.True(t, env.ix.IsFailing())
}

func TestResultsForQueryFailuresAreNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, twoRows)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	_, err := env.ix.ResultsForQuery(context.Background(), Query{SearchTerm: "x"})
	require.Error(t, err)
	require.True(t, env.ix.IsFailing())

	got, err := env.ix.ResultsForQuery(context.Background(), Query{SearchTerm: "x"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, env.ix.IsHealthy())
	assert.Equal(t, 0, env.ix.HealthSnapshot().ErrorCount)
}

func TestResultsForQueryFiltersAndPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, twoRows)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	ctx := context.Background()

	got, err := env.ix.ResultsForQuery(ctx, Query{SearchTerm: "x", Categories: []int{release.CategoryTV}})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = env.ix.ResultsForQuery(ctx, Query{SearchTerm: "x", Categories: []int{release.CategoryPC}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ubuntu 24.04 Desktop", got[0].Title)

	got, err = env.ix.ResultsForQuery(ctx, Query{SearchTerm: "x", Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Debian 12 Netinst", got[0].Title)

	got, err = env.ix.ResultsForQuery(ctx, Query{SearchTerm: "x", Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
}

type blockingAdapter struct{}

func (blockingAdapter) PerformQuery(ctx context.Context, _ Query) ([]release.Release, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResultsForQueryTimeout(t *testing.T) {
	cfg := config.IndexerConfig{ID: "slow", URL: "https://slow.example", QueryTimeout: config.DurationFrom(20 * time.Millisecond)}
	rt := NewRuntime(cfg, RuntimeOptions{Logger: zerolog.Nop()})
	ix := New(blockingAdapter{}, rt)

	_, err := ix.ResultsForQuery(context.Background(), Query{SearchTerm: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, ix.IsFailing())
}

func TestRuntimePersistsCookiesAcrossRedirects(t *testing.T) {
	var finalCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "uid", Value: "7"})
			http.SetCookie(w, &http.Cookie{Name: "cf_chl_rc_i", Value: "1"})
			http.Redirect(w, r, "/index", http.StatusFound)
		case "/index":
			http.SetCookie(w, &http.Cookie{Name: "pass", Value: "hash"})
			http.Redirect(w, r, "/home", http.StatusFound)
		case "/home":
			finalCookie = r.Header.Get("Cookie")
			_, _ = io.WriteString(w, "logged in")
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, func(c *config.IndexerConfig) { c.Cookie = "lang=en" })

	resp, err := env.rt.PostForm(context.Background(), "/login", url.Values{"username": {"a"}}, "/login")
	require.NoError(t, err)
	assert.Equal(t, "logged in", resp.String())

	assert.Equal(t, "lang=en; uid=7; pass=hash", finalCookie)
	assert.Equal(t, "lang=en; uid=7; pass=hash", env.rt.Cookies())
	assert.Equal(t, "lang=en; uid=7; pass=hash", env.persist.last())
	assert.Equal(t, "lang=en; uid=7; pass=hash", env.rt.Config().Cookie)
}

func TestRuntimeDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dl/1.torrent" {
			_, _ = w.Write([]byte("d8:announce"))
			return
		}
		if r.URL.Path == "/dl/redirect" {
			http.Redirect(w, r, "/dl/1.torrent", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	ctx := context.Background()

	b, err := env.ix.Download(ctx, "magnet:?xt=urn:btih:abc")
	require.NoError(t, err)
	assert.Equal(t, "magnet:?xt=urn:btih:abc", string(b))

	b, err = env.ix.Download(ctx, "/dl/redirect")
	require.NoError(t, err)
	assert.Equal(t, "d8:announce", string(b))

	_, err = env.ix.Download(ctx, srv.URL+"/dl/missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, webclient.StatusCode(err))

	_, err = env.ix.Download(ctx, "")
	assert.Error(t, err)
}

type loginAdapter struct {
	rowAdapter
	err error
}

// ApplyConfiguration drops the session the way a real login does before
// posting credentials.
func (a *loginAdapter) ApplyConfiguration(context.Context, config.IndexerConfig) (ConfigStatus, error) {
	a.rt.ClearCookies()
	return StatusCompleted, a.err
}

func TestApplyConfiguration(t *testing.T) {
	env := newTestEnv(t, "https://demo.example")

	failing := New(&loginAdapter{rowAdapter: rowAdapter{rt: env.rt}, err: errors.New("bad password")}, env.rt)
	_, err := failing.ApplyConfiguration(context.Background(), config.IndexerConfig{
		URL: "https://other.example", Username: "alice", Password: "secret",
	})
	require.Error(t, err)

	var issue *ConfigurationIssue
	require.ErrorAs(t, err, &issue)
	assert.Equal(t, "demo", issue.Indexer)
	assert.Equal(t, "********", issue.Config.Password)
	assert.Equal(t, "https://demo.example", env.rt.BaseURL(), "previous config restored")

	ok := New(&loginAdapter{rowAdapter: rowAdapter{rt: env.rt}}, env.rt)
	status, err := ok.ApplyConfiguration(context.Background(), config.IndexerConfig{URL: "https://other.example"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, "https://other.example", env.rt.BaseURL())
	assert.Equal(t, "demo", env.rt.Config().ID)
}

func TestRuntimeResolveURL(t *testing.T) {
	env := newTestEnv(t, "https://demo.example/tracker/")

	assert.Equal(t, "https://demo.example/tracker/browse.php", env.rt.ResolveURL("browse.php"))
	assert.Equal(t, "https://demo.example/details/1", env.rt.ResolveURL("/details/1"))
	assert.Equal(t, "https://cdn.example/x", env.rt.ResolveURL("https://cdn.example/x"))
}

func TestConcurrentQueriesShareCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, twoRows)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.ix.ResultsForQuery(context.Background(), Query{SearchTerm: fmt.Sprintf("q%d", n%2)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, hits.Load(), int32(8))
	assert.True(t, env.ix.IsHealthy())
}

func TestRejectedConfigurationKeepsStoredSession(t *testing.T) {
	env := newTestEnv(t, "https://demo.example", func(c *config.IndexerConfig) { c.Cookie = "uid=7; pass=hash" })

	failing := New(&loginAdapter{rowAdapter: rowAdapter{rt: env.rt}, err: errors.New("bad password")}, env.rt)
	_, err := failing.ApplyConfiguration(context.Background(), config.IndexerConfig{
		URL: "https://demo.example", Username: "alice", Password: "wrong",
	})
	require.Error(t, err)

	assert.Equal(t, "uid=7; pass=hash", env.rt.Cookies())
	assert.Equal(t, "uid=7; pass=hash", env.rt.Config().Cookie)
	assert.Equal(t, "uid=7; pass=hash", env.persist.last())
}

func TestRuntimeDropsDeletedCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/logout":
			http.SetCookie(w, &http.Cookie{Name: "pass", Value: "deleted", MaxAge: -1})
			http.Redirect(w, r, "/bye", http.StatusFound)
		case "/bye":
			http.SetCookie(w, &http.Cookie{Name: "uid", Value: "", MaxAge: -1})
			_, _ = io.WriteString(w, "bye")
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, func(c *config.IndexerConfig) { c.Cookie = "lang=en; uid=7; pass=hash" })

	_, err := env.rt.Get(context.Background(), "/logout")
	require.NoError(t, err)

	assert.Equal(t, "lang=en", env.rt.Cookies())
	assert.Equal(t, "lang=en", env.persist.last())
}

func TestConcurrentCookieSavesEndOnLatestMerge(t *testing.T) {
	env := newTestEnv(t, "https://demo.example")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			env.rt.storeCookies(fmt.Sprintf("c%d=%d", n%4, n), nil, false)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, env.rt.Cookies(), env.persist.last())
}

func TestHealthyValidityFollowsCacheTTL(t *testing.T) {
	rt := NewRuntime(config.IndexerConfig{ID: "demo", URL: "https://demo.example"}, RuntimeOptions{
		Cache:  cache.New(cache.Options{TTL: 2 * time.Minute}),
		Logger: zerolog.Nop(),
	})
	rt.recordSuccess()
	snap := rt.Health().Snapshot()
	assert.Equal(t, health.Healthy, snap.Status)
	assert.WithinDuration(t, time.Now().Add(4*time.Minute), snap.ExpireAt, 5*time.Second)

	explicit := NewRuntime(config.IndexerConfig{ID: "demo", URL: "https://demo.example"}, RuntimeOptions{
		Cache:  cache.New(cache.Options{TTL: 2 * time.Minute}),
		Health: health.Options{HealthyValidity: time.Hour},
		Logger: zerolog.Nop(),
	})
	explicit.recordSuccess()
	assert.WithinDuration(t, time.Now().Add(time.Hour), explicit.Health().Snapshot().ExpireAt, 5*time.Second)
}
