package generic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/release"
	"github.com/litescript/ls-indexer/internal/webclient"
)

const magnetList = `<html><body><ul>
<li><a href="/torrent/1">Ubuntu Desktop ISO</a> <span>Seeders: 12</span> <span>Leechers: 3</span> <span>1.5 GB</span>
<a href="magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=ubuntu-desktop.iso">magnet</a></li>
<li><a href="/torrent/2">Debian Netinst</a> <span>Seeders: 4</span> <span>Leechers: 0</span> <span>700 MB</span>
<a href="magnet:?xt=urn:btih:89abcdef0123456789abcdef0123456789abcdef&dn=debian.iso">magnet</a></li>
</ul></body></html>`

const torrentTable = `<html><body><table>
<tr><th>Name</th><th></th><th>Size</th><th>S</th><th>L</th></tr>
<tr>
  <td><a href="/torrent/details/5">Big Buck Bunny</a></td>
  <td><a href="/dl/5.torrent">dl</a></td>
  <td>1.5 GiB</td>
  <td>seed 30</td>
  <td>leech 2</td>
</tr>
</table></body></html>`

func newIndexer(t *testing.T, cfg config.IndexerConfig) (*indexer.Indexer, *Adapter) {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "generic"
	}
	rt := indexer.NewRuntime(cfg, indexer.RuntimeOptions{Logger: zerolog.Nop()})
	a, err := Factory(rt, cfg)
	require.NoError(t, err)
	return indexer.New(a, rt), a.(*Adapter)
}

func TestSearchFindsMagnets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/ubuntu/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, magnetList)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ix, a := newIndexer(t, config.IndexerConfig{URL: srv.URL, Extra: map[string]string{KeyCategory: "PC"}})
	got, err := ix.ResultsForQuery(context.Background(), indexer.Query{SearchTerm: "ubuntu"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "ubuntu-desktop.iso", first.Title)
	assert.Equal(t, 12, first.Seeders)
	assert.Equal(t, 15, first.Peers)
	assert.Equal(t, int64(1610612736), first.Size)
	assert.Equal(t, srv.URL+"/torrent/1", first.Details)
	assert.Equal(t, "0123456789ABCDEF0123456789ABCDEF01234567", first.InfoHash)
	assert.Equal(t, []int{release.CategoryPC}, first.Category)
	assert.Equal(t, "generic", first.Indexer)

	assert.Equal(t, 4, got[1].Seeders)
	assert.Equal(t, int64(700<<20), got[1].Size)
	assert.Equal(t, "/search/%s/", a.SearchPattern())
}

func TestSearchTableFallbackWithConfiguredPattern(t *testing.T) {
	var terms []string
	mux := http.NewServeMux()
	mux.HandleFunc("/browse.php", func(w http.ResponseWriter, r *http.Request) {
		terms = append(terms, r.URL.Query().Get("q"))
		fmt.Fprint(w, torrentTable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ix, _ := newIndexer(t, config.IndexerConfig{URL: srv.URL, Extra: map[string]string{KeySearchPath: "/browse.php?q=%s"}})
	got, err := ix.ResultsForQuery(context.Background(), indexer.Query{SearchTerm: "Big Buck", Season: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, "Big Buck Bunny", r.Title)
	assert.Equal(t, srv.URL+"/torrent/details/5", r.Details)
	assert.Equal(t, srv.URL+"/dl/5.torrent", r.Link)
	assert.Equal(t, 30, r.Seeders)
	assert.Equal(t, 32, r.Peers)
	assert.Equal(t, int64(1610612736), r.Size)
	assert.Equal(t, []int{release.CategoryOther}, r.Category)
	assert.Equal(t, []string{"Big Buck S01"}, terms)
}

func TestSearchWithoutHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Nothing here</body></html>")
	}))
	defer srv.Close()

	ix, a := newIndexer(t, config.IndexerConfig{URL: srv.URL})
	got, err := ix.ResultsForQuery(context.Background(), indexer.Query{SearchTerm: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, a.SearchPattern())
	assert.True(t, ix.IsHealthy())
}

func TestSearchAllPatternsFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ix, _ := newIndexer(t, config.IndexerConfig{URL: srv.URL})
	_, err := ix.ResultsForQuery(context.Background(), indexer.Query{SearchTerm: "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, webclient.StatusCode(err))
	assert.True(t, ix.IsFailing())
}

func TestRSSReadsFrontPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, magnetList)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ix, _ := newIndexer(t, config.IndexerConfig{URL: srv.URL})
	got, err := ix.ResultsForQuery(context.Background(), indexer.Query{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func loginServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Welcome back, torrent fan</body></html>")
	})
	mux.HandleFunc("/takelogin.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("user") == "alice" && r.PostForm.Get("pass") == "secret" && r.PostForm.Get("remember") == "1" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		fmt.Fprint(w, `<form><input name="user"><input type="password" name="pass"></form>`)
	})
	mux.HandleFunc("/search/ubuntu/", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			http.Redirect(w, r, "/takelogin.php", http.StatusFound)
			return
		}
		fmt.Fprint(w, magnetList)
	})
	return httptest.NewServer(mux)
}

func loginConfig(url, password string) config.IndexerConfig {
	cfg := config.IndexerConfig{
		ID:       "private",
		URL:      url,
		Username: "alice",
		Password: password,
		Extra: map[string]string{
			KeyLoginPath:     "/takelogin.php",
			KeyUsernameField: "user",
			KeyPasswordField: "pass",
		},
	}
	cfg.Extra[loginFormPrefix+"remember"] = "1"
	return cfg
}

func TestApplyConfigurationLogsIn(t *testing.T) {
	srv := loginServer(t)
	defer srv.Close()

	ix, _ := newIndexer(t, config.IndexerConfig{ID: "private", URL: srv.URL})
	status, err := ix.ApplyConfiguration(context.Background(), loginConfig(srv.URL, "secret"))
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusCompleted, status)

	v, ok := webclient.CookieValue(ix.Runtime().Cookies(), "session")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	got, err := ix.ResultsForQuery(context.Background(), indexer.Query{SearchTerm: "ubuntu"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestApplyConfigurationRejectsBadPassword(t *testing.T) {
	srv := loginServer(t)
	defer srv.Close()

	ix, _ := newIndexer(t, config.IndexerConfig{ID: "private", URL: srv.URL})
	_, err := ix.ApplyConfiguration(context.Background(), loginConfig(srv.URL, "wrong"))
	require.Error(t, err)

	var issue *indexer.ConfigurationIssue
	require.True(t, errors.As(err, &issue))
	assert.Equal(t, "private", issue.Indexer)
	assert.Equal(t, "********", issue.Config.Password)
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Empty(t, ix.Runtime().Config().Password)
}

func TestQueryLogsInWhenSessionMissing(t *testing.T) {
	srv := loginServer(t)
	defer srv.Close()

	ix, _ := newIndexer(t, loginConfig(srv.URL, "secret"))
	got, err := ix.ResultsForQuery(context.Background(), indexer.Query{SearchTerm: "ubuntu"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, ix.Runtime().Cookies(), "session=abc")
}

func TestDownloadResolvesDetailsPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrent/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="magnet:?xt=urn:btih:abc&dn=x">Magnet</a>`)
	})
	mux.HandleFunc("/torrent/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/files/2.torrent">Download</a>`)
	})
	mux.HandleFunc("/files/2.torrent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-bittorrent")
		fmt.Fprint(w, "d8:announce0:e")
	})
	mux.HandleFunc("/torrent/3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>removed</p>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ix, _ := newIndexer(t, config.IndexerConfig{URL: srv.URL})
	ctx := context.Background()

	body, err := ix.Download(ctx, srv.URL+"/torrent/1")
	require.NoError(t, err)
	assert.Equal(t, "magnet:?xt=urn:btih:abc&dn=x", string(body))

	body, err = ix.Download(ctx, srv.URL+"/torrent/2")
	require.NoError(t, err)
	assert.Equal(t, "d8:announce0:e", string(body))

	body, err = ix.Download(ctx, srv.URL+"/files/2.torrent")
	require.NoError(t, err)
	assert.Equal(t, "d8:announce0:e", string(body))

	_, err = ix.Download(ctx, srv.URL+"/torrent/3")
	assert.ErrorContains(t, err, "no download link")
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://tracker.example/browse?x=1", "https://tracker.example", false},
		{"tracker.example", "https://tracker.example", false},
		{"http://tracker.example:8080/", "http://tracker.example:8080", false},
		{"ftp://tracker.example", "", true},
		{"", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestFactoryRejectsBadURL(t *testing.T) {
	rt := indexer.NewRuntime(config.IndexerConfig{ID: "x"}, indexer.RuntimeOptions{Logger: zerolog.Nop()})
	_, err := Factory(rt, config.IndexerConfig{ID: "x", URL: "ftp://nope"})
	assert.Error(t, err)
}
