// Package qbit hands releases to a qBittorrent instance through its Web API.
// Requests go through the same webclient executor and retry policy the
// indexers use; the session cookie is kept as a flat header.
package qbit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/litescript/ls-indexer/internal/webclient"
)

// ErrLoginFailed means qBittorrent rejected the credentials.
var ErrLoginFailed = errors.New("qbittorrent login failed")

// Options configures a Client.
type Options struct {
	URL      string // e.g. http://localhost:8080
	Username string
	Password string
	SavePath string
	Category string
	Retries  int
}

// Client interfaces with qBittorrent Web API
type Client struct {
	exec   webclient.Executor
	opts   Options
	retry  *webclient.RetryPolicy
	logger zerolog.Logger

	mu      sync.Mutex
	cookies string
}

// NewClient creates a client. A nil exec uses a plain HTTPExecutor.
func NewClient(opts Options, exec webclient.Executor, logger zerolog.Logger) *Client {
	if exec == nil {
		exec = webclient.NewHTTPExecutor(webclient.Options{})
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	return &Client{
		exec:   exec,
		opts:   opts,
		retry:  webclient.NewRetryPolicy(opts.Retries, logger),
		logger: logger,
	}
}

func (c *Client) endpoint(path string) string {
	return c.opts.URL + "/api/v2/" + path
}

func (c *Client) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookies
}

// Login authenticates and stores the SID cookie.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.opts.Username)
	form.Set("password", c.opts.Password)

	resp, err := c.retry.Do(ctx, func(ctx context.Context) (*webclient.Response, error) {
		return c.exec.Execute(ctx, webclient.Request{
			Method: http.MethodPost,
			URL:    c.endpoint("auth/login"),
			Form:   form,
			// qBittorrent checks Referer/Origin against its own host.
			Referer: c.opts.URL,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to connect to qBittorrent: %w", err)
	}
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(resp.String()) != "Ok." {
		return fmt.Errorf("%w: %s", ErrLoginFailed, strings.TrimSpace(resp.Preview(100)))
	}

	c.mu.Lock()
	c.cookies = resp.ApplyCookies(c.cookies)
	c.mu.Unlock()
	c.logger.Debug().Str("url", c.opts.URL).Msg("Logged in to qBittorrent")
	return nil
}

// do sends req with the session cookie, logging in first when there is no
// session and once more when the session has expired (403).
func (c *Client) do(ctx context.Context, req webclient.Request) (*webclient.Response, error) {
	if c.session() == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	send := func() (*webclient.Response, error) {
		r := req.Clone()
		r.Cookies = c.session()
		return c.retry.Do(ctx, func(ctx context.Context) (*webclient.Response, error) {
			return c.exec.Execute(ctx, r)
		})
	}

	resp, err := send()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		if resp, err = send(); err != nil {
			return nil, err
		}
	}
	if !resp.IsSuccess() {
		return nil, webclient.NewStatusError(resp)
	}
	return resp, nil
}

// Version returns the qBittorrent version
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, webclient.Request{Method: http.MethodGet, URL: c.endpoint("app/version")})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.String()), nil
}

// Add hands over a payload as returned by an indexer download: a magnet URI
// or the bytes of a .torrent file.
func (c *Client) Add(ctx context.Context, name string, payload []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if bytes.HasPrefix(payload, []byte("magnet:")) {
		_ = w.WriteField("urls", string(payload))
	} else {
		part, err := w.CreateFormFile("torrents", name+".torrent")
		if err != nil {
			return err
		}
		if _, err := part.Write(payload); err != nil {
			return err
		}
	}
	if c.opts.SavePath != "" {
		_ = w.WriteField("savepath", c.opts.SavePath)
	}
	if c.opts.Category != "" {
		_ = w.WriteField("category", c.opts.Category)
	}
	if err := w.Close(); err != nil {
		return err
	}

	resp, err := c.do(ctx, webclient.Request{
		Method:  http.MethodPost,
		URL:     c.endpoint("torrents/add"),
		RawBody: body.String(),
		Headers: map[string]string{"Content-Type": w.FormDataContentType()},
	})
	if err != nil {
		return fmt.Errorf("failed to add torrent: %w", err)
	}
	if s := strings.TrimSpace(resp.String()); s == "Fails." {
		return errors.New("failed to add torrent: rejected by qBittorrent")
	}
	c.logger.Info().Str("name", name).Msg("Sent to qBittorrent")
	return nil
}
