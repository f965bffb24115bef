package webclient

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	browserAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Executor issues exactly one HTTP request. It never follows redirects on its
// own; FollowRedirects does that with cookie propagation.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (*Response, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Options controls HTTPExecutor behaviour.
type Options struct {
	Timeout      time.Duration
	UserAgent    string // overrides the emulated browser agent when set
	MaxBodyBytes int64
	Transport    http.RoundTripper
}

// HTTPExecutor implements Executor over net/http.
type HTTPExecutor struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewHTTPExecutor creates an executor with redirects disabled.
func NewHTTPExecutor(opts Options) *HTTPExecutor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 16 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = browserUserAgent
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return &HTTPExecutor{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// Execute performs req and reads the full body.
func (e *HTTPExecutor) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, errors.New("request URL is empty")
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.RawBody != "":
		body = strings.NewReader(req.RawBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if req.EmulateBrowser {
		httpReq.Header.Set("User-Agent", e.userAgent)
		httpReq.Header.Set("Accept", browserAccept)
		httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	}
	httpReq.Header.Set("Accept-Encoding", "gzip, br")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Referer != "" {
		httpReq.Header.Set("Referer", req.Referer)
	}
	if req.Cookies != "" {
		httpReq.Header.Set("Cookie", req.Cookies)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, req.URL, err)
	}

	data, err := e.readBody(resp)
	if err != nil {
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
		Request:    req.Clone(),
	}
	out.Cookies, out.ExpiredCookies = cookieHeaderFrom(resp)
	out.RedirectURL = redirectTarget(httpReq.URL, resp)

	return out, nil
}

func (e *HTTPExecutor) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	data, err := io.ReadAll(io.LimitReader(reader, e.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > e.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", e.maxBodyBytes)
	}
	return data, nil
}

// cookieHeaderFrom collapses Set-Cookie lines into "name=value; ..." form.
// Cookies the server deletes (Max-Age<=0 or an Expires in the past) are
// returned by name instead.
func cookieHeaderFrom(resp *http.Response) (string, []string) {
	var (
		parts   []string
		expired []string
	)
	now := time.Now()
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || (c.MaxAge == 0 && !c.Expires.IsZero() && c.Expires.Before(now)) {
			expired = append(expired, c.Name)
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; "), expired
}

func redirectTarget(base *url.URL, resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return ""
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return ""
	}
	target, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	return base.ResolveReference(target).String()
}
