// Package webclient is the HTTP layer shared by every indexer. It issues
// single requests, merges cookie headers across redirect chains and retries
// transient failures with exponential backoff.
package webclient

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Request describes one HTTP call. Build it, hand it to an Executor and do not
// touch it afterwards.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Cookies string // flat "a=1; b=2" header
	Referer string

	// Form is sent urlencoded; RawBody is sent as-is. Form wins when both are set.
	Form    url.Values
	RawBody string

	// Encoding is a charset label ("windows-1251", "iso-8859-1") used to decode
	// the response body. Empty means detect from Content-Type.
	Encoding string

	// EmulateBrowser adds desktop browser User-Agent/Accept headers.
	EmulateBrowser bool
}

// Clone returns a copy that shares nothing mutable with r.
func (r Request) Clone() Request {
	out := r
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	if r.Form != nil {
		out.Form = make(url.Values, len(r.Form))
		for k, v := range r.Form {
			out.Form[k] = append([]string(nil), v...)
		}
	}
	return out
}

func (r Request) method() string {
	if r.Method != "" {
		return strings.ToUpper(r.Method)
	}
	if r.Form != nil || r.RawBody != "" {
		return http.MethodPost
	}
	return http.MethodGet
}

// Response is what an Executor hands back. It is read-only once returned.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Cookies holds the Set-Cookie pairs of this response as a flat header.
	Cookies string
	// ExpiredCookies names the cookies this response deleted.
	ExpiredCookies []string

	// RedirectURL is the absolute Location target of a 3xx response, empty otherwise.
	RedirectURL string

	Request Request
}

// IsRedirect reports whether the response points somewhere else.
func (r *Response) IsRedirect() bool {
	return r != nil && r.RedirectURL != ""
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// String decodes the body using the request encoding, falling back to the
// Content-Type charset and finally to the raw bytes.
func (r *Response) String() string {
	if r == nil || len(r.Body) == 0 {
		return ""
	}

	var (
		reader io.Reader
		err    error
	)
	if r.Request.Encoding != "" {
		reader, err = charset.NewReaderLabel(r.Request.Encoding, bytes.NewReader(r.Body))
	} else {
		reader, err = charset.NewReader(bytes.NewReader(r.Body), r.Header.Get("Content-Type"))
	}
	if err != nil {
		return string(r.Body)
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(r.Body)
	}
	return string(decoded)
}

// Preview returns at most n bytes of the body, for log lines. The cut never
// splits a UTF-8 sequence.
func (r *Response) Preview(n int) string {
	s := r.String()
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ApplyCookies folds the response's cookies into existing: deleted names are
// dropped, then the new pairs are merged.
func (r *Response) ApplyCookies(existing string) string {
	if r == nil {
		return existing
	}
	for _, name := range r.ExpiredCookies {
		existing = RemoveCookie(existing, name)
	}
	return ResolveCookies(existing, r.Cookies)
}
