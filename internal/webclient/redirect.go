package webclient

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// DefaultMaxRedirects bounds how many Location hops are followed.
const DefaultMaxRedirects = 5

// RedirectOptions controls FollowRedirects.
type RedirectOptions struct {
	MaxHops int

	// Cookies is the header collected before the first response.
	Cookies string
	// OverrideCookies replaces (or, with Accumulate, is merged into) Cookies.
	OverrideCookies string
	// Accumulate folds every hop's Set-Cookie pairs into the header sent next.
	Accumulate bool

	Logger *zerolog.Logger
}

// RedirectResult is the outcome of a redirect chain.
type RedirectResult struct {
	Response *Response
	Hops     int
	// Cookies is the header resolved across the chain.
	Cookies string
	// Expired names every cookie a hop deleted. Cookies already reflects it.
	Expired []string
	// Truncated is set when the hop bound stopped the chain early.
	Truncated bool
}

// FollowRedirects walks the Location chain starting at resp. Reaching the hop
// bound is not an error: the last redirect response is returned with
// Truncated set.
func FollowRedirects(ctx context.Context, exec Executor, resp *Response, opts RedirectOptions) (*RedirectResult, error) {
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxRedirects
	}

	jar := opts.Cookies
	var expired []string
	if opts.Accumulate {
		jar = ResolveCookies(jar, opts.OverrideCookies)
		jar = resp.ApplyCookies(jar)
		expired = append(expired, resp.ExpiredCookies...)
	}

	hops := 0
	for resp.IsRedirect() && hops < opts.MaxHops {
		cookies := jar
		if !opts.Accumulate {
			cookies = MergeCookies(jar, opts.OverrideCookies, false)
		}

		next := nextHop(resp, cookies)
		r, err := exec.Execute(ctx, next)
		if err != nil {
			return nil, err
		}
		hops++

		if opts.Accumulate {
			jar = r.ApplyCookies(jar)
			expired = append(expired, r.ExpiredCookies...)
		}
		resp = r
	}

	result := &RedirectResult{
		Response:  resp,
		Hops:      hops,
		Cookies:   jar,
		Expired:   expired,
		Truncated: resp.IsRedirect(),
	}

	if result.Truncated && opts.Logger != nil {
		opts.Logger.Warn().
			Int("hops", hops).
			Str("next", resp.RedirectURL).
			Msg("Redirect limit reached, returning last redirect response")
	}

	return result, nil
}

// nextHop builds the request for resp's Location. 307/308 keep the method
// and body, every other redirect becomes a plain GET.
func nextHop(resp *Response, cookies string) Request {
	prev := resp.Request
	next := Request{
		Method:         http.MethodGet,
		URL:            resp.RedirectURL,
		Headers:        prev.Headers,
		Cookies:        cookies,
		Referer:        prev.URL,
		Encoding:       prev.Encoding,
		EmulateBrowser: prev.EmulateBrowser,
	}
	if resp.StatusCode == http.StatusTemporaryRedirect || resp.StatusCode == http.StatusPermanentRedirect {
		next.Method = prev.method()
		next.Form = prev.Form
		next.RawBody = prev.RawBody
	}
	return next.Clone()
}
