package webclient

import "strings"

// deniedCookies are Cloudflare challenge counters. Sending them back makes some
// gateways answer with 5xx loops, so they never survive a merge.
var deniedCookies = map[string]struct{}{
	"cf_chl_rc_i":  {},
	"cf_chl_rc_ni": {},
	"cf_chl_rc_m":  {},
}

type cookiePair struct {
	name  string
	value string
}

func parseCookieHeader(header string) []cookiePair {
	var out []cookiePair
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, cookiePair{name: name, value: strings.TrimSpace(value)})
	}
	return out
}

// ResolveCookies merges two cookie headers. A name seen later overrides the
// earlier value but keeps its original position; denied names are dropped.
func ResolveCookies(existing, incoming string) string {
	var order []string
	values := make(map[string]string)

	for _, header := range []string{existing, incoming} {
		for _, c := range parseCookieHeader(header) {
			if _, denied := deniedCookies[c.name]; denied {
				continue
			}
			if _, seen := values[c.name]; !seen {
				order = append(order, c.name)
			}
			values[c.name] = c.value
		}
	}

	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, name+"="+values[name])
	}
	return strings.Join(parts, "; ")
}

// MergeCookies picks the header to send on the next hop. With accumulate the
// override is folded into what was collected so far; without it the override
// replaces the collected header whenever it is non-empty.
func MergeCookies(accumulated, override string, accumulate bool) string {
	if accumulate {
		return ResolveCookies(accumulated, override)
	}
	if override != "" {
		return ResolveCookies("", override)
	}
	return ResolveCookies("", accumulated)
}

// RemoveCookie drops name from header.
func RemoveCookie(header, name string) string {
	var parts []string
	for _, c := range parseCookieHeader(header) {
		if c.name == name {
			continue
		}
		parts = append(parts, c.name+"="+c.value)
	}
	return strings.Join(parts, "; ")
}

// CookieValue returns the value of name in header.
func CookieValue(header, name string) (string, bool) {
	for _, c := range parseCookieHeader(header) {
		if c.name == name {
			return c.value, true
		}
	}
	return "", false
}
