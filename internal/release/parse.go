package release

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MagnetName parses the dn (display name) parameter of a magnet link
func MagnetName(magnet string) string {
	if idx := strings.Index(magnet, "dn="); idx != -1 {
		end := strings.Index(magnet[idx:], "&")
		var name string
		if end == -1 {
			name = magnet[idx+3:]
		} else {
			name = magnet[idx+3 : idx+end]
		}
		decoded, err := url.QueryUnescape(name)
		if err == nil {
			return decoded
		}
		return strings.ReplaceAll(name, "+", " ")
	}
	return ""
}

var btihRegex = regexp.MustCompile(`(?i)urn:btih:([a-z0-9]{32,40})`)

// InfoHashFromMagnet returns the upper-cased btih of a magnet link
func InfoHashFromMagnet(magnet string) string {
	m := btihRegex.FindStringSubmatch(magnet)
	if len(m) < 2 {
		return ""
	}
	return strings.ToUpper(m[1])
}

var sizeRegex = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(TIB|GIB|MIB|KIB|TB|GB|MB|KB|B)\b`)

// FindSize returns the first size-looking token in text, e.g. "1.4 GB"
func FindSize(text string) string {
	matches := sizeRegex.FindStringSubmatch(text)
	if len(matches) >= 3 {
		return matches[1] + " " + strings.ToUpper(matches[2])
	}
	return ""
}

// ParseSize converts "1.4 GB", "700MiB" or a plain byte count to bytes.
// Units are binary.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}

	matches := sizeRegex.FindStringSubmatch(s)
	if len(matches) < 3 {
		return 0
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(matches[1], ",", "."), 64)
	if err != nil {
		return 0
	}

	var multiplier float64 = 1
	switch strings.ToLower(matches[2]) {
	case "kb", "kib":
		multiplier = 1 << 10
	case "mb", "mib":
		multiplier = 1 << 20
	case "gb", "gib":
		multiplier = 1 << 30
	case "tb", "tib":
		multiplier = 1 << 40
	}
	return int64(val * multiplier)
}

// FormatSize renders bytes for display
func FormatSize(b int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
		tb = 1024 * gb
	)
	switch {
	case b <= 0:
		return "-"
	case b < kb:
		return fmt.Sprintf("%d B", b)
	case b < mb:
		return trimFloat(float64(b)/kb) + " KB"
	case b < gb:
		return trimFloat(float64(b)/mb) + " MB"
	case b < tb:
		return trimFloat(float64(b)/gb) + " GB"
	}
	return trimFloat(float64(b)/tb) + " TB"
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", f), ".0")
}

var numberRegex = regexp.MustCompile(`\d+`)

// FindNumber looks for a number within 50 characters of any hint. Numbers
// after the hint win over the closest one before it.
func FindNumber(text string, hints []string) int {
	textLower := strings.ToLower(text)

	for _, hint := range hints {
		idx := strings.Index(textLower, hint)
		if idx == -1 {
			continue
		}

		window := 50
		start := max(idx-window, 0)
		end := min(idx+len(hint)+window, len(text))

		for _, m := range numberRegex.FindAllString(text[idx+len(hint):end], -1) {
			if n, err := strconv.Atoi(m); err == nil && n < 1000000 {
				return n
			}
		}
		before := numberRegex.FindAllString(text[start:idx], -1)
		for i := len(before) - 1; i >= 0; i-- {
			if n, err := strconv.Atoi(before[i]); err == nil && n < 1000000 {
				return n
			}
		}
	}

	return 0
}

// ParseInt reads the digits of s, ignoring thousands separators and noise.
func ParseInt(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, _ := strconv.Atoi(digits.String())
	return n
}

var (
	dateTimeRegex   = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)
	timeagoRegex    = regexp.MustCompile(`(?i)(\d+)\s*(min|minute|hour|day|week|month|year)s?\s*ago`)
	yesterdayRegex  = regexp.MustCompile(`(?i)^(yesterday|1 day ago)`)
	todayRegex      = regexp.MustCompile(`(?i)^(today|just now)`)
	dateTimeLayouts = []string{
		time.RFC3339, "2006-01-02 15:04:05", time.RFC1123, time.RFC1123Z,
		"2006-01-02", "02.01.2006 15:04", "02.01.2006", "Jan 2, 2006", "2 Jan 2006",
	}
)

// ParseDate understands absolute layouts, unix timestamps and relative
// forms like "3 hours ago".
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if todayRegex.MatchString(s) {
		return now, nil
	}
	if yesterdayRegex.MatchString(s) {
		return now.AddDate(0, 0, -1), nil
	}

	if m := timeagoRegex.FindStringSubmatch(s); len(m) == 3 {
		value, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "min", "minute":
			return now.Add(-time.Duration(value) * time.Minute), nil
		case "hour":
			return now.Add(-time.Duration(value) * time.Hour), nil
		case "day":
			return now.AddDate(0, 0, -value), nil
		case "week":
			return now.AddDate(0, 0, -value*7), nil
		case "month":
			return now.AddDate(0, -value, 0), nil
		case "year":
			return now.AddDate(-value, 0, 0), nil
		}
	}

	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}

	if m := dateTimeRegex.FindString(s); m != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", m); err == nil {
			return t, nil
		}
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse date: %s", s)
}
