package indexer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/metrics"
)

// ErrNotConfigured is returned when an indexer is used before it has the
// settings it needs.
var ErrNotConfigured = errors.New("indexer not configured")

// siteDownStatuses are gateway and Cloudflare origin errors.
var siteDownStatuses = map[int]struct{}{
	http.StatusBadGateway:     {},
	http.StatusGatewayTimeout: {},
	521:                       {},
	522:                       {},
	523:                       {},
}

// IsSiteDownStatus reports whether status means the site itself is offline.
func IsSiteDownStatus(status int) bool {
	_, ok := siteDownStatuses[status]
	return ok
}

// SiteDownError means the tracker answered with a gateway error after all
// retries.
type SiteDownError struct {
	Indexer    string
	StatusCode int
}

func (e *SiteDownError) Error() string {
	return fmt.Sprintf("%s: tracker seems to be down (HTTP %d)", e.Indexer, e.StatusCode)
}

// ConfigurationIssue reports a login or settings failure. Config carries the
// redacted settings so a caller can prompt for new ones. It is never retried.
type ConfigurationIssue struct {
	Indexer string
	Config  config.IndexerConfig
	Err     error
}

func (e *ConfigurationIssue) Error() string {
	return fmt.Sprintf("%s: configuration problem: %v", e.Indexer, e.Err)
}

func (e *ConfigurationIssue) Unwrap() error { return e.Err }

// NewConfigurationIssue redacts cfg before attaching it.
func NewConfigurationIssue(cfg config.IndexerConfig, err error) *ConfigurationIssue {
	return &ConfigurationIssue{Indexer: cfg.ID, Config: cfg.Redacted(), Err: err}
}

// ParseError means a page did not have the expected structure.
type ParseError struct {
	Indexer string
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error: %v", e.Indexer, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// QueryError wraps whatever made a query fail. It is what ResultsForQuery
// returns and what the health record counted.
type QueryError struct {
	Indexer string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: query failed: %v", e.Indexer, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// outcome classifies err for metrics.
func outcome(err error) string {
	var siteDown *SiteDownError
	var cfgIssue *ConfigurationIssue
	switch {
	case errors.As(err, &siteDown):
		return metrics.OutcomeSiteDown
	case errors.As(err, &cfgIssue):
		return metrics.OutcomeAuth
	default:
		return metrics.OutcomeError
	}
}
