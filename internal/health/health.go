// Package health tracks whether an indexer has recently been answering
// queries. Claims decay: once a record expires it is neither healthy nor
// failing until the next query refreshes it.
package health

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultHealthyValidity is twice the result cache TTL.
	DefaultHealthyValidity   = 18 * time.Minute
	DefaultErrorBaseValidity = 10 * time.Minute
	DefaultMaxValidity       = 24 * time.Hour
)

// Status is the derived state of a Record.
type Status int

const (
	Unknown Status = iota
	Healthy
	Failing
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Failing:
		return "failing"
	default:
		return "unknown"
	}
}

// Options configures validity windows. Zero fields take the defaults.
type Options struct {
	HealthyValidity   time.Duration
	ErrorBaseValidity time.Duration
	MaxValidity       time.Duration
}

func (o Options) withDefaults() Options {
	if o.HealthyValidity <= 0 {
		o.HealthyValidity = DefaultHealthyValidity
	}
	if o.ErrorBaseValidity <= 0 {
		o.ErrorBaseValidity = DefaultErrorBaseValidity
	}
	if o.MaxValidity <= 0 {
		o.MaxValidity = DefaultMaxValidity
	}
	return o
}

// Snapshot is a point-in-time copy of a Record.
type Snapshot struct {
	Status      Status
	ErrorCount  int
	ExpireAt    time.Time
	LastError   string
	LastSuccess time.Time
	LastFailure time.Time
}

// Record is the health state of one indexer. It is advisory only and never
// blocks a query by itself.
type Record struct {
	mu   sync.Mutex
	opts Options
	now  func() time.Time

	errorCount  int
	expireAt    time.Time
	lastError   string
	lastSuccess time.Time
	lastFailure time.Time
}

// NewRecord creates a record in the Unknown state.
func NewRecord(opts Options) *Record {
	return &Record{
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (r *Record) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Success resets the error count and asserts health for HealthyValidity.
func (r *Record) Success() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.errorCount = 0
	r.expireAt = now.Add(r.opts.HealthyValidity)
	r.lastError = ""
	r.lastSuccess = now
}

// Failure counts one more consecutive failure and asserts the failing state
// for min(MaxValidity, ErrorBaseValidity * 2^errorCount).
func (r *Record) Failure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.errorCount++
	r.expireAt = now.Add(r.failingValidity())
	r.lastFailure = now
	if err != nil {
		r.lastError = err.Error()
	}
}

func (r *Record) failingValidity() time.Duration {
	factor := math.Pow(2, float64(r.errorCount))
	d := float64(r.opts.ErrorBaseValidity) * factor
	if d >= float64(r.opts.MaxValidity) {
		return r.opts.MaxValidity
	}
	return time.Duration(d)
}

// IsHealthy reports no outstanding errors within the validity window.
func (r *Record) IsHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCount == 0 && r.now().Before(r.expireAt)
}

// IsFailing reports outstanding errors within the validity window.
func (r *Record) IsFailing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCount > 0 && r.now().Before(r.expireAt)
}

// Status derives Healthy, Failing or Unknown.
func (r *Record) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Record) statusLocked() Status {
	if !r.now().Before(r.expireAt) {
		return Unknown
	}
	if r.errorCount == 0 {
		return Healthy
	}
	return Failing
}

func (r *Record) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCount
}

func (r *Record) ExpireAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expireAt
}

// Snapshot copies the current state.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Status:      r.statusLocked(),
		ErrorCount:  r.errorCount,
		ExpireAt:    r.expireAt,
		LastError:   r.lastError,
		LastSuccess: r.lastSuccess,
		LastFailure: r.lastFailure,
	}
}
