package webclient

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
	Preview    string
}

func (e *StatusError) Error() string {
	if e.Preview == "" {
		return fmt.Sprintf("%s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s returned %d %s: %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Preview)
}

// NewStatusError builds a StatusError from resp.
func NewStatusError(resp *Response) *StatusError {
	return &StatusError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL,
		Preview:    resp.Preview(200),
	}
}

// StatusCode extracts the HTTP status from err, or 0 when it carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
