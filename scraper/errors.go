package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrFirstPage marks a seller whose first inventory page could not be read.
// Pagination math is impossible without it, so the seller is skipped.
var ErrFirstPage = errors.New("scraper: first inventory page unavailable")

// ErrorKind categorises upstream failures for logging and metrics.
type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindConnection   ErrorKind = "connection"
	KindUnauthorized ErrorKind = "unauthorized"
	KindNotFound     ErrorKind = "not_found"
	KindRateLimited  ErrorKind = "rate_limited"
	KindStatus       ErrorKind = "status"
	KindDecode       ErrorKind = "decode"
	KindOther        ErrorKind = "other"
)

// APIError is returned for every failed upstream call.
type APIError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newAPIError(rawURL string, statusCode int, err error) *APIError {
	if err == nil {
		err = fmt.Errorf("http status %d", statusCode)
	}
	return &APIError{
		Kind:       classifyError(err, statusCode),
		URL:        rawURL,
		StatusCode: statusCode,
		Err:        err,
	}
}

func classifyError(err error, statusCode int) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindUnauthorized
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode >= http.StatusMultipleChoices:
		return KindStatus
	}
	return KindOther
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return string(classifyError(err, 0))
}
