package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   ErrorKind
	}{
		{name: "context timeout", err: context.DeadlineExceeded, expected: KindTimeout},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: KindTimeout},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: KindConnection},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, expected: KindUnauthorized},
		{name: "forbidden", statusCode: http.StatusForbidden, expected: KindUnauthorized},
		{name: "not found", statusCode: http.StatusNotFound, expected: KindNotFound},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, expected: KindRateLimited},
		{name: "server error", statusCode: http.StatusBadGateway, expected: KindStatus},
		{name: "other", err: errors.New("some other error"), expected: KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err, tt.statusCode); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "api error", err: newAPIError("https://api.test/x", http.StatusNotFound, nil), expected: "not_found"},
		{name: "wrapped api error", err: fmt.Errorf("page 2: %w", &APIError{Kind: KindDecode}), expected: "decode"},
		{name: "canceled", err: context.Canceled, expected: "canceled"},
		{name: "plain", err: errors.New("boom"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.expected {
				t.Fatalf("errorTypeLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestAPIErrorUnwrap(t *testing.T) {
	err := newAPIError("https://api.test/x", 0, context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if err.Kind != KindTimeout {
		t.Fatalf("kind = %q, want timeout", err.Kind)
	}
}
