// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ayla

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized        = errors.New("ayla: access token rejected")
	ErrNotFound            = errors.New("ayla: resource not found")
	ErrRateLimited         = errors.New("ayla: rate limited")
	ErrUpstreamUnavailable = errors.New("ayla: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("ayla: internal error (5xx)")
	ErrBadResponse         = errors.New("ayla: invalid response format or malformed data")
	ErrTimeout             = errors.New("ayla: request timed out")

	// ErrNoRefreshToken is returned when the token file holds no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token found")
	// ErrTokenPath is returned for a token path without a .json extension.
	ErrTokenPath = errors.New("token path must point to a .json file")
	// ErrNoAccessToken is returned for calls made before a token refresh.
	ErrNoAccessToken = errors.New("ayla: no access token, call RefreshAccessToken first")
)

// APIError wraps a sentinel with the operation and response details.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("ayla: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the sentinel and, when present, the underlying cause.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// classifyStatus maps a non-2xx status to its sentinel.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrUpstreamError
	default:
		return ErrBadResponse
	}
}

// classifyTransport maps a transport error to its sentinel.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUpstreamUnavailable
}

// countsAgainstBreaker reports whether err says the remote side is unhealthy.
func countsAgainstBreaker(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamError) ||
		errors.Is(err, ErrTimeout)
}
