package provider

import "errors"

// Sentinel errors for the failure classes callers react to differently.
// Everything else is a generic transport or API error.
var (
	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("provider: request timed out")

	// ErrRateLimited indicates the backend rejected the request with a
	// rate-limit response.
	ErrRateLimited = errors.New("provider: rate limited")
)
