// Package finazon provides a client for the Finazon time-series API.
package finazon

import "time"

const (
	// DefaultBaseURL is the US stocks essential dataset endpoint.
	DefaultBaseURL = "https://api.finazon.io/latest/finazon/us_stocks_essential"
	// DefaultTimeout bounds a single upstream call.
	DefaultTimeout = 10 * time.Second
	// PageSize is large enough for a one-year daily window in one page.
	PageSize = 1000
	// SourceName tags bars persisted from this provider.
	SourceName = "finazon"
)

// Config holds configuration for the Finazon API client.
type Config struct {
	APIKey  string        // API key for authentication
	BaseURL string        // Base URL for the API
	Timeout time.Duration // HTTP request timeout
}
