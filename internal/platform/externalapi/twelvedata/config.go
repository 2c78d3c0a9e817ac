// Package twelvedata provides a client for the Twelve Data stock market API.
package twelvedata

import "time"

const (
	// DefaultBaseURL is the public REST endpoint.
	DefaultBaseURL = "https://api.twelvedata.com"
	// OutputSize is the maximum number of rows a single time_series call returns.
	OutputSize = 5000
	// SourceName tags bars persisted from this provider.
	SourceName = "twelvedata"
)

// Config holds configuration for the Twelve Data API client.
type Config struct {
	TwelveDataAPIKey string        // API key for authentication
	BaseURL          string        // Base URL for the API (e.g., "https://api.twelvedata.com")
	Timeout          time.Duration // HTTP request timeout
}
