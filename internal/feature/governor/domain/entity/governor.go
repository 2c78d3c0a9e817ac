// Package entity defines the domain models for the request governor.
package entity

import "time"

// DecisionKind classifies the outcome of an admission check.
type DecisionKind string

const (
	KindGranted     DecisionKind = "granted"
	KindDailyBudget DecisionKind = "daily_budget"
	KindKeyBudget   DecisionKind = "key_budget"
	KindRateLimited DecisionKind = "rate_limited"
)

const (
	ReasonOK          = "OK"
	ReasonDailyBudget = "Daily Budget Exceeded"
	ReasonRateLimited = "Rate Limited (RPM)"
)

// Decision is the result of asking the governor for one upstream request.
// A rejection is a normal outcome, not an error.
type Decision struct {
	Granted bool
	Reason  string
	Kind    DecisionKind
}

// Exhausted reports whether no further request for the same key can be granted today.
// Rate-limit rejections are transient and return false.
func (d Decision) Exhausted() bool {
	return d.Kind == KindDailyBudget || d.Kind == KindKeyBudget
}

// State is the durable governance record.
type State struct {
	Date            string         `json:"date"` // UTC calendar date, YYYY-MM-DD
	DailyRequests   int            `json:"daily_requests"`
	Tickers         map[string]int `json:"tickers"`
	Tokens          float64        `json:"tokens"`
	TokensUpdatedAt time.Time      `json:"tokens_updated_at"`
}

// Status is a read-only view of today's budget.
type Status struct {
	Date            string
	Used            int
	Remaining       int
	Limit           int
	TokensAvailable float64
	PowerSave       bool
}
