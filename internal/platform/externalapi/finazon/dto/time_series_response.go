// Package dto defines data transfer objects for the Finazon API responses.
package dto

import "github.com/shopspring/decimal"

// TimeSeriesResponse represents the JSON response from the Finazon time_series endpoint.
type TimeSeriesResponse struct {
	Data []Record `json:"data"`
}

// Record is one bar. T is the period start in UTC epoch seconds.
type Record struct {
	T int64               `json:"t"`
	O decimal.Decimal     `json:"o"`
	H decimal.Decimal     `json:"h"`
	L decimal.Decimal     `json:"l"`
	C decimal.Decimal     `json:"c"`
	V decimal.NullDecimal `json:"v"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
