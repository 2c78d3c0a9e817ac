// Package dto defines data transfer objects for the symbollist HTTP API.
package dto

// SymbolItem is one watch list entry in the API response.
type SymbolItem struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
}
