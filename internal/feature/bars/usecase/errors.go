package usecase

import "errors"

// 上流プロバイダーの取得結果を分類するエラーです。
// いずれも照合処理では「0件取得」として扱われますが、ログレベルは区別されます。
var (
	// ErrNoData は応答は成功したがレコードが空だったことを示します。
	ErrNoData = errors.New("upstream returned no data")
	// ErrUpstreamRateLimited はHTTP 429を示します。
	ErrUpstreamRateLimited = errors.New("upstream rate limited")
	// ErrUpstreamStatus は429以外の非2xx応答を示します。
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	// ErrUpstreamTransport はタイムアウトなどの通信障害を示します。
	ErrUpstreamTransport = errors.New("upstream transport failure")
	// ErrMalformedResponse は応答本文を解釈できなかったことを示します。
	ErrMalformedResponse = errors.New("malformed upstream response")
)
