// Package dto はbarsフィーチャーのHTTPレスポンスDTOを定義します。
package dto

// BarResponse は日足1本のレスポンスDTOです。
type BarResponse struct {
	Time   string   `json:"time"`   // 日付 (YYYY-MM-DD, UTC)
	Open   float64  `json:"open"`   // 始値
	High   float64  `json:"high"`   // 高値
	Low    float64  `json:"low"`    // 安値
	Close  float64  `json:"close"`  // 終値
	Volume *float64 `json:"volume"` // 出来高、欠損時はnull
	Source string   `json:"source"` // 取得元
}

// FetchResponse は照合中に行った上流取得1回分です。
type FetchResponse struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason"`
	Rows    int    `json:"rows"`
}

// HistoryResponse は照合結果のレスポンスDTOです。
type HistoryResponse struct {
	Symbol           string          `json:"symbol"`
	Resolution       string          `json:"resolution"`
	Period           string          `json:"period"`
	Start            string          `json:"start"`
	End              string          `json:"end"`
	Source           string          `json:"source"`
	Coverage         float64         `json:"coverage"`
	ExpectedCount    int             `json:"expected_count"`
	MissingCount     int             `json:"missing_count"`
	MissingDates     []string        `json:"missing_dates"`
	InvalidOHLCCount int             `json:"invalid_ohlc_count"`
	Reliable         bool            `json:"reliable"`
	Strategy         string          `json:"strategy"`
	Fetches          []FetchResponse `json:"fetches"`
	Bars             []BarResponse   `json:"bars"`
}

// ErrorResponse はエラー時のレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}
