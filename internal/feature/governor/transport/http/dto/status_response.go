package dto

// StatusResponse は当日の予算使用状況のレスポンスDTOです。
type StatusResponse struct {
	Date            string  `json:"date"`             // UTC日付
	Used            int     `json:"used"`             // 使用済みリクエスト数
	Remaining       int     `json:"remaining"`        // 残りリクエスト数
	Limit           int     `json:"limit"`            // 日次上限
	TokensAvailable float64 `json:"tokens_available"` // 利用可能トークン数
	PowerSave       bool    `json:"power_save"`       // 省電力モード
}
