// Package di provides dependency injection factories for creating application components.
package di

import (
	"fmt"
	"strings"

	barusecase "stock_history/internal/feature/bars/usecase"
	"stock_history/internal/platform/config"
	"stock_history/internal/platform/externalapi/finazon"
	"stock_history/internal/platform/externalapi/twelvedata"
	infrahttp "stock_history/internal/platform/http"
)

// 上流プロバイダーの選択肢です。
const (
	ProviderFinazon    = "finazon"
	ProviderTwelveData = "twelvedata"
)

// NewMarket creates the configured upstream provider with its HTTP client.
func NewMarket(cfg *config.Config) (barusecase.MarketRepository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderFinazon:
		fc := finazon.Config{APIKey: cfg.Finazon.APIKey, BaseURL: cfg.Finazon.BaseURL, Timeout: cfg.Finazon.Timeout}
		if fc.Timeout <= 0 {
			fc.Timeout = finazon.DefaultTimeout
		}
		return finazon.NewFinazonMarket(fc, infrahttp.NewHTTPClient(fc.Timeout)), nil
	case ProviderTwelveData:
		tc := twelvedata.Config{TwelveDataAPIKey: cfg.TwelveData.APIKey, BaseURL: cfg.TwelveData.BaseURL, Timeout: cfg.TwelveData.Timeout}
		if tc.Timeout <= 0 {
			tc.Timeout = finazon.DefaultTimeout
		}
		return twelvedata.NewTwelveDataMarket(tc, infrahttp.NewHTTPClient(tc.Timeout)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
