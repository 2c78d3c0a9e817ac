package finazon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
	"stock_history/internal/feature/bars/usecase"
	"stock_history/internal/platform/externalapi/finazon/dto"
)

// FinazonMarket はFinazon外部APIから日足データを取得するMarketRepository実装です。
type FinazonMarket struct {
	cfg    Config
	client *http.Client
}

// FinazonMarketがMarketRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.MarketRepository = (*FinazonMarket)(nil)

// NewFinazonMarket は指定された設定とHTTPクライアントでFinazonMarketの新しいインスタンスを生成します。
func NewFinazonMarket(cfg Config, client *http.Client) *FinazonMarket {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &FinazonMarket{cfg: cfg, client: client}
}

// Name はソースタグを返します。
func (f *FinazonMarket) Name() string {
	return SourceName
}

// HasCredential はAPIキーが設定されているかを返します。
func (f *FinazonMarket) HasCredential() bool {
	return strings.TrimSpace(f.cfg.APIKey) != ""
}

// FetchRange は[start, end]の日足を取得します。
// 失敗はusecaseパッケージのエラーで分類して返します。
func (f *FinazonMarket) FetchRange(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error) {
	q := url.Values{}
	q.Set("ticker", symbol)
	q.Set("interval", string(res))
	q.Set("start_at", strconv.FormatInt(start.Unix(), 10))
	q.Set("end_at", strconv.FormatInt(end.Unix(), 10))
	q.Set("page_size", strconv.Itoa(PageSize))
	q.Set("apikey", f.cfg.APIKey)

	u := fmt.Sprintf("%s/time_series?%s", strings.TrimRight(f.cfg.BaseURL, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", usecase.ErrUpstreamTransport, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", usecase.ErrUpstreamTransport, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: finazon http %d", usecase.ErrUpstreamRateLimited, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: finazon http %d: %s", usecase.ErrUpstreamStatus, resp.StatusCode, errorMessage(resp.Body))
	}

	var body dto.TimeSeriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", usecase.ErrMalformedResponse, err)
	}
	if len(body.Data) == 0 {
		return nil, usecase.ErrNoData
	}

	bars := make([]entity.Bar, 0, len(body.Data))
	for _, r := range body.Data {
		if r.T <= 0 {
			return nil, fmt.Errorf("%w: record without timestamp", usecase.ErrMalformedResponse)
		}
		tm := time.Unix(r.T, 0).UTC()
		if res == entity.ResolutionDaily {
			tm = entity.NormalizeDay(tm)
		}
		bars = append(bars, entity.Bar{
			Symbol:     symbol,
			Resolution: res,
			Time:       tm,
			Open:       r.O,
			High:       r.H,
			Low:        r.L,
			Close:      r.C,
			Volume:     r.V,
		})
	}
	return bars, nil
}

// errorMessage はエラー応答本文から表示用のメッセージを取り出します。
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	var e dto.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
