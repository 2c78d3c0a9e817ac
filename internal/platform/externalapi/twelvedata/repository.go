package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
	"stock_history/internal/feature/bars/usecase"
	"stock_history/internal/platform/externalapi/twelvedata/dto"

	"github.com/shopspring/decimal"
)

// TwelveDataMarket はTwelve Data外部APIから日足データを取得するMarketRepository実装です。
type TwelveDataMarket struct {
	cfg    Config
	client *http.Client
}

// TwelveDataMarketがMarketRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.MarketRepository = (*TwelveDataMarket)(nil)

// NewTwelveDataMarket は指定された設定とHTTPクライアントでTwelveDataMarketの新しいインスタンスを生成します。
func NewTwelveDataMarket(cfg Config, client *http.Client) *TwelveDataMarket {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &TwelveDataMarket{cfg: cfg, client: client}
}

// Name はソースタグを返します。
func (t *TwelveDataMarket) Name() string {
	return SourceName
}

// HasCredential はAPIキーが設定されているかを返します。
func (t *TwelveDataMarket) HasCredential() bool {
	return strings.TrimSpace(t.cfg.TwelveDataAPIKey) != ""
}

// FetchRange はTwelve Data APIから[start, end]の日足を昇順で取得します。
func (t *TwelveDataMarket) FetchRange(ctx context.Context, symbol string, res entity.Resolution, start, end time.Time) ([]entity.Bar, error) {
	if res != entity.ResolutionDaily {
		return nil, fmt.Errorf("%w: twelvedata adapter supports daily bars only", usecase.ErrUpstreamStatus)
	}

	q := url.Values{}
	// クエリパラメータを追加
	q.Set("symbol", symbol)
	q.Set("interval", "1day")
	q.Set("start_date", start.UTC().Format("2006-01-02"))
	q.Set("end_date", end.UTC().Format("2006-01-02"))
	q.Set("order", "ASC")
	q.Set("timezone", "UTC")
	q.Set("outputsize", strconv.Itoa(OutputSize))
	q.Set("apikey", t.cfg.TwelveDataAPIKey)

	// URLを生成
	u := fmt.Sprintf("%s/time_series?%s", strings.TrimRight(t.cfg.BaseURL, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", usecase.ErrUpstreamTransport, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", usecase.ErrUpstreamTransport, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if err := classify(resp.StatusCode, ""); err != nil {
		return nil, err
	}

	// JSONレスポンスをDTOにデコード
	var body dto.TimeSeriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", usecase.ErrMalformedResponse, err)
	}
	if body.Status == "error" {
		// HTTP 200のままエラーを返すため、本文のcodeで分類する
		if err := classify(body.Code, body.Message); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: twelvedata: %s", usecase.ErrUpstreamStatus, body.Message)
	}
	if len(body.Values) == 0 {
		return nil, usecase.ErrNoData
	}

	bars := make([]entity.Bar, 0, len(body.Values))
	for _, v := range body.Values {
		b, err := toBar(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", usecase.ErrMalformedResponse, err)
		}
		b.Symbol = symbol
		b.Resolution = res
		bars = append(bars, b)
	}
	return bars, nil
}

// classify はHTTPステータス（または本文のcode）を上流エラーに分類します。2xxはnilです。
func classify(code int, msg string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: twelvedata %d", usecase.ErrUpstreamRateLimited, code)
	case code == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "no data"):
		return usecase.ErrNoData
	default:
		return fmt.Errorf("%w: twelvedata %d %s", usecase.ErrUpstreamStatus, code, msg)
	}
}

func toBar(v dto.Value) (entity.Bar, error) {
	// タイムスタンプをパース
	tm, err := time.Parse("2006-01-02", v.Datetime)
	if err != nil {
		tm, err = time.Parse("2006-01-02 15:04:05", v.Datetime)
		if err != nil {
			return entity.Bar{}, fmt.Errorf("parse time %q: %w", v.Datetime, err)
		}
	}
	b := entity.Bar{Time: entity.NormalizeDay(tm)}
	for _, p := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", v.Open, &b.Open}, {"high", v.High, &b.High}, {"low", v.Low, &b.Low}, {"close", v.Close, &b.Close},
	} {
		d, err := decimal.NewFromString(p.raw)
		if err != nil {
			return entity.Bar{}, fmt.Errorf("parse %s %q: %w", p.name, p.raw, err)
		}
		*p.dst = d
	}
	// 出来高は欠損を許容する
	if v.Volume != "" {
		d, err := decimal.NewFromString(v.Volume)
		if err != nil {
			return entity.Bar{}, fmt.Errorf("parse volume %q: %w", v.Volume, err)
		}
		b.Volume = decimal.NewNullDecimal(d)
	}
	return b, nil
}
