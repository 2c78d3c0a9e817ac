package finazon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
	"stock_history/internal/feature/bars/usecase"
)

var (
	rangeStart = time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
)

func TestNewFinazonMarket(t *testing.T) {
	t.Parallel()

	market := NewFinazonMarket(Config{APIKey: "test-key"}, &http.Client{})

	if market == nil {
		t.Fatal("expected non-nil market")
	}
	if market.cfg.BaseURL != DefaultBaseURL {
		t.Errorf("expected default base URL, got %q", market.cfg.BaseURL)
	}
	if market.Name() != "finazon" {
		t.Errorf("expected name finazon, got %q", market.Name())
	}
}

func TestFinazonMarket_HasCredential(t *testing.T) {
	t.Parallel()

	if NewFinazonMarket(Config{APIKey: "  "}, nil).HasCredential() {
		t.Error("blank key must not count as a credential")
	}
	if !NewFinazonMarket(Config{APIKey: "k"}, nil).HasCredential() {
		t.Error("expected credential")
	}
}

func TestFinazonMarket_FetchRange_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/time_series" {
			t.Errorf("expected path /time_series, got %s", r.URL.Path)
		}
		want := map[string]string{
			"ticker":    "AAPL",
			"interval":  "1d",
			"start_at":  "1736726400",
			"end_at":    "1736985600",
			"page_size": "1000",
			"apikey":    "test-key",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("expected %s=%s, got %s", k, v, q.Get(k))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"data": [
				{"t": 1736726400, "o": 233.53, "h": 234.67, "l": 229.72, "c": 234.40, "v": 49630725},
				{"t": 1736812800, "o": 234.75, "h": 236.12, "l": 232.47, "c": 233.28, "v": null}
			]
		}`))
	}))
	defer server.Close()

	market := NewFinazonMarket(Config{APIKey: "test-key", BaseURL: server.URL + "/"}, server.Client())

	bars, err := market.FetchRange(context.Background(), "AAPL", entity.ResolutionDaily, rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[0].Time.Equal(rangeStart) {
		t.Errorf("expected time %v, got %v", rangeStart, bars[0].Time)
	}
	if bars[0].Close.String() != "234.4" {
		t.Errorf("expected close 234.4, got %s", bars[0].Close)
	}
	if !bars[0].Volume.Valid || bars[0].Volume.Decimal.IntPart() != 49630725 {
		t.Errorf("unexpected volume %v", bars[0].Volume)
	}
	if bars[1].Volume.Valid {
		t.Error("expected null volume")
	}
	if bars[1].Symbol != "AAPL" || bars[1].Resolution != entity.ResolutionDaily {
		t.Errorf("unexpected key fields %+v", bars[1])
	}
}

func TestFinazonMarket_FetchRange_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
		wantMsg    string
	}{
		{name: "rate limited", statusCode: http.StatusTooManyRequests, wantErr: usecase.ErrUpstreamRateLimited},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, body: `{"error":{"code":"unauthorized","message":"Invalid API key"}}`, wantErr: usecase.ErrUpstreamStatus, wantMsg: "Invalid API key"},
		{name: "internal server error", statusCode: http.StatusInternalServerError, body: "boom", wantErr: usecase.ErrUpstreamStatus, wantMsg: "boom"},
		{name: "empty data", statusCode: http.StatusOK, body: `{"data": []}`, wantErr: usecase.ErrNoData},
		{name: "invalid json", statusCode: http.StatusOK, body: `{invalid json`, wantErr: usecase.ErrMalformedResponse},
		{name: "missing timestamp", statusCode: http.StatusOK, body: `{"data":[{"o":1,"h":1,"l":1,"c":1}]}`, wantErr: usecase.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			market := NewFinazonMarket(Config{APIKey: "test-key", BaseURL: server.URL}, server.Client())

			_, err := market.FetchRange(context.Background(), "AAPL", entity.ResolutionDaily, rangeStart, rangeEnd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected message %q in %v", tt.wantMsg, err)
			}
		})
	}
}

func TestFinazonMarket_FetchRange_Transport(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	market := NewFinazonMarket(Config{APIKey: "test-key", BaseURL: server.URL}, client)

	_, err := market.FetchRange(context.Background(), "AAPL", entity.ResolutionDaily, rangeStart, rangeEnd)
	if !errors.Is(err, usecase.ErrUpstreamTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
