// Package handler はbarsフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"stock_history/internal/feature/bars/domain/entity"
	"stock_history/internal/feature/bars/transport/http/dto"
	"stock_history/internal/feature/bars/usecase"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-^]{0,19}$`)

// Reconciler は照合ユースケースのインターフェースです。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type Reconciler interface {
	Reconcile(ctx context.Context, symbol string, res entity.Resolution, period string) entity.Report
}

// HistoryHandler は日足履歴のHTTPリクエストを処理します。
type HistoryHandler struct {
	uc Reconciler
}

// NewHistoryHandler はHistoryHandlerの新しいインスタンスを生成します。
func NewHistoryHandler(uc Reconciler) *HistoryHandler {
	return &HistoryHandler{uc: uc}
}

// GetHistory は銘柄の日足を照合し、被覆率レポートとともにJSONで返します。
// 保存層が利用できない場合は503を返します。上流の失敗はレポート内で表現されます。
//
// エンドポイント例:
// GET /history/:symbol?period=1mo&resolution=1d
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if !symbolPattern.MatchString(symbol) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid symbol"})
		return
	}
	res, err := entity.ParseResolution(c.Query("resolution"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	period := c.DefaultQuery("period", usecase.DefaultPeriod)

	report := h.uc.Reconcile(c.Request.Context(), symbol, res, period)

	status := http.StatusOK
	if report.SourceLabel == usecase.LabelUnavailable {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, toResponse(report))
}

func toResponse(r entity.Report) dto.HistoryResponse {
	out := dto.HistoryResponse{
		Symbol:           r.Symbol,
		Resolution:       string(r.Resolution),
		Period:           r.Period,
		Start:            r.Window.Start.UTC().Format(dateLayout),
		End:              r.Window.End.UTC().Format(dateLayout),
		Source:           r.SourceLabel,
		Coverage:         math.Round(r.CoverageRatio*10000) / 10000,
		ExpectedCount:    r.ExpectedCount,
		MissingCount:     r.MissingCount,
		MissingDates:     formatDates(r.MissingDates),
		InvalidOHLCCount: r.InvalidOHLCCount,
		Reliable:         r.Reliable,
		Strategy:         string(r.Strategy),
		Fetches:          make([]dto.FetchResponse, 0, len(r.Fetches)),
		Bars:             make([]dto.BarResponse, 0, len(r.Bars)),
	}
	for _, f := range r.Fetches {
		out.Fetches = append(out.Fetches, dto.FetchResponse{
			Start:   f.Start.UTC().Format(dateLayout),
			End:     f.End.UTC().Format(dateLayout),
			Granted: f.Granted,
			Reason:  f.Reason,
			Rows:    f.Rows,
		})
	}
	for _, b := range r.Bars {
		br := dto.BarResponse{
			Time:   b.Day().Format(dateLayout),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  b.Close.InexactFloat64(),
			Source: b.Source,
		}
		if b.Volume.Valid {
			v := b.Volume.Decimal.InexactFloat64()
			br.Volume = &v
		}
		out.Bars = append(out.Bars, br)
	}
	return out
}

func formatDates(ds []time.Time) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.UTC().Format(dateLayout))
	}
	return out
}
