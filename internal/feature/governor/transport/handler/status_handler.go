// Package handler はgovernorフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"math"
	"net/http"

	"stock_history/internal/feature/governor/domain/entity"
	"stock_history/internal/feature/governor/transport/http/dto"

	"github.com/gin-gonic/gin"
)

// StatusReader は予算状況を参照するインターフェースです。
type StatusReader interface {
	Status(ctx context.Context) entity.Status
}

// StatusHandler はリクエスト予算の参照を処理します。
type StatusHandler struct {
	gov StatusReader
}

// NewStatusHandler はStatusHandlerの新しいインスタンスを生成します。
func NewStatusHandler(gov StatusReader) *StatusHandler {
	return &StatusHandler{gov: gov}
}

// GetStatus は当日の予算使用状況をJSONで返します。
//
// エンドポイント例:
// GET /governor/status
func (h *StatusHandler) GetStatus(c *gin.Context) {
	st := h.gov.Status(c.Request.Context())
	c.JSON(http.StatusOK, dto.StatusResponse{
		Date:            st.Date,
		Used:            st.Used,
		Remaining:       st.Remaining,
		Limit:           st.Limit,
		TokensAvailable: math.Round(st.TokensAvailable*100) / 100,
		PowerSave:       st.PowerSave,
	})
}
