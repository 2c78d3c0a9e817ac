package router

import (
	barhandler "stock_history/internal/feature/bars/transport/handler"
	govhandler "stock_history/internal/feature/governor/transport/handler"
	symbollisthandler "stock_history/internal/feature/symbollist/transport/handler"
	"stock_history/internal/platform/http/handler"

	"github.com/gin-gonic/gin"
)

// NewRouter は全エンドポイントを登録したginエンジンを返します。
func NewRouter(health handler.Checker, history *barhandler.HistoryHandler, status *govhandler.StatusHandler,
	symbol *symbollisthandler.SymbolHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 導通確認用
	h := handler.Health(health)
	r.GET("/healthz", h)
	r.HEAD("/healthz", h)

	// 日足の照合・補完
	r.GET("/history/:symbol", history.GetHistory)
	// リクエスト予算の参照
	r.GET("/governor/status", status.GetStatus)
	// ウォッチリスト
	r.GET("/symbols", symbol.List)

	return r
}
