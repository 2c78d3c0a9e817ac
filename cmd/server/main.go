package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock_history/internal/app/di"
	"stock_history/internal/app/router"
	barhandler "stock_history/internal/feature/bars/transport/handler"
	govhandler "stock_history/internal/feature/governor/transport/handler"
	symbollisthandler "stock_history/internal/feature/symbollist/transport/handler"
	"stock_history/internal/platform/config"
	"stock_history/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if lg.Enabled(context.Background(), slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := di.Build(ctx, cfg, lg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			lg.Error("failed to close connections", "error", err)
		}
	}()

	// Handler
	historyH := barhandler.NewHistoryHandler(c.Reconcile)
	statusH := govhandler.NewStatusHandler(c.Governor)
	symbolH := symbollisthandler.NewSymbolHandler(c.Symbols)

	// ルータ生成
	r := router.NewRouter(c.Ping, historyH, statusH, symbolH)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// 照合は複数の上流取得を含むため余裕を持たせる
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		lg.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", "error", err)
	}
}
