package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthatlas/internal/api"
	"healthatlas/internal/config"
	"healthatlas/internal/engine"
	"healthatlas/internal/logger"
	"healthatlas/internal/render"
	"healthatlas/internal/selection"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml config file (default ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Flush(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sel, err := selection.NewSQLite(cfg.DBPath, zl)
	if err != nil {
		zl.Fatal("cannot open selection store", zap.Error(err))
	}
	defer sel.Close()

	// 1. Echo starts instantly; data endpoints answer 503 until the load ends
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.WARN)
	api.UseMiddleware(e, zl)

	h := api.NewHandler(render.NewPNG(), sel, zl)
	h.RegisterRoutes(e)
	e.Static("/", cfg.StaticDir)

	// 2. Load every source in the background
	go func() {
		zl.Info("loading sources", zap.Int("sources", len(cfg.Sources)))
		t0 := time.Now()

		loader := engine.NewLoader(
			engine.NewFetcher(cfg.DataDir, cfg.FetchRPS, cfg.FetchBurst),
			zl,
			engine.WithWorkers(cfg.LoadWorkers),
			engine.WithTimeout(cfg.LoadTimeout),
		)
		results := loader.Load(ctx, cfg.EngineSources())
		store := engine.NewJoinStore(results.Datasets()...)
		h.SetData(store, results.Status())

		zl.Info("data ready", zap.Duration("took", time.Since(t0)), zap.Any("categories", store.Categories()))
	}()

	// 3. Serve until interrupted
	go func() {
		zl.Info("server listening", zap.String("addr", cfg.Addr))
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown failed", zap.Error(err))
	}
}
