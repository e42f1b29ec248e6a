package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"hoax-guard/config"
	"hoax-guard/handlers"
	"hoax-guard/logger"
	"hoax-guard/services"
)

func main() {
	logs := logger.NewBroadcaster(os.Stdout)
	log := logger.New("info", "text", logs)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log = logger.New(cfg.Log.Level, cfg.Log.Format, logs)
	slog.SetDefault(log)

	prompts, err := services.LoadPromptConfig(cfg.Prompts)
	if err != nil {
		log.Error("failed to load prompts", "path", cfg.Prompts, "error", err)
		os.Exit(1)
	}

	limits := services.NewRateLimitTracker()
	model := services.NewOpenAIClient(cfg.Model, limits, log)
	fetcher := services.NewImageFetcher(cfg.Fetch, log.With("component", "fetcher"))
	analyzer := services.NewAnalyzerService(model, fetcher, prompts, log)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(cfg, analyzer, limits, logs, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server listening",
			"addr", srv.Addr,
			"provider", cfg.Model.Provider,
			"model", cfg.Model.Name,
			"admin", cfg.AdminToken != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
