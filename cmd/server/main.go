package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docdiff/internal/api"
	"github.com/dgallion1/docdiff/internal/config"
	"github.com/dgallion1/docdiff/internal/metrics"
	"github.com/dgallion1/docdiff/internal/pipeline"
	"github.com/dgallion1/docdiff/internal/wikiapi"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	wiki := wikiapi.NewClient(cfg.WikiAPIURL, cfg.UserAgent, cfg.WikiRateLimit, cfg.WikiBurst)
	runner := pipeline.NewRunner(wiki, metrics.NewWindow(cfg.StatsWindow), log, cfg.MaxCells)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, runner, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, runner, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.MaxTimeout + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		wiki.Close()
	}()

	log.Info("starting docdiff", "port", cfg.Port, "auth", cfg.APIKey != "", "workers", cfg.WorkerCount)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
