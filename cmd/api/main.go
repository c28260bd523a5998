package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/asafonov/docqa/internal/adapters/http"
	"github.com/asafonov/docqa/internal/bootstrap"
	"github.com/asafonov/docqa/internal/config"
	"github.com/asafonov/docqa/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New("docqa-api", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	app.RunBackground(ctx)

	router := httpadapter.NewRouter(app.Answers, app.Clusters, app.Metrics, httpadapter.TrafficLimits{
		RequestsPerSecond: cfg.HTTPRequestsPerSecond,
		Burst:             cfg.HTTPBurst,
	}).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}
