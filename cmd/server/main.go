package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/waste-api/internal/config"
	"github.com/Brownie44l1/waste-api/internal/handlers"
	"github.com/Brownie44l1/waste-api/internal/logger"
	"github.com/Brownie44l1/waste-api/internal/metrics"
	"github.com/Brownie44l1/waste-api/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $WASTE_CONFIG or config/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logger.Get()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "waste-api"})
	log := logger.Get()

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Server.UploadDir).Msg("failed to create upload dir")
	}

	log.Info().Str("dir", cfg.Models.Dir).Msg("loading models")
	p := pipeline.Load(cfg.Models, logger.Named("pipeline"))
	defer p.Close()

	handler := handlers.NewHandler(p, cfg.Server, metrics.New())

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", srv.Addr).Msg("server starting")
	log.Info().Msg("Endpoints:")
	log.Info().Msg("  GET  /health            - Health check and model status")
	log.Info().Msg("  POST /analyze           - Analyze an uploaded image (field 'file')")
	log.Info().Msg("  GET  /static/uploads/*  - Stored uploads")
	log.Info().Msgf("Upload test: curl -X POST -F \"file=@bottle.jpg\" http://localhost:%s/analyze", cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
