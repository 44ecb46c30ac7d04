package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/coroom/internal/adapters/http"
	"github.com/dkeye/coroom/internal/app"
	"github.com/dkeye/coroom/internal/app/orch"
	"github.com/dkeye/coroom/internal/config"
	"github.com/dkeye/coroom/internal/executor"
	"github.com/dkeye/coroom/internal/languages"
	"github.com/dkeye/coroom/internal/sandbox"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Str("log_level", cfg.LogLevel).Msg("bad log level, keeping info")
	} else if lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Policy:   app.SimplePolicy{},
	}

	resolver := languages.NewResolver(languages.NodeModuleProbe)
	exec := executor.NewExecutor(
		resolver,
		sandbox.NewProvisioner(cfg.Exec.WorkRoot),
		sandbox.NewRunner(),
		executor.Config{
			Timeout:        cfg.Exec.Timeout,
			MaxOutputBytes: cfg.Exec.MaxOutputBytes,
			MaxConcurrent:  cfg.Exec.MaxConcurrent,
		},
	)

	r := router.SetupRouter(ctx, cfg, router.Services{
		Orch:      o,
		Executor:  exec,
		Languages: resolver,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("mode", cfg.Mode).Msg("coroom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
