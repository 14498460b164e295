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

	router "github.com/dkeye/classroom/internal/adapters/http"
	"github.com/dkeye/classroom/internal/backend"
	"github.com/dkeye/classroom/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Read can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	v := config.New()
	cfg, err := config.Read(v)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := config.ApplyLogLevel(cfg.Server.LogLevel); err != nil {
		log.Warn().Err(err).Msg("bad log level")
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		config.WatchLogLevel(v, "server.log_level")
	}

	var limiter *backend.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = backend.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
	}
	orch := backend.NewOrchestrator(backend.SimplePolicy{}, limiter)

	r := router.SetupRouter(ctx, &cfg.Server, orch)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("mode", cfg.Server.Mode).Msg("classroom server started")
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
