package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	router "github.com/dkeye/classroom/internal/adapters/http"
	"github.com/dkeye/classroom/internal/backend"
	"github.com/dkeye/classroom/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the meeting backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
			config.WatchLogLevel(v, "server.log_level")
		}
		return serve(ctx, &cfg.Server)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port")
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func serve(ctx context.Context, sc *config.ServerConfig) error {
	var limiter *backend.RateLimiter
	if sc.RateLimit > 0 {
		limiter = backend.NewRateLimiter(sc.RateLimit, sc.RateWindow)
	}
	orch := backend.NewOrchestrator(backend.SimplePolicy{}, limiter)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", sc.Port),
		Handler: router.SetupRouter(ctx, sc, orch),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("module", "cli").Str("addr", srv.Addr).Msg("classroom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
