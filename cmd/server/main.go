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

	router "github.com/dkeye/Ring/internal/adapters/http"
	"github.com/dkeye/Ring/internal/app"
	"github.com/dkeye/Ring/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	presence := app.NewPresence()
	conns := app.NewDirectory(cfg.MaxConnections)
	feed := app.NewPresenceFeed(presence, conns, cfg.PresenceDebounce)
	relay := &app.Relay{
		Presence: presence,
		Conns:    conns,
		Policy:   app.DisconnectSlow{},
		Feed:     feed,
	}
	if cfg.RateLimit.Limit > 0 {
		relay.Limiter = app.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Interval)
	}

	r := router.SetupRouter(ctx, cfg, relay)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Ring server started")
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
	for _, c := range conns.Snapshot() {
		c.Signal.Close()
	}
	feed.Stop()
	log.Info().Msg("Server exited gracefully")
}
