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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"pongarena/server/internal/config"
	"pongarena/server/internal/gateway"
	"pongarena/server/internal/httpapi"
	"pongarena/server/internal/logging"
	"pongarena/server/internal/router"
	"pongarena/server/internal/session"
	"pongarena/server/internal/store"
)

func main() {
	//1.- A .env file is a developer convenience, not a requirement.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger initialisation failed:", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	//2.- The server stays up without its database: gateways degrade to
	// no-ops and /readyz reports the failure.
	var identity gateway.Identity = gateway.NoopIdentity{}
	var matches gateway.Matches = &gateway.NoopMatches{}
	var tournaments gateway.Tournaments = &gateway.NoopTournaments{}
	var startupErr error
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		startupErr = err
		logger.Warn("database unavailable, persistence disabled", logging.Error(err))
	} else {
		defer db.Close()
		identity = store.NewUserStore(db)
		matches = store.NewMatchStore(db)
		tournaments = store.NewTournamentStore(db)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := session.NewTickMonitor()
	rt := router.New(router.Options{
		Config:      cfg,
		Logger:      logger,
		Identity:    identity,
		Matches:     matches,
		Tournaments: tournaments,
		Monitor:     monitor,
		Context:     ctx,
	})
	if startupErr != nil {
		rt.SetStartupError(startupErr)
	} else if err := rt.Rehydrate(ctx); err != nil {
		logger.Warn("lobby rehydration failed", logging.Error(err))
	}

	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:    logger,
		Readiness: rt,
		Stats:     rt.Stats,
		TickStats: monitor.Snapshot,
	})

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Get("/ws", rt.ServeWS)
	mux.Get("/livez", handlers.LivenessHandler())
	mux.Get("/readyz", handlers.ReadinessHandler())
	mux.Get("/metrics", handlers.MetricsHandler())

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pong session server listening", logging.String("addr", cfg.Address))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", logging.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", logging.Error(err))
	}
	logger.Info("pong session server stopped")
}
