package commands

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

	"github.com/google/subcommands"
	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/handlers"
	"github.com/username/tradejournal/backend/src/logger"
	"golang.org/x/time/rate"
)

type serveCmd struct {
	port string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP import and journal API" }
func (*serveCmd) Usage() string {
	return `serve [-port <port>]

  Serves POST /api/imports and the read-only journal endpoints. Batches left
  processing longer than STALE_BATCH_AGE are failed periodically.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.port, "port", "", "Port to listen on (defaults to PORT)")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := config.Current()
	port := cfg.Port
	if c.port != "" {
		port = c.port
	}

	logger.L.Info("Trade journal server starting...", "databasePath", cfg.DatabasePath)
	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.sweepPeriodically(ctx, cfg.StaleBatchAge)

	server := &http.Server{
		Addr: ":" + port,
		Handler: handlers.NewRouter(handlers.RouterConfig{
			Imports:        a.imports,
			Journal:        a.journal,
			Annotations:    a.annotations,
			MaxUploadBytes: cfg.MaxUploadSizeBytes,
			Limiter:        rate.NewLimiter(rate.Every(100*time.Millisecond), 30),
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.L.Info("Server starting", "address", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("Failed to start server", "error", err)
			return subcommands.ExitFailure
		}
	case <-ctx.Done():
		logger.L.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("Graceful shutdown failed", "error", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

// sweepPeriodically fails abandoned batches until ctx is done.
func (a *app) sweepPeriodically(ctx context.Context, maxAge time.Duration) {
	interval := maxAge / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.imports.SweepStaleBatches(ctx, maxAge); err != nil {
				logger.L.Error("Stale batch sweep failed", "error", err)
			}
		}
	}
}
