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

	"issue-scout/internal/bootstrap"
	"issue-scout/internal/shared/config"
	"issue-scout/internal/shared/server"
	"issue-scout/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("api.start", map[string]any{"addr": srv.Addr, "env": cfg.Env, "storage": storageKind(app)})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}

	telemetry.Info("api.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Warn("api.shutdown_http", map[string]any{"err": err})
	}
	if err := app.Close(shutdownCtx); err != nil {
		telemetry.Warn("api.shutdown_scans", map[string]any{"err": err})
	}
}

func storageKind(app *bootstrap.App) string {
	if app.DB == nil {
		return "memory"
	}
	return "postgres"
}
