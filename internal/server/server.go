// Package server runs the bridge's HTTP surface: the gateway webhook, health probes,
// metrics and the key-authenticated admin API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcourtman/paybridge/internal/config"
	"github.com/rs/zerolog/log"
)

// Run starts the HTTP server with graceful shutdown.
func Run(ctx context.Context, cfg *config.Config, version string) error {
	log.Info().
		Str("version", version).
		Str("mode", cfg.Processor.Active().Mode()).
		Msg("Starting paybridge")

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	app.StartBackground()

	watcher, err := config.NewConfigWatcher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable, credential changes require a restart")
	} else {
		watcher.SetReloadCallback(func(changed []string) {
			log.Info().Strs("keys", changed).Str("mode", cfg.Processor.Active().Mode()).Msg("Gateway credentials reloaded")
		})
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		}
		defer watcher.Stop()
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, &Deps{
		Config:  cfg,
		Store:   app.Store,
		Webhook: app.Receiver,
		Billing: app.Billing,
		Engine:  app.Engine,
		Version: version,
	})

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("Server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("paybridge stopped")
	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}
