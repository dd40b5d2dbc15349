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

	"github.com/avvvet/chatbuddy/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP and WebSocket, and NATS when enabled",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting service",
		zap.String("service", cfg.ServiceName),
		zap.String("business_type", cfg.DefaultBusinessType),
		zap.String("store", cfg.StoreBackend))

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var natsTransport *transport.NATSTransport
	if cfg.NatsEnabled {
		natsTransport, err = transport.NewNATSTransport(cfg, a.service, logger)
		if err != nil {
			return err
		}
		if err := natsTransport.Start(); err != nil {
			natsTransport.Close()
			return err
		}
	}

	// classify and plan each get a collaborator deadline, execute gets the handler one
	turnTimeout := 2*cfg.CollaboratorTimeout + cfg.HandlerTimeout
	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     transport.NewHTTPServer(a.service, turnTimeout, logger).Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if natsTransport != nil {
		if err := natsTransport.Close(); err != nil {
			logger.Warn("error closing NATS transport", zap.Error(err))
		}
	}

	logger.Info("service stopped", zap.Int("active_sessions", a.service.ActiveSessions()))
	return nil
}
