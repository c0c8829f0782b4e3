package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP sidecar",
	Long: `serve exposes the engine over HTTP:

  POST /v1/authorize                     gate one forum action
  POST /v1/subjects/{id}/actions         record a completed post
  POST /v1/recovery                      request a recovery token
  GET  /v1/recovery/{token}              check a token without consuming it
  POST /v1/recovery/{token}              consume a token and set a credential
  GET  /metrics                          Prometheus exposition`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		a := &api{engine: rt.engine, logger: rt.logger}
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           a.routes(cfg.TrustProxy),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			rt.logger.Info("listening", slog.String("addr", cfg.HTTPAddr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		rt.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
