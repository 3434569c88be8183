package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/synapirt/internal/api"
	"github.com/soaringjerry/synapirt/internal/middleware"
	"github.com/soaringjerry/synapirt/internal/services"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			sched, err := cfg.Schedule()
			if err != nil {
				return err
			}
			conn, store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB(conn, logger)

			middleware.SetSecret(cfg.Server.JWTSecret)
			if cfg.Server.JWTSecret == "" {
				logger.Warn("no jwt secret configured; using the development default")
			}
			auth := services.NewAuthService(store, middleware.SignToken)
			auth.SetTokenTTL(cfg.Server.TokenTTL)
			if cfg.Server.AdminEmail != "" {
				if err := auth.EnsureAnalyst(cfg.Server.AdminEmail, cfg.Server.AdminPassword); err != nil {
					return err
				}
			}

			calibrations := services.NewCalibrationService(store, logger)
			router := api.NewRouter(store, calibrations, auth, sched, logger)
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router.Handler(cfg.Server.AllowedOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			errc := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", srv.Addr, "version", Version)
				errc <- srv.ListenAndServe()
			}()
			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; overrides server.addr")
	return cmd
}
