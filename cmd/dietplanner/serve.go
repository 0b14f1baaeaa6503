package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/castlemilk/dietplanner/internal/config"
	"github.com/castlemilk/dietplanner/internal/pipeline"
	"github.com/castlemilk/dietplanner/internal/service"
	"github.com/castlemilk/dietplanner/internal/store"
	"github.com/castlemilk/dietplanner/internal/telemetry"
)

const (
	shutdownTimeout  = 15 * time.Second
	readinessTimeout = 5 * time.Second
)

func newServeCmd(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RPC server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().String("port", "8111", "listen port")
	cmd.Flags().String("store", config.StoreMemory, "event store backend: memory, sqlite or firestore")
	bindFlag(v, cmd, "server.port", "port")
	bindFlag(v, cmd, "store.backend", "store")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	events, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer events.Close()
	logger.Info("event store ready", zap.String("backend", cfg.Store.Backend))

	tel := telemetry.NewProvider()
	deps := newDependencies(cfg, logger)
	opts := append(deps.pipelineOptions(logger), pipeline.WithStore(events), pipeline.WithTelemetry(tel))
	p, err := pipeline.New(opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newHTTPHandler(cfg, service.NewDietPlannerService(p, events, logger), tel, deps.readinessChecks(), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newHTTPHandler mounts the RPC service, health, readiness and metrics
// endpoints behind CORS and HTTP/2 cleartext.
func newHTTPHandler(cfg *config.Config, svc *service.DietPlannerService, tel *telemetry.Provider, checks map[string]service.ReadinessCheck, logger *zap.Logger) http.Handler {
	path, rpc := service.NewHandler(svc, connect.WithInterceptors(
		service.LoggingInterceptor(logger),
		service.TimeoutInterceptor(cfg.Server.RequestTimeout),
	))

	mux := http.NewServeMux()
	mux.Handle(path, rpc)
	mux.Handle("/metrics", tel.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/ready", service.ReadinessHandler(checks, readinessTimeout, logger))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Connect-Protocol-Version",
			"Connect-Timeout-Ms",
			"Content-Type",
			"User-Agent",
			"X-User-Agent",
		},
		ExposedHeaders: []string{
			"Grpc-Status",
			"Grpc-Message",
		},
	})
	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}
