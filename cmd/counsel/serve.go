package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"counsel/internal/app/di"
	serverhttp "counsel/internal/delivery/server/http"
	"counsel/internal/shared/logging"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task orchestrator and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "run gin in debug mode")
	return cmd
}

func runServe(parent context.Context, opts *rootOptions, debug bool) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger := logging.NewComponentLogger("Main")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.BuildContainer(ctx, cfg, di.WithVersion(version))
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	if err := container.Start(ctx); err != nil {
		_ = container.Shutdown(context.Background())
		return err
	}

	router := serverhttp.NewRouter(serverhttp.RouterDeps{
		Tasks:   container.Tasks,
		Metrics: container.Observability.Metrics,
		Logger:  logging.NewComponentLogger("HTTP"),
	}, serverhttp.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: serverhttp.RateLimitConfig{
			RequestsPerMinute: cfg.Server.RateLimitRPM,
			Burst:             cfg.Server.RateLimitBurst,
		},
		Debug: debug,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("HTTP API listening on %s (version %s)", cfg.Server.Addr, version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := container.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := group.Wait(); err != nil {
		logger.Error("Server stopped with error: %v", err)
		return err
	}
	logger.Info("Server stopped")
	return nil
}
