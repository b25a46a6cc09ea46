// Command admin-search serves the admin search API, keeps the
// unreviewed-users snapshot fresh and runs sales report jobs.
//
// Usage:
//
//	admin-search -config admin-search.yaml
//	ADMIN_SEARCH_DB_DSN=postgres://... admin-search
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/goliatone/go-admin-search/pkg/config"
	"github.com/goliatone/go-admin-search/pkg/di"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	skipWarmup := flag.Bool("skip-warmup", false, "do not compute snapshots before serving")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, !*skipWarmup); err != nil {
		fmt.Fprintf(os.Stderr, "admin-search: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, warmup bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	logger := container.Logger()

	if warmup {
		if _, err := container.RefreshUnreviewed(ctx); err != nil {
			// The previous snapshot, if any, keeps serving.
			logger.Warn("unreviewed users warmup failed", zap.Error(err))
		}
	}

	if err := container.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      container.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
