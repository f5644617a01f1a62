package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"epserver/config"
	"epserver/core"
	"epserver/handlers"
	"epserver/metrics"
	"epserver/stores"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the document HTTP service",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	listener, err := net.Listen("tcp", ":"+cfg.Server.Port)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	return serve(ctx, cfg, listener)
}

// serve opens the store, serves until ctx is done and then drains requests and the store pool.
func serve(ctx context.Context, cfg *config.Config, listener net.Listener) error {
	store, err := stores.GetStore(ctx, cfg)
	if err != nil {
		listener.Close()
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.WithField("error", err).Error("Failed to close storage")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(registry)

	service := core.NewDocumentService(store, core.ServiceOptions{
		SPAURL:          cfg.Document.SPAURL,
		MaxDocumentSize: cfg.Document.MaxDocumentSize,
		TestTitle:       cfg.Document.TestSheetTitle,
	})
	srv := &http.Server{
		Handler: handlers.NewRouter(service, handlers.RouterOptions{
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			MaxDocumentSize: cfg.Document.MaxDocumentSize,
			Gatherer:        registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	logrus.WithField("addr", listener.Addr().String()).Info("Listening")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	}

	logrus.Info("Received shutdown signal, initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	logrus.Info("Service has been shut down gracefully.")
	return nil
}
