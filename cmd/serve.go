package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/imishinist/runboard/internal/broadcast"
	"github.com/imishinist/runboard/internal/config"
	"github.com/imishinist/runboard/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve discovered runs over HTTP and push live updates",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Address to listen on (default 127.0.0.1:8000)")
	serveCmd.Flags().String("watch-mode", "", "Change detection: auto, fsnotify or poll")
	serveCmd.Flags().Duration("poll-interval", 0, "Interval between rescans")
	serveCmd.Flags().Duration("scan-timeout", 0, "Time limit for expanding one discovery pattern")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("watch_mode", serveCmd.Flags().Lookup("watch-mode"))
	viper.BindPFlag("poll_interval", serveCmd.Flags().Lookup("poll-interval"))
	viper.BindPFlag("scan_timeout", serveCmd.Flags().Lookup("scan-timeout"))
}

func serve(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	logger := newLogger()

	svc, scanner, b, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	printPathReport(cmd.OutOrStdout(), scanner.Report())

	watcher, err := broadcast.NewWatcher(cfg.WatchMode, scanner, cfg.PollInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(svc, logger, broadcast.DefaultWriteTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := broadcast.NewMonitor(watcher, b, logger).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen, "watch_mode", cfg.WatchMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		b.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
