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

	"github.com/spf13/cobra"
	"github.com/warp/rotation-engine/api"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the daily rotation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags, port)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, flags *globalFlags, port int) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	logger := cfg.NewLogger()

	store, notifier, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := newRunner(cfg, store, notifier, logger)
	loc := cfg.Location()

	scheduler, err := api.NewRotationScheduler(runner, cfg.Scheduler.Cron, loc, logger)
	if err != nil {
		return err
	}
	scheduler.Enabled = cfg.SchedulerEnabled()
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, runner, cfg.StandBack.RequiredDays, loc, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
