package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"commbus/internal/api"
	"commbus/internal/config"
	"commbus/internal/logging"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the interceptor, the error journal and the HTTP ingress until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return serve(path)
		},
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger := logging.NewDefaultLogger()
	config.PrintConfigurationSummary(os.Stdout, cfg)

	st, err := buildStack(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	var server *api.Server
	if cfg.HTTP.ListenAddr != "" {
		opts := []api.Option{
			api.WithLogger(logger),
			api.WithReadTimeout(cfg.HTTP.ReadTimeout),
		}
		if st.journal != nil {
			opts = append(opts, api.WithErrors(st.journal))
		}
		if st.prom != nil {
			opts = append(opts, api.WithMetricsHandler(st.prom.Handler()))
		}
		if st.health != nil {
			opts = append(opts, api.WithHealthCheck(st.health))
		}
		server = api.NewServer(cfg.HTTP.ListenAddr, st.bus, st.interceptor.DispatchSubject(), opts...)
		if err := server.Start(); err != nil {
			_ = st.close(context.Background())
			return err
		}
	}

	logger.Info("commbus started", "bus", cfg.Bus.Kind, "dispatch", cfg.Events.Dispatch, "error", cfg.Events.Error)

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Stop(ctx); err != nil {
			logger.Error("HTTP ingress shutdown error", "error", err)
		}
	}
	if err := st.close(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("commbus stopped")
	return nil
}
