package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/broadcast"
	"github.com/HerbHall/switchbridge/internal/config"
	"github.com/HerbHall/switchbridge/internal/event"
	"github.com/HerbHall/switchbridge/internal/recon"
	"github.com/HerbHall/switchbridge/internal/registry"
	"github.com/HerbHall/switchbridge/internal/server"
	"github.com/HerbHall/switchbridge/internal/switcher"
	"github.com/HerbHall/switchbridge/internal/tally"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge",
	Example: `  # Listen on the default 127.0.0.1:3001
  switchbridge serve

  # Try the API without hardware
  SWITCHBRIDGE_SIM_ADDRESSES=10.0.0.5 switchbridge serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("switchbridge starting")
	registerSimDriver(v, logger)

	bus := event.NewBus(logger.Named("event"))
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg := registry.New(logger)
	for _, p := range enabledPlugins(v) {
		if err := reg.Register(p); err != nil {
			return fmt.Errorf("register plugin: %w", err)
		}
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("validate plugins: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.New(v)
	err = reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub("plugins." + name),
			Logger:  logger.Named(name),
			Bus:     bus,
			Metrics: metrics,
			Plugins: reg,
		}
	})
	if err != nil {
		return fmt.Errorf("initialize plugins: %w", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		return fmt.Errorf("start plugins: %w", err)
	}

	addr := net.JoinHostPort(v.GetString("server.host"), v.GetString("server.port"))
	srv := server.New(addr, reg, metrics, logger.Named("server"))
	srv.LimitConnections(v.GetInt("server.max_connections"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("switchbridge ready", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err = <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stopping plugins first ends open event streams so Shutdown can drain.
	reg.StopAll(shutdownCtx)
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("server shutdown error", zap.Error(serr))
	}

	logger.Info("switchbridge stopped")
	return err
}

// enabledPlugins returns the plugins switched on by plugins.<name>.enabled.
func enabledPlugins(v *viper.Viper) []plugin.Plugin {
	all := []plugin.Plugin{
		recon.New(),
		switcher.New(),
		broadcast.New(),
		tally.New(),
	}
	out := make([]plugin.Plugin, 0, len(all))
	for _, p := range all {
		if v.GetBool("plugins." + p.Info().Name + ".enabled") {
			out = append(out, p)
		}
	}
	return out
}
