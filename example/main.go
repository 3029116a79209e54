// Command bcpserver runs a BCP endpoint that a pinball rules engine such as
// MPF connects to, logging switch changes and triggers it reports.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Zereker/bcp"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := newViper()
	var configFile string

	cmd := &cobra.Command{
		Use:          "bcpserver",
		Short:        "Run a BCP endpoint for a pinball rules engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a YAML config file")
	flags.Int("port", bcp.DefaultPort, "TCP port the rules engine connects to")
	flags.String("metrics-addr", ":9090", "address of the metrics and control HTTP server, empty to disable")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-messages", false, "log every message sent and received")
	flags.Duration("frame-budget", time.Millisecond, "time spent dispatching messages per tick")
	flags.Duration("tick-interval", time.Second/60, "interval between dispatcher ticks")
	flags.String("controller-name", bcp.DefaultControllerName, "controller name reported in the hello reply")
	flags.String("controller-version", bcp.DefaultControllerVersion, "controller version reported in the hello reply")
	flags.StringSlice("switch", nil, "switch to monitor, may be repeated")
	flags.StringSlice("trigger", nil, "trigger to listen for, may be repeated")

	if err := bindFlags(v, flags); err != nil {
		panic(err)
	}
	return cmd
}

func run(ctx context.Context, cfg config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	iface := bcp.NewInterface(bcp.LocalAddr(cfg.Port),
		bcp.InterfaceLoggerOption(logger),
		bcp.InterfaceMetricsOption(bcp.NewMetrics(reg)),
		bcp.FrameBudgetOption(cfg.FrameBudget),
		bcp.TickIntervalOption(cfg.TickInterval),
		bcp.ControllerOption(cfg.ControllerName, cfg.ControllerVersion),
		bcp.LogReceivedOption(cfg.LogMessages),
		bcp.LogSentOption(cfg.LogMessages),
	)

	iface.OnConnectionStateChanged(func(c bcp.StateChange) {
		logger.Info("connection state changed", "state", c.Current, "previous", c.Previous)
	})
	iface.OnResetCompleted(func() {
		logger.Info("peer session ready")
	})
	iface.Handlers().Error.Subscribe(func(e bcp.ErrorMessage) {
		logger.Warn("peer reported error", "message", e.Message, "command", e.Command)
	})

	for _, name := range cfg.Switches {
		name := name
		m := bcp.NewSwitchMonitor(iface, name)
		defer m.Close()
		m.OnChanged(func(active bool) {
			logger.Info("switch changed", "name", name, "active", active)
		})
	}
	for _, name := range cfg.Triggers {
		name := name
		l := bcp.NewTriggerListener(iface, name, func() {
			logger.Info("trigger received", "name", name)
		})
		defer l.Close()
	}

	if err := iface.StartServer(context.Background()); err != nil {
		logger.Error("failed to start bcp server", "error", err)
		return err
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newRouter(iface, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server started", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	if err := iface.StopServer(shutdownCtx); err != nil {
		logger.Error("failed to stop bcp server", "error", err)
		return err
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
