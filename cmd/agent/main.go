// Package main is the entry point for the hostpulse agent.
// It loads configuration, wires probes, the report pipeline and the collector
// connection, and runs as either a Windows service or a foreground process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/buffer"
	"github.com/Guliveer/hostpulse/internal/collector"
	"github.com/Guliveer/hostpulse/internal/config"
	"github.com/Guliveer/hostpulse/internal/metadata"
	"github.com/Guliveer/hostpulse/internal/platform"
	"github.com/Guliveer/hostpulse/internal/scheduler"
	"github.com/Guliveer/hostpulse/internal/service"
	"github.com/Guliveer/hostpulse/internal/snapshot"
	"github.com/Guliveer/hostpulse/internal/transport"
	"github.com/Guliveer/hostpulse/internal/wire"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		cli        config.CLIOverrides
	)

	cmd := &cobra.Command{
		Use:           "hostpulse-agent",
		Short:         "Host telemetry agent streaming machine reports over a websocket",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if cmd.Flags().Changed("config") {
				paths = append(paths, configPath)
			}
			cfg, err := config.LoadLayered(cli, embeddedConfig, paths...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (default: search standard locations)")
	cmd.Flags().StringVar(&cli.URL, "url", "", "collector websocket URL (ws:// or wss://)")
	cmd.Flags().StringVar(&cli.Token, "token", "", "machine token sent as a bearer credential")
	return cmd
}

func run(cfg *config.Config) error {
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting hostpulse agent",
		zap.String("version", version),
		zap.String("server", cfg.Server.URL),
		zap.String("encoding", cfg.Server.Encoding))

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) error {
			return runAgent(ctx, cfg, logger)
		})
		return svc.Run()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runAgent(ctx, cfg, logger); err != nil {
		logger.Error("Agent stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Agent stopped")
	return nil
}

// runAgent wires every component and blocks until ctx is cancelled or the
// collector rejects the agent.
func runAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen, logger.Named("metrics"))
	}

	plat := platform.New()
	probeLogger := logger.Named("collector")
	registry := collector.NewRegistry(probeLogger,
		cfg.Collection.MaxConcurrency, cfg.Collection.ProbeTimeout.Duration)
	registry.Register(collector.NewCPUCollector(probeLogger))
	registry.Register(collector.NewMemoryCollector(probeLogger))
	registry.Register(collector.NewProcessCollector(probeLogger))
	registry.Register(collector.NewNetworkCollector(probeLogger))
	registry.Register(collector.NewStorageCollector(probeLogger))
	registry.Register(collector.NewSensorsCollector(plat, probeLogger))
	registry.Register(collector.NewSecurityCollector(plat, probeLogger))
	registry.Register(collector.NewHealthCollector(probeLogger))

	meta := metadata.New(metadata.Options{Logger: logger.Named("metadata")})
	if md, err := meta.Get(ctx); err == nil {
		logger.Info("Host identified",
			zap.String("hostname", md.Hostname),
			zap.String("machine_id", md.MachineID),
			zap.String("distro", md.OSDistro),
			zap.String("virtualization", md.Virtualization),
			zap.String("platform", plat.Name()))
	} else {
		logger.Warn("Host metadata unavailable", zap.Error(err))
	}

	aggregator := snapshot.New(registry, meta, snapshot.Options{
		TopN:   cfg.Collection.TopProcesses,
		Logger: logger.Named("snapshot"),
	})

	codec, err := wire.New(cfg.Server.Encoding)
	if err != nil {
		return err
	}
	client, err := transport.New(transport.Options{
		URL:     cfg.Server.URL,
		Token:   cfg.Server.Token,
		Version: version,
		Codec:   codec,
		Backoff: transport.Backoff{
			BaseDelay:       cfg.Backoff.BaseDelay.Duration,
			MaxDelay:        cfg.Backoff.MaxDelay.Duration,
			ServerBaseDelay: cfg.Backoff.ServerBaseDelay.Duration,
			ServerMaxDelay:  cfg.Backoff.ServerMaxDelay.Duration,
			Multiplier:      cfg.Backoff.Multiplier,
			Jitter:          cfg.Backoff.Jitter,
		},
		HandshakeTimeout: cfg.Server.HandshakeTimeout.Duration,
		WriteTimeout:     cfg.Server.WriteTimeout.Duration,
		Logger:           logger.Named("transport"),
	})
	if err != nil {
		return err
	}

	var spool *buffer.Spool
	if cfg.Buffer.SpoolDir != "" {
		spool, err = buffer.NewSpool(cfg.Buffer.SpoolDir, cfg.Buffer.Capacity, logger.Named("spool"))
		if err != nil {
			return fmt.Errorf("open spool: %w", err)
		}
	}

	sched := scheduler.New(aggregator, client, buffer.NewQueue(cfg.Buffer.Capacity), scheduler.Options{
		Interval:                 cfg.Collection.Interval.Duration,
		MaxSerializationFailures: cfg.Buffer.MaxSerializationFailures,
		Spool:                    spool,
		Logger:                   logger.Named("scheduler"),
	})

	logger.Info("Agent running",
		zap.Duration("interval", cfg.Collection.Interval.Duration),
		zap.Int("collectors", len(registry.Collectors())),
		zap.Int("buffer_capacity", cfg.Buffer.Capacity))

	err = sched.Run(ctx)
	if transport.IsFatal(err) {
		var ce *transport.ConnectionError
		if errors.As(err, &ce) && ce.StatusCode != 0 {
			logger.Error("Collector rejected the agent", zap.Int("status", ce.StatusCode))
		}
	}
	return err
}
