// Package main starts the stream consumer binary.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ibs-source/stream-consumer/internal/config"
	"github.com/ibs-source/stream-consumer/internal/engine"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/metrics"
	"github.com/ibs-source/stream-consumer/internal/mqtt"
	"github.com/ibs-source/stream-consumer/internal/supervisor"
)

func run() int {
	logger := log.New()
	logger.Info("Starting stream consumer")

	cfg, err := loadAndLogConfig(logger)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := startMetrics(ctx, cfg, logger)

	sup, err := supervisor.New(ctx, &cfg.Redis, logger, m)
	if err != nil {
		logger.Error("Failed to connect to Redis: %v", err)
		return 1
	}
	defer func() {
		if err := sup.Close(); err != nil {
			logger.Error("Error closing Redis connections: %v", err)
		}
	}()
	go sup.Watch(ctx, cfg.Pipeline.HealthInterval)

	eng, mirror, err := initializeEngine(cfg, sup, m, logger)
	if err != nil {
		logger.Error("Failed to initialize consumer: %v", err)
		return 1
	}
	if mirror != nil {
		defer func() {
			if err := mirror.Close(); err != nil {
				logger.Error("Error closing MQTT pool: %v", err)
			}
		}()
	}

	return runMainLoop(ctx, eng, sup, cfg, logger)
}

func loadAndLogConfig(logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("Redis: %s, Group: %s, Consumer: %s", cfg.Redis.Address, cfg.Redis.Group, cfg.Redis.Consumer)
	logger.Info("Pipeline: MaxInFlight=%d, WriteTimeout=%s, DeleteAfterAck=%t",
		cfg.Pipeline.MaxInFlight, cfg.Pipeline.WriteTimeout, cfg.Redis.DeleteAfterAck)
	if cfg.MQTT.Enabled {
		logger.Info("MQTT mirror: %s, TopicPrefix: %s", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	}
	return cfg, nil
}

// startMetrics registers the collectors and serves them when an address is configured
func startMetrics(ctx context.Context, cfg *config.Config, logger *log.Logger) *metrics.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, reg, logger); err != nil {
				logger.Error("Metrics endpoint stopped: %v", err)
			}
		}()
	}
	return m
}

func initializeEngine(
	cfg *config.Config,
	sup *supervisor.Supervisor,
	m *metrics.Metrics,
	logger *log.Logger,
) (*engine.Engine, *mqtt.Mirror, error) {
	table, err := buildRelayTable(cfg.Relay.Routes, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := engine.OptionsFromConfig(cfg)
	opts.Metrics = m
	opts.Maintainer = sup.Writer()
	logger.Info("Consuming as %s in group %s", sup.Writer().Consumer(), sup.Writer().Group())

	var mirror *mqtt.Mirror
	if cfg.MQTT.Enabled {
		pool, err := mqtt.NewPool(&cfg.MQTT, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("MQTT pool connected with %d clients", pool.Size())
		mirror = mqtt.NewMirror(pool, cfg.MQTT.TopicPrefix, logger)
		opts.Mirror = mirror
	}

	return engine.New(sup.Reader(), sup.Writer(), table, opts, logger), mirror, nil
}

func runMainLoop(
	ctx context.Context,
	eng *engine.Engine,
	sup *supervisor.Supervisor,
	cfg *config.Config,
	logger *log.Logger,
) int {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- eng.Run(runCtx)
	}()

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, initiating graceful shutdown")
		cancel()
		<-errChan

	case <-sup.Done():
		logger.Error("Stopping after connection fault: %v", sup.Err())
		code = 1
		cancel()
		<-errChan

	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Consumer stopped: %v", err)
			code = 1
		}
	}

	return handleGracefulShutdown(eng, sup, cfg, logger, code)
}

// handleGracefulShutdown drains in-flight entries, then closes the store
// connections, which also releases a read still blocked on the server
func handleGracefulShutdown(
	eng *engine.Engine,
	sup *supervisor.Supervisor,
	cfg *config.Config,
	logger *log.Logger,
	code int,
) int {
	if err := eng.Drain(cfg.Pipeline.ShutdownTimeout); err != nil {
		logger.Error("Shutdown timeout exceeded: %v", err)
		code = 1
	}
	if err := sup.Close(); err != nil {
		logger.Error("Error closing Redis connections: %v", err)
	}
	eng.Wait()

	if err := sup.Err(); err != nil && code == 0 {
		logger.Error("Connection fault during shutdown: %v", err)
		code = 1
	}
	logger.Info("Consumer stopped")
	return code
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
