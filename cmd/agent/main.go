package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Arun-Labana/logai-sdk/internal/config"
	"github.com/Arun-Labana/logai-sdk/internal/daemon"
	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/logging/batch"
	"github.com/Arun-Labana/logai-sdk/internal/logging/loki"
	"github.com/Arun-Labana/logai-sdk/internal/logging/objstore"
	"github.com/Arun-Labana/logai-sdk/internal/logging/postgres"
	"github.com/Arun-Labana/logai-sdk/internal/logging/supabase"
	"github.com/Arun-Labana/logai-sdk/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Shipping.NodeName == "" {
		cfg.Shipping.NodeName = cfg.Tail.NodeName
	}

	monitor := batch.NewMonitor("logai")
	processor := batch.NewProcessor(cfg.Shipping, sinkFactory(cfg.Sink),
		batch.WithLogger(logger),
		batch.WithMonitor(monitor),
	)
	// A bad shipping config is logged by Start and leaves the processor
	// stopped; the agent keeps serving status.
	processor.Start()

	var tailer *daemon.LogDaemonService
	if cfg.Tail.Enabled {
		tailer = daemon.NewLogDaemonService(ctx, cfg.Tail.Config, processor, logger)
		tailer.Start()
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		var status server.Tailer
		if tailer != nil {
			status = tailer
		}
		srv = server.New(cfg.Server.Config, processor, monitor, status, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				level.Error(logger).Log("msg", "http server failed", "err", err)
				cancel()
			}
		}()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		level.Info(logger).Log("msg", "received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	level.Info(logger).Log("msg", "shutting down")
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		done()
	}
	// Stop producers first so nothing is appended while the queue drains.
	if tailer != nil {
		tailer.Stop()
	}
	processor.Stop()
	cancel()

	stats := processor.Stats()
	level.Info(logger).Log("msg", "stopped", "sent", stats.Sent, "dropped", stats.Dropped, "failed_batches", stats.FailedBatches)
}

func sinkFactory(kind string) logging.SinkFactory {
	switch kind {
	case config.SinkLoki:
		return loki.NewSink
	case config.SinkPostgres:
		return postgres.NewSink
	case config.SinkS3:
		return objstore.NewSink
	default:
		return supabase.NewSink
	}
}

func newLogger(cfg config.LogConfig) (log.Logger, func()) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		out = rotating
		closeFn = func() { _ = rotating.Close() }
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(out))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	logger = level.NewFilter(logger, levelOption(cfg.Level))
	return logger, closeFn
}

func levelOption(name string) level.Option {
	switch name {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
