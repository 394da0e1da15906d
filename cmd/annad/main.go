// Package main is the entry point for annad, Anna's local system-assistant
// daemon.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and
//     CLI flags
//   - Build the application and audit loggers
//   - Wire every component (LLM client, Tool Catalog, Orchestrator, Fix-It
//     driver, Fact Store, Historian, Insights/Recipe engines, Knowledge
//     Base, progression tracker) into one internal/daemon.Daemon
//   - Serve the JSON-RPC method set over a Unix-domain socket, plus the
//     optional Fix-It live-progress websocket stream
//   - Serve a Prometheus /metrics endpoint when enabled
//   - Implement graceful shutdown with context cancellation
//
// Architecture Flow:
//  1. config.ConfigManager loads and validates the on-disk configuration
//  2. internal/daemon.Daemon wires every stateful component in dependency
//     order
//  3. internal/rpcserver.Server exposes the Daemon as a JSON-RPC handler
//     over a Unix socket; the daemon's Fix-It driver pushes progress
//     events to the server's websocket hub
//  4. SIGINT/SIGTERM trigger an ordered shutdown: stop the metrics server
//     and stop accepting RPC connections, then stop the daemon so
//     in-flight state is flushed to disk, then close the audit log
//
// Graceful Shutdown:
//   - Stops accepting new RPC connections and closes the Fix-It stream
//   - Waits for in-flight requests to drain
//   - Flushes the Fact Store, recipe catalog, Knowledge Base, and
//     progression tracker to disk
//   - Flushes the audit log
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/annassistant/anna/internal/audit"
	"github.com/annassistant/anna/internal/config"
	"github.com/annassistant/anna/internal/daemon"
	"github.com/annassistant/anna/internal/rpcserver"
)

func main() {
	configPath := flag.String("config", "/etc/anna/config.yaml", "path to annad's YAML config file")
	debug := flag.Bool("debug", false, "override the configured log level to debug")
	flag.Parse()

	ctx := context.Background()

	mgr, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "annad: build config manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "annad: load config: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "annad: invalid config: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)
	if *debug {
		cfg.Logging.Level = "debug"
	}

	logger, err := newAppLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "annad: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	auditLogger, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditPath,
		AppLogPath:   appLogPath(cfg),
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		logger.Fatal("build audit logger", zap.Error(err))
	}

	d, err := daemon.New(cfg, logger, auditLogger)
	if err != nil {
		logger.Fatal("build daemon", zap.Error(err))
	}

	streamSocket := ""
	if cfg.RPC.SocketPath != "" {
		streamSocket = cfg.RPC.SocketPath + ".stream"
	}
	rpc := rpcserver.New(rpcserver.Config{
		SocketPath:       cfg.RPC.SocketPath,
		SocketMode:       os.FileMode(cfg.RPC.SocketMode),
		StreamSocketPath: streamSocket,
	}, d, logger)
	d.SetStream(rpc.Stream)

	d.Start()
	if err := rpc.Start(); err != nil {
		logger.Fatal("start rpc server", zap.Error(err))
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(logger, cfg.Metrics.ListenAddress)
	}

	logger.Info("annad started",
		zap.String("socket", cfg.RPC.SocketPath),
		zap.String("state_root", cfg.State.Root),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
		cancel()
	}
	if err := rpc.Stop(); err != nil {
		logger.Warn("rpc server shutdown", zap.Error(err))
	}
	if err := d.Stop(); err != nil {
		logger.Warn("daemon shutdown", zap.Error(err))
	}
	if err := auditLogger.Close(); err != nil {
		logger.Warn("audit log shutdown", zap.Error(err))
	}
	logger.Info("annad stopped")
}

// appLogPath derives a sibling path to the configured audit log for annad's
// own application log, since config.Config carries only AuditPath.
func appLogPath(cfg *config.Config) string {
	if cfg.Logging.AuditPath == "" {
		return "logs/anna.log"
	}
	return filepath.Join(filepath.Dir(cfg.Logging.AuditPath), "anna.log")
}

// newAppLogger builds annad's general-purpose logger using the same
// rotated-JSON-core construction internal/audit.NewLogger uses for its own
// app logger, since that logger is never exposed through the audit.Logger
// interface.
func newAppLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Logging.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	rotator := &lumberjack.Logger{
		Filename:   appLogPath(cfg),
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(rotator), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stderr), level),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func startMetricsServer(logger *zap.Logger, addr string) *http.Server {
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server error", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("address", addr))
	return srv
}
