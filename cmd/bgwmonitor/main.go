// Command bgwmonitor runs the branch-media-gateway monitoring engine: it
// discovers reachable BGWs, polls them on a steady-state cycle, and accepts
// packet-capture uploads over HTTP, until interrupted (SIGINT/SIGTERM).
//
// Usage:
//
//	bgwmonitor -script <path> [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/app"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/config"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/discovery"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/script"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bgwmonitor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		logLevel     string
		logFmt       string
		configPath   string
		scriptPath   string
		discoverIPs  string
		discoverProto string
	)

	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.StringVar(&configPath, "config", config.PathFromEnv("bgwmonitor.yaml"), "Path to the YAML configuration file")
	flag.StringVar(&scriptPath, "script", "", "Path to the opaque expect-style dialog program template (required)")
	flag.StringVar(&discoverIPs, "discover.ips", "", "Comma-separated static gateway IPs, bypassing netstat enumeration")
	flag.StringVar(&discoverProto, "discover.proto", "tls", "Protocol tag applied to every -discover.ips entry")
	flag.Parse()

	if scriptPath == "" {
		return fmt.Errorf("-script is required")
	}

	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	scriptSrc, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script template: %w", err)
	}

	application := app.New(app.Config{
		Settings: cfg,
		Template: script.TextTemplate{Source: string(scriptSrc)},
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.Start()

	var ips []string
	if discoverIPs != "" {
		ips = strings.Split(discoverIPs, ",")
	}

	logger.Info("bgwmonitor: running discovery")
	if err := application.DiscoveryStart(ctx, ips, discoverProto, nil, func(p discovery.Progress) {
		logger.Debug("bgwmonitor: discovery progress", "ok", p.OK, "err", p.Err, "total", p.Total)
	}); err != nil {
		application.Stop()
		return fmt.Errorf("discovery: %w", err)
	}

	if err := application.PollingStart(ctx); err != nil {
		application.Stop()
		return fmt.Errorf("polling start: %w", err)
	}

	logger.Info("bgwmonitor: running — press Ctrl-C to stop")
	<-ctx.Done()
	logger.Info("bgwmonitor: received shutdown signal")

	application.Stop()
	return nil
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}
