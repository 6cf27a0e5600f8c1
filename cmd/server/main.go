//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/andy6609/reactor-chat-server/internal/chat"
)

func main() {
	host := flag.String("host", "", "IPv4 address to bind (default all interfaces)")
	metricsAddr := flag.String("metrics-addr", ":9090", "metrics listen address, empty to disable (a bind failure only disables metrics)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	readBuffer := flag.Int("read-buffer", chat.DefaultReadBufferSize, "bytes read per event, one read is one message")
	maxPending := flag.Int("max-pending", chat.DefaultMaxPendingBytes, "per-client outbound backlog in bytes")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <PORT>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	port, err := chat.ParsePort(flag.Arg(0))
	if err != nil {
		logger.Error("invalid port number", "port", flag.Arg(0), "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := chat.NewServer(chat.Config{
		Host:            *host,
		Port:            port,
		ReadBufferSize:  *readBuffer,
		MaxPendingBytes: *maxPending,
		Logger:          logger,
		Registerer:      reg,
	})
	if err := srv.Listen(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if *metricsAddr != "" {
		g.Go(func() error {
			serveMetrics(ctx, *metricsAddr, reg, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}
