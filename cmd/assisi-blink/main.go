// Package main implements a small demonstration client: it connects to one
// node, prints the front proximity reading once per second, and blinks the
// diagnostic LED until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plsm/assisi-go/config"
	"github.com/plsm/assisi-go/node"
	"github.com/plsm/assisi-go/readings"
	"github.com/plsm/assisi-go/wire"
)

func main() {
	if err := run(); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	name := flag.String("name", "lure-01", "node name on the bus")
	pubAddr := flag.String("pub", config.DefaultPubAddr, "downstream command address")
	subAddr := flag.String("sub", config.DefaultSubAddr, "upstream data address")
	logDir := flag.String("log-dir", "", "activity log directory (empty disables logging)")
	timeout := flag.Duration("connect-timeout", config.DefaultConnectTimeout, "handshake timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Default(*name)
	cfg.PubAddr = *pubAddr
	cfg.SubAddr = *subAddr
	cfg.ConnectTimeout = *timeout
	if *logDir != "" {
		cfg.Log = true
		cfg.LogDir = *logDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting", "node", cfg.Name, "sub", cfg.SubAddr, "pub", cfg.PubAddr)
	n, err := node.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.Stop(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	on := false
	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted")
			return nil
		case <-ticker.C:
		}

		fmt.Printf("front range: %.2f\n", n.Range(readings.IRFront))

		var c wire.Color
		if on = !on; on {
			c = wire.Color{Red: 1}
		}
		if err := n.SetDiagnosticLED(ctx, c); err != nil {
			logger.Warn("led command failed", "error", err)
		}
	}
}
