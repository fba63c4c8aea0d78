package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ladder_go/internal/app"
	"ladder_go/internal/infra"

	_ "github.com/joho/godotenv/autoload"
	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(app.ResolveConfig(*configPath)); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config
	infra.PrintBanner(os.Stdout, cfg)

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Read API and metrics
	go func() {
		if err := bootstrap.ServeAPI(); err != nil {
			slog.Error("API server failed", slog.Any("error", err))
		}
	}()

	// 5. Sequencer (Hotpath) and feed
	if err := bootstrap.Start(ctx); err != nil {
		slog.Error("❌ Start failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Stop()

	go bootstrap.ReportTops(ctx, 10*time.Second)

	slog.InfoContext(ctx, "✨ Depth service operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
}
