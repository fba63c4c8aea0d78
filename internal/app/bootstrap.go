package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"ladder_go/internal/api"
	"ladder_go/internal/book"
	"ladder_go/internal/engine"
	"ladder_go/internal/event"
	"ladder_go/internal/infra"
	"ladder_go/internal/infra/bitget"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Metrics   *infra.Metrics
	Books     []*book.Book
	Sequencer *engine.Sequencer
	Feed      *bitget.DepthWorker
	API       *api.Server

	nextSeq   uint64
	logCloser io.Closer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration at path and wires books, sequencer and
// feed. Nothing runs until Start.
func (b *Bootstrap) Initialize(path string) error {
	// 0. Runtime Warmup (GC Optimization)
	event.Warmup()

	// 1. Load Config
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	b.Config = cfg

	// 2. Setup Logger
	logger, closer, err := infra.NewLogger(cfg)
	if err != nil {
		return err
	}
	b.logCloser = closer
	slog.SetDefault(logger)
	slog.Info("🚀 Bootstrapping ladder-go...", slog.String("config", path))

	b.Metrics = infra.NewMetrics()

	// 3. Books, one pair of ladders per symbol
	specs := make(map[string]book.Spec, len(cfg.Books))
	for _, bc := range cfg.Books {
		spec, err := bc.Spec()
		if err != nil {
			return err
		}
		bk, err := book.New(bc.Symbol, spec)
		if err != nil {
			return err
		}
		b.Books = append(b.Books, bk)
		specs[bc.Symbol] = spec
	}

	dumpPath, err := resolveDumpPath(cfg.Engine.DumpPath)
	if err != nil {
		return err
	}

	// 4. Sequencer (single writer) and feed
	b.Sequencer = engine.NewSequencer(b.Books, engine.Options{
		InboxSize: cfg.Engine.InboxSize,
		MaxGap:    cfg.Engine.MaxGap,
		DumpPath:  dumpPath,
		Breaker: infra.CircuitBreakerConfig{
			FailureThreshold: cfg.Engine.Resync.FailureThreshold,
			SuccessThreshold: cfg.Engine.Resync.SuccessThreshold,
			Timeout:          time.Duration(cfg.Engine.Resync.TimeoutSec) * time.Second,
		},
		Metrics: b.Metrics,
		Resync:  b.requestResync,
	})
	b.Feed = bitget.NewDepthWorker(cfg.Feed, specs, b.Sequencer.Inbox(), &b.nextSeq, b.Metrics)

	// 5. Read API (book tops, depth, metrics)
	b.API = api.New(cfg.App.Name, b.Sequencer, b.Books, b.Metrics.Handler())

	slog.Info("✅ Bootstrap complete", slog.Int("books", len(b.Books)), slog.String("feed", b.Feed.ID()))
	return nil
}

func (b *Bootstrap) requestResync(symbol string) {
	if b.Feed != nil {
		b.Feed.RequestResync(symbol)
	}
}

// Start runs the sequencer and connects the feed.
func (b *Bootstrap) Start(ctx context.Context) error {
	go b.Sequencer.Run(ctx)
	if err := b.Feed.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", b.Feed.ID(), err)
	}
	return nil
}

// Stop disconnects the feed, shuts the API down and flushes the log file.
// The sequencer stops with the Start context.
func (b *Bootstrap) Stop() {
	if b.Feed != nil {
		b.Feed.Disconnect()
	}
	if b.API != nil {
		if err := b.API.ShutdownWithTimeout(5 * time.Second); err != nil {
			slog.Warn("API_SHUTDOWN_FAILED", slog.Any("error", err))
		}
	}
	if b.logCloser != nil {
		b.logCloser.Close()
	}
}

// ServeAPI listens on the configured API address until Stop. It returns
// immediately when the API is disabled.
func (b *Bootstrap) ServeAPI() error {
	addr := b.Config.API.Addr
	if addr == "" {
		return nil
	}
	slog.Info("📈 API server started", slog.String("addr", addr))
	return b.API.Listen(addr)
}

// ReportTops logs the top of every book each interval until ctx ends.
func (b *Bootstrap) ReportTops(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, bk := range b.Books {
				top, ok := b.Sequencer.BookTop(bk.Symbol())
				if !ok {
					continue
				}
				attrs := []any{
					slog.String("symbol", top.Symbol),
					slog.Bool("stale", top.Stale),
					slog.Int("bid_levels", top.BidLevels),
					slog.Int("ask_levels", top.AskLevels),
				}
				if top.HasBid {
					attrs = append(attrs, slog.String("bid", bk.FormatPrice(top.BidPrice)))
				}
				if top.HasAsk {
					attrs = append(attrs, slog.String("ask", bk.FormatPrice(top.AskPrice)))
				}
				slog.Info("BOOK_TOP", attrs...)
			}
		}
	}
}

// resolveDumpPath places relative dump paths under the workspace directory.
func resolveDumpPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	dir := filepath.Join(infra.GetWorkspaceDir(), "dumps")
	if err := infra.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create dump dir: %w", err)
	}
	return filepath.Join(dir, p), nil
}

// ResolveConfig returns path, or the default lookup when path is empty.
func ResolveConfig(path string) string {
	if path != "" {
		return path
	}
	return infra.ResolveConfigPath()
}
