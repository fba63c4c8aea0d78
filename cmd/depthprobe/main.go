package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ladder_go/internal/book"
	"ladder_go/internal/event"
	"ladder_go/internal/infra/bitget"
	"ladder_go/pkg/ladder"
	"ladder_go/pkg/quant"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "spot symbol")
	tickSize := flag.String("tick", "0.01", "tick size")
	lotSize := flag.String("lot", "0.000001", "lot size")
	capacity := flag.Int("capacity", ladder.DefaultCapacity, "ladder capacity (power of two)")
	limit := flag.Int("limit", 50, "levels per side to fetch")
	show := flag.Int("show", 10, "levels per side to print")
	baseURL := flag.String("url", bitget.RestURL, "REST base URL")
	flag.Parse()

	if err := run(*symbol, *tickSize, *lotSize, *capacity, *limit, *show, *baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(symbol, tickSize, lotSize string, capacity, limit, show int, baseURL string) error {
	tick, err := quant.NewTickSize(tickSize)
	if err != nil {
		return fmt.Errorf("tick: %w", err)
	}
	lot, err := quant.NewLotSize(lotSize)
	if err != nil {
		return fmt.Errorf("lot: %w", err)
	}
	spec := book.Spec{Tick: tick, Lot: lot, Capacity: capacity}
	b, err := book.New(symbol, spec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ev, err := bitget.NewRestClient(baseURL).FetchDepth(ctx, symbol, limit, spec)
	if err != nil {
		return err
	}
	defer event.ReleaseDepthEvent(ev)

	rejected, err := b.Load(ev.Bids, ev.Asks)
	if err != nil {
		fmt.Printf("⚠️  %d levels rejected: %v\n", rejected, err)
	}

	fmt.Printf("=== %s depth (tick %s, lot %s, capacity %d) ===\n\n", symbol, tick, lot, capacity)

	asks := b.Depth(ladder.Ask, nil, show)
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Printf("  ASK %14s  %14s  (%d ticks)\n", b.FormatPrice(asks[i].Price), b.FormatQty(asks[i].Qty), asks[i].Price)
	}
	if s, ok := b.Spread(); ok {
		fmt.Printf("  ---- spread %d ticks (%s) ----\n", s, b.FormatPrice(s))
	}
	for _, lvl := range b.Depth(ladder.Bid, nil, show) {
		fmt.Printf("  BID %14s  %14s  (%d ticks)\n", b.FormatPrice(lvl.Price), b.FormatQty(lvl.Qty), lvl.Price)
	}

	fmt.Println()
	for _, side := range []ladder.Side{ladder.Bid, ladder.Ask} {
		l := b.Side(side)
		lo, hi := l.Window()
		fmt.Printf("%s: %d levels, total %s, window [%s, %s], %+v\n",
			side, l.Len(), b.FormatQty(l.Total()), b.FormatPrice(lo), b.FormatPrice(hi), l.Stats())
	}
	return nil
}
