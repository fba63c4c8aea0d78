// Package book pairs a bid and an ask ladder for one instrument and converts
// exchange decimal strings into ladder ticks and lots.
package book

import (
	"fmt"
	"math"

	"ladder_go/internal/domain"
	"ladder_go/pkg/ladder"
	"ladder_go/pkg/quant"
	"ladder_go/pkg/safe"
)

// Spec describes how a book is sized and how its prices are quantized.
type Spec struct {
	Tick      quant.TickSize
	Lot       quant.LotSize
	Capacity  int
	Policy    ladder.Policy
	TrimDepth bool
}

// Book is the two-sided L2 book of one symbol. Like the ladders it holds, it
// has a single writer.
type Book struct {
	bids   *ladder.Ladder
	asks   *ladder.Ladder
	spec   Spec
	symbol string
}

// New creates an empty book. Both ladders start anchored at zero and move to
// the market on the first Reset or Set.
func New(symbol string, spec Spec) (*Book, error) {
	if spec.Tick.IsZero() || spec.Lot.IsZero() {
		return nil, fmt.Errorf("book %s: %w: tick and lot size are required", symbol, quant.ErrStep)
	}
	if spec.Capacity == 0 {
		spec.Capacity = ladder.DefaultCapacity
	}
	opts := []ladder.Option{
		ladder.WithPolicy(spec.Policy),
		ladder.WithTrimDepth(spec.TrimDepth),
	}

	bids, err := ladder.New(spec.Capacity, 0, ladder.Bid, opts...)
	if err != nil {
		return nil, fmt.Errorf("book %s: %w", symbol, err)
	}
	asks, err := ladder.New(spec.Capacity, 0, ladder.Ask, opts...)
	if err != nil {
		return nil, fmt.Errorf("book %s: %w", symbol, err)
	}

	return &Book{bids: bids, asks: asks, spec: spec, symbol: symbol}, nil
}

func (b *Book) Symbol() string { return b.symbol }
func (b *Book) Spec() Spec     { return b.spec }

// Side returns the ladder of one side.
func (b *Book) Side(s ladder.Side) *ladder.Ladder {
	if s == ladder.Bid {
		return b.bids
	}
	return b.asks
}

// Apply writes one update to one side.
func (b *Book) Apply(s ladder.Side, u ladder.Update) error {
	return b.Side(s).Apply(u)
}

// ApplyLevel parses an exchange price/size pair and applies it. A zero size
// deletes the level.
func (b *Book) ApplyLevel(s ladder.Side, price, size string) error {
	u, err := b.ParseLevel(price, size)
	if err != nil {
		return err
	}
	return b.Side(s).Apply(u)
}

// ApplyLevels applies levels to one side in order, treating a zero quantity
// as a removal. Every level is attempted; it returns how many were rejected
// and the first error.
func (b *Book) ApplyLevels(s ladder.Side, levels []ladder.Level) (rejected int, err error) {
	side := b.Side(s)
	for _, lvl := range levels {
		u := ladder.Update{Price: lvl.Price, Qty: lvl.Qty, Op: ladder.Set}
		if lvl.Qty == 0 {
			u.Op = ladder.Delete
		}
		if e := side.Apply(u); e != nil {
			if err == nil {
				err = fmt.Errorf("book %s: %s %d: %w", b.symbol, s, lvl.Price, e)
			}
			rejected++
		}
	}
	return rejected, err
}

// Load replaces the book with a snapshot. Both windows are centred on the
// best bid, or the best ask when there are no bids.
func (b *Book) Load(bids, asks []ladder.Level) (rejected int, err error) {
	center, ok := bestOf(bids, ladder.Bid)
	if !ok {
		center, _ = bestOf(asks, ladder.Ask)
	}
	if err := b.Reset(center); err != nil {
		return 0, err
	}

	nb, errB := b.ApplyLevels(ladder.Bid, bids)
	na, errA := b.ApplyLevels(ladder.Ask, asks)
	if errB == nil {
		errB = errA
	}
	return nb + na, errB
}

func bestOf(levels []ladder.Level, s ladder.Side) (quant.Price, bool) {
	var best quant.Price
	found := false
	for _, lvl := range levels {
		if lvl.Qty <= 0 {
			continue
		}
		if !found || (s == ladder.Bid && lvl.Price > best) || (s == ladder.Ask && lvl.Price < best) {
			best, found = lvl.Price, true
		}
	}
	return best, found
}

// ParseLevel converts an exchange price/size pair into an update.
func (b *Book) ParseLevel(price, size string) (ladder.Update, error) {
	p, err := b.spec.Tick.ParsePrice(price)
	if err != nil {
		return ladder.Update{}, fmt.Errorf("price %q: %w", price, err)
	}
	q, err := b.spec.Lot.ParseQty(size)
	if err != nil {
		return ladder.Update{}, fmt.Errorf("size %q: %w", size, err)
	}
	if q == 0 {
		return ladder.Update{Price: p, Op: ladder.Delete}, nil
	}
	return ladder.Update{Price: p, Qty: q, Op: ladder.Set}, nil
}

// Reset empties both sides and places their windows around center: bids get
// three quarters of the window below it, asks three quarters above. Both
// windows contain center.
func (b *Book) Reset(center quant.Price) error {
	capacity := int64(b.spec.Capacity)
	quarter := capacity / 4
	bidAnchor := safe.SaturatingSub(int64(center), capacity-1-quarter)
	askAnchor := safe.SaturatingSub(int64(center), quarter)

	if err := b.bids.Reset(clampAnchor(bidAnchor, capacity)); err != nil {
		return fmt.Errorf("book %s: reset bids: %w", b.symbol, err)
	}
	if err := b.asks.Reset(clampAnchor(askAnchor, capacity)); err != nil {
		return fmt.Errorf("book %s: reset asks: %w", b.symbol, err)
	}
	return nil
}

func clampAnchor(anchor, capacity int64) quant.Price {
	return quant.Price(min(anchor, math.MaxInt64-capacity+1))
}

func (b *Book) BestBid() (ladder.Level, bool) { return b.bids.Best() }
func (b *Book) BestAsk() (ladder.Level, bool) { return b.asks.Best() }

// Spread returns best ask minus best bid in ticks. It is negative when the
// book is crossed. ok is false unless both sides have a level and the
// difference fits in an int64.
func (b *Book) Spread() (quant.Price, bool) {
	bid, ok := b.bids.BestPrice()
	if !ok {
		return 0, false
	}
	ask, ok := b.asks.BestPrice()
	if !ok {
		return 0, false
	}
	s, ok := safe.CheckedSub(int64(ask), int64(bid))
	return quant.Price(s), ok
}

// Crossed reports whether the best bid is at or above the best ask. A locked
// book counts: one venue's book never rests a bid at its own best ask, so
// equal prices mean a delta was missed.
func (b *Book) Crossed() bool {
	bid, okB := b.bids.BestPrice()
	ask, okA := b.asks.BestPrice()
	return okB && okA && bid >= ask
}

// Depth appends up to n levels of one side, best first.
func (b *Book) Depth(s ladder.Side, dst []ladder.Level, n int) []ladder.Level {
	return b.Side(s).Depth(dst, n)
}

func (b *Book) Total(s ladder.Side) quant.Qty { return b.Side(s).Total() }

// Top copies the top of the book.
func (b *Book) Top() domain.BookTop {
	top := domain.BookTop{
		Symbol:    b.symbol,
		BidTotal:  b.bids.Total(),
		AskTotal:  b.asks.Total(),
		BidLevels: b.bids.Len(),
		AskLevels: b.asks.Len(),
	}
	if lvl, ok := b.bids.Best(); ok {
		top.BidPrice, top.BidQty, top.HasBid = lvl.Price, lvl.Qty, true
	}
	if lvl, ok := b.asks.Best(); ok {
		top.AskPrice, top.AskQty, top.HasAsk = lvl.Price, lvl.Qty, true
	}
	return top
}

// FormatPrice renders a tick price in exchange notation.
func (b *Book) FormatPrice(p quant.Price) string { return b.spec.Tick.Format(p) }

// FormatQty renders a lot quantity in exchange notation.
func (b *Book) FormatQty(q quant.Qty) string { return b.spec.Lot.Format(q) }
