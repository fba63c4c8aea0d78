// Package ladder implements a fixed-capacity Level-2 price ladder for one
// side of one instrument.
//
// Prices map to ring slots through (price - anchor) & (capacity - 1). The
// window [anchor, anchor+capacity) always contains every live level, so a
// price outside it reads as zero instead of aliasing another level. All
// memory is allocated by New. Apply, the queries and re-anchoring never
// allocate.
//
// A Ladder has a single writer and no locks. Readers on other goroutines
// must be fed copies by the owner.
package ladder

import (
	"fmt"
	"math"

	"ladder_go/pkg/quant"
	"ladder_go/pkg/safe"
)

// Side selects which end of the ladder is best.
type Side uint8

const (
	Bid Side = iota // best = highest price
	Ask             // best = lowest price
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "BID"
	case Ask:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}

// Op is the kind of a ladder update.
type Op uint8

const (
	Set    Op = iota + 1 // replace the level's quantity (absolute, not delta)
	Delete               // remove the level
)

func (o Op) String() string {
	switch o {
	case Set:
		return "SET"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Update is one decoded L2 change.
type Update struct {
	Price quant.Price
	Qty   quant.Qty
	Op    Op
}

// Level is a price with its aggregated quantity.
type Level struct {
	Price quant.Price `json:"price,string"`
	Qty   quant.Qty   `json:"qty,string"`
}

const (
	DefaultCapacity = 4096
	MaxCapacity     = 1 << 24
)

// Stats counts the slow-path events of a ladder.
type Stats struct {
	Reanchors uint64 `json:"reanchors"`
	Resets    uint64 `json:"resets"`
	Dropped   uint64 `json:"dropped"`
	Rejected  uint64 `json:"rejected"`
}

// Ladder is the price ladder of one side.
// Fields are ordered for cache-line efficiency: hot fields first.
type Ladder struct {
	levels []quant.Qty
	bits   bitmap
	anchor quant.Price
	mask   uint64
	best   slot
	live   int
	total  quant.Qty
	side   Side

	// Cold fields (re-anchoring only)
	policy  Policy
	trim    bool
	scratch []quant.Qty
	spare   bitmap
	stats   Stats
}

// Option configures a Ladder.
type Option func(*Ladder)

// WithPolicy selects how the window moves when a price falls outside it.
func WithPolicy(p Policy) Option {
	return func(l *Ladder) { l.policy = p }
}

// WithTrimDepth lets shift-preserving re-anchoring drop levels on the worse
// side when the book moved further than the capacity can hold.
func WithTrimDepth(trim bool) Option {
	return func(l *Ladder) { l.trim = trim }
}

// New creates a ladder with the given power-of-two capacity whose slot 0 is
// anchor.
func New(capacity int, anchor quant.Price, side Side, opts ...Option) (*Ladder, error) {
	if capacity < 2 || capacity > MaxCapacity || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if side != Bid && side != Ask {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}

	l := &Ladder{
		levels:  make([]quant.Qty, capacity),
		bits:    newBitmap(capacity),
		mask:    uint64(capacity - 1),
		side:    side,
		policy:  ShiftPreserving,
		scratch: make([]quant.Qty, capacity),
		spare:   newBitmap(capacity),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.policy != ShiftPreserving && l.policy != HardReset {
		return nil, fmt.Errorf("ladder: unknown policy %d", l.policy)
	}
	if anchor > l.maxAnchor() {
		return nil, fmt.Errorf("%w: anchor %d leaves no room for %d slots", ErrPriceOutOfWindow, anchor, capacity)
	}
	l.anchor = anchor
	l.best = l.emptyBest()
	return l, nil
}

// Apply writes one update. On error the ladder is unchanged.
func (l *Ladder) Apply(u Update) error {
	switch u.Op {
	case Set:
		if u.Qty < 0 {
			l.stats.Rejected++
			return ErrInvalidQuantity
		}
		if u.Qty == 0 {
			l.remove(u.Price)
			return nil
		}
		return l.set(u.Price, u.Qty)
	case Delete:
		l.remove(u.Price)
		return nil
	default:
		l.stats.Rejected++
		return ErrUnknownOp
	}
}

// Set replaces the quantity resting at p. A zero quantity deletes the level.
func (l *Ladder) Set(p quant.Price, q quant.Qty) error {
	return l.Apply(Update{Price: p, Qty: q, Op: Set})
}

// Delete removes the level at p. Deleting an empty level is a no-op.
func (l *Ladder) Delete(p quant.Price) error {
	return l.Apply(Update{Price: p, Op: Delete})
}

func (l *Ladder) set(p quant.Price, q quant.Qty) error {
	off, in := l.offset(p)
	var old quant.Qty
	if in {
		old = l.load(l.slotOf(off))
	}
	if _, ok := safe.CheckedAdd(int64(l.total-old), int64(q)); !ok {
		l.stats.Rejected++
		return ErrQuantityOverflow
	}

	if !in {
		if err := l.maybeReanchor(p); err != nil {
			l.stats.Rejected++
			return err
		}
		off, _ = l.offset(p)
	}

	s := l.slotOf(off)
	l.store(s, q)
	l.total += q - old
	if old == 0 {
		l.bits.set(s)
		l.live++
	}
	l.improve(s)
	return nil
}

// improve moves the cursor to s if s is better. Slots grow with price, so
// this is a max (Bid) or min (Ask), which compiles to a conditional move.
// The empty cursor sits at the worst slot, so the first level always wins.
func (l *Ladder) improve(s slot) {
	if l.side == Bid {
		l.best = max(l.best, s)
	} else {
		l.best = min(l.best, s)
	}
}

func (l *Ladder) remove(p quant.Price) {
	off, in := l.offset(p)
	if !in {
		return
	}
	s := l.slotOf(off)
	old := l.load(s)
	if old == 0 {
		return
	}
	l.store(s, 0)
	l.total -= old
	l.bits.clear(s)
	l.live--
	if s == l.best {
		l.rescan()
	}
}

// rescan finds the next best level after the best one was removed.
func (l *Ladder) rescan() {
	if l.live == 0 {
		l.best = l.emptyBest()
		return
	}
	if l.side == Bid {
		l.best, _ = l.bits.prev(int(l.best))
	} else {
		l.best, _ = l.bits.next(int(l.best))
	}
}

// resetBest recomputes the cursor from scratch.
func (l *Ladder) resetBest() {
	var ok bool
	if l.side == Bid {
		l.best, ok = l.bits.prev(int(l.mask))
	} else {
		l.best, ok = l.bits.next(0)
	}
	if !ok {
		l.best = l.emptyBest()
	}
}

func (l *Ladder) emptyBest() slot {
	if l.side == Bid {
		return 0
	}
	return slot(l.mask)
}

// maxAnchor is the highest anchor whose window does not overflow int64.
func (l *Ladder) maxAnchor() quant.Price {
	return quant.Price(math.MaxInt64 - int64(l.mask))
}

// BestPrice returns the best live price, or false if the ladder is empty.
func (l *Ladder) BestPrice() (quant.Price, bool) {
	if l.live == 0 {
		return 0, false
	}
	return l.priceOf(l.best), true
}

// Best returns the best level, or false if the ladder is empty.
func (l *Ladder) Best() (Level, bool) {
	if l.live == 0 {
		return Level{}, false
	}
	return Level{Price: l.priceOf(l.best), Qty: l.load(l.best)}, true
}

// QuantityAt returns the quantity resting at p, zero if none.
func (l *Ladder) QuantityAt(p quant.Price) quant.Qty {
	off, in := l.offset(p)
	if !in {
		return 0
	}
	return l.load(l.slotOf(off))
}

// Reset drops every level and moves slot 0 to anchor.
func (l *Ladder) Reset(anchor quant.Price) error {
	if anchor > l.maxAnchor() {
		return fmt.Errorf("%w: anchor %d", ErrPriceOutOfWindow, anchor)
	}
	l.clear()
	l.anchor = anchor
	l.stats.Resets++
	return nil
}

// clear zeroes every live slot, visiting only non-empty bitmap words.
func (l *Ladder) clear() {
	for si, sw := range l.bits.summary {
		for sw != 0 {
			w := si<<6 + bitsTrailing(sw)
			sw &= sw - 1
			for word := l.bits.words[w]; word != 0; word &= word - 1 {
				l.levels[w<<6+bitsTrailing(word)] = 0
			}
		}
	}
	l.bits.reset()
	l.live = 0
	l.total = 0
	l.best = l.emptyBest()
}

func (l *Ladder) Len() int            { return l.live }
func (l *Ladder) Total() quant.Qty    { return l.total }
func (l *Ladder) Capacity() int       { return int(l.mask) + 1 }
func (l *Ladder) Side() Side          { return l.side }
func (l *Ladder) Policy() Policy      { return l.policy }
func (l *Ladder) Anchor() quant.Price { return l.anchor }
func (l *Ladder) Stats() Stats        { return l.stats }

// Window returns the lowest and highest representable prices.
func (l *Ladder) Window() (lo, hi quant.Price) {
	return l.anchor, l.anchor + quant.Price(l.mask)
}
