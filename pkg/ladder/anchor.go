package ladder

import (
	"math"
	"math/bits"

	"ladder_go/pkg/quant"
	"ladder_go/pkg/safe"
)

// Policy decides what happens to live levels when the window moves.
type Policy uint8

const (
	// ShiftPreserving moves the window and relocates every live level.
	// It fails instead of dropping levels unless trim depth is enabled.
	ShiftPreserving Policy = iota

	// HardReset re-centres the window on the new price and zeroes the whole
	// ladder. The caller must resend a full snapshot afterwards or the book
	// is silently missing levels.
	HardReset
)

func (p Policy) String() string {
	switch p {
	case ShiftPreserving:
		return "SHIFT_PRESERVING"
	case HardReset:
		return "HARD_RESET"
	default:
		return "UNKNOWN"
	}
}

func bitsTrailing(x uint64) int { return bits.TrailingZeros64(x) }

// maybeReanchor moves the window so that p fits. It is a no-op when p is
// already inside. On error nothing has been modified.
func (l *Ladder) maybeReanchor(p quant.Price) error {
	if _, in := l.offset(p); in {
		return nil
	}
	if l.live == 0 {
		l.anchor = l.centre(p)
		l.stats.Reanchors++
		return nil
	}
	if l.policy == HardReset {
		l.stats.Dropped += uint64(l.live)
		l.clear()
		l.anchor = l.centre(p)
		l.stats.Reanchors++
		return nil
	}
	return l.shift(p)
}

// centre returns the anchor that puts p in the middle of the window.
func (l *Ladder) centre(p quant.Price) quant.Price {
	half := int64(l.mask+1) / 2
	return l.clampAnchor(safe.SaturatingSub(int64(p), half))
}

func (l *Ladder) clampAnchor(a int64) quant.Price {
	return min(quant.Price(a), l.maxAnchor())
}

func (l *Ladder) shift(p quant.Price) error {
	capacity := l.mask + 1
	best := l.priceOf(l.best)
	if safe.AbsDiff(int64(p), int64(best)) >= capacity {
		return ErrPriceOutOfWindow
	}

	loSlot, _ := l.bits.next(0)
	hiSlot, _ := l.bits.prev(int(l.mask))
	lo := min(l.priceOf(loSlot), p)
	hi := max(l.priceOf(hiSlot), p)

	var anchor quant.Price
	if span := uint64(hi) - uint64(lo); span < capacity {
		slack := int64(capacity-1-span) / 2
		anchor = l.clampAnchor(safe.SaturatingSub(int64(lo), slack))
	} else {
		if !l.trim {
			return ErrCapacityExceeded
		}
		anchor = l.trimAnchor(p, best)
	}
	l.move(anchor)
	return nil
}

// trimAnchor places the window at the better edge, leaving up to a quarter
// of the capacity as headroom beyond p while keeping the old best inside.
// Only reached when p improves on best.
func (l *Ladder) trimAnchor(p, best quant.Price) quant.Price {
	capacity := l.mask + 1
	room := capacity - 1 - safe.AbsDiff(int64(p), int64(best))
	head := int64(min(capacity/4, room))
	if l.side == Bid {
		top := safe.SaturatingAdd(int64(p), head)
		if top == math.MaxInt64 {
			return l.maxAnchor()
		}
		return l.clampAnchor(top - int64(l.mask))
	}
	return l.clampAnchor(safe.SaturatingSub(int64(p), head))
}

// move relocates every live level to its slot under the new anchor. Levels
// that fall outside the new window are dropped. The scratch array and spare
// bitmap are swapped in, so no memory is allocated.
func (l *Ladder) move(anchor quant.Price) {
	dst, spare := l.scratch, &l.spare
	for si, sw := range l.bits.summary {
		for sw != 0 {
			w := si<<6 + bits.TrailingZeros64(sw)
			sw &= sw - 1
			for word := l.bits.words[w]; word != 0; word &= word - 1 {
				s := slot(w<<6 + bits.TrailingZeros64(word))
				q := l.levels[s]
				l.levels[s] = 0

				off := uint64(l.priceOf(s)) - uint64(anchor)
				if off > l.mask {
					l.total -= q
					l.live--
					l.stats.Dropped++
					continue
				}
				ns := l.slotOf(off)
				dst[ns] = q
				spare.set(ns)
			}
		}
	}

	l.bits.reset()
	l.levels, l.scratch = dst, l.levels
	l.bits, l.spare = l.spare, l.bits
	l.anchor = anchor
	l.resetBest()
	l.stats.Reanchors++
}
