package ladder

import "ladder_go/pkg/quant"

// slot is a ring index in [0, capacity). slotOf is its only constructor, so
// every access into levels or the bitmap has been masked first.
type slot uint32

func (l *Ladder) slotOf(off uint64) slot { return slot(off & l.mask) }

func (l *Ladder) load(s slot) quant.Qty     { return l.levels[s] }
func (l *Ladder) store(s slot, q quant.Qty) { l.levels[s] = q }

// priceOf maps a slot back to its price. The anchor clamp keeps this from
// overflowing.
func (l *Ladder) priceOf(s slot) quant.Price { return l.anchor + quant.Price(s) }

// offset returns p's distance above the anchor and whether it is inside the
// window. The unsigned wrap makes prices below the anchor compare as huge.
func (l *Ladder) offset(p quant.Price) (uint64, bool) {
	off := uint64(p) - uint64(l.anchor)
	return off, off <= l.mask
}
