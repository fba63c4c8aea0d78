package ladder

import (
	"iter"

	"ladder_go/pkg/quant"
)

// Levels yields live levels from best to worst. The sequence is lazy and can
// be ranged over more than once. The ladder must not be modified while it is
// being ranged over.
func (l *Ladder) Levels() iter.Seq2[quant.Price, quant.Qty] {
	if l.side == Bid {
		return l.descending
	}
	return l.ascending
}

// Ascending yields live levels from lowest to highest price regardless of
// side.
func (l *Ladder) Ascending() iter.Seq2[quant.Price, quant.Qty] {
	return l.ascending
}

func (l *Ladder) ascending(yield func(quant.Price, quant.Qty) bool) {
	for s, ok := l.bits.next(0); ok; s, ok = l.bits.next(int(s) + 1) {
		if !yield(l.priceOf(s), l.load(s)) {
			return
		}
	}
}

func (l *Ladder) descending(yield func(quant.Price, quant.Qty) bool) {
	for s, ok := l.bits.prev(int(l.mask)); ok; s, ok = l.bits.prev(int(s) - 1) {
		if !yield(l.priceOf(s), l.load(s)) {
			return
		}
	}
}

// Depth appends up to n levels, best first, to dst and returns it. Passing a
// dst with enough capacity keeps the call allocation free.
func (l *Ladder) Depth(dst []Level, n int) []Level {
	if n <= 0 {
		return dst
	}
	var s slot
	var ok bool
	if l.side == Bid {
		s, ok = l.bits.prev(int(l.mask))
	} else {
		s, ok = l.bits.next(0)
	}
	for ; ok && n > 0; n-- {
		dst = append(dst, Level{Price: l.priceOf(s), Qty: l.load(s)})
		if l.side == Bid {
			s, ok = l.bits.prev(int(s) - 1)
		} else {
			s, ok = l.bits.next(int(s) + 1)
		}
	}
	return dst
}
