package ladder

import "math/bits"

// bitmap tracks which slots hold non-zero quantity. summary has one bit per
// word, so a 4096-slot ladder is found in a single summary word.
type bitmap struct {
	words   []uint64
	summary []uint64
}

func newBitmap(capacity int) bitmap {
	nw := (capacity + 63) / 64
	return bitmap{
		words:   make([]uint64, nw),
		summary: make([]uint64, (nw+63)/64),
	}
}

func (b *bitmap) set(s slot) {
	w := uint32(s) >> 6
	b.words[w] |= 1 << (s & 63)
	b.summary[w>>6] |= 1 << (w & 63)
}

func (b *bitmap) clear(s slot) {
	w := uint32(s) >> 6
	b.words[w] &^= 1 << (s & 63)
	if b.words[w] == 0 {
		b.summary[w>>6] &^= 1 << (w & 63)
	}
}

// next returns the lowest set slot >= from.
func (b *bitmap) next(from int) (slot, bool) {
	if from < 0 {
		from = 0
	}
	w := from >> 6
	if w >= len(b.words) {
		return 0, false
	}
	if word := b.words[w] >> (uint(from) & 63); word != 0 {
		return slot(from + bits.TrailingZeros64(word)), true
	}

	w++
	si := w >> 6
	if si >= len(b.summary) {
		return 0, false
	}
	sw := b.summary[si] & (^uint64(0) << (uint(w) & 63))
	for {
		if sw != 0 {
			nw := si<<6 + bits.TrailingZeros64(sw)
			return slot(nw<<6 + bits.TrailingZeros64(b.words[nw])), true
		}
		si++
		if si >= len(b.summary) {
			return 0, false
		}
		sw = b.summary[si]
	}
}

// prev returns the highest set slot <= from.
func (b *bitmap) prev(from int) (slot, bool) {
	if from < 0 {
		return 0, false
	}
	w := from >> 6
	if w >= len(b.words) {
		w = len(b.words) - 1
		from = w<<6 + 63
	}
	if word := b.words[w] << (63 - uint(from)&63); word != 0 {
		return slot(from - bits.LeadingZeros64(word)), true
	}

	w--
	if w < 0 {
		return 0, false
	}
	si := w >> 6
	sw := b.summary[si] & (^uint64(0) >> (63 - uint(w)&63))
	for {
		if sw != 0 {
			nw := si<<6 + 63 - bits.LeadingZeros64(sw)
			return slot(nw<<6 + 63 - bits.LeadingZeros64(b.words[nw])), true
		}
		si--
		if si < 0 {
			return 0, false
		}
		sw = b.summary[si]
	}
}

// reset clears every set bit, touching only non-empty words.
func (b *bitmap) reset() {
	for si, sw := range b.summary {
		for sw != 0 {
			b.words[si<<6+bits.TrailingZeros64(sw)] = 0
			sw &= sw - 1
		}
		b.summary[si] = 0
	}
}
