package ladder

import (
	"errors"
	"testing"

	"ladder_go/pkg/quant"
)

// FuzzLadder drives a ladder and a map with the same updates and checks that
// they agree after every step. Each update takes three bytes: op, price
// offset and quantity. mode selects the side, depth trimming and, with bit 2,
// an 8192-slot ladder whose offsets are spread across many bitmap words.
func FuzzLadder(f *testing.F) {
	f.Add(byte(0), []byte{0, 0, 20, 0, 5, 30, 1, 5, 0})
	f.Add(byte(1), []byte{0, 10, 20, 0, 200, 20, 0, 60, 20, 0, 100, 0})
	f.Add(byte(2), []byte{0, 0, 17, 0, 63, 17, 0, 64, 17, 0, 192, 17, 1, 63, 0})
	f.Add(byte(3), []byte{0, 128, 255, 0, 127, 255, 2, 0, 1})
	f.Add(byte(4), []byte{0, 0, 20, 0, 70, 20, 0, 190, 20, 1, 70, 0, 2, 0, 0})
	f.Add(byte(7), []byte{0, 10, 20, 0, 120, 20, 0, 200, 20, 0, 129, 20, 2, 120, 0})

	f.Fuzz(func(t *testing.T, mode byte, data []byte) {
		side := Side(mode & 1)
		trim := mode&2 != 0
		capacity, stride := 64, quant.Price(1)
		if mode&4 != 0 {
			capacity, stride = 8192, 64
		}
		const base = 1 << 20

		l, err := New(capacity, base, side, WithTrimDepth(trim))
		if err != nil {
			t.Fatal(err)
		}
		model := make(map[quant.Price]quant.Qty)

		for i := 0; i+2 < len(data); i += 3 {
			u := Update{
				Op:    [...]Op{Set, Set, Delete}[data[i]%3],
				Price: base + quant.Price(int8(data[i+1]))*stride,
				Qty:   quant.Qty(data[i+2]) - 16,
			}

			dropped := l.Stats().Dropped
			err := l.Apply(u)

			switch {
			case err != nil:
				if l.Stats().Dropped != dropped {
					t.Fatalf("step %d: levels dropped on error %v", i/3, err)
				}
				if u.Op == Set && u.Qty < 0 && !errors.Is(err, ErrInvalidQuantity) {
					t.Fatalf("step %d: expected ErrInvalidQuantity, got %v", i/3, err)
				}
			case u.Op == Delete || u.Qty == 0:
				delete(model, u.Price)
			default:
				model[u.Price] = u.Qty
			}

			// Levels pushed out of the window by trimming
			lo, hi := l.Window()
			var evicted uint64
			for p := range model {
				if p < lo || p > hi {
					delete(model, p)
					evicted++
				}
			}
			if got := l.Stats().Dropped - dropped; got != evicted {
				t.Fatalf("step %d: dropped %d, model evicted %d", i/3, got, evicted)
			}

			check(t, l, model)
		}
	})
}

func check(t *testing.T, l *Ladder, model map[quant.Price]quant.Qty) {
	t.Helper()

	if l.Len() != len(model) {
		t.Fatalf("len %d, model %d", l.Len(), len(model))
	}

	var total quant.Qty
	var best quant.Price
	first := true
	for p, q := range model {
		if got := l.QuantityAt(p); got != q {
			t.Fatalf("QuantityAt(%d) = %d, model %d", p, got, q)
		}
		total += q
		if first || (l.Side() == Bid && p > best) || (l.Side() == Ask && p < best) {
			best = p
			first = false
		}
	}
	if l.Total() != total {
		t.Fatalf("total %d, model %d", l.Total(), total)
	}

	got, ok := l.BestPrice()
	if ok == first || (ok && got != best) {
		t.Fatalf("best %d,%v; model %d,%v", got, ok, best, !first)
	}

	var prev quant.Price
	n := 0
	for p, q := range l.Levels() {
		if model[p] != q {
			t.Fatalf("iterator yielded %d@%d, model %d", q, p, model[p])
		}
		if n > 0 && ((l.Side() == Bid && p >= prev) || (l.Side() == Ask && p <= prev)) {
			t.Fatalf("iterator out of order: %d after %d", p, prev)
		}
		prev = p
		n++
	}
	if n != len(model) {
		t.Fatalf("iterator yielded %d levels, model %d", n, len(model))
	}
}
