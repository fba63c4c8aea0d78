package quant

import (
	"testing"
)

// FuzzParsePrice checks that ParsePrice never panics and that every accepted
// price formats back to a value that parses to the same tick count.
func FuzzParsePrice(f *testing.F) {
	f.Add("0")
	f.Add("1.23")
	f.Add("-1.23")
	f.Add("0.000001")
	f.Add("9999999.99")
	f.Add(".5")
	f.Add("1.")

	ts, err := NewTickSize("0.01")
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, s string) {
		p, err := ts.ParsePrice(s)
		if err != nil {
			return
		}
		back, err := ts.ParsePrice(ts.Format(p))
		if err != nil {
			t.Fatalf("Format(%d) = %q does not parse: %v", p, ts.Format(p), err)
		}
		if back != p {
			t.Fatalf("round trip %q -> %d -> %d", s, p, back)
		}
	})
}

// FuzzParseQty tests quantity conversion with fuzzing.
func FuzzParseQty(f *testing.F) {
	f.Add("0")
	f.Add("1.0")
	f.Add("0.00000001")
	f.Add("21000000.0") // Max BTC supply

	ls, err := NewLotSize("0.00000001")
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, s string) {
		_, _ = ls.ParseQty(s)
	})
}

// FuzzParseTimeStamp tests timestamp parsing with fuzzing.
func FuzzParseTimeStamp(f *testing.F) {
	f.Add("0")
	f.Add("1704067200000") // 2024-01-01 00:00:00 UTC in ms
	f.Add("-1")
	f.Add("9223372036854775807")

	f.Fuzz(func(t *testing.T, s string) {
		// Should handle invalid input gracefully (return error, not panic)
		_, _ = ParseTimeStamp(s)
	})
}
