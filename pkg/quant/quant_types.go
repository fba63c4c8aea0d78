package quant

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"

	"ladder_go/pkg/safe"

	"github.com/shopspring/decimal"
)

// Price is a price expressed in minimum ticks of its instrument.
// E.g., with a tick of 0.01, 123.45 USD = 12345 Price.
type Price int64

// Qty is a resting size expressed in lot units.
// E.g., with a lot of 0.00000001, 1.0 BTC = 100,000,000 Qty.
type Qty int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

var (
	ErrSyntax   = errors.New("quant: invalid decimal")
	ErrOverflow = errors.New("quant: value overflows int64")
	ErrOffTick  = errors.New("quant: price is not a multiple of the tick size")
	ErrOffLot   = errors.New("quant: size is not a multiple of the lot size")
	ErrStep     = errors.New("quant: step size must be positive")
)

// NextSeq generates the next sequence number atomically.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}

// ParseTimeStamp converts a string (ms) to TimeStamp (micros).
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	us, ok := safe.CheckedMul(ms, 1000)
	if !ok {
		return 0, fmt.Errorf("%w: timestamp %s", ErrOverflow, s)
	}
	return TimeStamp(us), nil
}

// step is a positive decimal increment split into 10^-scale units.
type step struct {
	scale int32
	units int64
	dec   decimal.Decimal
}

func newStep(s string) (step, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return step{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if !d.IsPositive() {
		return step{}, fmt.Errorf("%w: %q", ErrStep, s)
	}

	// Trailing zeros in the coefficient do not change the grid.
	exp := d.Exponent()
	coef := d.Coefficient()
	ten, rem := big.NewInt(10), new(big.Int)
	for exp < 0 {
		q, r := new(big.Int).QuoRem(coef, ten, rem)
		if r.Sign() != 0 {
			break
		}
		coef = q
		exp++
	}
	if !coef.IsInt64() {
		return step{}, fmt.Errorf("%w: %q", ErrOverflow, s)
	}

	units := coef.Int64()
	scale := -exp
	for ; scale < 0; scale++ {
		var ok bool
		if units, ok = safe.CheckedMul(units, 10); !ok {
			return step{}, fmt.Errorf("%w: %q", ErrOverflow, s)
		}
	}
	return step{scale: scale, units: units, dec: d}, nil
}

// IsZero reports whether the step was never initialised.
func (s step) IsZero() bool { return s.units == 0 }

// TickSize converts exchange price strings to Price ticks and back.
// Only used at the boundary. The hot path works on Price directly.
type TickSize struct{ step }

// NewTickSize parses a tick size such as "0.01" or "0.5".
func NewTickSize(s string) (TickSize, error) {
	st, err := newStep(s)
	if err != nil {
		return TickSize{}, err
	}
	return TickSize{st}, nil
}

// ParsePrice converts a decimal string to ticks without using float64.
// Prices off the tick grid are rejected rather than rounded.
func (t TickSize) ParsePrice(s string) (Price, error) {
	v, exact, err := parseFixedPoint(s, t.scale)
	if err != nil {
		return 0, err
	}
	if !exact || v%t.units != 0 {
		return 0, fmt.Errorf("%w: %s", ErrOffTick, s)
	}
	return Price(v / t.units), nil
}

// Decimal returns the price of p ticks.
func (t TickSize) Decimal(p Price) decimal.Decimal {
	return t.dec.Mul(decimal.NewFromInt(int64(p)))
}

// Format renders p with the tick's precision, e.g. "27000.50".
func (t TickSize) Format(p Price) string {
	return t.Decimal(p).StringFixed(t.scale)
}

// String returns the tick size as configured.
func (t TickSize) String() string { return t.dec.String() }

// LotSize converts exchange size strings to Qty lots.
type LotSize struct{ step }

// NewLotSize parses a lot size such as "0.00000001".
func NewLotSize(s string) (LotSize, error) {
	st, err := newStep(s)
	if err != nil {
		return LotSize{}, err
	}
	return LotSize{st}, nil
}

// ParseQty converts a decimal size to lots. Sizes off the lot grid are
// rejected rather than rounded, so a resting size never reads back as 0.
func (l LotSize) ParseQty(s string) (Qty, error) {
	v, exact, err := parseFixedPoint(s, l.scale)
	if err != nil {
		return 0, err
	}
	if !exact || v%l.units != 0 {
		return 0, fmt.Errorf("%w: %s", ErrOffLot, s)
	}
	return Qty(v / l.units), nil
}

// Format renders q with the lot's precision.
func (l LotSize) Format(q Qty) string {
	return l.dec.Mul(decimal.NewFromInt(int64(q))).StringFixed(l.scale)
}

// String returns the lot size as configured.
func (l LotSize) String() string { return l.dec.String() }

// parseFixedPoint parses a numeric string into an int64 scaled by 10^scale.
// E.g., parseFixedPoint("1.23", 6) -> 1,230,000.
// exact reports whether every digit beyond scale was zero.
func parseFixedPoint(s string, scale int32) (v int64, exact bool, err error) {
	if s == "" || s == "null" {
		return 0, false, fmt.Errorf("%w: %q", ErrSyntax, s)
	}

	neg := false
	body := s
	switch body[0] {
	case '-':
		neg = true
		body = body[1:]
	case '+':
		body = body[1:]
	}

	intPart, fracPart := body, ""
	if dot := strings.IndexByte(body, '.'); dot >= 0 {
		intPart, fracPart = body[:dot], body[dot+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, false, fmt.Errorf("%w: %q", ErrSyntax, s)
	}

	var ok bool
	push := func(d byte) error {
		if v, ok = safe.CheckedMul(v, 10); !ok {
			return fmt.Errorf("%w: %q", ErrOverflow, s)
		}
		if v, ok = safe.CheckedAdd(v, int64(d)); !ok {
			return fmt.Errorf("%w: %q", ErrOverflow, s)
		}
		return nil
	}

	// 1. Integer part
	for i := 0; i < len(intPart); i++ {
		c := intPart[i]
		if c < '0' || c > '9' {
			return 0, false, fmt.Errorf("%w: %q", ErrSyntax, s)
		}
		if err := push(c - '0'); err != nil {
			return 0, false, err
		}
	}

	// 2. Fraction part, truncated to scale
	exact = true
	for i := 0; i < len(fracPart); i++ {
		c := fracPart[i]
		if c < '0' || c > '9' {
			return 0, false, fmt.Errorf("%w: %q", ErrSyntax, s)
		}
		if int32(i) >= scale {
			if c != '0' {
				exact = false
			}
			continue
		}
		if err := push(c - '0'); err != nil {
			return 0, false, err
		}
	}

	// 3. Pad
	for i := int32(len(fracPart)); i < scale; i++ {
		if err := push(0); err != nil {
			return 0, false, err
		}
	}

	if neg {
		v = -v
	}
	return v, exact, nil
}
