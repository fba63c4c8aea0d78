package safe

import (
	"math"
)

// CheckedAdd performs int64 addition and reports whether it stayed in range.
// On overflow the returned value is undefined and ok is false.
func CheckedAdd(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// CheckedSub performs int64 subtraction and reports whether it stayed in range.
func CheckedSub(a, b int64) (int64, bool) {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		return 0, false
	}
	return a - b, true
}

// CheckedMul performs int64 multiplication and reports whether it stayed in range.
func CheckedMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > 0 {
		if b > 0 {
			if a > math.MaxInt64/b {
				return 0, false
			}
		} else {
			if b < math.MinInt64/a {
				return 0, false
			}
		}
	} else {
		if b > 0 {
			if a < math.MinInt64/b {
				return 0, false
			}
		} else {
			if a < math.MaxInt64/b {
				return 0, false
			}
		}
	}
	return a * b, true
}

// SaturatingSub returns a - b clamped to the int64 range.
func SaturatingSub(a, b int64) int64 {
	if v, ok := CheckedSub(a, b); ok {
		return v
	}
	if b > 0 {
		return math.MinInt64
	}
	return math.MaxInt64
}

// SaturatingAdd returns a + b clamped to the int64 range.
func SaturatingAdd(a, b int64) int64 {
	if v, ok := CheckedAdd(a, b); ok {
		return v
	}
	if b > 0 {
		return math.MaxInt64
	}
	return math.MinInt64
}

// AbsDiff returns |a - b| without overflow. The result always fits in uint64.
func AbsDiff(a, b int64) uint64 {
	if a >= b {
		return uint64(a) - uint64(b)
	}
	return uint64(b) - uint64(a)
}
