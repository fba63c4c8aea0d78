package safe

import (
	"math/big"
	"testing"
)

// FuzzCheckedAdd compares CheckedAdd against arbitrary-precision addition.
func FuzzCheckedAdd(f *testing.F) {
	// Seed corpus
	f.Add(int64(0), int64(0))
	f.Add(int64(1), int64(2))
	f.Add(int64(-1), int64(1))
	f.Add(int64(9223372036854775807), int64(0))  // MaxInt64
	f.Add(int64(-9223372036854775808), int64(0)) // MinInt64

	f.Fuzz(func(t *testing.T, a, b int64) {
		got, ok := CheckedAdd(a, b)
		want := new(big.Int).Add(big.NewInt(a), big.NewInt(b))
		if ok != want.IsInt64() {
			t.Fatalf("CheckedAdd(%d, %d) ok = %v, want %v", a, b, ok, want.IsInt64())
		}
		if ok && got != want.Int64() {
			t.Fatalf("CheckedAdd(%d, %d) = %d, want %s", a, b, got, want)
		}
	})
}

// FuzzCheckedSub compares CheckedSub against arbitrary-precision subtraction.
func FuzzCheckedSub(f *testing.F) {
	f.Add(int64(0), int64(0))
	f.Add(int64(10), int64(5))
	f.Add(int64(-1), int64(-1))
	f.Add(int64(9223372036854775807), int64(-1))
	f.Add(int64(-9223372036854775808), int64(1))

	f.Fuzz(func(t *testing.T, a, b int64) {
		got, ok := CheckedSub(a, b)
		want := new(big.Int).Sub(big.NewInt(a), big.NewInt(b))
		if ok != want.IsInt64() {
			t.Fatalf("CheckedSub(%d, %d) ok = %v, want %v", a, b, ok, want.IsInt64())
		}
		if ok && got != want.Int64() {
			t.Fatalf("CheckedSub(%d, %d) = %d, want %s", a, b, got, want)
		}
	})
}

// FuzzCheckedMul compares CheckedMul against arbitrary-precision multiplication.
func FuzzCheckedMul(f *testing.F) {
	f.Add(int64(0), int64(0))
	f.Add(int64(2), int64(3))
	f.Add(int64(-2), int64(3))
	f.Add(int64(1000000), int64(1000000))
	f.Add(int64(-9223372036854775808), int64(-1))

	f.Fuzz(func(t *testing.T, a, b int64) {
		got, ok := CheckedMul(a, b)
		want := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
		if ok != want.IsInt64() {
			t.Fatalf("CheckedMul(%d, %d) ok = %v, want %v", a, b, ok, want.IsInt64())
		}
		if ok && got != want.Int64() {
			t.Fatalf("CheckedMul(%d, %d) = %d, want %s", a, b, got, want)
		}
	})
}
