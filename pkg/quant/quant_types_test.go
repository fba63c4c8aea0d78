package quant

import (
	"errors"
	"testing"
)

func TestTickSize_ParsePrice(t *testing.T) {
	tests := []struct {
		tick    string
		input   string
		want    Price
		wantErr error
	}{
		{"0.01", "123.45", 12345, nil},
		{"0.01", "123.4", 12340, nil},
		{"0.01", "123.450000", 12345, nil},
		{"0.01", "-1.23", -123, nil},
		{"0.5", "27000.5", 54001, nil},
		{"0.5", "27000.25", 0, ErrOffTick},
		{"0.50", "3.0", 6, nil},
		{"1", "42", 42, nil},
		{"10", "120", 12, nil},
		{"10", "125", 0, ErrOffTick},
		{"0.01", "123.456", 0, ErrOffTick},
		{"0.01", "", 0, ErrSyntax},
		{"0.01", "1.2.3", 0, ErrSyntax},
		{"0.01", "abc", 0, ErrSyntax},
		{"0.01", "99999999999999999999", 0, ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.tick+"/"+tt.input, func(t *testing.T) {
			ts, err := NewTickSize(tt.tick)
			if err != nil {
				t.Fatalf("NewTickSize(%q): %v", tt.tick, err)
			}
			got, err := ts.ParsePrice(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParsePrice(%q) err = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrice(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePrice(%q) = %d; want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestTickSize_Format(t *testing.T) {
	ts, err := NewTickSize("0.01")
	if err != nil {
		t.Fatal(err)
	}
	if got := ts.Format(12345); got != "123.45" {
		t.Errorf("Format(12345) = %s; want 123.45", got)
	}
	if got := ts.Format(100); got != "1.00" {
		t.Errorf("Format(100) = %s; want 1.00", got)
	}
}

func TestNewTickSize_Invalid(t *testing.T) {
	for _, s := range []string{"0", "-0.01", "x"} {
		if _, err := NewTickSize(s); err == nil {
			t.Errorf("NewTickSize(%q) should fail", s)
		}
	}
}

func TestLotSize_ParseQty(t *testing.T) {
	ls, err := NewLotSize("0.001")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		input string
		want  Qty
	}{
		{"8.760", 8760},
		{"0", 0},
		{"0.000000", 0},
		{"1.23400", 1234},
	}
	for _, tt := range tests {
		got, err := ls.ParseQty(tt.input)
		if err != nil {
			t.Fatalf("ParseQty(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseQty(%q) = %d; want %d", tt.input, got, tt.want)
		}
	}

	// Below one lot or finer than the lot: rejected, never rounded to 0
	for _, in := range []string{"0.0009", "1.23456", "0.0000001"} {
		if _, err := ls.ParseQty(in); !errors.Is(err, ErrOffLot) {
			t.Errorf("ParseQty(%q): expected ErrOffLot, got %v", in, err)
		}
	}

	coarse, err := NewLotSize("0.5")
	if err != nil {
		t.Fatal(err)
	}
	if got, err := coarse.ParseQty("1.5"); err != nil || got != 3 {
		t.Errorf("ParseQty(1.5) with lot 0.5 = %d, %v; want 3", got, err)
	}
	if _, err := coarse.ParseQty("0.3"); !errors.Is(err, ErrOffLot) {
		t.Errorf("ParseQty(0.3) with lot 0.5: expected ErrOffLot, got %v", err)
	}
	if got := ls.Format(8760); got != "8.760" {
		t.Errorf("Format(8760) = %s; want 8.760", got)
	}
}

func TestParseTimeStamp(t *testing.T) {
	ts, err := ParseTimeStamp("1704067200000")
	if err != nil {
		t.Fatal(err)
	}
	if ts != 1704067200000000 {
		t.Errorf("ParseTimeStamp = %d; want 1704067200000000", ts)
	}
	if _, err := ParseTimeStamp("9223372036854775807"); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}
