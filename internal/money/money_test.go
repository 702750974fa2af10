package money

import (
	"errors"
	"math"
	"testing"
)

func TestParseExactCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"10", 1000},
		{"10.00", 1000},
		{"29.88", 2988},
		{"0.05", 5},
		{"1875.50", 187550},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", tc.in, err)
		}
		if got.MinorUnits() != tc.want {
			t.Fatalf("Parse(%q) = %d, want %d", tc.in, got.MinorUnits(), tc.want)
		}
	}
}

func TestParseRejectsSubCentPrecision(t *testing.T) {
	for _, in := range []string{"1.875", "0.001", "29.8751"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Parse(%q) expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("abc"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestStringRendersTwoDecimals(t *testing.T) {
	if got := FromMinorUnits(2988).String(); got != "29.88" {
		t.Fatalf("expected 29.88, got %s", got)
	}
	if got := FromMinorUnits(300).String(); got != "3.00" {
		t.Fatalf("expected 3.00, got %s", got)
	}
	if got := FromMinorUnits(5).String(); got != "0.05" {
		t.Fatalf("expected 0.05, got %s", got)
	}
}

func TestMulQuantity(t *testing.T) {
	got, err := FromMinorUnits(1250).MulQuantity(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MinorUnits() != 2500 {
		t.Fatalf("expected 2500, got %d", got.MinorUnits())
	}
}

func TestMulQuantityOverflow(t *testing.T) {
	if _, err := FromMinorUnits(math.MaxInt64 / 2).MulQuantity(3); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestApplyBasisPointsRoundsHalfUp(t *testing.T) {
	// 25.00 at 7.5% VAT is 1.875, which rounds half-up to 1.88.
	got, err := ApplyBasisPoints(FromMinorUnits(2500), 750)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MinorUnits() != 188 {
		t.Fatalf("expected 188, got %d", got.MinorUnits())
	}

	// 10.00 at 2.4% is 0.24 exactly; no rounding artifact.
	got, err = ApplyBasisPoints(FromMinorUnits(1000), 240)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MinorUnits() != 24 {
		t.Fatalf("expected 24, got %d", got.MinorUnits())
	}

	// Exactly .005 rounds up, not to even.
	got, err = ApplyBasisPoints(FromMinorUnits(100), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MinorUnits() != 1 {
		t.Fatalf("expected 1, got %d", got.MinorUnits())
	}
}

func TestApplyBasisPointsZeroRate(t *testing.T) {
	got, err := ApplyBasisPoints(FromMinorUnits(2500), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0, got %d", got.MinorUnits())
	}
}
