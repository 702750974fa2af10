package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in minor units (kobo, cents). All arithmetic on the
// pricing path happens on Amount; binary floating point never touches currency.
type Amount int64

var (
	// ErrInvalidAmount is returned when a decimal string cannot be represented in minor units.
	ErrInvalidAmount = errors.New("money: invalid amount")
	// ErrOverflow is returned when an operation would exceed the representable range.
	ErrOverflow = errors.New("money: overflow")
)

// FromMinorUnits wraps a raw minor-unit value.
func FromMinorUnits(v int64) Amount {
	return Amount(v)
}

// MinorUnits returns the raw minor-unit value.
func (a Amount) MinorUnits() int64 {
	return int64(a)
}

// Parse converts a client-supplied decimal string ("29.88") into minor units.
// More than two fractional digits is rejected rather than rounded: client
// payloads must already be exact to the cent.
func Parse(value string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %q has sub-cent precision", ErrInvalidAmount, value)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrOverflow, value)
	}
	return Amount(shifted.IntPart()), nil
}

// MustParse is a test helper that panics on malformed input.
func MustParse(value string) Amount {
	a, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount with exactly two decimal places.
func (a Amount) String() string {
	return decimal.New(int64(a), -2).StringFixed(2)
}

// MulQuantity multiplies the amount by a line quantity with overflow detection.
func (a Amount) MulQuantity(qty int64) (Amount, error) {
	if qty == 0 || a == 0 {
		return 0, nil
	}
	v := int64(a)
	if v > 0 && qty > 0 && v > math.MaxInt64/qty {
		return 0, ErrOverflow
	}
	if v < 0 || qty < 0 {
		return 0, fmt.Errorf("%w: negative operand", ErrInvalidAmount)
	}
	return Amount(v * qty), nil
}

// Add sums two amounts with overflow detection.
func (a Amount) Add(b Amount) (Amount, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// ApplyBasisPoints computes a*bps/10000 rounded half-up at the minor unit. VAT at
// 7.5% is expressed as 750 basis points, so 2500 minor units yield 188, not 187.
func ApplyBasisPoints(a Amount, bps int64) (Amount, error) {
	if a < 0 || bps < 0 {
		return 0, fmt.Errorf("%w: negative operand", ErrInvalidAmount)
	}
	v := int64(a)
	if v > 0 && bps > 0 && v > math.MaxInt64/bps {
		return 0, ErrOverflow
	}
	return Amount((v*bps + 5000) / 10000), nil
}
