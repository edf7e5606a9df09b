package domain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// OctasPerCoin is the number of minor units in one coin.
const OctasPerCoin = 100_000_000

// amountScale is the decimal exponent of one octa.
const amountScale = -8

// Amount is a non-negative coin quantity held as an integer number of octas.
// All ledger arithmetic happens on Amount; decimals only exist at the edges.
type Amount int64

// decimalCtx is wide enough for the product of two int64 values.
var decimalCtx = apd.BaseContext.WithPrecision(60)

// ParseAmount parses a decimal coin string such as "0.25" into octas. More
// than eight fractional digits, negative values and non-finite input are
// rejected with ErrValidation.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrValidation, s, err)
	}
	if d.Form != apd.Finite {
		return 0, fmt.Errorf("%w: amount %q is not finite", ErrValidation, s)
	}
	if d.Negative && !d.IsZero() {
		return 0, fmt.Errorf("%w: amount %q is negative", ErrValidation, s)
	}

	var scaled apd.Decimal
	if _, err := decimalCtx.Mul(&scaled, d, apd.New(1, -amountScale)); err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrValidation, s, err)
	}
	var integ, frac apd.Decimal
	scaled.Modf(&integ, &frac)
	if !frac.IsZero() {
		return 0, fmt.Errorf("%w: amount %q has more than 8 decimal places", ErrValidation, s)
	}
	n, err := integ.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrValidation, s, err)
	}
	return Amount(n), nil
}

// MustAmount is ParseAmount for constants and tests. It panics on bad input.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Decimal returns the amount as an apd decimal in whole coins.
func (a Amount) Decimal() *apd.Decimal {
	return apd.New(int64(a), amountScale)
}

// String formats the amount in coins with trailing zeros removed.
func (a Amount) String() string {
	d, _ := new(apd.Decimal).Reduce(a.Decimal())
	return d.Text('f')
}

// Float64 is for metrics and logs only.
func (a Amount) Float64() float64 {
	return float64(a) / OctasPerCoin
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if raw == "" || raw == "null" {
		return fmt.Errorf("%w: empty amount", ErrValidation)
	}
	v, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// SumAmounts adds amounts together.
func SumAmounts(amounts ...Amount) Amount {
	var total Amount
	for _, v := range amounts {
		total += v
	}
	return total
}
