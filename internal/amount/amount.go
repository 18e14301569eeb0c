// Package amount converts integer amounts between decimal scales.
//
// Two conversions live here and must not be merged:
//
//   - Normalize moves an integer amount from one asset scale to another. It is
//     used for connector-issued settlement instructions.
//   - FromMajorUnits turns a rail-reported amount expressed in whole major units
//     (possibly with a fractional part) into an integer at the engine's scale.
package amount

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	dErrors "settlement-engine/pkg/domain-errors"
)

// MaxScale bounds accepted scales so exponentiation stays cheap.
const MaxScale = 255

var ten = big.NewInt(10)

// Normalize converts amount from fromScale to toScale. Narrowing divides and
// truncates toward zero; the dropped remainder is not recovered. Widening is
// exact. The input is never mutated.
func Normalize(amount *big.Int, fromScale, toScale int) *big.Int {
	out := new(big.Int).Set(amount)
	switch {
	case fromScale > toScale:
		return out.Quo(out, pow10(fromScale-toScale))
	case fromScale < toScale:
		return out.Mul(out, pow10(toScale-fromScale))
	default:
		return out
	}
}

// Parse reads a non-negative base-10 integer amount.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "amount is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil, dErrors.New(dErrors.CodeBadRequest, "amount must be a non-negative integer string")
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "amount must be a non-negative integer string")
	}
	return n, nil
}

// ValidateScale rejects scales outside [0, MaxScale].
func ValidateScale(scale int) error {
	if scale < 0 || scale > MaxScale {
		return dErrors.New(dErrors.CodeBadRequest, "scale must be between 0 and 255")
	}
	return nil
}

// FromMajorUnits multiplies a major-unit amount such as "5" or "12.34" by
// 10^assetScale. Digits finer than assetScale are truncated.
func FromMajorUnits(pay string, assetScale int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(pay))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "rail amount is not a decimal number")
	}
	if d.IsNegative() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "rail amount must not be negative")
	}
	return d.Shift(int32(assetScale)).BigInt(), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}
