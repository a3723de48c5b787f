// Package amount implements the engine's exact fixed-point numeric type.
//
// Every price, quantity, and ledger balance is an Amount: an 8-decimal
// fixed-point value backed by shopspring/decimal. Add and Sub are exact;
// Mul truncates and Div rounds its result to the 8-decimal scale, without
// any error or panic. Any operation whose result overflows the 128-bit
// signed range the wire format promises panics with ErrOverflow.
package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the fixed number of fractional digits every Amount carries.
const Scale = 8

// maxUnscaled is the largest magnitude a signed 128-bit integer can hold;
// an Amount's unscaled coefficient (value * 10^Scale) must fit within it.
var maxUnscaled = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

// Amount is an exact 8-decimal fixed-point number. The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// ErrOverflow is raised (via panic, caught at the engine's command
// boundary) when an Amount's unscaled value would exceed the 128-bit
// signed range. This is always a fatal invariant violation per the
// settlement design: it must never occur against a well-formed book.
type ErrOverflow struct {
	Op    string
	Value string
}

func (e ErrOverflow) Error() string {
	return fmt.Sprintf("amount: overflow in %s: %s exceeds signed 128-bit range", e.Op, e.Value)
}

// FromString parses a decimal string with at most Scale fractional
// digits. Extra fractional digits are rejected rather than rounded.
func FromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	if d.Exponent() < -Scale {
		return Zero, fmt.Errorf("amount: %q carries more than %d fractional digits", s, Scale)
	}
	a := Amount{d: d.Truncate(Scale)}
	a.checkOverflow("FromString")
	return a, nil
}

// MustFromString is FromString but panics on error; used for constants.
func MustFromString(s string) Amount {
	a, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromInt64 builds an integral Amount (no fractional part).
func FromInt64(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

func (a Amount) checkOverflow(op string) {
	unscaled := a.d.Shift(Scale).Truncate(0).Coefficient()
	if unscaled.CmpAbs(maxUnscaled) > 0 {
		panic(ErrOverflow{Op: op, Value: a.d.String()})
	}
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	r := Amount{d: a.d.Add(b.d)}
	r.checkOverflow("Add")
	return r
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount {
	r := Amount{d: a.d.Sub(b.d)}
	r.checkOverflow("Sub")
	return r
}

// Mul returns a*b truncated to Scale fractional digits. Used only for
// price*qty style notional computation, never in a context where
// truncation would violate the "no rounding in the hot path" rule for
// order quantities themselves (those are never multiplied together).
func (a Amount) Mul(b Amount) Amount {
	r := Amount{d: a.d.Mul(b.d).Truncate(Scale)}
	r.checkOverflow("Mul")
	return r
}

// Div returns a/b rounded (half away from zero) to Scale fractional digits.
func (a Amount) Div(b Amount) Amount {
	r := Amount{d: a.d.DivRound(b.d, Scale)}
	r.checkOverflow("Div")
	return r
}

// Mod returns the remainder of a/b, exact (no truncation of precision
// beyond Scale, which both operands already respect).
func (a Amount) Mod(b Amount) Amount {
	return Amount{d: a.d.Mod(b.d)}
}

// Neg returns -a.
func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

// Abs returns |a|.
func (a Amount) Abs() Amount { return Amount{d: a.d.Abs()} }

// Cmp returns -1, 0, or 1 per a.Cmp(b) conventions.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsNeg reports whether a < 0.
func (a Amount) IsNeg() bool { return a.d.IsNegative() }

// IsPos reports whether a > 0.
func (a Amount) IsPos() bool { return a.d.IsPositive() }

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// GreaterThanOrEqual reports a >= b.
func (a Amount) GreaterThanOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// LessThanOrEqual reports a <= b.
func (a Amount) LessThanOrEqual(b Amount) bool { return a.d.LessThanOrEqual(b.d) }

// Equal reports a == b.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// Min returns the smaller of a, b.
func Min(a, b Amount) Amount {
	if a.LessThanOrEqual(b) {
		return a
	}
	return b
}

// Max returns the larger of a, b.
func Max(a, b Amount) Amount {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

// String renders the decimal string form, always with Scale fractional
// digits trimmed of nothing (exact representation, used on the wire).
func (a Amount) String() string {
	return a.d.StringFixed(Scale)
}

// MarshalJSON renders the amount as a quoted decimal string, never a
// JSON number, so precision never passes through a float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses a quoted decimal string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := FromString(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
