// Package amm holds the constant-product exchange math. Every amount is an
// unsigned 128-bit value; results that leave that range fail with
// ErrCalculationOverflow.
package amm

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// DefaultFeeBps is the swap fee applied by AmountOut and AmountIn (0.30%).
	DefaultFeeBps uint64 = 30
	// BpsScale is the fixed-point denominator for fee arithmetic.
	BpsScale uint64 = 10_000
)

// MaxUint128 is the largest representable amount.
var MaxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// Zero returns a fresh zero amount.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// NewAmount builds an amount from a uint64.
func NewAmount(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// ParseAmount parses a decimal string and checks it fits in 128 bits.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return Zero(), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !fits(v) {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrCalculationOverflow)
	}
	return v, nil
}

// IsZero reports whether v is nil or zero.
func IsZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

// OrZero returns v, or a fresh zero when v is nil.
func OrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return Zero()
	}
	return v
}

// Validate rejects amounts outside the 128-bit range.
func Validate(v *uint256.Int) error {
	if v != nil && !fits(v) {
		return ErrCalculationOverflow
	}
	return nil
}

func fits(v *uint256.Int) bool {
	return v.BitLen() <= 128
}

// Add returns x+y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow || !fits(z) {
		return nil, ErrCalculationOverflow
	}
	return z, nil
}

// Sub returns x-y, failing when y > x.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrCalculationOverflow
	}
	return z, nil
}

// Mul returns x*y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow || !fits(z) {
		return nil, ErrCalculationOverflow
	}
	return z, nil
}

// MulDiv returns floor(x*y/d). The product must fit in 128 bits.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrCalculationOverflow
	}
	p, err := Mul(x, y)
	if err != nil {
		return nil, err
	}
	return p.Div(p, d), nil
}

// Min returns the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

// Quote returns the amount of B with the same value as amountA at the
// current reserve ratio.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if IsZero(amountA) {
		return nil, ErrInsufficientAmount
	}
	if IsZero(reserveA) || IsZero(reserveB) {
		return nil, ErrInsufficientLiquidity
	}
	return MulDiv(amountA, reserveB, reserveA)
}

// Contribution is the pair of amounts actually pulled from a depositor.
type Contribution struct {
	AmountA *uint256.Int
	AmountB *uint256.Int
}

// OptimalContribution picks the deposit that matches the pool ratio without
// exceeding either desired amount. An empty pool accepts the desired amounts
// as they are.
func OptimalContribution(desiredA, desiredB, minA, minB, reserveA, reserveB *uint256.Int) (Contribution, error) {
	if IsZero(reserveA) && IsZero(reserveB) {
		return Contribution{AmountA: desiredA.Clone(), AmountB: desiredB.Clone()}, nil
	}

	optimalB, err := Quote(desiredA, reserveA, reserveB)
	if err != nil {
		return Contribution{}, err
	}
	if !optimalB.Gt(desiredB) {
		if optimalB.Lt(minB) {
			return Contribution{}, ErrInsufficientBAmount
		}
		return Contribution{AmountA: desiredA.Clone(), AmountB: optimalB}, nil
	}

	optimalA, err := Quote(desiredB, reserveB, reserveA)
	if err != nil {
		return Contribution{}, fmt.Errorf("%w: %v", ErrCalculationAmountError, err)
	}
	if optimalA.Gt(desiredA) {
		return Contribution{}, ErrAddingLiquidityFailed
	}
	if optimalA.Lt(minA) {
		return Contribution{}, ErrInsufficientAAmount
	}
	return Contribution{AmountA: optimalA, AmountB: desiredB.Clone()}, nil
}

func feeMultiplier(feeBps uint64) (*uint256.Int, error) {
	if feeBps >= BpsScale {
		return nil, ErrInvalidFee
	}
	return uint256.NewInt(BpsScale - feeBps), nil
}

// AmountOut returns the output of a swap of amountIn against the reserves,
// net of the fee.
func AmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if IsZero(amountIn) {
		return nil, ErrInsufficientAmount
	}
	if IsZero(reserveIn) || IsZero(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	mult, err := feeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}

	withFee, err := Mul(amountIn, mult)
	if err != nil {
		return nil, err
	}
	numerator, err := Mul(withFee, reserveOut)
	if err != nil {
		return nil, err
	}
	scaledIn, err := Mul(reserveIn, uint256.NewInt(BpsScale))
	if err != nil {
		return nil, err
	}
	denominator, err := Add(scaledIn, withFee)
	if err != nil {
		return nil, err
	}
	return numerator.Div(numerator, denominator), nil
}

// AmountIn returns the input required to receive amountOut. The result is
// rounded up by one unit so the pool never loses to rounding.
func AmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if IsZero(amountOut) {
		return nil, ErrInsufficientAmount
	}
	if IsZero(reserveIn) || IsZero(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	if !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	mult, err := feeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}

	numerator, err := Mul(amountOut, uint256.NewInt(BpsScale))
	if err != nil {
		return nil, err
	}
	if numerator, err = Mul(numerator, reserveIn); err != nil {
		return nil, err
	}
	remaining := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator, err := Mul(remaining, mult)
	if err != nil {
		return nil, err
	}
	quotient := numerator.Div(numerator, denominator)
	return Add(quotient, uint256.NewInt(1))
}
