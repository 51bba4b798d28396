// Package pool implements the claim-token contract of a single pair: the
// token ledger plus the mint and burn rules driven by the vault.
package pool

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"ammVault/internal/amm"
)

// MinimumLiquidity is locked to the pool on the first mint and never
// withdrawable.
const MinimumLiquidity uint64 = 1000

var (
	ErrAmountMismatch = errors.New("amount mismatch")
	ErrUnauthorized   = errors.New("unauthorized: caller is not the vault")
)

// ComputeMint returns the claim tokens minted for a deposit of (amount0,
// amount1) against the reserves before the deposit, and the amount locked to
// the pool on first mint.
func ComputeMint(totalSupply, amount0, amount1, reserve0, reserve1 *uint256.Int) (minted, locked *uint256.Int, err error) {
	// an empty side mints nothing: sqrt(0) on first deposit, min(0, x) after
	if amm.IsZero(amount0) || amm.IsZero(amount1) {
		return nil, nil, fmt.Errorf("%w: empty deposit", amm.ErrInsufficientLiquidity)
	}

	if amm.IsZero(totalSupply) {
		product, err := amm.Mul(amount0, amount1)
		if err != nil {
			return nil, nil, err
		}
		root := amm.Sqrt(product)
		locked = amm.NewAmount(MinimumLiquidity)
		if !root.Gt(locked) {
			return nil, nil, fmt.Errorf("%w: first deposit below minimum liquidity", amm.ErrInsufficientLiquidity)
		}
		return new(uint256.Int).Sub(root, locked), locked, nil
	}

	if amm.IsZero(reserve0) || amm.IsZero(reserve1) {
		return nil, nil, amm.ErrInsufficientLiquidity
	}
	share0, err := amm.MulDiv(amount0, totalSupply, reserve0)
	if err != nil {
		return nil, nil, err
	}
	share1, err := amm.MulDiv(amount1, totalSupply, reserve1)
	if err != nil {
		return nil, nil, err
	}
	minted = amm.Min(share0, share1)
	if minted.IsZero() {
		return nil, nil, fmt.Errorf("%w: minted zero", amm.ErrInsufficientLiquidity)
	}
	return minted, amm.Zero(), nil
}

// ComputeBurn returns the reserve amounts owed for liquidity claim tokens.
func ComputeBurn(liquidity, totalSupply, reserve0, reserve1 *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	if amm.IsZero(liquidity) {
		return nil, nil, amm.ErrInsufficientAmount
	}
	if amm.IsZero(totalSupply) || liquidity.Gt(totalSupply) {
		return nil, nil, amm.ErrInsufficientLiquidity
	}
	if amount0, err = amm.MulDiv(liquidity, amm.OrZero(reserve0), totalSupply); err != nil {
		return nil, nil, err
	}
	if amount1, err = amm.MulDiv(liquidity, amm.OrZero(reserve1), totalSupply); err != nil {
		return nil, nil, err
	}
	if amount0.IsZero() || amount1.IsZero() {
		return nil, nil, fmt.Errorf("%w: burned zero", amm.ErrInsufficientLiquidity)
	}
	return amount0, amount1, nil
}

// CheckMinimums fails when either withdrawal is below the caller's floor.
func CheckMinimums(amount0, amount1, min0, min1 *uint256.Int) error {
	if amount0.Lt(amm.OrZero(min0)) || amount1.Lt(amm.OrZero(min1)) {
		return fmt.Errorf("%w: withdrawal %s/%s below minimum %s/%s",
			amm.ErrInsufficientLiquidity, amount0, amount1, amm.OrZero(min0), amm.OrZero(min1))
	}
	return nil
}
