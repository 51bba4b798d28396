// Package token implements a fungible balance and allowance ledger and the
// token contract built on it.
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammVault/internal/amm"
	"ammVault/internal/storage"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidZeroAmount     = errors.New("invalid zero amount")
	ErrSelfAllowance         = errors.New("cannot set allowance to own account")
)

var (
	keySupply       = []byte("supply")
	prefixBalance   = []byte("balance/")
	prefixAllowance = []byte("allowance/")
)

// Ledger keeps total supply, balances and allowances in a KV store. Every
// mutation keeps the sum of balances equal to the total supply.
type Ledger struct {
	kv storage.KV
}

func NewLedger(kv storage.KV) *Ledger {
	return &Ledger{kv: kv}
}

func balanceKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixBalance...), addr.Bytes()...)
}

func allowanceKey(owner, spender common.Address) []byte {
	key := append(append([]byte{}, prefixAllowance...), owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

func (l *Ledger) load(ctx context.Context, key []byte) (*uint256.Int, error) {
	raw, err := l.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (l *Ledger) save(ctx context.Context, key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return l.kv.Delete(ctx, key)
	}
	b := v.Bytes32()
	return l.kv.Set(ctx, key, b[:])
}

func (l *Ledger) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	return l.load(ctx, keySupply)
}

func (l *Ledger) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return l.load(ctx, balanceKey(addr))
}

func (l *Ledger) Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error) {
	return l.load(ctx, allowanceKey(owner, spender))
}

func (l *Ledger) credit(ctx context.Context, addr common.Address, amount *uint256.Int) error {
	bal, err := l.Balance(ctx, addr)
	if err != nil {
		return err
	}
	next, err := amm.Add(bal, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", addr.Hex(), err)
	}
	return l.save(ctx, balanceKey(addr), next)
}

func (l *Ledger) debit(ctx context.Context, addr common.Address, amount *uint256.Int) error {
	bal, err := l.Balance(ctx, addr)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, addr.Hex(), bal, amount)
	}
	return l.save(ctx, balanceKey(addr), new(uint256.Int).Sub(bal, amount))
}

// Mint creates amount new units for to.
func (l *Ledger) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if amm.IsZero(amount) {
		return ErrInvalidZeroAmount
	}
	supply, err := l.TotalSupply(ctx)
	if err != nil {
		return err
	}
	next, err := amm.Add(supply, amount)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if err := l.credit(ctx, to, amount); err != nil {
		return err
	}
	return l.save(ctx, keySupply, next)
}

// Burn destroys amount units held by from.
func (l *Ledger) Burn(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if amm.IsZero(amount) {
		return ErrInvalidZeroAmount
	}
	if err := l.debit(ctx, from, amount); err != nil {
		return err
	}
	supply, err := l.TotalSupply(ctx)
	if err != nil {
		return err
	}
	next, err := amm.Sub(supply, amount)
	if err != nil {
		return fmt.Errorf("burn: %w", err)
	}
	return l.save(ctx, keySupply, next)
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if amm.IsZero(amount) {
		return ErrInvalidZeroAmount
	}
	if err := l.debit(ctx, from, amount); err != nil {
		return err
	}
	return l.credit(ctx, to, amount)
}

// SpendAllowance lowers the allowance granted by owner to spender.
func (l *Ledger) SpendAllowance(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	allowed, err := l.Allowance(ctx, owner, spender)
	if err != nil {
		return err
	}
	if allowed.Lt(amount) {
		return fmt.Errorf("%w: %s allows %s, needs %s", ErrInsufficientAllowance, owner.Hex(), allowed, amount)
	}
	return l.save(ctx, allowanceKey(owner, spender), new(uint256.Int).Sub(allowed, amount))
}

// TransferFrom moves funds on behalf of owner, spending spender's allowance.
func (l *Ledger) TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error {
	if amm.IsZero(amount) {
		return ErrInvalidZeroAmount
	}
	if err := l.SpendAllowance(ctx, owner, spender, amount); err != nil {
		return err
	}
	return l.Transfer(ctx, owner, to, amount)
}

// IncreaseAllowance raises the allowance, saturating at the 128-bit maximum.
func (l *Ledger) IncreaseAllowance(ctx context.Context, owner, spender common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if owner == spender {
		return nil, ErrSelfAllowance
	}
	allowed, err := l.Allowance(ctx, owner, spender)
	if err != nil {
		return nil, err
	}
	next, err := amm.Add(allowed, amm.OrZero(amount))
	if err != nil {
		next = amm.MaxUint128.Clone()
	}
	return next, l.save(ctx, allowanceKey(owner, spender), next)
}

// DecreaseAllowance lowers the allowance, saturating at zero.
func (l *Ledger) DecreaseAllowance(ctx context.Context, owner, spender common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if owner == spender {
		return nil, ErrSelfAllowance
	}
	allowed, err := l.Allowance(ctx, owner, spender)
	if err != nil {
		return nil, err
	}
	next, err := amm.Sub(allowed, amm.OrZero(amount))
	if err != nil {
		next = amm.Zero()
	}
	return next, l.save(ctx, allowanceKey(owner, spender), next)
}

// Holder is a balance row.
type Holder struct {
	Address common.Address `json:"address"`
	Balance *uint256.Int   `json:"balance"`
}

// Holders lists every non-zero balance in address order.
func (l *Ledger) Holders(ctx context.Context) ([]Holder, error) {
	var out []Holder
	err := l.kv.Iterate(ctx, prefixBalance, func(key, value []byte) error {
		out = append(out, Holder{
			Address: common.BytesToAddress(key[len(prefixBalance):]),
			Balance: new(uint256.Int).SetBytes(value),
		})
		return nil
	})
	return out, err
}
