package token

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammVault/internal/amm"
	"ammVault/internal/storage"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

func assertSupplyMatchesBalances(t *testing.T, l *Ledger) {
	t.Helper()
	ctx := context.Background()
	holders, err := l.Holders(ctx)
	if err != nil {
		t.Fatalf("holders: %v", err)
	}
	sum := new(uint256.Int)
	for _, h := range holders {
		sum.Add(sum, h.Balance)
	}
	supply, err := l.TotalSupply(ctx)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if !sum.Eq(supply) {
		t.Fatalf("sum of balances %s != supply %s", sum, supply)
	}
}

func TestLedgerMintTransferBurn(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(storage.NewMemoryKV())

	if err := l.Mint(ctx, alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(ctx, alice, bob, uint256.NewInt(300)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := l.Burn(ctx, bob, uint256.NewInt(100)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	assertSupplyMatchesBalances(t, l)

	bal, _ := l.Balance(ctx, bob)
	if bal.Uint64() != 200 {
		t.Fatalf("unexpected bob balance %s", bal)
	}
	if err := l.Transfer(ctx, bob, alice, uint256.NewInt(201)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := l.Transfer(ctx, bob, alice, amm.Zero()); !errors.Is(err, ErrInvalidZeroAmount) {
		t.Fatalf("expected zero amount error, got %v", err)
	}
}

func TestLedgerAllowances(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(storage.NewMemoryKV())
	_ = l.Mint(ctx, alice, uint256.NewInt(500))

	if _, err := l.IncreaseAllowance(ctx, alice, bob, uint256.NewInt(200)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if err := l.TransferFrom(ctx, bob, alice, carol, uint256.NewInt(150)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if err := l.TransferFrom(ctx, bob, alice, carol, uint256.NewInt(51)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}

	left, err := l.DecreaseAllowance(ctx, alice, bob, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if !left.IsZero() {
		t.Fatalf("allowance should saturate at zero, got %s", left)
	}

	top, err := l.IncreaseAllowance(ctx, alice, bob, amm.MaxUint128)
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	top, err = l.IncreaseAllowance(ctx, alice, bob, uint256.NewInt(1))
	if err != nil || !top.Eq(amm.MaxUint128) {
		t.Fatalf("allowance should saturate at max, got %s %v", top, err)
	}
	if _, err := l.IncreaseAllowance(ctx, alice, alice, uint256.NewInt(1)); !errors.Is(err, ErrSelfAllowance) {
		t.Fatalf("expected self allowance error, got %v", err)
	}
	assertSupplyMatchesBalances(t, l)
}
