package pool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammVault/internal/codec"
	"ammVault/internal/host"
	"ammVault/internal/storage"
	"ammVault/internal/token"
)

var (
	vaultAddr = common.HexToAddress("0x000000000000000000000000000000000000fa17")
	user      = common.HexToAddress("0x0000000000000000000000000000000000005e55")
)

func deployPool(t *testing.T) (*host.Host, common.Address) {
	t.Helper()
	h := host.New(storage.NewMemoryKV(), host.Options{}, nil)
	code := h.StoreCode(New(nil))
	res, err := h.Instantiate(context.Background(), vaultAddr, code, "pool", NewInstantiateMsg(vaultAddr))
	if err != nil {
		t.Fatalf("instantiate pool: %v", err)
	}
	return h, res.Address
}

func shares(t *testing.T, h *host.Host, poolAddr, holder common.Address) uint64 {
	t.Helper()
	raw, err := h.Query(context.Background(), poolAddr, token.QueryBalance(holder))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	var resp token.BalanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Balance.Uint64()
}

func TestMintOnlyFromVault(t *testing.T) {
	h, poolAddr := deployPool(t)
	ctx := context.Background()
	msg := Mint(MintMsg{To: user, Amount0: u(10_000), Amount1: u(10_000), Reserve0: u(0), Reserve1: u(0)})

	if _, err := h.Execute(ctx, user, poolAddr, msg); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	res, err := h.Execute(ctx, vaultAddr, poolAddr, msg)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	minted, err := codec.DecodeMintResult(res.Data)
	if err != nil {
		t.Fatalf("decode mint result: %v", err)
	}
	if minted.Liquidity.Uint64() != 9000 {
		t.Fatalf("unexpected liquidity %s", minted.Liquidity)
	}
	if got := shares(t, h, poolAddr, user); got != 9000 {
		t.Fatalf("user shares %d", got)
	}
	if got := shares(t, h, poolAddr, poolAddr); got != MinimumLiquidity {
		t.Fatalf("locked shares %d", got)
	}
}

func TestBurnRequiresExactHeldAmount(t *testing.T) {
	h, poolAddr := deployPool(t)
	ctx := context.Background()

	if _, err := h.Execute(ctx, vaultAddr, poolAddr, Mint(MintMsg{To: user, Amount0: u(10_000), Amount1: u(10_000), Reserve0: u(0), Reserve1: u(0)})); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := h.Execute(ctx, user, poolAddr, token.Transfer(poolAddr, u(500))); err != nil {
		t.Fatalf("transfer shares: %v", err)
	}

	burn := BurnMsg{Liquidity: u(400), Reserve0: u(10_000), Reserve1: u(10_000)}
	if _, err := h.Execute(ctx, vaultAddr, poolAddr, Burn(burn)); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}

	burn.Liquidity = u(500)
	res, err := h.Execute(ctx, vaultAddr, poolAddr, Burn(burn))
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	out, err := codec.DecodeBurnResult(res.Data)
	if err != nil {
		t.Fatalf("decode burn: %v", err)
	}
	if out.Amount0.Uint64() != 500 || out.Amount1.Uint64() != 500 {
		t.Fatalf("unexpected burn amounts %s %s", out.Amount0, out.Amount1)
	}
	if got := shares(t, h, poolAddr, poolAddr); got != MinimumLiquidity {
		t.Fatalf("locked minimum should remain, got %d", got)
	}
}

func TestReturnShares(t *testing.T) {
	h, poolAddr := deployPool(t)
	ctx := context.Background()

	if _, err := h.Execute(ctx, vaultAddr, poolAddr, Mint(MintMsg{To: user, Amount0: u(4000), Amount1: u(4000), Reserve0: u(0), Reserve1: u(0)})); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := h.Execute(ctx, user, poolAddr, token.Transfer(poolAddr, u(300))); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := h.Execute(ctx, vaultAddr, poolAddr, ReturnShares(user, u(301))); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("locked minimum must not be returned, got %v", err)
	}
	if _, err := h.Execute(ctx, vaultAddr, poolAddr, ReturnShares(user, u(300))); err != nil {
		t.Fatalf("return shares: %v", err)
	}
	if got := shares(t, h, poolAddr, user); got != 3000 {
		t.Fatalf("user shares %d", got)
	}
}

func TestPoolQueries(t *testing.T) {
	h, poolAddr := deployPool(t)
	ctx := context.Background()

	raw, err := h.Query(ctx, poolAddr, QueryAmountOut(u(1000), u(1_000_000), u(1_000_000)))
	if err != nil {
		t.Fatalf("amount out: %v", err)
	}
	var resp AmountResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Amount.Uint64() != 996 {
		t.Fatalf("unexpected amount out %s", resp.Amount)
	}

	raw, err = h.Query(ctx, poolAddr, token.QueryTokenInfo())
	if err != nil {
		t.Fatalf("token info: %v", err)
	}
	var info token.TokenInfoResponse
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Name != DefaultName || info.Symbol != DefaultSymbol || info.Decimals != DefaultDecimals {
		t.Fatalf("unexpected info %+v", info)
	}
}
