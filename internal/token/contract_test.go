package token

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammVault/internal/codec"
	"ammVault/internal/host"
	"ammVault/internal/storage"
)

// receiver stores the last envelope it was sent.
type receiver struct{}

func (receiver) Instantiate(*host.Context, json.RawMessage) (*host.Response, error) {
	return host.NewResponse(), nil
}

func (receiver) Execute(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	if name != "receive" {
		return nil, codec.Unknown(name)
	}
	return host.NewResponse(), c.Store.Set(c, []byte("last"), body)
}

func (receiver) Reply(*host.Context, host.Reply) (*host.Response, error) {
	return host.NewResponse(), nil
}

func (receiver) Query(c *host.QueryContext, _ json.RawMessage) (json.RawMessage, error) {
	return c.Store.Get(c, []byte("last"))
}

func setup(t *testing.T) (*host.Host, common.Address, common.Address) {
	t.Helper()
	ctx := context.Background()
	h := host.New(storage.NewMemoryKV(), host.Options{}, nil)
	tokenCode := h.StoreCode(New(nil))
	recvCode := h.StoreCode(receiver{})

	initMsg, _ := json.Marshal(InstantiateMsg{
		Name:            "Token A",
		Symbol:          "TKA",
		Decimals:        6,
		InitialBalances: []Holder{{Address: alice, Balance: uint256.NewInt(1000)}},
	})
	res, err := h.Instantiate(ctx, alice, tokenCode, "token-a", initMsg)
	if err != nil {
		t.Fatalf("instantiate token: %v", err)
	}
	recv, err := h.Instantiate(ctx, alice, recvCode, "receiver", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("instantiate receiver: %v", err)
	}
	return h, res.Address, recv.Address
}

func balanceOf(t *testing.T, h *host.Host, tok, addr common.Address) uint64 {
	t.Helper()
	raw, err := h.Query(context.Background(), tok, QueryBalance(addr))
	if err != nil {
		t.Fatalf("balance query: %v", err)
	}
	var resp BalanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	return resp.Balance.Uint64()
}

func TestSendDeliversEnvelope(t *testing.T) {
	h, tok, recv := setup(t)
	ctx := context.Background()

	inner := json.RawMessage(`{"swap":{}}`)
	if _, err := h.Execute(ctx, alice, tok, Send(recv, uint256.NewInt(250), inner)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := balanceOf(t, h, tok, recv); got != 250 {
		t.Fatalf("receiver balance %d", got)
	}

	raw, err := h.Query(ctx, recv, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("query receiver: %v", err)
	}
	var env ReceiveMsg
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Sender != alice || env.Amount.Uint64() != 250 || string(env.Msg) != string(inner) {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestMintRequiresMinter(t *testing.T) {
	h, tok, _ := setup(t)
	ctx := context.Background()

	if _, err := h.Execute(ctx, bob, tok, Mint(bob, uint256.NewInt(5))); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := h.Execute(ctx, alice, tok, Mint(bob, uint256.NewInt(5))); err != nil {
		t.Fatalf("mint: %v", err)
	}

	raw, err := h.Query(ctx, tok, QueryTokenInfo())
	if err != nil {
		t.Fatalf("token info: %v", err)
	}
	var info TokenInfoResponse
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Symbol != "TKA" || info.Decimals != 6 || info.TotalSupply.Uint64() != 1005 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestTransferFromThroughHost(t *testing.T) {
	h, tok, _ := setup(t)
	ctx := context.Background()

	if _, err := h.Execute(ctx, bob, tok, TransferFrom(alice, bob, uint256.NewInt(10))); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
	if _, err := h.Execute(ctx, alice, tok, IncreaseAllowance(bob, uint256.NewInt(10))); err != nil {
		t.Fatalf("increase allowance: %v", err)
	}
	if _, err := h.Execute(ctx, bob, tok, TransferFrom(alice, carol, uint256.NewInt(10))); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := balanceOf(t, h, tok, carol); got != 10 {
		t.Fatalf("carol balance %d", got)
	}
}
