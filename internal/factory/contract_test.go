package factory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ammVault/internal/codec"
	"ammVault/internal/host"
	"ammVault/internal/storage"
	"ammVault/internal/vault"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	vaultAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	requester   = common.HexToAddress("0x0000000000000000000000000000000000005e55")
	tokenA      = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB      = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokenC      = common.HexToAddress("0x000000000000000000000000000000000000000c")
	tokenD      = common.HexToAddress("0x000000000000000000000000000000000000000d")
)

func newContext(t *testing.T, kv storage.KV) *host.Context {
	t.Helper()
	return &host.Context{
		Context: context.Background(),
		Store:   kv,
		Env:     host.Env{Height: 7, Contract: factoryAddr},
		Sender:  requester,
	}
}

func instantiated(t *testing.T) (*Contract, *host.Context) {
	t.Helper()
	f := New(nil)
	c := newContext(t, storage.NewMemoryKV())
	raw, _ := json.Marshal(InstantiateMsg{Vault: vaultAddr, PoolCodeID: 2})
	if _, err := f.Instantiate(c, raw); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return f, c
}

func registerTarget(t *testing.T, resp *host.Response) vault.RegisterPoolMsg {
	t.Helper()
	if len(resp.Messages) != 1 || resp.Messages[0].Msg.Execute == nil {
		t.Fatalf("expected one execute message, got %+v", resp.Messages)
	}
	exec := resp.Messages[0].Msg.Execute
	if exec.Contract != vaultAddr {
		t.Fatalf("register sent to %s", exec.Contract.Hex())
	}
	name, body, err := codec.Unwrap(exec.Msg)
	if err != nil || name != "register_pool" {
		t.Fatalf("unexpected message %s: %v", name, err)
	}
	var msg vault.RegisterPoolMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestCreatePoolValidation(t *testing.T) {
	f, c := instantiated(t)
	empty := common.Address{}

	cases := []struct {
		name string
		a, b common.Address
		want error
	}{
		{name: "identical", a: tokenA, b: tokenA, want: ErrIdenticalAddresses},
		{name: "both empty", a: empty, b: empty, want: ErrEmptyAddresses},
		{name: "one empty", a: tokenA, b: empty, want: ErrEmptyAddresses},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Execute(c, CreatePool(tc.a, tc.b))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInterleavedCreationsKeepTheirPairs(t *testing.T) {
	f, c := instantiated(t)

	first, err := f.Execute(c, CreatePool(tokenA, tokenB))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := f.Execute(c, CreatePool(tokenC, tokenD))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	firstID, secondID := first.Messages[0].ID, second.Messages[0].ID
	if firstID == secondID {
		t.Fatalf("correlation ids collide: %d", firstID)
	}
	if first.Messages[0].ReplyOn != host.ReplyOnSuccess {
		t.Fatalf("unexpected reply mode %s", first.Messages[0].ReplyOn)
	}

	poolCD := common.HexToAddress("0x00000000000000000000000000000000000000cd")
	poolAB := common.HexToAddress("0x00000000000000000000000000000000000000ab")

	// the later creation completes first
	data, _ := codec.EncodeInstantiateResult(poolCD)
	resp, err := f.Reply(c, host.Reply{ID: secondID, Data: data})
	if err != nil {
		t.Fatalf("reply second: %v", err)
	}
	if got := registerTarget(t, resp); got.PoolAddress != poolCD || got.Token0 != tokenC || got.Token1 != tokenD {
		t.Fatalf("second creation registered %+v", got)
	}

	data, _ = codec.EncodeInstantiateResult(poolAB)
	resp, err = f.Reply(c, host.Reply{ID: firstID, Data: data})
	if err != nil {
		t.Fatalf("reply first: %v", err)
	}
	if got := registerTarget(t, resp); got.PoolAddress != poolAB || got.Token0 != tokenA || got.Token1 != tokenB {
		t.Fatalf("first creation registered %+v", got)
	}

	if _, err := f.Reply(c, host.Reply{ID: firstID, Data: data}); !errors.Is(err, ErrReplyID) {
		t.Fatalf("pending entry should be cleared, got %v", err)
	}
	if _, err := f.Execute(c, CreatePool(tokenB, tokenA)); !errors.Is(err, ErrPairExists) {
		t.Fatalf("expected pair exists, got %v", err)
	}
}

func TestReplyErrors(t *testing.T) {
	f, c := instantiated(t)

	if _, err := f.Reply(c, host.Reply{ID: 99}); !errors.Is(err, ErrReplyID) {
		t.Fatalf("expected reply id error, got %v", err)
	}

	resp, err := f.Execute(c, CreatePool(tokenA, tokenB))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := resp.Messages[0].ID
	if _, err := f.Reply(c, host.Reply{ID: id, Data: []byte{1, 2, 3}}); !errors.Is(err, ErrReplyData) {
		t.Fatalf("expected reply data error, got %v", err)
	}

	// a pending entry without tokens cannot be registered
	if err := setJSON(c, c.Store, pendingKey(id), Pending{ID: id}); err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	data, _ := codec.EncodeInstantiateResult(common.HexToAddress("0x01"))
	if _, err := f.Reply(c, host.Reply{ID: id, Data: data}); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected token not found, got %v", err)
	}
}

func TestReplyFailureLogsKind(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := New(zap.New(core))
	c := newContext(t, storage.NewMemoryKV())
	raw, _ := json.Marshal(InstantiateMsg{Vault: vaultAddr, PoolCodeID: 2})
	if _, err := f.Instantiate(c, raw); err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	if _, err := f.Reply(c, host.Reply{ID: 99}); !errors.Is(err, ErrReplyID) {
		t.Fatalf("expected reply id error, got %v", err)
	}
	entries := logs.FilterMessage("pool creation failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["error_kind"]; got != "workflow" {
		t.Fatalf("unexpected error_kind %v", got)
	}
}

func TestKind(t *testing.T) {
	if Kind(ErrTokenNotFound) != "lookup" || Kind(ErrReplyData) != "workflow" || Kind(ErrPairExists) != "validation" {
		t.Fatalf("unexpected kinds")
	}
}
