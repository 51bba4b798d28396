package codec

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestInstantiateResult(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data, err := EncodeInstantiateResult(addr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeInstantiateResult(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != addr {
		t.Fatalf("address mismatch: %s", got.Hex())
	}
}

func TestMintResultLargeValues(t *testing.T) {
	liq := uint256.MustFromDecimal("340282366920938463463374607431768211455")
	data, err := EncodeMintResult(MintResult{Liquidity: liq, Amount0: uint256.NewInt(7), Amount1: uint256.NewInt(9)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeMintResult(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Liquidity.Eq(liq) || got.Amount0.Uint64() != 7 || got.Amount1.Uint64() != 9 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := DecodeBurnResult(nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if _, err := DecodeInstantiateResult([]byte{0x01, 0x02}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestWrapUnwrap(t *testing.T) {
	raw, err := Wrap("transfer", map[string]string{"recipient": "0x1"})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	name, body, err := Unwrap(raw)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if name != "transfer" || string(body) != `{"recipient":"0x1"}` {
		t.Fatalf("unexpected: %s %s", name, body)
	}

	if _, _, err := Unwrap([]byte(`{"a":{},"b":{}}`)); err == nil {
		t.Fatalf("expected error for two variants")
	}
	name, body, err = Unwrap([]byte(`{"pools":null}`))
	if err != nil || name != "pools" || string(body) != "{}" {
		t.Fatalf("null body: %s %s %v", name, body, err)
	}
}
