package codec

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrMalformed is returned when a continuation payload cannot be decoded.
var ErrMalformed = errors.New("malformed payload")

const replyABIJSON = `[
  {
    "inputs": [],
    "name": "instantiate",
    "outputs": [{"internalType": "address", "name": "contractAddress", "type": "address"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "mint",
    "outputs": [
      {"internalType": "uint128", "name": "liquidity", "type": "uint128"},
      {"internalType": "uint128", "name": "amount0", "type": "uint128"},
      {"internalType": "uint128", "name": "amount1", "type": "uint128"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "burn",
    "outputs": [
      {"internalType": "uint128", "name": "amount0", "type": "uint128"},
      {"internalType": "uint128", "name": "amount1", "type": "uint128"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	replyABI     abi.ABI
	replyABIOnce sync.Once
	replyABIErr  error
)

// ReplyABI returns the parsed ABI describing continuation payloads.
func ReplyABI() (abi.ABI, error) {
	replyABIOnce.Do(func() {
		replyABI, replyABIErr = abi.JSON(strings.NewReader(replyABIJSON))
	})
	return replyABI, replyABIErr
}

func packOutputs(method string, values ...interface{}) ([]byte, error) {
	parsed, err := ReplyABI()
	if err != nil {
		return nil, err
	}
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown payload %s", method)
	}
	return m.Outputs.Pack(values...)
}

func unpackOutputs(method string, data []byte, want int) ([]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s payload: %w: empty", method, ErrMalformed)
	}
	parsed, err := ReplyABI()
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("%s payload: %w: %v", method, ErrMalformed, err)
	}
	if len(values) != want {
		return nil, fmt.Errorf("%s payload: %w: %d values", method, ErrMalformed, len(values))
	}
	return values, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func fromBig(value interface{}) (*uint256.Int, error) {
	b, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected type %T", ErrMalformed, value)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: value overflows", ErrMalformed)
	}
	return v, nil
}

// EncodeInstantiateResult encodes the address of a new contract.
func EncodeInstantiateResult(addr common.Address) ([]byte, error) {
	return packOutputs("instantiate", addr)
}

// DecodeInstantiateResult extracts the address of a new contract.
func DecodeInstantiateResult(data []byte) (common.Address, error) {
	values, err := unpackOutputs("instantiate", data, 1)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: unexpected type %T", ErrMalformed, values[0])
	}
	return addr, nil
}

// MintResult is reported by a pool after minting claim tokens.
type MintResult struct {
	Liquidity *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
}

func EncodeMintResult(r MintResult) ([]byte, error) {
	return packOutputs("mint", toBig(r.Liquidity), toBig(r.Amount0), toBig(r.Amount1))
}

func DecodeMintResult(data []byte) (MintResult, error) {
	values, err := unpackOutputs("mint", data, 3)
	if err != nil {
		return MintResult{}, err
	}
	var out MintResult
	if out.Liquidity, err = fromBig(values[0]); err != nil {
		return MintResult{}, err
	}
	if out.Amount0, err = fromBig(values[1]); err != nil {
		return MintResult{}, err
	}
	if out.Amount1, err = fromBig(values[2]); err != nil {
		return MintResult{}, err
	}
	return out, nil
}

// BurnResult is reported by a pool after burning claim tokens.
type BurnResult struct {
	Amount0 *uint256.Int
	Amount1 *uint256.Int
}

func EncodeBurnResult(r BurnResult) ([]byte, error) {
	return packOutputs("burn", toBig(r.Amount0), toBig(r.Amount1))
}

func DecodeBurnResult(data []byte) (BurnResult, error) {
	values, err := unpackOutputs("burn", data, 2)
	if err != nil {
		return BurnResult{}, err
	}
	var out BurnResult
	if out.Amount0, err = fromBig(values[0]); err != nil {
		return BurnResult{}, err
	}
	if out.Amount1, err = fromBig(values[1]); err != nil {
		return BurnResult{}, err
	}
	return out, nil
}
