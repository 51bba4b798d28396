package factory

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"ammVault/internal/codec"
)

type InstantiateMsg struct {
	Vault      common.Address  `json:"vault"`
	PoolCodeID uint64          `json:"pool_code_id"`
	Owner      *common.Address `json:"owner,omitempty"`
}

type CreatePoolMsg struct {
	TokenA common.Address `json:"token_a"`
	TokenB common.Address `json:"token_b"`
}

// CreatePoolResponse is the response data of a completed creation.
type CreatePoolResponse struct {
	Pool common.Address `json:"pool"`
}

func CreatePool(tokenA, tokenB common.Address) json.RawMessage {
	return codec.MustWrap("create_pool", CreatePoolMsg{TokenA: tokenA, TokenB: tokenB})
}

type ConfigResponse struct {
	Owner      common.Address `json:"owner"`
	Vault      common.Address `json:"vault"`
	PoolCodeID uint64         `json:"pool_code_id"`
}

type PairQuery struct {
	TokenA common.Address `json:"token_a"`
	TokenB common.Address `json:"token_b"`
}

// PairInfo records a created pool. Token order is the order of the creating
// request.
type PairInfo struct {
	Pool      common.Address `json:"pool"`
	Token0    common.Address `json:"token0"`
	Token1    common.Address `json:"token1"`
	CreatedAt uint64         `json:"created_at"`
}

// Pending is a creation waiting for its instantiation continuation.
type Pending struct {
	ID        uint64         `json:"id"`
	Token0    common.Address `json:"token0"`
	Token1    common.Address `json:"token1"`
	Requester common.Address `json:"requester"`
}

func QueryConfig() json.RawMessage {
	return codec.MustWrap("config", nil)
}

func QueryPair(tokenA, tokenB common.Address) json.RawMessage {
	return codec.MustWrap("pair", PairQuery{TokenA: tokenA, TokenB: tokenB})
}

func QueryPools() json.RawMessage {
	return codec.MustWrap("pools", nil)
}

func QueryPending() json.RawMessage {
	return codec.MustWrap("pending", nil)
}
