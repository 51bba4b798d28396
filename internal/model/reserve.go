package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ReserveEntry is the vault's ledger row for one registered pool.
// Token order is fixed at registration.
type ReserveEntry struct {
	Pool       common.Address `json:"pool"`
	Registered bool           `json:"registered"`
	Token0     common.Address `json:"token0"`
	Token1     common.Address `json:"token1"`
	Reserve0   *uint256.Int   `json:"reserve0"`
	Reserve1   *uint256.Int   `json:"reserve1"`
	// RegisteredAt is the block height of registration.
	RegisteredAt uint64 `json:"registered_at"`
}

// Reserves returns the reserves ordered as (tokenIn side, other side).
func (r ReserveEntry) Reserves(tokenIn common.Address) (in, out *uint256.Int, ok bool) {
	switch tokenIn {
	case r.Token0:
		return r.Reserve0, r.Reserve1, true
	case r.Token1:
		return r.Reserve1, r.Reserve0, true
	default:
		return nil, nil, false
	}
}

// PoolRecord is the pool row written to the metrics store.
type PoolRecord struct {
	Address        string `json:"address"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	FeeBps         uint64 `json:"fee_bps"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}
