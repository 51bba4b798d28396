package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammVault/internal/vault"
)

// Querier answers read-only contract queries. *host.Host satisfies it.
type Querier interface {
	Query(ctx context.Context, contract common.Address, msg json.RawMessage) (json.RawMessage, error)
}

func queryInto(ctx context.Context, q Querier, contract common.Address, msg json.RawMessage, out interface{}) error {
	raw, err := q.Query(ctx, contract, msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// fetchPoolData asks the vault for its current ledger row of a pool.
func (a *Aggregator) fetchPoolData(ctx context.Context, vaultAddr, poolAddr string) (vault.PoolDataResponse, error) {
	var data vault.PoolDataResponse
	if a.querier == nil {
		return data, fmt.Errorf("querier is nil")
	}
	if !common.IsHexAddress(vaultAddr) || !common.IsHexAddress(poolAddr) {
		return data, fmt.Errorf("invalid address")
	}
	msg := vault.QueryPoolData(common.HexToAddress(poolAddr))
	if err := queryInto(ctx, a.querier, common.HexToAddress(vaultAddr), msg, &data); err != nil {
		return data, fmt.Errorf("pool data %s: %w", poolAddr, err)
	}
	if !data.Registered {
		return data, fmt.Errorf("pool %s is not registered", poolAddr)
	}
	return data, nil
}

// fetchTVL prefers the reserves synced inside the window and falls back to
// the vault's current reserves.
func (a *Aggregator) fetchTVL(ctx context.Context, acc *Accumulator) (*big.Int, *big.Int, string, error) {
	if acc.Reserve0 != nil && acc.Reserve1 != nil {
		return acc.Reserve0, acc.Reserve1, tvlMethodSync, nil
	}
	data, err := a.fetchPoolData(ctx, acc.Vault, acc.PoolAddress)
	if err != nil {
		return nil, nil, tvlMethodNone, err
	}
	if data.Reserve0 == nil || data.Reserve1 == nil {
		return nil, nil, tvlMethodNone, fmt.Errorf("pool %s has no reserves", acc.PoolAddress)
	}
	return data.Reserve0.ToBig(), data.Reserve1.ToBig(), tvlMethodLatest, nil
}
