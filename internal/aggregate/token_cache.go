package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammVault/internal/model"
	"ammVault/internal/token"
)

// TokenDecimalsCache caches token decimals by address.
type TokenDecimalsCache struct {
	mu   sync.RWMutex
	data map[common.Address]uint8
}

func NewTokenDecimalsCache() *TokenDecimalsCache {
	return &TokenDecimalsCache{data: make(map[common.Address]uint8)}
}

func (c *TokenDecimalsCache) Get(address common.Address) (uint8, bool) {
	c.mu.RLock()
	decimals, ok := c.data[address]
	c.mu.RUnlock()
	return decimals, ok
}

func (c *TokenDecimalsCache) Set(address common.Address, decimals uint8) {
	c.mu.Lock()
	c.data[address] = decimals
	c.mu.Unlock()
}

// FetchTokenDecimals reads token decimals from the token contract.
func FetchTokenDecimals(ctx context.Context, q Querier, addr common.Address) (uint8, error) {
	if q == nil {
		return 0, fmt.Errorf("querier is nil")
	}
	var meta model.TokenMeta
	if err := queryInto(ctx, q, addr, token.QueryTokenInfo(), &meta); err != nil {
		return 0, fmt.Errorf("token info %s: %w", addr.Hex(), err)
	}
	return meta.Decimals, nil
}
