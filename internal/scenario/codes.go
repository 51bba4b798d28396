package scenario

import (
	"go.uber.org/zap"

	"ammVault/internal/factory"
	"ammVault/internal/host"
	"ammVault/internal/metrics"
	"ammVault/internal/pool"
	"ammVault/internal/token"
	"ammVault/internal/vault"
)

// Code names usable as "#name" in scenarios.
const (
	CodeToken   = "token"
	CodePool    = "pool"
	CodeVault   = "vault"
	CodeFactory = "factory"
)

// RegisterCodes stores the contract codes in a fixed order so that a host
// reopened over the same store sees the same code ids.
func RegisterCodes(h *host.Host, logger *zap.Logger, m *metrics.Workflows) map[string]uint64 {
	if logger == nil {
		logger = zap.NewNop()
	}
	codes := make(map[string]uint64, 4)
	codes[CodeToken] = h.StoreCode(token.New(logger.Named("token")))
	codes[CodePool] = h.StoreCode(pool.New(logger.Named("pool")))
	codes[CodeVault] = h.StoreCode(vault.New(logger.Named("vault"), m))
	codes[CodeFactory] = h.StoreCode(factory.New(logger.Named("factory")))
	return codes
}
