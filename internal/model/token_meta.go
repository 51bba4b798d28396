package model

import "github.com/holiman/uint256"

// TokenMeta captures fungible token metadata.
type TokenMeta struct {
	Address     string       `json:"address,omitempty"`
	Name        string       `json:"name"`
	Symbol      string       `json:"symbol"`
	Decimals    uint8        `json:"decimals"`
	TotalSupply *uint256.Int `json:"total_supply"`
}
