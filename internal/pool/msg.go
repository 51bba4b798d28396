package pool

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammVault/internal/codec"
)

const (
	DefaultName     = "pool_lp"
	DefaultSymbol   = "POOL_LP"
	DefaultDecimals = 18
)

type InstantiateMsg struct {
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Vault    common.Address `json:"vault"`
}

// MintMsg asks the pool to mint claim tokens for a deposit. Reserves are the
// vault's snapshot before the deposit.
type MintMsg struct {
	To       common.Address `json:"to"`
	Amount0  *uint256.Int   `json:"amount0"`
	Amount1  *uint256.Int   `json:"amount1"`
	Reserve0 *uint256.Int   `json:"reserve0"`
	Reserve1 *uint256.Int   `json:"reserve1"`
}

// BurnMsg burns claim tokens already transferred into the pool.
type BurnMsg struct {
	Liquidity  *uint256.Int `json:"liquidity"`
	Amount0Min *uint256.Int `json:"amount0_min"`
	Amount1Min *uint256.Int `json:"amount1_min"`
	Reserve0   *uint256.Int `json:"reserve0"`
	Reserve1   *uint256.Int `json:"reserve1"`
}

// ReturnSharesMsg gives back claim tokens held by the pool for a failed burn.
type ReturnSharesMsg struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

// NewInstantiateMsg builds the instantiation payload used by the factory.
func NewInstantiateMsg(vault common.Address) json.RawMessage {
	raw, err := json.Marshal(InstantiateMsg{
		Name:     DefaultName,
		Symbol:   DefaultSymbol,
		Decimals: DefaultDecimals,
		Vault:    vault,
	})
	if err != nil {
		panic(err)
	}
	return raw
}

func Mint(msg MintMsg) json.RawMessage {
	return codec.MustWrap("mint", msg)
}

func Burn(msg BurnMsg) json.RawMessage {
	return codec.MustWrap("burn", msg)
}

func ReturnShares(to common.Address, amount *uint256.Int) json.RawMessage {
	return codec.MustWrap("return_shares", ReturnSharesMsg{To: to, Amount: amount})
}

type AmountOutQuery struct {
	AmountIn   *uint256.Int `json:"amount_in"`
	ReserveIn  *uint256.Int `json:"reserve_in"`
	ReserveOut *uint256.Int `json:"reserve_out"`
	FeeBps     *uint64      `json:"fee_bps,omitempty"`
}

type AmountInQuery struct {
	AmountOut  *uint256.Int `json:"amount_out"`
	ReserveIn  *uint256.Int `json:"reserve_in"`
	ReserveOut *uint256.Int `json:"reserve_out"`
	FeeBps     *uint64      `json:"fee_bps,omitempty"`
}

type WithdrawQuoteQuery struct {
	Liquidity *uint256.Int `json:"liquidity"`
	Reserve0  *uint256.Int `json:"reserve0"`
	Reserve1  *uint256.Int `json:"reserve1"`
}

type AmountResponse struct {
	Amount *uint256.Int `json:"amount"`
}

type WithdrawQuoteResponse struct {
	Amount0 *uint256.Int `json:"amount0"`
	Amount1 *uint256.Int `json:"amount1"`
}

type ConfigResponse struct {
	Vault  common.Address `json:"vault"`
	Locked *uint256.Int   `json:"locked"`
}

func QueryWithdrawQuote(liquidity, reserve0, reserve1 *uint256.Int) json.RawMessage {
	return codec.MustWrap("withdraw_quote", WithdrawQuoteQuery{Liquidity: liquidity, Reserve0: reserve0, Reserve1: reserve1})
}

func QueryAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) json.RawMessage {
	return codec.MustWrap("amount_out", AmountOutQuery{AmountIn: amountIn, ReserveIn: reserveIn, ReserveOut: reserveOut})
}

func QueryAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) json.RawMessage {
	return codec.MustWrap("amount_in", AmountInQuery{AmountOut: amountOut, ReserveIn: reserveIn, ReserveOut: reserveOut})
}

func QueryConfig() json.RawMessage {
	return codec.MustWrap("config", nil)
}
