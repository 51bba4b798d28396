package vault

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammVault/internal/codec"
	"ammVault/internal/model"
)

type InstantiateMsg struct {
	Owner  *common.Address `json:"owner,omitempty"`
	FeeBps *uint64         `json:"fee_bps,omitempty"`
}

type RegisterFactoryMsg struct {
	FactoryAddress common.Address `json:"factory_address"`
}

type RegisterPoolMsg struct {
	PoolAddress common.Address `json:"pool_address"`
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
}

type AddLiquidityMsg struct {
	PoolAddress    common.Address `json:"pool_address"`
	TokenA         common.Address `json:"token_a"`
	TokenB         common.Address `json:"token_b"`
	AmountADesired *uint256.Int   `json:"amount_a_desired"`
	AmountBDesired *uint256.Int   `json:"amount_b_desired"`
	AmountAMin     *uint256.Int   `json:"amount_a_min"`
	AmountBMin     *uint256.Int   `json:"amount_b_min"`
	AddressTo      common.Address `json:"address_to"`
	// Deadline is a unix time in seconds; zero disables the check.
	Deadline  uint64 `json:"deadline,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type RemoveLiquidityMsg struct {
	PoolAddress common.Address `json:"pool_address"`
	TokenA      common.Address `json:"token_a"`
	TokenB      common.Address `json:"token_b"`
	Liquidity   *uint256.Int   `json:"liquidity"`
	AmountAMin  *uint256.Int   `json:"amount_a_min"`
	AmountBMin  *uint256.Int   `json:"amount_b_min"`
	AddressTo   common.Address `json:"address_to"`
	Deadline    uint64         `json:"deadline,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
}

// SwapMsg is sent directly, or inside a token Send envelope. In the envelope
// form AmountIn and TokenIn come from the envelope.
type SwapMsg struct {
	PoolAddress  common.Address  `json:"pool_address"`
	AmountIn     *uint256.Int    `json:"amount_in,omitempty"`
	AmountOutMin *uint256.Int    `json:"amount_out_min"`
	TokenIn      *common.Address `json:"token_in,omitempty"`
	TokenOut     common.Address  `json:"token_out"`
	AddressTo    common.Address  `json:"address_to"`
	Deadline     uint64          `json:"deadline,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
}

func RegisterFactory(factory common.Address) json.RawMessage {
	return codec.MustWrap("register_factory", RegisterFactoryMsg{FactoryAddress: factory})
}

func RegisterPool(pool, token0, token1 common.Address) json.RawMessage {
	return codec.MustWrap("register_pool", RegisterPoolMsg{PoolAddress: pool, Token0: token0, Token1: token1})
}

func AddLiquidity(msg AddLiquidityMsg) json.RawMessage {
	return codec.MustWrap("add_liquidity", msg)
}

func RemoveLiquidity(msg RemoveLiquidityMsg) json.RawMessage {
	return codec.MustWrap("remove_liquidity", msg)
}

func Swap(msg SwapMsg) json.RawMessage {
	return codec.MustWrap("swap", msg)
}

type PoolDataQuery struct {
	PoolAddress common.Address `json:"pool_address"`
}

// PoolDataResponse mirrors the reserve entry of one pool.
type PoolDataResponse struct {
	Registered bool           `json:"registered"`
	Token0     common.Address `json:"token0"`
	Token1     common.Address `json:"token1"`
	Reserve0   *uint256.Int   `json:"reserve0"`
	Reserve1   *uint256.Int   `json:"reserve1"`
}

// WorkflowQuery looks a workflow up by id, or by caller and request id.
type WorkflowQuery struct {
	ID        uint64          `json:"id,omitempty"`
	Caller    *common.Address `json:"caller,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

type FactoryQuery struct {
	Address common.Address `json:"address"`
}

type FactoryResponse struct {
	Authorized bool `json:"authorized"`
}

type ConfigResponse struct {
	Owner  common.Address `json:"owner"`
	FeeBps uint64         `json:"fee_bps"`
}

// Outcome is the response data of every workflow-driving message.
type Outcome struct {
	Workflow model.Workflow `json:"workflow"`
}

func QueryPoolData(pool common.Address) json.RawMessage {
	return codec.MustWrap("pool_data", PoolDataQuery{PoolAddress: pool})
}

func QueryPools() json.RawMessage {
	return codec.MustWrap("pools", nil)
}

func QueryWorkflow(id uint64) json.RawMessage {
	return codec.MustWrap("workflow", WorkflowQuery{ID: id})
}

func QueryWorkflowByRequest(caller common.Address, requestID string) json.RawMessage {
	return codec.MustWrap("workflow", WorkflowQuery{Caller: &caller, RequestID: requestID})
}

func QueryFactory(addr common.Address) json.RawMessage {
	return codec.MustWrap("factory", FactoryQuery{Address: addr})
}

func QueryConfig() json.RawMessage {
	return codec.MustWrap("config", nil)
}

// DecodeOutcome extracts the workflow from response data.
func DecodeOutcome(data []byte) (model.Workflow, error) {
	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Workflow{}, err
	}
	return out.Workflow, nil
}
