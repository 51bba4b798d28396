package pool

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammVault/internal/amm"
	"ammVault/internal/codec"
	"ammVault/internal/host"
	"ammVault/internal/token"
)

var (
	keyVault  = []byte("vault")
	keyLocked = []byte("locked")
)

// Contract is the claim-token contract of one pool. The pool is its own
// minter; only the recorded vault may mint, burn or return shares.
type Contract struct {
	logger *zap.Logger
}

var _ host.Contract = (*Contract)(nil)

func New(logger *zap.Logger) *Contract {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Contract{logger: logger}
}

func (p *Contract) Instantiate(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	var msg InstantiateMsg
	if err := codec.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Vault == (common.Address{}) {
		return nil, fmt.Errorf("vault address required")
	}
	if err := token.SaveInfo(c, c.Store, msg.Name, msg.Symbol, msg.Decimals, c.Env.Contract); err != nil {
		return nil, err
	}
	if err := c.Store.Set(c, keyVault, msg.Vault.Bytes()); err != nil {
		return nil, err
	}
	return host.NewResponse().AddEvent("instantiate_pool",
		"vault", msg.Vault.Hex(),
		"symbol", msg.Symbol,
	), nil
}

func (p *Contract) Execute(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	ledger := token.LedgerOf(c.Store)

	switch name {
	case "mint":
		var msg MintMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		if err := p.requireVault(c); err != nil {
			return nil, err
		}
		return p.mint(c, ledger, msg)
	case "burn":
		var msg BurnMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		if err := p.requireVault(c); err != nil {
			return nil, err
		}
		return p.burn(c, ledger, msg)
	case "return_shares":
		var msg ReturnSharesMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		if err := p.requireVault(c); err != nil {
			return nil, err
		}
		return p.returnShares(c, ledger, msg)
	}

	resp, handled, err := token.ExecuteStandard(c, ledger, name, body)
	if err != nil {
		return nil, err
	}
	if !handled {
		return nil, codec.Unknown(name)
	}
	return resp, nil
}

func (p *Contract) Reply(_ *host.Context, reply host.Reply) (*host.Response, error) {
	return nil, fmt.Errorf("pool: unexpected reply %d", reply.ID)
}

func (p *Contract) requireVault(c *host.Context) error {
	raw, err := c.Store.Get(c, keyVault)
	if err != nil {
		return err
	}
	if common.BytesToAddress(raw) != c.Sender {
		return ErrUnauthorized
	}
	return nil
}

func (p *Contract) locked(c *host.Context) (*uint256.Int, error) {
	raw, err := c.Store.Get(c, keyLocked)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(raw), nil
}

// held is the pool's own balance excluding the locked minimum.
func (p *Contract) held(c *host.Context, ledger *token.Ledger) (*uint256.Int, error) {
	bal, err := ledger.Balance(c, c.Env.Contract)
	if err != nil {
		return nil, err
	}
	locked, err := p.locked(c)
	if err != nil {
		return nil, err
	}
	return amm.Sub(bal, locked)
}

func (p *Contract) mint(c *host.Context, ledger *token.Ledger, msg MintMsg) (*host.Response, error) {
	supply, err := ledger.TotalSupply(c)
	if err != nil {
		return nil, err
	}
	minted, locked, err := ComputeMint(supply, msg.Amount0, msg.Amount1, msg.Reserve0, msg.Reserve1)
	if err != nil {
		return nil, err
	}
	if !locked.IsZero() {
		if err := ledger.Mint(c, c.Env.Contract, locked); err != nil {
			return nil, err
		}
		b := locked.Bytes32()
		if err := c.Store.Set(c, keyLocked, b[:]); err != nil {
			return nil, err
		}
	}
	if err := ledger.Mint(c, msg.To, minted); err != nil {
		return nil, err
	}

	data, err := codec.EncodeMintResult(codec.MintResult{Liquidity: minted, Amount0: msg.Amount0, Amount1: msg.Amount1})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("minted claim tokens",
		zap.String("pool", c.Env.Contract.Hex()),
		zap.String("to", msg.To.Hex()),
		zap.String("liquidity", minted.Dec()),
	)
	return host.NewResponse().
		SetData(data).
		AddEvent("mint_shares",
			"to", msg.To.Hex(),
			"liquidity", minted.Dec(),
			"locked", locked.Dec(),
			"amount0", msg.Amount0.Dec(),
			"amount1", msg.Amount1.Dec(),
		), nil
}

func (p *Contract) burn(c *host.Context, ledger *token.Ledger, msg BurnMsg) (*host.Response, error) {
	held, err := p.held(c, ledger)
	if err != nil {
		return nil, err
	}
	if !held.Eq(amm.OrZero(msg.Liquidity)) {
		return nil, fmt.Errorf("%w: pool holds %s, burn requests %s", ErrAmountMismatch, held, amm.OrZero(msg.Liquidity))
	}
	supply, err := ledger.TotalSupply(c)
	if err != nil {
		return nil, err
	}
	amount0, amount1, err := ComputeBurn(msg.Liquidity, supply, msg.Reserve0, msg.Reserve1)
	if err != nil {
		return nil, err
	}
	if err := CheckMinimums(amount0, amount1, msg.Amount0Min, msg.Amount1Min); err != nil {
		return nil, err
	}
	if err := ledger.Burn(c, c.Env.Contract, msg.Liquidity); err != nil {
		return nil, err
	}

	data, err := codec.EncodeBurnResult(codec.BurnResult{Amount0: amount0, Amount1: amount1})
	if err != nil {
		return nil, err
	}
	return host.NewResponse().
		SetData(data).
		AddEvent("burn_shares",
			"liquidity", msg.Liquidity.Dec(),
			"amount0", amount0.Dec(),
			"amount1", amount1.Dec(),
		), nil
}

func (p *Contract) returnShares(c *host.Context, ledger *token.Ledger, msg ReturnSharesMsg) (*host.Response, error) {
	if amm.IsZero(msg.Amount) {
		return nil, token.ErrInvalidZeroAmount
	}
	held, err := p.held(c, ledger)
	if err != nil {
		return nil, err
	}
	if held.Lt(msg.Amount) {
		return nil, fmt.Errorf("%w: pool holds %s, return requests %s", ErrAmountMismatch, held, msg.Amount)
	}
	if err := ledger.Transfer(c, c.Env.Contract, msg.To, msg.Amount); err != nil {
		return nil, err
	}
	return host.NewResponse().AddEvent("return_shares",
		"to", msg.To.Hex(),
		"amount", msg.Amount.Dec(),
	), nil
}

func (p *Contract) Query(c *host.QueryContext, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	ledger := token.LedgerOf(c.Store)

	switch name {
	case "amount_out":
		var q AmountOutQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, err
		}
		out, err := amm.AmountOut(q.AmountIn, q.ReserveIn, q.ReserveOut, feeOrDefault(q.FeeBps))
		if err != nil {
			return nil, err
		}
		return json.Marshal(AmountResponse{Amount: out})
	case "amount_in":
		var q AmountInQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, err
		}
		in, err := amm.AmountIn(q.AmountOut, q.ReserveIn, q.ReserveOut, feeOrDefault(q.FeeBps))
		if err != nil {
			return nil, err
		}
		return json.Marshal(AmountResponse{Amount: in})
	case "withdraw_quote":
		var q WithdrawQuoteQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, err
		}
		supply, err := ledger.TotalSupply(c)
		if err != nil {
			return nil, err
		}
		amount0, amount1, err := ComputeBurn(q.Liquidity, supply, q.Reserve0, q.Reserve1)
		if err != nil {
			return nil, err
		}
		return json.Marshal(WithdrawQuoteResponse{Amount0: amount0, Amount1: amount1})
	case "config":
		rawVault, err := c.Store.Get(c, keyVault)
		if err != nil {
			return nil, err
		}
		rawLocked, err := c.Store.Get(c, keyLocked)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ConfigResponse{
			Vault:  common.BytesToAddress(rawVault),
			Locked: new(uint256.Int).SetBytes(rawLocked),
		})
	}

	out, handled, err := token.QueryStandard(c, ledger, name, body)
	if err != nil {
		return nil, err
	}
	if !handled {
		return nil, codec.Unknown(name)
	}
	return out, nil
}

func feeOrDefault(fee *uint64) uint64 {
	if fee == nil {
		return amm.DefaultFeeBps
	}
	return *fee
}
