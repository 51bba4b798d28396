package token

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammVault/internal/amm"
	"ammVault/internal/codec"
	"ammVault/internal/host"
	"ammVault/internal/model"
	"ammVault/internal/storage"
)

var keyInfo = []byte("info")

type tokenInfo struct {
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Minter   common.Address `json:"minter"`
}

// Contract is a fungible token with a single minter.
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

// LedgerOf returns the ledger kept inside a contract store.
func LedgerOf(kv storage.KV) *Ledger {
	return NewLedger(storage.NewPrefix(kv, []byte("ledger/")))
}

// SaveInfo writes token metadata. The minter may mint new units.
func SaveInfo(ctx context.Context, kv storage.KV, name, symbol string, decimals uint8, minter common.Address) error {
	raw, err := json.Marshal(tokenInfo{Name: name, Symbol: symbol, Decimals: decimals, Minter: minter})
	if err != nil {
		return err
	}
	return kv.Set(ctx, keyInfo, raw)
}

func readInfo(ctx context.Context, kv storage.KV) (tokenInfo, error) {
	raw, err := kv.Get(ctx, keyInfo)
	if err != nil {
		return tokenInfo{}, err
	}
	if raw == nil {
		return tokenInfo{}, fmt.Errorf("token info not initialized")
	}
	var info tokenInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return tokenInfo{}, fmt.Errorf("decode token info: %w", err)
	}
	return info, nil
}

func (t *Contract) Instantiate(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	var msg InstantiateMsg
	if err := codec.Decode(raw, &msg); err != nil {
		return nil, err
	}
	minter := c.Sender
	if msg.Minter != nil {
		minter = *msg.Minter
	}
	if err := SaveInfo(c, c.Store, msg.Name, msg.Symbol, msg.Decimals, minter); err != nil {
		return nil, err
	}

	ledger := LedgerOf(c.Store)
	for _, h := range msg.InitialBalances {
		if err := amm.Validate(h.Balance); err != nil {
			return nil, err
		}
		if amm.IsZero(h.Balance) {
			continue
		}
		if err := ledger.Mint(c, h.Address, h.Balance); err != nil {
			return nil, fmt.Errorf("initial balance %s: %w", h.Address.Hex(), err)
		}
	}
	return host.NewResponse().AddEvent("instantiate_token",
		"name", msg.Name,
		"symbol", msg.Symbol,
		"minter", minter.Hex(),
	), nil
}

func (t *Contract) Execute(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	resp, handled, err := ExecuteStandard(c, LedgerOf(c.Store), name, body)
	if err != nil {
		t.logger.Debug("token execute failed", zap.String("msg", name), zap.Error(err))
		return nil, err
	}
	if !handled {
		return nil, codec.Unknown(name)
	}
	return resp, nil
}

func (t *Contract) Reply(_ *host.Context, reply host.Reply) (*host.Response, error) {
	return nil, fmt.Errorf("token: unexpected reply %d", reply.ID)
}

func (t *Contract) Query(c *host.QueryContext, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	out, handled, err := QueryStandard(c, LedgerOf(c.Store), name, body)
	if err != nil {
		return nil, err
	}
	if !handled {
		return nil, codec.Unknown(name)
	}
	return out, nil
}

// ExecuteStandard handles the fungible messages shared by every token-like
// contract. handled is false when name is not one of them.
func ExecuteStandard(c *host.Context, ledger *Ledger, name string, body json.RawMessage) (resp *host.Response, handled bool, err error) {
	switch name {
	case "transfer":
		var msg TransferMsg
		if err := decodeAmountMsg(body, &msg, &msg.Amount); err != nil {
			return nil, true, err
		}
		if err := ledger.Transfer(c, c.Sender, msg.Recipient, msg.Amount); err != nil {
			return nil, true, err
		}
		return host.NewResponse().AddEvent("transfer",
			"from", c.Sender.Hex(),
			"to", msg.Recipient.Hex(),
			"amount", msg.Amount.Dec(),
		), true, nil

	case "transfer_from":
		var msg TransferFromMsg
		if err := decodeAmountMsg(body, &msg, &msg.Amount); err != nil {
			return nil, true, err
		}
		if err := ledger.TransferFrom(c, c.Sender, msg.Owner, msg.Recipient, msg.Amount); err != nil {
			return nil, true, err
		}
		return host.NewResponse().AddEvent("transfer_from",
			"from", msg.Owner.Hex(),
			"to", msg.Recipient.Hex(),
			"by", c.Sender.Hex(),
			"amount", msg.Amount.Dec(),
		), true, nil

	case "send":
		var msg SendMsg
		if err := decodeAmountMsg(body, &msg, &msg.Amount); err != nil {
			return nil, true, err
		}
		if err := ledger.Transfer(c, c.Sender, msg.Contract, msg.Amount); err != nil {
			return nil, true, err
		}
		return host.NewResponse().
			AddMessage(host.Execute(msg.Contract, Receive(c.Sender, msg.Amount, msg.Msg))).
			AddEvent("send",
				"from", c.Sender.Hex(),
				"to", msg.Contract.Hex(),
				"amount", msg.Amount.Dec(),
			), true, nil

	case "increase_allowance", "decrease_allowance":
		var msg AllowanceMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, true, err
		}
		if err := amm.Validate(msg.Amount); err != nil {
			return nil, true, err
		}
		update := ledger.IncreaseAllowance
		if name == "decrease_allowance" {
			update = ledger.DecreaseAllowance
		}
		allowed, err := update(c, c.Sender, msg.Spender, msg.Amount)
		if err != nil {
			return nil, true, err
		}
		return host.NewResponse().AddEvent(name,
			"owner", c.Sender.Hex(),
			"spender", msg.Spender.Hex(),
			"allowance", allowed.Dec(),
		), true, nil

	case "mint":
		var msg MintMsg
		if err := decodeAmountMsg(body, &msg, &msg.Amount); err != nil {
			return nil, true, err
		}
		info, err := readInfo(c, c.Store)
		if err != nil {
			return nil, true, err
		}
		if c.Sender != info.Minter {
			return nil, true, ErrUnauthorized
		}
		if err := ledger.Mint(c, msg.Recipient, msg.Amount); err != nil {
			return nil, true, err
		}
		return host.NewResponse().AddEvent("mint",
			"to", msg.Recipient.Hex(),
			"amount", msg.Amount.Dec(),
		), true, nil

	case "burn":
		var msg BurnMsg
		if err := decodeAmountMsg(body, &msg, &msg.Amount); err != nil {
			return nil, true, err
		}
		if err := ledger.Burn(c, c.Sender, msg.Amount); err != nil {
			return nil, true, err
		}
		return host.NewResponse().AddEvent("burn",
			"from", c.Sender.Hex(),
			"amount", msg.Amount.Dec(),
		), true, nil
	}
	return nil, false, nil
}

// QueryStandard answers the fungible queries shared by token-like contracts.
func QueryStandard(c *host.QueryContext, ledger *Ledger, name string, body json.RawMessage) (json.RawMessage, bool, error) {
	switch name {
	case "balance":
		var q BalanceQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, true, err
		}
		bal, err := ledger.Balance(c, q.Address)
		if err != nil {
			return nil, true, err
		}
		out, err := json.Marshal(BalanceResponse{Balance: bal})
		return out, true, err

	case "allowance":
		var q AllowanceQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, true, err
		}
		allowed, err := ledger.Allowance(c, q.Owner, q.Spender)
		if err != nil {
			return nil, true, err
		}
		out, err := json.Marshal(AllowanceResponse{Allowance: allowed})
		return out, true, err

	case "token_info":
		info, err := readInfo(c, c.Store)
		if err != nil {
			return nil, true, err
		}
		supply, err := ledger.TotalSupply(c)
		if err != nil {
			return nil, true, err
		}
		out, err := json.Marshal(model.TokenMeta{
			Address:     c.Env.Contract.Hex(),
			Name:        info.Name,
			Symbol:      info.Symbol,
			Decimals:    info.Decimals,
			TotalSupply: supply,
		})
		return out, true, err

	case "minter":
		info, err := readInfo(c, c.Store)
		if err != nil {
			return nil, true, err
		}
		out, err := json.Marshal(MinterResponse{Minter: info.Minter})
		return out, true, err

	case "holders":
		holders, err := ledger.Holders(c)
		if err != nil {
			return nil, true, err
		}
		out, err := json.Marshal(holders)
		return out, true, err
	}
	return nil, false, nil
}

func decodeAmountMsg(body json.RawMessage, msg interface{}, amount **uint256.Int) error {
	if err := codec.Decode(body, msg); err != nil {
		return err
	}
	if amm.IsZero(*amount) {
		return ErrInvalidZeroAmount
	}
	return amm.Validate(*amount)
}
