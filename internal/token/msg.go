package token

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammVault/internal/codec"
	"ammVault/internal/model"
)

type InstantiateMsg struct {
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	Decimals        uint8           `json:"decimals"`
	InitialBalances []Holder        `json:"initial_balances,omitempty"`
	Minter          *common.Address `json:"minter,omitempty"`
}

type TransferMsg struct {
	Recipient common.Address `json:"recipient"`
	Amount    *uint256.Int   `json:"amount"`
}

type TransferFromMsg struct {
	Owner     common.Address `json:"owner"`
	Recipient common.Address `json:"recipient"`
	Amount    *uint256.Int   `json:"amount"`
}

// SendMsg transfers to a contract and then delivers a ReceiveMsg to it.
type SendMsg struct {
	Contract common.Address  `json:"contract"`
	Amount   *uint256.Int    `json:"amount"`
	Msg      json.RawMessage `json:"msg,omitempty"`
}

type AllowanceMsg struct {
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount"`
}

type MintMsg struct {
	Recipient common.Address `json:"recipient"`
	Amount    *uint256.Int   `json:"amount"`
}

type BurnMsg struct {
	Amount *uint256.Int `json:"amount"`
}

// ReceiveMsg is the envelope a contract gets after a Send: Sender paid Amount
// to it and attached Msg.
type ReceiveMsg struct {
	Sender common.Address  `json:"sender"`
	Amount *uint256.Int    `json:"amount"`
	Msg    json.RawMessage `json:"msg,omitempty"`
}

func Transfer(recipient common.Address, amount *uint256.Int) json.RawMessage {
	return codec.MustWrap("transfer", TransferMsg{Recipient: recipient, Amount: amount})
}

func TransferFrom(owner, recipient common.Address, amount *uint256.Int) json.RawMessage {
	return codec.MustWrap("transfer_from", TransferFromMsg{Owner: owner, Recipient: recipient, Amount: amount})
}

func Send(contract common.Address, amount *uint256.Int, msg json.RawMessage) json.RawMessage {
	return codec.MustWrap("send", SendMsg{Contract: contract, Amount: amount, Msg: msg})
}

func IncreaseAllowance(spender common.Address, amount *uint256.Int) json.RawMessage {
	return codec.MustWrap("increase_allowance", AllowanceMsg{Spender: spender, Amount: amount})
}

func DecreaseAllowance(spender common.Address, amount *uint256.Int) json.RawMessage {
	return codec.MustWrap("decrease_allowance", AllowanceMsg{Spender: spender, Amount: amount})
}

func Mint(recipient common.Address, amount *uint256.Int) json.RawMessage {
	return codec.MustWrap("mint", MintMsg{Recipient: recipient, Amount: amount})
}

func Burn(amount *uint256.Int) json.RawMessage {
	return codec.MustWrap("burn", BurnMsg{Amount: amount})
}

func Receive(sender common.Address, amount *uint256.Int, msg json.RawMessage) json.RawMessage {
	return codec.MustWrap("receive", ReceiveMsg{Sender: sender, Amount: amount, Msg: msg})
}

type BalanceQuery struct {
	Address common.Address `json:"address"`
}

type AllowanceQuery struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
}

type BalanceResponse struct {
	Balance *uint256.Int `json:"balance"`
}

type AllowanceResponse struct {
	Allowance *uint256.Int `json:"allowance"`
}

type MinterResponse struct {
	Minter common.Address `json:"minter"`
}

// TokenInfoResponse reports the token metadata and supply.
type TokenInfoResponse = model.TokenMeta

func QueryBalance(addr common.Address) json.RawMessage {
	return codec.MustWrap("balance", BalanceQuery{Address: addr})
}

func QueryAllowance(owner, spender common.Address) json.RawMessage {
	return codec.MustWrap("allowance", AllowanceQuery{Owner: owner, Spender: spender})
}

func QueryTokenInfo() json.RawMessage {
	return codec.MustWrap("token_info", nil)
}
