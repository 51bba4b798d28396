package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammVault/internal/model"
	"ammVault/internal/storage"
)

// ReplyOn selects which outcomes of a sub-message are delivered back to the
// dispatching contract.
type ReplyOn int

const (
	ReplyNever ReplyOn = iota
	ReplyOnSuccess
	ReplyOnError
	ReplyAlways
)

func (r ReplyOn) onSuccess() bool { return r == ReplyOnSuccess || r == ReplyAlways }
func (r ReplyOn) onError() bool   { return r == ReplyOnError || r == ReplyAlways }

func (r ReplyOn) String() string {
	switch r {
	case ReplyNever:
		return "never"
	case ReplyOnSuccess:
		return "success"
	case ReplyOnError:
		return "error"
	case ReplyAlways:
		return "always"
	default:
		return fmt.Sprintf("reply_on(%d)", int(r))
	}
}

// ExecuteMsg calls an existing contract.
type ExecuteMsg struct {
	Contract common.Address
	Msg      json.RawMessage
}

// InstantiateMsg creates a contract from registered code.
type InstantiateMsg struct {
	CodeID uint64
	Label  string
	Msg    json.RawMessage
}

// Msg is a tagged union; exactly one field is set.
type Msg struct {
	Execute     *ExecuteMsg
	Instantiate *InstantiateMsg
}

func Execute(contract common.Address, msg json.RawMessage) Msg {
	return Msg{Execute: &ExecuteMsg{Contract: contract, Msg: msg}}
}

func Instantiate(codeID uint64, label string, msg json.RawMessage) Msg {
	return Msg{Instantiate: &InstantiateMsg{CodeID: codeID, Label: label, Msg: msg}}
}

// SubMsg is a message dispatched by a contract, optionally with a continuation.
type SubMsg struct {
	ID      uint64
	Msg     Msg
	ReplyOn ReplyOn
}

// Reply is the continuation delivered for a SubMsg.
type Reply struct {
	ID   uint64
	Err  error
	Data []byte
}

// Response is returned by contract entry points.
type Response struct {
	Messages []SubMsg
	Events   []model.Event
	Data     []byte
	// Failure reports a handled error: state changes and messages of this
	// response are kept, and the error is returned to the caller.
	Failure error
}

func NewResponse() *Response {
	return &Response{}
}

// AddMessage dispatches msg without a continuation.
func (r *Response) AddMessage(msg Msg) *Response {
	r.Messages = append(r.Messages, SubMsg{Msg: msg, ReplyOn: ReplyNever})
	return r
}

// AddSubMessage dispatches msg and asks for a continuation with id.
func (r *Response) AddSubMessage(id uint64, msg Msg, on ReplyOn) *Response {
	r.Messages = append(r.Messages, SubMsg{ID: id, Msg: msg, ReplyOn: on})
	return r
}

// AddEvent appends an event built from alternating key/value strings.
func (r *Response) AddEvent(typ string, kv ...string) *Response {
	r.Events = append(r.Events, model.NewEvent(typ, kv...))
	return r
}

func (r *Response) SetData(data []byte) *Response {
	r.Data = data
	return r
}

// Env describes the block being executed and the running contract.
type Env struct {
	Height   uint64
	Time     uint64
	Contract common.Address
}

// Querier answers read-only queries against other contracts.
type Querier interface {
	Query(ctx context.Context, contract common.Address, msg json.RawMessage) (json.RawMessage, error)
}

// Context is handed to contract entry points. Store is namespaced to the
// running contract.
type Context struct {
	context.Context
	Store   storage.KV
	Env     Env
	Sender  common.Address
	Querier Querier
	Logger  *zap.Logger
}

// QueryInto runs a query and decodes the JSON answer into out.
func (c *Context) QueryInto(contract common.Address, msg json.RawMessage, out interface{}) error {
	return queryInto(c.Context, c.Querier, contract, msg, out)
}

// QueryContext is handed to contract query handlers.
type QueryContext struct {
	context.Context
	Store   storage.KV
	Env     Env
	Querier Querier
	Logger  *zap.Logger
}

func (c *QueryContext) QueryInto(contract common.Address, msg json.RawMessage, out interface{}) error {
	return queryInto(c.Context, c.Querier, contract, msg, out)
}

func queryInto(ctx context.Context, q Querier, contract common.Address, msg json.RawMessage, out interface{}) error {
	raw, err := q.Query(ctx, contract, msg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode query answer: %w", err)
	}
	return nil
}

// Contract is implemented by every deployable component.
type Contract interface {
	Instantiate(c *Context, msg json.RawMessage) (*Response, error)
	Execute(c *Context, msg json.RawMessage) (*Response, error)
	Reply(c *Context, reply Reply) (*Response, error)
	Query(c *QueryContext, msg json.RawMessage) (json.RawMessage, error)
}

// ContractInfo is the host's record of an instantiated contract.
type ContractInfo struct {
	Address common.Address `json:"address"`
	CodeID  uint64         `json:"code_id"`
	Label   string         `json:"label"`
	Creator common.Address `json:"creator"`
	Height  uint64         `json:"height"`
}

// ContractEvent is an event attributed to the contract that emitted it.
type ContractEvent struct {
	Contract common.Address
	model.Event
}

// Result is the outcome of a top-level invocation.
type Result struct {
	Height  uint64
	Time    uint64
	Address common.Address
	Data    []byte
	Events  []ContractEvent
}
