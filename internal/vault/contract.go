// Package vault implements the central custody contract. It keeps the
// reserve table of every registered pool and drives liquidity and swap
// workflows as chains of dispatched steps, committing reserves only when the
// last step reports back.
package vault

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammVault/internal/amm"
	"ammVault/internal/codec"
	"ammVault/internal/host"
	"ammVault/internal/metrics"
	"ammVault/internal/model"
	"ammVault/internal/token"
)

// Contract is the vault. A nil metrics collector records nothing.
type Contract struct {
	logger  *zap.Logger
	metrics *metrics.Workflows
}

var _ host.Contract = (*Contract)(nil)

func New(logger *zap.Logger, m *metrics.Workflows) *Contract {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Contract{logger: logger, metrics: m}
}

func (v *Contract) Instantiate(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	var msg InstantiateMsg
	if err := codec.Decode(raw, &msg); err != nil {
		return nil, err
	}
	cfg := config{Owner: c.Sender, FeeBps: amm.DefaultFeeBps}
	if msg.Owner != nil {
		cfg.Owner = *msg.Owner
	}
	if msg.FeeBps != nil {
		if *msg.FeeBps >= amm.BpsScale {
			return nil, fmt.Errorf("%w: %d", amm.ErrInvalidFee, *msg.FeeBps)
		}
		cfg.FeeBps = *msg.FeeBps
	}
	if err := stateOf(c.Store).saveConfig(c, cfg); err != nil {
		return nil, err
	}
	return host.NewResponse().AddEvent("instantiate_vault",
		"owner", cfg.Owner.Hex(),
		"fee_bps", fmt.Sprint(cfg.FeeBps),
	), nil
}

func (v *Contract) Execute(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}

	switch name {
	case "register_factory":
		var msg RegisterFactoryMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		return v.registerFactory(c, msg)
	case "register_pool":
		var msg RegisterPoolMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		return v.registerPool(c, msg)
	case "add_liquidity":
		var msg AddLiquidityMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		return v.addLiquidity(c, msg)
	case "remove_liquidity":
		var msg RemoveLiquidityMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		return v.removeLiquidity(c, msg)
	case "swap":
		var msg SwapMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		if msg.TokenIn == nil || msg.AmountIn == nil {
			return nil, fmt.Errorf("swap: token_in and amount_in required")
		}
		return v.swap(c, c.Sender, msg, false)
	case "receive":
		var env token.ReceiveMsg
		if err := codec.Decode(body, &env); err != nil {
			return nil, err
		}
		return v.receive(c, env)
	default:
		return nil, codec.Unknown(name)
	}
}

func (v *Contract) registerFactory(c *host.Context, msg RegisterFactoryMsg) (*host.Response, error) {
	st := stateOf(c.Store)
	cfg, err := st.config(c)
	if err != nil {
		return nil, err
	}
	if c.Sender != cfg.Owner {
		return nil, ErrUnauthorized
	}
	if err := st.authorizeFactory(c, msg.FactoryAddress); err != nil {
		return nil, err
	}
	v.logger.Info("factory registered", zap.String("factory", msg.FactoryAddress.Hex()))
	return host.NewResponse().AddEvent("register_factory", "factory", msg.FactoryAddress.Hex()), nil
}

func (v *Contract) registerPool(c *host.Context, msg RegisterPoolMsg) (*host.Response, error) {
	st := stateOf(c.Store)
	ok, err := st.factoryAuthorized(c, c.Sender)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorizedFactory
	}
	if _, exists, err := st.pool(c, msg.PoolAddress); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolAlreadyRegistered, msg.PoolAddress.Hex())
	}
	if msg.Token0 == msg.Token1 {
		return nil, fmt.Errorf("%w: identical tokens", ErrInvalidPair)
	}
	cfg, err := st.config(c)
	if err != nil {
		return nil, err
	}

	entry := model.ReserveEntry{
		Pool:         msg.PoolAddress,
		Registered:   true,
		Token0:       msg.Token0,
		Token1:       msg.Token1,
		Reserve0:     amm.Zero(),
		Reserve1:     amm.Zero(),
		RegisteredAt: c.Env.Height,
	}
	if err := st.savePool(c, entry); err != nil {
		return nil, err
	}
	v.metrics.Reserves(entry.Pool.Hex(), entry.Reserve0, entry.Reserve1)
	v.logger.Info("pool registered",
		zap.String("pool", entry.Pool.Hex()),
		zap.String("token0", entry.Token0.Hex()),
		zap.String("token1", entry.Token1.Hex()),
	)
	resp := host.NewResponse().AddEvent("register_pool",
		"pool", entry.Pool.Hex(),
		"token0", entry.Token0.Hex(),
		"token1", entry.Token1.Hex(),
		"fee_bps", fmt.Sprint(cfg.FeeBps),
	)
	resp.Events = append(resp.Events, syncEvent(entry))
	return resp, nil
}

// receive handles a token Send envelope. Only swaps may be attached; the
// sending token is the input asset and it is already in custody.
func (v *Contract) receive(c *host.Context, env token.ReceiveMsg) (*host.Response, error) {
	name, body, err := codec.Unwrap(env.Msg)
	if err != nil {
		return nil, err
	}
	if name != "swap" {
		return nil, codec.Unknown(name)
	}
	var msg SwapMsg
	if err := codec.Decode(body, &msg); err != nil {
		return nil, err
	}
	tokenIn := c.Sender
	if msg.TokenIn != nil && *msg.TokenIn != tokenIn {
		return nil, fmt.Errorf("%w: envelope token %s, message token %s", ErrInvalidPair, tokenIn.Hex(), msg.TokenIn.Hex())
	}
	if msg.AmountIn != nil && !msg.AmountIn.Eq(amm.OrZero(env.Amount)) {
		return nil, fmt.Errorf("%w: envelope amount %s", ErrSwapFailed, amm.OrZero(env.Amount))
	}
	msg.TokenIn = &tokenIn
	msg.AmountIn = amm.OrZero(env.Amount)
	return v.swap(c, env.Sender, msg, true)
}

func (v *Contract) Reply(c *host.Context, reply host.Reply) (*host.Response, error) {
	st := stateOf(c.Store)
	wf, ok, err := st.workflow(c, reply.ID)
	if err != nil {
		return nil, err
	}
	if !ok || wf.Status.Terminal() {
		return nil, fmt.Errorf("%w: %d", ErrReplyID, reply.ID)
	}
	if reply.Err != nil {
		return v.stepFailed(c, st, wf, reply.Err)
	}

	switch wf.Kind {
	case model.WorkflowAdd:
		return v.advanceAdd(c, st, wf, reply)
	case model.WorkflowRemove:
		return v.advanceRemove(c, st, wf, reply)
	case model.WorkflowSwap:
		return v.advanceSwap(c, st, wf)
	default:
		return nil, fmt.Errorf("%w: workflow %d has kind %q", ErrReplyID, wf.ID, wf.Kind)
	}
}

func (v *Contract) Query(c *host.QueryContext, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	st := stateOf(c.Store)

	switch name {
	case "pool_data":
		var q PoolDataQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, err
		}
		entry, ok, err := st.pool(c, q.PoolAddress)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPoolNotExisted, q.PoolAddress.Hex())
		}
		return json.Marshal(poolData(entry))
	case "pools":
		entries, err := st.pools(c)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []model.ReserveEntry{}
		}
		return json.Marshal(entries)
	case "workflow":
		var q WorkflowQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, err
		}
		var (
			wf model.Workflow
			ok bool
		)
		if q.RequestID != "" {
			if q.Caller == nil {
				return nil, fmt.Errorf("workflow query: caller required with request_id")
			}
			wf, ok, err = st.workflowByRequest(c, *q.Caller, q.RequestID)
		} else {
			wf, ok, err = st.workflow(c, q.ID)
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("workflow not found")
		}
		return json.Marshal(wf)
	case "factory":
		var q FactoryQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, err
		}
		ok, err := st.factoryAuthorized(c, q.Address)
		if err != nil {
			return nil, err
		}
		return json.Marshal(FactoryResponse{Authorized: ok})
	case "config":
		cfg, err := st.config(c)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ConfigResponse{Owner: cfg.Owner, FeeBps: cfg.FeeBps})
	default:
		return nil, codec.Unknown(name)
	}
}

func poolData(entry model.ReserveEntry) PoolDataResponse {
	return PoolDataResponse{
		Registered: entry.Registered,
		Token0:     entry.Token0,
		Token1:     entry.Token1,
		Reserve0:   entry.Reserve0,
		Reserve1:   entry.Reserve1,
	}
}

func syncEvent(entry model.ReserveEntry) model.Event {
	return model.NewEvent("sync",
		"pool", entry.Pool.Hex(),
		"reserve0", entry.Reserve0.Dec(),
		"reserve1", entry.Reserve1.Dec(),
	)
}

func checkDeadline(c *host.Context, deadline uint64) error {
	if deadline != 0 && deadline < c.Env.Time {
		return fmt.Errorf("%w: deadline %d, block time %d", ErrExpired, deadline, c.Env.Time)
	}
	return nil
}

// orderPair maps caller-ordered values onto the registered token order.
func orderPair(entry model.ReserveEntry, tokenA, tokenB common.Address) (flipped bool, err error) {
	switch {
	case entry.Token0 == tokenA && entry.Token1 == tokenB:
		return false, nil
	case entry.Token0 == tokenB && entry.Token1 == tokenA:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s/%s", ErrInvalidPair, tokenA.Hex(), tokenB.Hex())
	}
}
