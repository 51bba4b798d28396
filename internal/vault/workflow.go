package vault

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammVault/internal/amm"
	"ammVault/internal/codec"
	"ammVault/internal/host"
	"ammVault/internal/model"
	"ammVault/internal/pool"
	"ammVault/internal/token"
)

// Workflow steps. Each step is one dispatched message whose continuation
// carries the workflow id as reply id.
const (
	stepCollect0      = "collect0"
	stepCollect1      = "collect1"
	stepMint          = "mint"
	stepCollectShares = "collect_shares"
	stepBurn          = "burn"
	stepPayout0       = "payout0"
	stepPayout1       = "payout1"
	stepCollectIn     = "collect_in"
	stepPayout        = "payout"
	stepCommit        = "commit"
)

func (v *Contract) addLiquidity(c *host.Context, msg AddLiquidityMsg) (*host.Response, error) {
	st := stateOf(c.Store)
	if resp, ok, err := v.replay(c, st, c.Sender, msg.RequestID, model.WorkflowAdd, msg.PoolAddress); err != nil || ok {
		return resp, err
	}
	if err := checkDeadline(c, msg.Deadline); err != nil {
		return nil, err
	}
	entry, ok, err := st.pool(c, msg.PoolAddress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFetchPoolData, msg.PoolAddress.Hex())
	}
	flipped, err := orderPair(entry, msg.TokenA, msg.TokenB)
	if err != nil {
		return nil, err
	}
	for _, a := range []*uint256.Int{msg.AmountADesired, msg.AmountBDesired, msg.AmountAMin, msg.AmountBMin} {
		if err := amm.Validate(a); err != nil {
			return nil, err
		}
	}

	desired0, desired1 := amm.OrZero(msg.AmountADesired), amm.OrZero(msg.AmountBDesired)
	min0, min1 := amm.OrZero(msg.AmountAMin), amm.OrZero(msg.AmountBMin)
	if flipped {
		desired0, desired1 = desired1, desired0
		min0, min1 = min1, min0
	}
	if desired0.IsZero() || desired1.IsZero() {
		return nil, amm.ErrInsufficientAmount
	}
	used, err := amm.OptimalContribution(desired0, desired1, min0, min1, entry.Reserve0, entry.Reserve1)
	if err != nil {
		return nil, err
	}
	if _, err := amm.Add(entry.Reserve0, used.AmountA); err != nil {
		return nil, err
	}
	if _, err := amm.Add(entry.Reserve1, used.AmountB); err != nil {
		return nil, err
	}

	wf, err := v.start(c, st, model.Workflow{
		RequestID: msg.RequestID,
		Kind:      model.WorkflowAdd,
		Pool:      entry.Pool,
		Caller:    c.Sender,
		To:        msg.AddressTo,
		Amount0:   used.AmountA,
		Amount1:   used.AmountB,
	})
	if err != nil {
		return nil, err
	}
	return v.next(c, st, wf, stepCollect0,
		host.Execute(entry.Token0, token.TransferFrom(wf.Caller, c.Env.Contract, wf.Amount0)))
}

func (v *Contract) advanceAdd(c *host.Context, st *state, wf model.Workflow, reply host.Reply) (*host.Response, error) {
	entry, err := v.workflowPool(c, st, wf)
	if err != nil {
		return nil, err
	}

	switch wf.Step {
	case stepCollect0:
		wf.Collected = append(wf.Collected, stepCollect0)
		return v.next(c, st, wf, stepCollect1,
			host.Execute(entry.Token1, token.TransferFrom(wf.Caller, c.Env.Contract, wf.Amount1)))
	case stepCollect1:
		wf.Collected = append(wf.Collected, stepCollect1)
		return v.next(c, st, wf, stepMint, host.Execute(wf.Pool, pool.Mint(pool.MintMsg{
			To:       wf.To,
			Amount0:  wf.Amount0,
			Amount1:  wf.Amount1,
			Reserve0: entry.Reserve0,
			Reserve1: entry.Reserve1,
		})))
	case stepMint:
		res, err := codec.DecodeMintResult(reply.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplyData, err)
		}
		if !res.Amount0.Eq(wf.Amount0) || !res.Amount1.Eq(wf.Amount1) {
			return nil, fmt.Errorf("%w: pool used %s/%s, vault collected %s/%s",
				ErrMintTokenFailed, res.Amount0, res.Amount1, wf.Amount0, wf.Amount1)
		}
		wf.Liquidity = res.Liquidity
		if entry.Reserve0, err = amm.Add(entry.Reserve0, res.Amount0); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpdateLiquidityFailed, err)
		}
		if entry.Reserve1, err = amm.Add(entry.Reserve1, res.Amount1); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpdateLiquidityFailed, err)
		}
		return v.commit(c, st, wf, entry, model.NewEvent("add_liquidity",
			"pool", wf.Pool.Hex(),
			"sender", wf.Caller.Hex(),
			"recipient", wf.To.Hex(),
			"amount0", wf.Amount0.Dec(),
			"amount1", wf.Amount1.Dec(),
			"liquidity", wf.Liquidity.Dec(),
		))
	default:
		return nil, fmt.Errorf("%w: add workflow %d at step %q", ErrReplyID, wf.ID, wf.Step)
	}
}

func (v *Contract) removeLiquidity(c *host.Context, msg RemoveLiquidityMsg) (*host.Response, error) {
	st := stateOf(c.Store)
	if resp, ok, err := v.replay(c, st, c.Sender, msg.RequestID, model.WorkflowRemove, msg.PoolAddress); err != nil || ok {
		return resp, err
	}
	if err := checkDeadline(c, msg.Deadline); err != nil {
		return nil, err
	}
	entry, ok, err := st.pool(c, msg.PoolAddress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotExisted, msg.PoolAddress.Hex())
	}
	flipped, err := orderPair(entry, msg.TokenA, msg.TokenB)
	if err != nil {
		return nil, err
	}
	if amm.IsZero(msg.Liquidity) {
		return nil, amm.ErrInsufficientAmount
	}
	if err := amm.Validate(msg.Liquidity); err != nil {
		return nil, err
	}
	min0, min1 := amm.OrZero(msg.AmountAMin), amm.OrZero(msg.AmountBMin)
	if flipped {
		min0, min1 = min1, min0
	}

	var quote pool.WithdrawQuoteResponse
	if err := c.QueryInto(entry.Pool, pool.QueryWithdrawQuote(msg.Liquidity, entry.Reserve0, entry.Reserve1), &quote); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchPoolData, err)
	}
	if err := pool.CheckMinimums(quote.Amount0, quote.Amount1, min0, min1); err != nil {
		return nil, err
	}

	wf, err := v.start(c, st, model.Workflow{
		RequestID: msg.RequestID,
		Kind:      model.WorkflowRemove,
		Pool:      entry.Pool,
		Caller:    c.Sender,
		To:        msg.AddressTo,
		Amount0:   quote.Amount0,
		Amount1:   quote.Amount1,
		Liquidity: msg.Liquidity,
	})
	if err != nil {
		return nil, err
	}
	return v.next(c, st, wf, stepCollectShares,
		host.Execute(entry.Pool, token.TransferFrom(wf.Caller, entry.Pool, wf.Liquidity)))
}

func (v *Contract) advanceRemove(c *host.Context, st *state, wf model.Workflow, reply host.Reply) (*host.Response, error) {
	entry, err := v.workflowPool(c, st, wf)
	if err != nil {
		return nil, err
	}

	switch wf.Step {
	case stepCollectShares:
		wf.Collected = append(wf.Collected, stepCollectShares)
		// the quoted amounts are the floor: the burn runs on the same snapshot
		return v.next(c, st, wf, stepBurn, host.Execute(wf.Pool, pool.Burn(pool.BurnMsg{
			Liquidity:  wf.Liquidity,
			Amount0Min: wf.Amount0,
			Amount1Min: wf.Amount1,
			Reserve0:   entry.Reserve0,
			Reserve1:   entry.Reserve1,
		})))
	case stepBurn:
		res, err := codec.DecodeBurnResult(reply.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplyData, err)
		}
		wf.Amount0, wf.Amount1 = res.Amount0, res.Amount1
		// burnt shares cannot be returned
		wf.Collected = nil
		return v.next(c, st, wf, stepPayout0,
			host.Execute(entry.Token0, token.Transfer(wf.To, wf.Amount0)))
	case stepPayout0:
		return v.next(c, st, wf, stepPayout1,
			host.Execute(entry.Token1, token.Transfer(wf.To, wf.Amount1)))
	case stepPayout1:
		if entry.Reserve0, err = amm.Sub(entry.Reserve0, wf.Amount0); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpdateLiquidityFailed, err)
		}
		if entry.Reserve1, err = amm.Sub(entry.Reserve1, wf.Amount1); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpdateLiquidityFailed, err)
		}
		return v.commit(c, st, wf, entry, model.NewEvent("remove_liquidity",
			"pool", wf.Pool.Hex(),
			"sender", wf.Caller.Hex(),
			"recipient", wf.To.Hex(),
			"amount0", wf.Amount0.Dec(),
			"amount1", wf.Amount1.Dec(),
			"liquidity", wf.Liquidity.Dec(),
		))
	default:
		return nil, fmt.Errorf("%w: remove workflow %d at step %q", ErrReplyID, wf.ID, wf.Step)
	}
}

// swap starts a swap for caller. funded is set when the input already
// arrived through a token Send envelope.
func (v *Contract) swap(c *host.Context, caller common.Address, msg SwapMsg, funded bool) (*host.Response, error) {
	st := stateOf(c.Store)
	resp, ok, err := v.replay(c, st, caller, msg.RequestID, model.WorkflowSwap, msg.PoolAddress)
	if err != nil {
		return nil, err
	}
	if ok {
		if funded {
			resp.AddMessage(host.Execute(*msg.TokenIn, token.Transfer(caller, msg.AmountIn)))
		}
		return resp, nil
	}
	if err := checkDeadline(c, msg.Deadline); err != nil {
		return nil, err
	}
	entry, ok, err := st.pool(c, msg.PoolAddress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotExisted, msg.PoolAddress.Hex())
	}

	tokenIn := *msg.TokenIn
	if tokenIn == msg.TokenOut {
		return nil, fmt.Errorf("%w: identical tokens", ErrInvalidPair)
	}
	reserveIn, reserveOut, ok := entry.Reserves(tokenIn)
	if !ok {
		return nil, fmt.Errorf("%w: %s not in pool", ErrInvalidPair, tokenIn.Hex())
	}
	if _, _, ok := entry.Reserves(msg.TokenOut); !ok {
		return nil, fmt.Errorf("%w: %s not in pool", ErrInvalidPair, msg.TokenOut.Hex())
	}
	if err := amm.Validate(msg.AmountIn); err != nil {
		return nil, err
	}
	if err := amm.Validate(msg.AmountOutMin); err != nil {
		return nil, err
	}
	cfg, err := st.config(c)
	if err != nil {
		return nil, err
	}

	amountOut, err := amm.AmountOut(msg.AmountIn, reserveIn, reserveOut, cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	if err := checkDrain(amountOut, reserveOut); err != nil {
		return nil, err
	}
	if amountOut.IsZero() || amountOut.Lt(amm.OrZero(msg.AmountOutMin)) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutputAmount, amountOut, amm.OrZero(msg.AmountOutMin))
	}
	if _, err := amm.Add(reserveIn, msg.AmountIn); err != nil {
		return nil, err
	}

	wf := model.Workflow{
		RequestID: msg.RequestID,
		Kind:      model.WorkflowSwap,
		Pool:      entry.Pool,
		Caller:    caller,
		To:        msg.AddressTo,
		TokenIn:   tokenIn,
		TokenOut:  msg.TokenOut,
		Amount0:   msg.AmountIn.Clone(),
		Amount1:   amountOut,
	}
	if funded {
		wf.Collected = []string{stepCollectIn}
	}
	if wf, err = v.start(c, st, wf); err != nil {
		return nil, err
	}
	if funded {
		return v.next(c, st, wf, stepPayout, host.Execute(wf.TokenOut, token.Transfer(wf.To, wf.Amount1)))
	}
	return v.next(c, st, wf, stepCollectIn,
		host.Execute(wf.TokenIn, token.TransferFrom(wf.Caller, c.Env.Contract, wf.Amount0)))
}

func (v *Contract) advanceSwap(c *host.Context, st *state, wf model.Workflow) (*host.Response, error) {
	entry, err := v.workflowPool(c, st, wf)
	if err != nil {
		return nil, err
	}

	switch wf.Step {
	case stepCollectIn:
		wf.Collected = append(wf.Collected, stepCollectIn)
		return v.next(c, st, wf, stepPayout, host.Execute(wf.TokenOut, token.Transfer(wf.To, wf.Amount1)))
	case stepPayout:
		cfg, err := st.config(c)
		if err != nil {
			return nil, err
		}
		zero := amm.Zero().Dec()
		amount0In, amount1In, amount0Out, amount1Out := wf.Amount0.Dec(), zero, zero, wf.Amount1.Dec()
		if wf.TokenIn == entry.Token0 {
			entry.Reserve0, err = amm.Add(entry.Reserve0, wf.Amount0)
			if err == nil {
				entry.Reserve1, err = amm.Sub(entry.Reserve1, wf.Amount1)
			}
		} else {
			amount0In, amount1In, amount0Out, amount1Out = zero, wf.Amount0.Dec(), wf.Amount1.Dec(), zero
			entry.Reserve1, err = amm.Add(entry.Reserve1, wf.Amount0)
			if err == nil {
				entry.Reserve0, err = amm.Sub(entry.Reserve0, wf.Amount1)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSwapFailed, err)
		}
		return v.commit(c, st, wf, entry, model.NewEvent("swap",
			"pool", wf.Pool.Hex(),
			"sender", wf.Caller.Hex(),
			"recipient", wf.To.Hex(),
			"amount0_in", amount0In,
			"amount1_in", amount1In,
			"amount0_out", amount0Out,
			"amount1_out", amount1Out,
			"fee_bps", fmt.Sprint(cfg.FeeBps),
		))
	default:
		return nil, fmt.Errorf("%w: swap workflow %d at step %q", ErrReplyID, wf.ID, wf.Step)
	}
}

// checkDrain rejects an output that would empty the out reserve.
func checkDrain(amountOut, reserveOut *uint256.Int) error {
	if !amountOut.Lt(reserveOut) {
		return fmt.Errorf("%w: output %s, reserve %s", ErrInsufficientBalance, amountOut, reserveOut)
	}
	return nil
}

// replay returns the stored outcome when caller already ran requestID.
// A request id reused for another operation kind or pool is rejected.
func (v *Contract) replay(c *host.Context, st *state, caller common.Address, requestID string, kind model.WorkflowKind, pool common.Address) (*host.Response, bool, error) {
	if requestID == "" {
		return nil, false, nil
	}
	wf, ok, err := st.workflowByRequest(c, caller, requestID)
	if err != nil || !ok {
		return nil, false, err
	}
	if wf.Kind != kind || wf.Pool != pool {
		return nil, false, fmt.Errorf("%w: %s belongs to %s on %s", ErrRequestIDConflict, requestID, wf.Kind, wf.Pool.Hex())
	}
	if !wf.Status.Terminal() {
		return nil, false, fmt.Errorf("%w: %s", ErrWorkflowInProgress, requestID)
	}
	resp, err := outcomeResponse(wf)
	if err != nil {
		return nil, false, err
	}
	if wf.Status == model.StatusCompensated {
		resp.Failure = fmt.Errorf("%w: %s", ErrReplayedFailure, wf.Error)
	}
	v.logger.Info("request replayed",
		zap.String("request_id", requestID),
		zap.Uint64("workflow", wf.ID),
		zap.String("status", string(wf.Status)),
	)
	return resp.AddEvent("workflow_replayed",
		"id", fmt.Sprint(wf.ID),
		"request_id", requestID,
	), true, nil
}

func (v *Contract) start(c *host.Context, st *state, wf model.Workflow) (model.Workflow, error) {
	id, err := st.nextWorkflowID(c)
	if err != nil {
		return model.Workflow{}, err
	}
	wf.ID = id
	wf.Status = model.StatusPending
	wf.StartedAt = c.Env.Time
	v.metrics.Started(string(wf.Kind))
	v.logger.Debug("workflow started",
		zap.Uint64("id", wf.ID),
		zap.String("kind", string(wf.Kind)),
		zap.String("pool", wf.Pool.Hex()),
		zap.String("caller", wf.Caller.Hex()),
	)
	return wf, nil
}

// next records step as in flight and dispatches msg with a continuation.
func (v *Contract) next(c *host.Context, st *state, wf model.Workflow, step string, msg host.Msg) (*host.Response, error) {
	wf.Step = step
	if err := st.saveWorkflow(c, wf); err != nil {
		return nil, err
	}
	return host.NewResponse().AddSubMessage(wf.ID, msg, host.ReplyAlways), nil
}

func (v *Contract) commit(c *host.Context, st *state, wf model.Workflow, entry model.ReserveEntry, ev model.Event) (*host.Response, error) {
	wf.Step = stepCommit
	wf.Status = model.StatusCompleted
	wf.EndedAt = c.Env.Time
	if err := st.savePool(c, entry); err != nil {
		return nil, err
	}
	if err := st.saveWorkflow(c, wf); err != nil {
		return nil, err
	}
	v.metrics.Completed(string(wf.Kind))
	v.metrics.Reserves(entry.Pool.Hex(), entry.Reserve0, entry.Reserve1)
	v.logger.Info("workflow completed",
		zap.Uint64("id", wf.ID),
		zap.String("kind", string(wf.Kind)),
		zap.String("pool", entry.Pool.Hex()),
		zap.String("reserve0", entry.Reserve0.Dec()),
		zap.String("reserve1", entry.Reserve1.Dec()),
	)

	resp, err := outcomeResponse(wf)
	if err != nil {
		return nil, err
	}
	resp.Events = append(resp.Events, ev, syncEvent(entry))
	return resp, nil
}

// stepFailed handles a failed continuation. Steps after a burn cannot be
// compensated and revert the whole invocation instead.
func (v *Contract) stepFailed(c *host.Context, st *state, wf model.Workflow, cause error) (*host.Response, error) {
	switch wf.Step {
	case stepPayout0, stepPayout1:
		return nil, fmt.Errorf("%w: %s: %w", ErrUpdateLiquidityFailed, wf.Step, cause)
	}

	sentinel := ErrUpdateLiquidityFailed
	switch {
	case wf.Step == stepMint:
		sentinel = ErrMintTokenFailed
	case wf.Step == stepBurn || wf.Step == stepCollectShares:
		sentinel = ErrBurnTokenFailed
	case wf.Kind == model.WorkflowSwap:
		sentinel = ErrSwapFailed
	}
	return v.fail(c, st, wf, fmt.Errorf("%w: %s: %w", sentinel, wf.Step, cause))
}

// fail marks wf compensated and returns everything collected so far. The
// record and the refunds are kept; err is reported to the caller.
func (v *Contract) fail(c *host.Context, st *state, wf model.Workflow, err error) (*host.Response, error) {
	entry, lookupErr := v.workflowPool(c, st, wf)
	if lookupErr != nil {
		return nil, lookupErr
	}

	var refunds []host.Msg
	for i := len(wf.Collected) - 1; i >= 0; i-- {
		switch wf.Collected[i] {
		case stepCollect0:
			refunds = append(refunds, host.Execute(entry.Token0, token.Transfer(wf.Caller, wf.Amount0)))
		case stepCollect1:
			refunds = append(refunds, host.Execute(entry.Token1, token.Transfer(wf.Caller, wf.Amount1)))
		case stepCollectIn:
			refunds = append(refunds, host.Execute(wf.TokenIn, token.Transfer(wf.Caller, wf.Amount0)))
		case stepCollectShares:
			refunds = append(refunds, host.Execute(wf.Pool, pool.ReturnShares(wf.Caller, wf.Liquidity)))
		}
	}

	wf.Status = model.StatusCompensated
	wf.Error = err.Error()
	wf.ErrorKind = Kind(err)
	wf.EndedAt = c.Env.Time
	if saveErr := st.saveWorkflow(c, wf); saveErr != nil {
		return nil, saveErr
	}
	v.metrics.Compensated(string(wf.Kind), wf.ErrorKind)
	v.logger.Warn("workflow compensated",
		zap.Uint64("id", wf.ID),
		zap.String("kind", string(wf.Kind)),
		zap.String("step", wf.Step),
		zap.Int("refunds", len(refunds)),
		zap.Error(err),
	)

	resp, mErr := outcomeResponse(wf)
	if mErr != nil {
		return nil, mErr
	}
	for _, m := range refunds {
		resp.AddMessage(m)
	}
	resp.AddEvent("workflow_compensated",
		"id", fmt.Sprint(wf.ID),
		"kind", string(wf.Kind),
		"step", wf.Step,
		"error_kind", wf.ErrorKind,
	)
	resp.Failure = err
	return resp, nil
}

func (v *Contract) workflowPool(c *host.Context, st *state, wf model.Workflow) (model.ReserveEntry, error) {
	entry, ok, err := st.pool(c, wf.Pool)
	if err != nil {
		return model.ReserveEntry{}, err
	}
	if !ok {
		return model.ReserveEntry{}, fmt.Errorf("%w: workflow %d pool %s", ErrFetchPoolData, wf.ID, wf.Pool.Hex())
	}
	return entry, nil
}

func outcomeResponse(wf model.Workflow) (*host.Response, error) {
	data, err := json.Marshal(Outcome{Workflow: wf})
	if err != nil {
		return nil, err
	}
	return host.NewResponse().SetData(data), nil
}
