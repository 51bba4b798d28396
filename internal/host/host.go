package host

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"ammVault/internal/codec"
	"ammVault/internal/model"
	"ammVault/internal/storage"
)

// DefaultMaxDepth bounds nested dispatch.
const DefaultMaxDepth = 16

var (
	ErrDepthExceeded    = errors.New("dispatch depth exceeded")
	ErrContractNotFound = errors.New("contract not found")
	ErrCodeNotFound     = errors.New("code not found")
	ErrEmptyMsg         = errors.New("empty message")
)

var (
	keyHeight         = []byte("host/height")
	prefixContract    = []byte("host/contract/")
	prefixNonce       = []byte("host/nonce/")
	prefixContractKVs = []byte("c/")
)

// Options configures a Host.
type Options struct {
	Journal  storage.Journal
	Clock    func() time.Time
	MaxDepth int
}

// Host runs contracts over a KV store. Every message executes in its own
// cache layer that is flushed into the caller's layer on success and dropped
// on failure; a top-level invocation is one block.
type Host struct {
	mu       sync.Mutex
	store    storage.KV
	codes    map[uint64]Contract
	nextCode uint64
	journal  storage.Journal
	clock    func() time.Time
	maxDepth int
	logger   *zap.Logger
}

func New(store storage.KV, opts Options, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Host{
		store:    store,
		codes:    make(map[uint64]Contract),
		nextCode: 1,
		journal:  opts.Journal,
		clock:    opts.Clock,
		maxDepth: opts.MaxDepth,
		logger:   logger,
	}
}

// StoreCode registers contract code and returns its id. Ids are assigned in
// call order, so a persisted store must be reopened with the same order.
func (h *Host) StoreCode(c Contract) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextCode
	h.codes[id] = c
	h.nextCode++
	return id
}

// Instantiate creates a contract from code and returns its address.
func (h *Host) Instantiate(ctx context.Context, sender common.Address, codeID uint64, label string, msg json.RawMessage) (*Result, error) {
	return h.run(ctx, sender, Instantiate(codeID, label, msg))
}

// Execute sends msg to contract. When the contract reports a handled failure
// the state is committed and the failure is returned together with the result.
func (h *Host) Execute(ctx context.Context, sender, contract common.Address, msg json.RawMessage) (*Result, error) {
	return h.run(ctx, sender, Execute(contract, msg))
}

// Query runs a read-only query against committed state.
func (h *Host) Query(ctx context.Context, contract common.Address, msg json.RawMessage) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	layer := storage.NewCache(h.store)
	env, err := h.currentEnv(ctx, layer)
	if err != nil {
		return nil, err
	}
	return h.querier(layer, env).Query(ctx, contract, msg)
}

// ContractInfo returns the record for an instantiated contract.
func (h *Host) ContractInfo(ctx context.Context, addr common.Address) (ContractInfo, error) {
	return loadContractInfo(ctx, h.store, addr)
}

// Contracts lists every instantiated contract.
func (h *Host) Contracts(ctx context.Context) ([]ContractInfo, error) {
	var out []ContractInfo
	err := h.store.Iterate(ctx, prefixContract, func(_, value []byte) error {
		var info ContractInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("decode contract info: %w", err)
		}
		out = append(out, info)
		return nil
	})
	return out, err
}

type outcome struct {
	address common.Address
	data    []byte
	events  []ContractEvent
	failure error
}

func (h *Host) run(ctx context.Context, sender common.Address, msg Msg) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := storage.NewCache(h.store)
	env, err := h.nextBlock(ctx, tx)
	if err != nil {
		return nil, err
	}

	out, err := h.dispatch(ctx, tx, env, sender, msg, 0)
	if err != nil {
		h.logger.Debug("invocation reverted", zap.Uint64("height", env.Height), zap.Error(err))
		return nil, err
	}
	if err := tx.Write(ctx); err != nil {
		return nil, fmt.Errorf("commit block %d: %w", env.Height, err)
	}

	res := &Result{
		Height:  env.Height,
		Time:    env.Time,
		Address: out.address,
		Data:    out.data,
		Events:  out.events,
	}
	if err := h.appendJournal(ctx, res); err != nil {
		return res, err
	}
	if out.failure != nil {
		h.logger.Debug("invocation failed after commit", zap.Uint64("height", env.Height), zap.Error(out.failure))
	}
	return res, out.failure
}

func (h *Host) dispatch(ctx context.Context, parent storage.KV, env Env, sender common.Address, msg Msg, depth int) (*outcome, error) {
	if depth > h.maxDepth {
		return nil, ErrDepthExceeded
	}
	layer := storage.NewCache(parent)

	var (
		addr common.Address
		resp *Response
		err  error
	)
	switch {
	case msg.Execute != nil:
		addr = msg.Execute.Contract
		contract, lookupErr := h.contractAt(ctx, layer, addr)
		if lookupErr != nil {
			return nil, lookupErr
		}
		resp, err = contract.Execute(h.newContext(ctx, layer, env, addr, sender), msg.Execute.Msg)
		if err != nil {
			return nil, fmt.Errorf("execute %s: %w", addr.Hex(), err)
		}
	case msg.Instantiate != nil:
		contract, ok := h.codes[msg.Instantiate.CodeID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrCodeNotFound, msg.Instantiate.CodeID)
		}
		addr, err = h.register(ctx, layer, env, sender, msg.Instantiate)
		if err != nil {
			return nil, err
		}
		resp, err = contract.Instantiate(h.newContext(ctx, layer, env, addr, sender), msg.Instantiate.Msg)
		if err != nil {
			return nil, fmt.Errorf("instantiate %s: %w", msg.Instantiate.Label, err)
		}
	default:
		return nil, ErrEmptyMsg
	}
	if resp == nil {
		resp = NewResponse()
	}

	out, err := h.process(ctx, layer, env, addr, resp, depth)
	if err != nil {
		return nil, err
	}
	if msg.Instantiate != nil {
		data, err := codec.EncodeInstantiateResult(addr)
		if err != nil {
			return nil, err
		}
		out.address = addr
		out.data = data
	}
	if err := layer.Write(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// process dispatches the messages of resp in order and delivers continuations.
// A handled failure stops the remaining messages.
func (h *Host) process(ctx context.Context, layer storage.KV, env Env, addr common.Address, resp *Response, depth int) (*outcome, error) {
	out := &outcome{data: resp.Data, failure: resp.Failure}
	out.events = attribute(addr, resp.Events)
	if out.failure != nil {
		// messages still run: they carry compensation
		h.logger.Debug("handled failure", zap.String("contract", addr.Hex()), zap.Error(out.failure))
	}

	for _, sub := range resp.Messages {
		subOut, subErr := h.dispatch(ctx, layer, env, addr, sub.Msg, depth+1)
		failure := subErr
		if subOut != nil {
			out.events = append(out.events, subOut.events...)
			failure = subOut.failure
		}

		if failure == nil && !sub.ReplyOn.onSuccess() {
			continue
		}
		if failure != nil && !sub.ReplyOn.onError() {
			if subErr != nil {
				return nil, subErr
			}
			if out.failure == nil {
				out.failure = failure
			}
			return out, nil
		}

		reply := Reply{ID: sub.ID, Err: failure}
		if subOut != nil {
			reply.Data = subOut.data
		}
		replyOut, err := h.reply(ctx, layer, env, addr, reply, depth+1)
		if err != nil {
			return nil, err
		}
		out.events = append(out.events, replyOut.events...)
		if replyOut.data != nil {
			out.data = replyOut.data
		}
		if replyOut.failure != nil {
			out.failure = replyOut.failure
			return out, nil
		}
	}
	return out, nil
}

func (h *Host) reply(ctx context.Context, parent storage.KV, env Env, addr common.Address, reply Reply, depth int) (*outcome, error) {
	if depth > h.maxDepth {
		return nil, ErrDepthExceeded
	}
	layer := storage.NewCache(parent)
	contract, err := h.contractAt(ctx, layer, addr)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("reply",
		zap.String("contract", addr.Hex()),
		zap.Uint64("id", reply.ID),
		zap.Bool("ok", reply.Err == nil),
		zap.String("data", codec.Hex(reply.Data)),
	)
	resp, err := contract.Reply(h.newContext(ctx, layer, env, addr, addr), reply)
	if err != nil {
		return nil, fmt.Errorf("reply %d to %s: %w", reply.ID, addr.Hex(), err)
	}
	if resp == nil {
		resp = NewResponse()
	}
	out, err := h.process(ctx, layer, env, addr, resp, depth)
	if err != nil {
		return nil, err
	}
	if err := layer.Write(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Host) newContext(ctx context.Context, layer storage.KV, env Env, addr, sender common.Address) *Context {
	env.Contract = addr
	return &Context{
		Context: ctx,
		Store:   storage.NewPrefix(layer, contractPrefix(addr)),
		Env:     env,
		Sender:  sender,
		Querier: h.querier(layer, env),
		Logger:  h.logger.With(zap.String("contract", addr.Hex())),
	}
}

func (h *Host) contractAt(ctx context.Context, kv storage.KV, addr common.Address) (Contract, error) {
	info, err := loadContractInfo(ctx, kv, addr)
	if err != nil {
		return nil, err
	}
	contract, ok := h.codes[info.CodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCodeNotFound, info.CodeID)
	}
	return contract, nil
}

func (h *Host) register(ctx context.Context, kv storage.KV, env Env, creator common.Address, msg *InstantiateMsg) (common.Address, error) {
	nonceKey := append(append([]byte{}, prefixNonce...), creator.Bytes()...)
	raw, err := kv.Get(ctx, nonceKey)
	if err != nil {
		return common.Address{}, err
	}
	var nonce uint64
	if len(raw) == 8 {
		nonce = binary.BigEndian.Uint64(raw)
	}
	addr := crypto.CreateAddress(creator, nonce)
	if err := kv.Set(ctx, nonceKey, binary.BigEndian.AppendUint64(nil, nonce+1)); err != nil {
		return common.Address{}, err
	}

	info := ContractInfo{Address: addr, CodeID: msg.CodeID, Label: msg.Label, Creator: creator, Height: env.Height}
	value, err := json.Marshal(info)
	if err != nil {
		return common.Address{}, err
	}
	if err := kv.Set(ctx, contractInfoKey(addr), value); err != nil {
		return common.Address{}, err
	}
	h.logger.Info("contract instantiated",
		zap.String("address", addr.Hex()),
		zap.String("label", msg.Label),
		zap.Uint64("code_id", msg.CodeID),
	)
	return addr, nil
}

func (h *Host) nextBlock(ctx context.Context, kv storage.KV) (Env, error) {
	raw, err := kv.Get(ctx, keyHeight)
	if err != nil {
		return Env{}, fmt.Errorf("load height: %w", err)
	}
	var height uint64
	if len(raw) == 8 {
		height = binary.BigEndian.Uint64(raw)
	}
	height++
	if err := kv.Set(ctx, keyHeight, binary.BigEndian.AppendUint64(nil, height)); err != nil {
		return Env{}, fmt.Errorf("save height: %w", err)
	}
	return Env{Height: height, Time: uint64(h.clock().Unix())}, nil
}

func (h *Host) currentEnv(ctx context.Context, kv storage.KV) (Env, error) {
	raw, err := kv.Get(ctx, keyHeight)
	if err != nil {
		return Env{}, fmt.Errorf("load height: %w", err)
	}
	var height uint64
	if len(raw) == 8 {
		height = binary.BigEndian.Uint64(raw)
	}
	return Env{Height: height, Time: uint64(h.clock().Unix())}, nil
}

func (h *Host) appendJournal(ctx context.Context, res *Result) error {
	if h.journal == nil || len(res.Events) == 0 {
		return nil
	}
	ingested := time.Now().UTC().Format(time.RFC3339)
	records := make([]model.EventRecord, 0, len(res.Events))
	for i, ev := range res.Events {
		attrs := make(map[string]string, len(ev.Attributes))
		for _, a := range ev.Attributes {
			attrs[a.Key] = a.Value
		}
		records = append(records, model.EventRecord{
			Height:     res.Height,
			Timestamp:  res.Time,
			EventIndex: uint64(i),
			Contract:   ev.Contract.Hex(),
			EventName:  ev.Type,
			Attributes: attrs,
			IngestedAt: ingested,
		})
	}
	if err := h.journal.AppendEvents(ctx, records); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

type querier struct {
	host  *Host
	layer storage.KV
	env   Env
}

func (h *Host) querier(layer storage.KV, env Env) Querier {
	return &querier{host: h, layer: layer, env: env}
}

func (q *querier) Query(ctx context.Context, addr common.Address, msg json.RawMessage) (json.RawMessage, error) {
	contract, err := q.host.contractAt(ctx, q.layer, addr)
	if err != nil {
		return nil, err
	}
	env := q.env
	env.Contract = addr
	qc := &QueryContext{
		Context: ctx,
		Store:   storage.NewPrefix(q.layer, contractPrefix(addr)),
		Env:     env,
		Querier: q,
		Logger:  q.host.logger.With(zap.String("contract", addr.Hex())),
	}
	out, err := contract.Query(qc, msg)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", addr.Hex(), err)
	}
	return out, nil
}

func loadContractInfo(ctx context.Context, kv storage.KV, addr common.Address) (ContractInfo, error) {
	raw, err := kv.Get(ctx, contractInfoKey(addr))
	if err != nil {
		return ContractInfo{}, err
	}
	if raw == nil {
		return ContractInfo{}, fmt.Errorf("%w: %s", ErrContractNotFound, addr.Hex())
	}
	var info ContractInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ContractInfo{}, fmt.Errorf("decode contract info: %w", err)
	}
	return info, nil
}

func contractInfoKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixContract...), addr.Bytes()...)
}

func contractPrefix(addr common.Address) []byte {
	out := append([]byte{}, prefixContractKVs...)
	out = append(out, addr.Bytes()...)
	return append(out, '/')
}

func attribute(addr common.Address, events []model.Event) []ContractEvent {
	out := make([]ContractEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ContractEvent{Contract: addr, Event: ev})
	}
	return out
}
