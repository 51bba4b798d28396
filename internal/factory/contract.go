// Package factory creates pool contracts and registers them with the vault.
// Each creation is tracked under its own correlation id until the pool
// instantiation reports back.
package factory

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammVault/internal/codec"
	"ammVault/internal/host"
	"ammVault/internal/pool"
	"ammVault/internal/storage"
	"ammVault/internal/vault"
)

var (
	keyConfig     = []byte("config")
	keySeq        = []byte("seq")
	prefixPending = []byte("pending/")
	prefixPair    = []byte("pair/")
	prefixPool    = []byte("pool/")
)

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

func (f *Contract) Instantiate(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	var msg InstantiateMsg
	if err := codec.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Vault == (common.Address{}) {
		return nil, fmt.Errorf("vault address required")
	}
	cfg := ConfigResponse{Owner: c.Sender, Vault: msg.Vault, PoolCodeID: msg.PoolCodeID}
	if msg.Owner != nil {
		cfg.Owner = *msg.Owner
	}
	if err := setJSON(c, c.Store, keyConfig, cfg); err != nil {
		return nil, err
	}
	return host.NewResponse().AddEvent("instantiate_factory",
		"owner", cfg.Owner.Hex(),
		"vault", cfg.Vault.Hex(),
	), nil
}

func (f *Contract) Execute(c *host.Context, raw json.RawMessage) (*host.Response, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	switch name {
	case "create_pool":
		var msg CreatePoolMsg
		if err := codec.Decode(body, &msg); err != nil {
			return nil, err
		}
		return f.createPool(c, msg)
	default:
		return nil, codec.Unknown(name)
	}
}

func (f *Contract) createPool(c *host.Context, msg CreatePoolMsg) (*host.Response, error) {
	empty := common.Address{}
	if msg.TokenA == empty && msg.TokenB == empty {
		return nil, ErrEmptyAddresses
	}
	if msg.TokenA == msg.TokenB {
		return nil, fmt.Errorf("%w: %s", ErrIdenticalAddresses, msg.TokenA.Hex())
	}
	if msg.TokenA == empty || msg.TokenB == empty {
		return nil, ErrEmptyAddresses
	}
	if _, ok, err := pairOf(c, c.Store, msg.TokenA, msg.TokenB); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairExists, msg.TokenA.Hex(), msg.TokenB.Hex())
	}

	var cfg ConfigResponse
	if err := getJSON(c, c.Store, keyConfig, &cfg); err != nil {
		return nil, err
	}
	id, err := nextID(c, c.Store)
	if err != nil {
		return nil, err
	}
	pending := Pending{ID: id, Token0: msg.TokenA, Token1: msg.TokenB, Requester: c.Sender}
	if err := setJSON(c, c.Store, pendingKey(id), pending); err != nil {
		return nil, err
	}

	f.logger.Debug("pool creation pending",
		zap.Uint64("id", id),
		zap.String("token0", msg.TokenA.Hex()),
		zap.String("token1", msg.TokenB.Hex()),
	)
	label := fmt.Sprintf("%s-%d", pool.DefaultSymbol, id)
	return host.NewResponse().
		AddSubMessage(id, host.Instantiate(cfg.PoolCodeID, label, pool.NewInstantiateMsg(cfg.Vault)), host.ReplyOnSuccess).
		AddEvent("create_pool_pending",
			"id", fmt.Sprint(id),
			"token0", msg.TokenA.Hex(),
			"token1", msg.TokenB.Hex(),
		), nil
}

func (f *Contract) Reply(c *host.Context, reply host.Reply) (*host.Response, error) {
	resp, err := f.reply(c, reply)
	if err != nil {
		f.logger.Warn("pool creation failed",
			zap.Uint64("id", reply.ID),
			zap.String("error_kind", Kind(err)),
			zap.Error(err),
		)
	}
	return resp, err
}

func (f *Contract) reply(c *host.Context, reply host.Reply) (*host.Response, error) {
	if reply.Err != nil {
		return nil, reply.Err
	}
	var pending Pending
	if err := getJSON(c, c.Store, pendingKey(reply.ID), &pending); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrReplyID, reply.ID)
	}
	poolAddr, err := codec.DecodeInstantiateResult(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReplyData, err)
	}
	empty := common.Address{}
	if pending.Token0 == empty || pending.Token1 == empty {
		return nil, fmt.Errorf("%w: creation %d", ErrTokenNotFound, reply.ID)
	}
	if _, ok, err := pairOf(c, c.Store, pending.Token0, pending.Token1); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairExists, pending.Token0.Hex(), pending.Token1.Hex())
	}

	var cfg ConfigResponse
	if err := getJSON(c, c.Store, keyConfig, &cfg); err != nil {
		return nil, err
	}
	info := PairInfo{Pool: poolAddr, Token0: pending.Token0, Token1: pending.Token1, CreatedAt: c.Env.Height}
	if err := c.Store.Set(c, pairKey(info.Token0, info.Token1), poolAddr.Bytes()); err != nil {
		return nil, err
	}
	if err := setJSON(c, c.Store, poolKey(poolAddr), info); err != nil {
		return nil, err
	}
	if err := c.Store.Delete(c, pendingKey(reply.ID)); err != nil {
		return nil, err
	}

	data, err := json.Marshal(CreatePoolResponse{Pool: poolAddr})
	if err != nil {
		return nil, err
	}
	f.logger.Info("pool created",
		zap.Uint64("id", reply.ID),
		zap.String("pool", poolAddr.Hex()),
		zap.String("token0", info.Token0.Hex()),
		zap.String("token1", info.Token1.Hex()),
	)
	return host.NewResponse().
		SetData(data).
		AddMessage(host.Execute(cfg.Vault, vault.RegisterPool(poolAddr, info.Token0, info.Token1))).
		AddEvent("create_pool",
			"pool", poolAddr.Hex(),
			"token0", info.Token0.Hex(),
			"token1", info.Token1.Hex(),
			"requester", pending.Requester.Hex(),
		), nil
}

func (f *Contract) Query(c *host.QueryContext, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := codec.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	switch name {
	case "config":
		var cfg ConfigResponse
		if err := getJSON(c, c.Store, keyConfig, &cfg); err != nil {
			return nil, err
		}
		return json.Marshal(cfg)
	case "pair":
		var q PairQuery
		if err := codec.Decode(body, &q); err != nil {
			return nil, err
		}
		poolAddr, ok, err := pairOf(c, c.Store, q.TokenA, q.TokenB)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("pair %s/%s not found", q.TokenA.Hex(), q.TokenB.Hex())
		}
		var info PairInfo
		if err := getJSON(c, c.Store, poolKey(poolAddr), &info); err != nil {
			return nil, err
		}
		return json.Marshal(info)
	case "pools":
		out := []PairInfo{}
		err := c.Store.Iterate(c, prefixPool, func(_, value []byte) error {
			var info PairInfo
			if err := json.Unmarshal(value, &info); err != nil {
				return err
			}
			out = append(out, info)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	case "pending":
		out := []Pending{}
		err := c.Store.Iterate(c, prefixPending, func(_, value []byte) error {
			var p Pending
			if err := json.Unmarshal(value, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	default:
		return nil, codec.Unknown(name)
	}
}

func getJSON(ctx context.Context, kv storage.KV, key []byte, out interface{}) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("%s not found", key)
	}
	return json.Unmarshal(raw, out)
}

func setJSON(ctx context.Context, kv storage.KV, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, raw)
}

func nextID(ctx context.Context, kv storage.KV) (uint64, error) {
	raw, err := kv.Get(ctx, keySeq)
	if err != nil {
		return 0, err
	}
	var id uint64
	if len(raw) == 8 {
		id = binary.BigEndian.Uint64(raw)
	}
	id++
	return id, kv.Set(ctx, keySeq, binary.BigEndian.AppendUint64(nil, id))
}

func pendingKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixPending...), id)
}

// pairKey is independent of token order.
func pairKey(a, b common.Address) []byte {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	key := append(append([]byte{}, prefixPair...), a.Bytes()...)
	return append(key, b.Bytes()...)
}

func poolKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixPool...), addr.Bytes()...)
}

func pairOf(ctx context.Context, kv storage.KV, a, b common.Address) (common.Address, bool, error) {
	raw, err := kv.Get(ctx, pairKey(a, b))
	if err != nil || raw == nil {
		return common.Address{}, false, err
	}
	return common.BytesToAddress(raw), true, nil
}
