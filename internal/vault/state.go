package vault

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"ammVault/internal/model"
	"ammVault/internal/storage"
)

var (
	keyConfig   = []byte("config")
	keyWfSeq    = []byte("wf/seq")
	prefixPool  = []byte("pool/")
	prefixFact  = []byte("factory/")
	prefixWf    = []byte("wf/id/")
	prefixReqID = []byte("wf/req/")
)

type config struct {
	Owner  common.Address `json:"owner"`
	FeeBps uint64         `json:"fee_bps"`
}

// state is the typed view of the vault store.
type state struct {
	kv storage.KV
}

func stateOf(kv storage.KV) *state {
	return &state{kv: kv}
}

func (s *state) getJSON(ctx context.Context, key []byte, out interface{}) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *state) setJSON(ctx context.Context, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, raw)
}

func (s *state) config(ctx context.Context) (config, error) {
	var cfg config
	ok, err := s.getJSON(ctx, keyConfig, &cfg)
	if err != nil {
		return config{}, err
	}
	if !ok {
		return config{}, fmt.Errorf("vault config not initialized")
	}
	return cfg, nil
}

func (s *state) saveConfig(ctx context.Context, cfg config) error {
	return s.setJSON(ctx, keyConfig, cfg)
}

func factoryKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixFact...), addr.Bytes()...)
}

func (s *state) factoryAuthorized(ctx context.Context, addr common.Address) (bool, error) {
	raw, err := s.kv.Get(ctx, factoryKey(addr))
	if err != nil {
		return false, err
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

func (s *state) authorizeFactory(ctx context.Context, addr common.Address) error {
	return s.kv.Set(ctx, factoryKey(addr), []byte{1})
}

func poolKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixPool...), addr.Bytes()...)
}

// pool returns the reserve entry of addr; ok is false when none exists.
func (s *state) pool(ctx context.Context, addr common.Address) (model.ReserveEntry, bool, error) {
	var entry model.ReserveEntry
	ok, err := s.getJSON(ctx, poolKey(addr), &entry)
	if err != nil || !ok {
		return model.ReserveEntry{}, false, err
	}
	return entry, entry.Registered, nil
}

func (s *state) savePool(ctx context.Context, entry model.ReserveEntry) error {
	return s.setJSON(ctx, poolKey(entry.Pool), entry)
}

func (s *state) pools(ctx context.Context) ([]model.ReserveEntry, error) {
	var out []model.ReserveEntry
	err := s.kv.Iterate(ctx, prefixPool, func(_, value []byte) error {
		var entry model.ReserveEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("decode pool entry: %w", err)
		}
		out = append(out, entry)
		return nil
	})
	return out, err
}

func workflowKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixWf...), id)
}

// requestKey scopes request ids to the caller that submitted them.
func requestKey(caller common.Address, requestID string) []byte {
	key := append(append([]byte{}, prefixReqID...), caller.Bytes()...)
	return append(key, requestID...)
}

func (s *state) nextWorkflowID(ctx context.Context) (uint64, error) {
	raw, err := s.kv.Get(ctx, keyWfSeq)
	if err != nil {
		return 0, err
	}
	var id uint64
	if len(raw) == 8 {
		id = binary.BigEndian.Uint64(raw)
	}
	id++
	if err := s.kv.Set(ctx, keyWfSeq, binary.BigEndian.AppendUint64(nil, id)); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *state) workflow(ctx context.Context, id uint64) (model.Workflow, bool, error) {
	var wf model.Workflow
	ok, err := s.getJSON(ctx, workflowKey(id), &wf)
	return wf, ok, err
}

func (s *state) workflowByRequest(ctx context.Context, caller common.Address, requestID string) (model.Workflow, bool, error) {
	raw, err := s.kv.Get(ctx, requestKey(caller, requestID))
	if err != nil || len(raw) != 8 {
		return model.Workflow{}, false, err
	}
	return s.workflow(ctx, binary.BigEndian.Uint64(raw))
}

func (s *state) saveWorkflow(ctx context.Context, wf model.Workflow) error {
	if err := s.setJSON(ctx, workflowKey(wf.ID), wf); err != nil {
		return err
	}
	if wf.RequestID == "" {
		return nil
	}
	return s.kv.Set(ctx, requestKey(wf.Caller, wf.RequestID), binary.BigEndian.AppendUint64(nil, wf.ID))
}
