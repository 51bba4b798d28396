package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"ammVault/internal/codec"
	"ammVault/internal/model"
	"ammVault/internal/storage"
)

const (
	vaultHex   = "0x00000000000000000000000000000000000000A1"
	factoryHex = "0x00000000000000000000000000000000000000F1"
	poolHex    = "0x00000000000000000000000000000000000000B1"
	token0Hex  = "0x00000000000000000000000000000000000000C0"
	token1Hex  = "0x00000000000000000000000000000000000000C1"
	base       = uint64(3600 * 10)
)

type memSink struct {
	pools   []model.PoolRecord
	windows []model.PoolWindowMetrics
}

func (m *memSink) UpsertPools(_ context.Context, pools []model.PoolRecord) error {
	m.pools = append(m.pools, pools...)
	return nil
}

func (m *memSink) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	m.windows = append(m.windows, metrics...)
	return nil
}

type fakeQuerier struct {
	answers map[string]string
}

func (f *fakeQuerier) Query(_ context.Context, contract common.Address, msg json.RawMessage) (json.RawMessage, error) {
	name, _, err := codec.Unwrap(msg)
	if err != nil {
		return nil, err
	}
	raw, ok := f.answers[strings.ToLower(contract.Hex())+"/"+name]
	if !ok {
		return nil, fmt.Errorf("no answer for %s at %s", name, contract.Hex())
	}
	return json.RawMessage(raw), nil
}

func rec(height, ts uint64, contract, name string, kv ...string) model.EventRecord {
	attrs := map[string]string{"pool": poolHex}
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	return model.EventRecord{Height: height, Timestamp: ts, Contract: contract, EventName: name, Attributes: attrs}
}

func syncRec(height, ts uint64, r0, r1 string) model.EventRecord {
	return rec(height, ts, vaultHex, "sync", "reserve0", r0, "reserve1", r1)
}

func swapRec(height, ts uint64, in0, in1, out0, out1 string) model.EventRecord {
	return rec(height, ts, vaultHex, "swap",
		"sender", token0Hex, "recipient", token0Hex,
		"amount0_in", in0, "amount1_in", in1, "amount0_out", out0, "amount1_out", out1,
		"fee_bps", "30")
}

func firstWindow() []model.EventRecord {
	return []model.EventRecord{
		rec(1, base+5, vaultHex, "instantiate_vault"),
		rec(1, base+5, vaultHex, "register_pool", "token0", token0Hex, "token1", token1Hex, "fee_bps", "30"),
		syncRec(1, base+5, "0", "0"),
		rec(2, base+10, vaultHex, "add_liquidity", "amount0", "10000", "amount1", "9000", "liquidity", "8486"),
		syncRec(2, base+10, "10000", "9000"),
		swapRec(3, base+20, "1000", "0", "0", "820"),
		syncRec(3, base+20, "11000", "8180"),
		rec(3, base+20, factoryHex, "create_pool", "token0", token0Hex, "token1", token1Hex),
	}
}

func laterWindows() []model.EventRecord {
	return []model.EventRecord{
		swapRec(4, base+3601, "0", "5000", "600", "0"),
		syncRec(4, base+3601, "10400", "13180"),
		rec(5, base+7201, vaultHex, "remove_liquidity", "amount0", "5000", "amount1", "6000", "liquidity", "4000"),
		syncRec(5, base+7201, "5400", "7180"),
	}
}

func writeJournal(t *testing.T, path string, records ...model.EventRecord) {
	t.Helper()
	require.NoError(t, storage.NewJsonlJournal(path).AppendEvents(context.Background(), records))
}

func TestAggregateWindows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeJournal(t, path, append(firstWindow(), laterWindows()...)...)

	sink := &memSink{}
	agg := NewAggregator(Config{WindowSeconds: 3600, Vault: vaultHex}, sink, nil, nil)
	require.NoError(t, agg.Run(context.Background(), path))

	require.Len(t, sink.pools, 1)
	require.Equal(t, model.PoolRecord{
		Address:        strings.ToLower(poolHex),
		Token0:         strings.ToLower(token0Hex),
		Token1:         strings.ToLower(token1Hex),
		FeeBps:         30,
		FirstSeenBlock: 1,
	}, sink.pools[0])

	require.Len(t, sink.windows, 3)
	w1, w2, w3 := sink.windows[0], sink.windows[1], sink.windows[2]

	require.Equal(t, int64(base), w1.WindowStart.Unix())
	require.Equal(t, int64(base+3600), w1.WindowEnd.Unix())
	require.Equal(t, uint64(1), w1.SwapCount)
	require.Equal(t, uint64(1), w1.MintCount)
	require.Equal(t, "1000", w1.Volume0)
	require.Equal(t, "820", w1.Volume1)
	require.Equal(t, "3", w1.Fee0)
	require.Equal(t, "0", w1.Fee1)
	require.Equal(t, "11000", *w1.TVL0)
	require.Equal(t, "8180", *w1.TVL1)
	require.Equal(t, tvlMethodSync, w1.TVLMethod)
	require.Equal(t, feeMethodVault, w1.FeeMethod)
	require.Equal(t, "0.000272727272727273", *w1.FeeRate0)
	require.Nil(t, w1.FeeRate1)
	require.NotNil(t, w1.APR)

	require.Equal(t, uint64(1), w2.SwapCount)
	require.Zero(t, w2.MintCount)
	require.Equal(t, "600", w2.Volume0)
	require.Equal(t, "5000", w2.Volume1)
	require.Equal(t, "15", w2.Fee1)

	require.Zero(t, w3.SwapCount)
	require.Equal(t, uint64(1), w3.BurnCount)
	require.Equal(t, "5400", *w3.TVL0)
	require.Nil(t, w3.APR)
}

func TestAggregateResumeRebuildsOpenWindows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	state := &FileStateStore{Path: filepath.Join(dir, "state.json"), WindowSeconds: 3600}
	ctx := context.Background()

	writeJournal(t, path, firstWindow()...)
	first := &memSink{}
	require.NoError(t, NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, first, nil, nil).Run(ctx, path))
	require.Len(t, first.windows, 1)

	saved, ok, err := state.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, base-1, saved)

	writeJournal(t, path, laterWindows()...)
	second := &memSink{}
	require.NoError(t, NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, second, nil, nil).Run(ctx, path))
	require.Len(t, second.windows, 3)
	require.Equal(t, first.windows[0], second.windows[0])

	saved, _, err = state.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, base+7200-1, saved)

	_, _, err = (&FileStateStore{Path: state.Path, WindowSeconds: 60}).Load(ctx)
	require.Error(t, err)
}

func TestAggregateRecomputeFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeJournal(t, path, append(firstWindow(), laterWindows()...)...)

	sink := &memSink{}
	cfg := Config{WindowSeconds: 3600, RecomputeFrom: base + 3600 + 100}
	require.NoError(t, NewAggregator(cfg, sink, nil, nil).Run(context.Background(), path))

	require.Len(t, sink.windows, 2)
	require.Equal(t, int64(base+3600), sink.windows[0].WindowStart.Unix())
	require.Len(t, sink.pools, 1, "registration before the recompute point still names the pool")
}

func TestAggregateAsksVaultForMissingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeJournal(t, path, swapRec(9, base+20, "1000", "0", "0", "820"))

	q := &fakeQuerier{answers: map[string]string{
		strings.ToLower(vaultHex) + "/pool_data":   fmt.Sprintf(`{"registered":true,"token0":%q,"token1":%q,"reserve0":"12000","reserve1":"7000"}`, token0Hex, token1Hex),
		strings.ToLower(token0Hex) + "/token_info": `{"name":"A","symbol":"A","decimals":2,"total_supply":"1"}`,
		strings.ToLower(token1Hex) + "/token_info": `{"name":"B","symbol":"B","decimals":0,"total_supply":"1"}`,
	}}
	sink := &memSink{}
	require.NoError(t, NewAggregator(Config{WindowSeconds: 3600}, sink, q, nil).Run(context.Background(), path))

	require.Len(t, sink.pools, 1)
	require.Equal(t, uint64(9), sink.pools[0].FirstSeenBlock)
	require.Len(t, sink.windows, 1)
	w := sink.windows[0]
	require.Equal(t, "10.00", w.Volume0)
	require.Equal(t, "820", w.Volume1)
	require.Equal(t, "0.03", w.Fee0)
	require.Equal(t, "120.00", *w.TVL0)
	require.Equal(t, "7000", *w.TVL1)
	require.Equal(t, tvlMethodLatest, w.TVLMethod)
	require.Equal(t, "0.000250000000000000", *w.FeeRate0)
}

func TestAggregateSkipsUnknownPools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeJournal(t, path, swapRec(1, base, "1", "0", "0", "1"))

	sink := &memSink{}
	require.NoError(t, NewAggregator(Config{WindowSeconds: 3600}, sink, nil, nil).Run(context.Background(), path))
	require.Empty(t, sink.windows)
	require.Empty(t, sink.pools)
}

func TestAggregateRequiresWindow(t *testing.T) {
	require.Error(t, NewAggregator(Config{}, &memSink{}, nil, nil).Run(context.Background(), "unused"))
	require.Error(t, NewAggregator(Config{WindowSeconds: 60}, nil, nil, nil).Run(context.Background(), "unused"))
}
