package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ammVault/internal/host"
	"ammVault/internal/storage"
)

var bootstrap = []string{
	`# deploy`,
	`{"kind":"instantiate","sender":"@deployer","code":"vault","label":"vault","msg":{}}`,
	`{"kind":"instantiate","sender":"@deployer","code":"factory","label":"factory","msg":{"vault":"@vault","pool_code_id":"#pool"}}`,
	`{"kind":"instantiate","sender":"@deployer","code":"token","label":"tka","msg":{"name":"Token A","symbol":"TKA","decimals":6,"initial_balances":[{"address":"@alice","balance":"1000000"}]}}`,
	`{"kind":"instantiate","sender":"@deployer","code":"token","label":"tkb","msg":{"name":"Token B","symbol":"TKB","decimals":6,"initial_balances":[{"address":"@alice","balance":"1000000"}]}}`,
	`{"kind":"execute","sender":"@deployer","contract":"@vault","msg":{"register_factory":{"factory_address":"@factory"}}}`,
	`{"kind":"execute","sender":"@alice","contract":"@factory","msg":{"create_pool":{"token_a":"@tka","token_b":"@tkb"}},"save":{"pool_ab":"pool"}}`,
	``,
	`# liquidity`,
	`{"kind":"execute","sender":"@alice","contract":"@factory","msg":{"create_pool":{"token_a":"@tkb","token_b":"@tka"}},"expect_error":"pair exists"}`,
	`{"kind":"execute","sender":"@alice","contract":"@tka","msg":{"increase_allowance":{"spender":"@vault","amount":"1000000"}}}`,
	`{"kind":"execute","sender":"@alice","contract":"@tkb","msg":{"increase_allowance":{"spender":"@vault","amount":"1000000"}}}`,
	`{"kind":"execute","sender":"@alice","contract":"@vault","msg":{"add_liquidity":{"pool_address":"@pool_ab","token_a":"@tka","token_b":"@tkb","amount_a_desired":"10000","amount_b_desired":"9000","amount_a_min":"0","amount_b_min":"0","address_to":"@alice"}}}`,
	`{"kind":"query","contract":"@vault","msg":{"pool_data":{"pool_address":"@pool_ab"}},"expect":{"registered":true,"token0":"@tka","token1":"@tkb","reserve0":"10000","reserve1":"9000"}}`,
	`{"kind":"query","contract":"@pool_ab","msg":{"balance":{"address":"@alice"}},"expect":{"balance":8486}}`,
}

func writeScenario(t *testing.T, lines []string) []Op {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	ops, err := ReadOps(path)
	require.NoError(t, err)
	return ops
}

func newHost(kv storage.KV) (*host.Host, map[string]uint64) {
	h := host.New(kv, host.Options{Clock: func() time.Time { return time.Unix(1_700_000_000, 0) }}, nil)
	return h, RegisterCodes(h, nil, nil)
}

func TestRunnerBootstrapScenario(t *testing.T) {
	ops := writeScenario(t, bootstrap)
	require.Len(t, ops, 12)

	h, codes := newHost(storage.NewMemoryKV())
	cpPath := filepath.Join(t.TempDir(), "cp", "scenario.json")
	r := NewRunner(RunConfig{BatchSize: 4, CheckpointPath: cpPath, CheckpointEnabled: true}, h, codes, nil)

	summary, err := r.Run(context.Background(), ops)
	require.NoError(t, err)
	require.Equal(t, 12, summary.Applied)
	require.Equal(t, 1, summary.Expected)
	require.NotZero(t, summary.Height)

	cp, ok, err := NewCheckpointStore(cpPath, true).Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(12), cp.NextOp)
	require.Equal(t, summary.Height, cp.Height)
	require.Contains(t, cp.Labels, "pool_ab")
	require.Equal(t, r.Resolver().Labels()["pool_ab"], cp.Labels["pool_ab"])
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	ops := writeScenario(t, bootstrap)
	h, codes := newHost(storage.NewMemoryKV())
	cpPath := filepath.Join(t.TempDir(), "scenario.json")
	cfg := RunConfig{BatchSize: 3, CheckpointPath: cpPath, CheckpointEnabled: true}

	first, err := NewRunner(cfg, h, codes, nil).Run(context.Background(), ops[:6])
	require.NoError(t, err)
	require.Equal(t, 6, first.Applied)

	second, err := NewRunner(cfg, h, codes, nil).Run(context.Background(), ops)
	require.NoError(t, err)
	require.Equal(t, uint64(6), second.Skipped)
	require.Equal(t, 6, second.Applied)
	require.Equal(t, 1, second.Expected)

	again, err := NewRunner(cfg, h, codes, nil).Run(context.Background(), ops)
	require.NoError(t, err)
	require.Zero(t, again.Applied)
}

func TestRunnerUnexpectedOutcomes(t *testing.T) {
	cases := map[string]string{
		"missing failure": `{"kind":"execute","sender":"@deployer","contract":"@vault","msg":{"register_factory":{"factory_address":"@factory"}},"expect_error":"unauthorized"}`,
		"wrong failure":   `{"kind":"execute","sender":"@alice","contract":"@vault","msg":{"register_factory":{"factory_address":"@factory"}},"expect_error":"pair exists"}`,
		"wrong answer":    `{"kind":"query","contract":"@vault","msg":{"config":{}},"expect":{"fee_bps":25}}`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			ops := writeScenario(t, append(append([]string{}, bootstrap[1:3]...), line))
			h, codes := newHost(storage.NewMemoryKV())
			summary, err := NewRunner(RunConfig{BatchSize: 10}, h, codes, nil).Run(context.Background(), ops)
			require.ErrorIs(t, err, ErrUnexpectedOutcome)
			require.Equal(t, 2, summary.Applied)
		})
	}
}

func TestRunnerStopsOnHandledFailure(t *testing.T) {
	ops := writeScenario(t, append(append([]string{}, bootstrap[1:7]...),
		`{"kind":"execute","sender":"@alice","contract":"@vault","msg":{"add_liquidity":{"pool_address":"@pool_ab","token_a":"@tka","token_b":"@tkb","amount_a_desired":"10000","amount_b_desired":"9000","amount_a_min":"0","amount_b_min":"0","address_to":"@alice"}}}`,
	))
	h, codes := newHost(storage.NewMemoryKV())
	_, err := NewRunner(RunConfig{BatchSize: 10}, h, codes, nil).Run(context.Background(), ops)
	require.Error(t, err)
	require.Contains(t, err.Error(), "op 6 (execute)")
}

var errFlaky = errors.New("connection reset")

type flakyKV struct {
	*storage.MemoryKV
	mu       sync.Mutex
	failures int
}

func (f *flakyKV) Get(ctx context.Context, key []byte) ([]byte, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errFlaky
	}
	f.mu.Unlock()
	return f.MemoryKV.Get(ctx, key)
}

func TestRunnerRetriesStoreFailures(t *testing.T) {
	ops := writeScenario(t, bootstrap[1:2])
	kv := &flakyKV{MemoryKV: storage.NewMemoryKV()}
	h, codes := newHost(kv)
	retryable := func(err error) bool { return errors.Is(err, errFlaky) }

	kv.failures = 2
	cfg := RunConfig{BatchSize: 1, MaxRetries: 3, RetryBackoff: time.Millisecond, Retryable: retryable}
	summary, err := NewRunner(cfg, h, codes, nil).Run(context.Background(), ops)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Applied)

	kv.failures = 5
	cfg.MaxRetries = 1
	_, err = NewRunner(cfg, h, codes, nil).Run(context.Background(), ops)
	require.ErrorIs(t, err, errFlaky)

	kv.failures = 1
	cfg.Retryable = nil
	_, err = NewRunner(cfg, h, codes, nil).Run(context.Background(), ops)
	require.ErrorIs(t, err, errFlaky)
}

func TestReadOpsRejectsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	for name, line := range map[string]string{
		"unknown field": `{"kind":"query","contract":"@vault","msg":{},"extra":1}`,
		"unknown kind":  `{"kind":"migrate","contract":"@vault","msg":{}}`,
		"missing label": `{"kind":"instantiate","sender":"@a","code":"token","msg":{}}`,
		"missing msg":   `{"kind":"execute","sender":"@a","contract":"@vault"}`,
	} {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".jsonl")
		require.NoError(t, os.WriteFile(path, []byte(line), 0o644))
		_, err := ReadOps(path)
		require.Error(t, err, name)
		require.Contains(t, err.Error(), "line 1")
	}
}

func TestResultSaveNeedsAddress(t *testing.T) {
	r := NewRunner(RunConfig{BatchSize: 1}, nil, nil, nil)
	require.NoError(t, r.bind(map[string]string{"p": "pool"}, json.RawMessage(`{"pool":"0x00000000000000000000000000000000000000aa"}`)))
	require.Error(t, r.bind(map[string]string{"p": "pool"}, json.RawMessage(`{"pool":7}`)))
}
