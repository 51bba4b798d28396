// Package aggregate folds the vault event journal into per-pool window
// metrics: swap, add and remove counts, volumes, fees and closing reserves.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammVault/internal/model"
	"ammVault/internal/storage"
)

const (
	feeMethodVault  = "vault_fee_bps"
	tvlMethodSync   = "sync_reserves"
	tvlMethodLatest = "vault_reserves_latest"
	tvlMethodNone   = "unavailable"
)

// poolEvents are the vault events that describe a pool.
var poolEvents = map[string]struct{}{
	"register_pool":    {},
	"sync":             {},
	"swap":             {},
	"add_liquidity":    {},
	"remove_liquidity": {},
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	// RecomputeFrom rebuilds every window from the one holding this unix
	// time, ignoring saved progress.
	RecomputeFrom uint64
	// Vault restricts input to events of one vault; empty accepts all.
	Vault      string
	StateStore StateStore
}

type poolMeta struct {
	Token0    string
	Token1    string
	FeeBps    uint64
	FirstSeen uint64
}

// Aggregator aggregates journal events into pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         Sink
	querier      Querier
	logger       *zap.Logger
	decimals     *TokenDecimalsCache
	accumulators map[string]*Accumulator
	pools        map[string]poolMeta
	poolSeen     map[string]struct{}
}

// NewAggregator builds an Aggregator. The querier is optional; without it
// amounts stay in base units and pools must be registered in the journal.
func NewAggregator(cfg Config, sink Sink, querier Querier, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		querier:      querier,
		logger:       logger,
		decimals:     NewTokenDecimalsCache(),
		accumulators: make(map[string]*Accumulator),
		pools:        make(map[string]poolMeta),
		poolSeen:     make(map[string]struct{}),
	}
}

// Run aggregates a JSONL event journal.
func (a *Aggregator) Run(ctx context.Context, journalPath string) error {
	if a.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.PoolRecord, 0, 64)
	maxTs := startTs
	var total, aggregated, skipped, failed int

	err = storage.ReadEvents(journalPath, func(record model.EventRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		pool := poolKey(record.Attributes["pool"])
		if pool == "" || !a.accepts(record) {
			skipped++
			return nil
		}
		if record.EventName == "register_pool" {
			a.observePool(record, pool)
		}
		if record.Timestamp <= startTs {
			skipped++
			return nil
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		acc := a.accumulators[pool]
		if acc == nil {
			acc = NewAccumulator(record, pool, windowStart, windowEnd)
			a.accumulators[pool] = acc
		} else if acc.WindowStart != windowStart {
			metrics, poolRecord, err := a.flushAccumulator(ctx, acc)
			if err != nil {
				return err
			}
			if metrics != nil {
				batch = append(batch, *metrics)
				aggregated++
			}
			if poolRecord != nil {
				pools = append(pools, *poolRecord)
			}
			acc = NewAccumulator(record, pool, windowStart, windowEnd)
			a.accumulators[pool] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", pool), zap.String("event", record.EventName))
			return nil
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx, maxTs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	keys := make([]string, 0, len(a.accumulators))
	for key := range a.accumulators {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		metrics, poolRecord, err := a.flushAccumulator(ctx, a.accumulators[key])
		if err != nil {
			return err
		}
		if metrics != nil {
			batch = append(batch, *metrics)
			aggregated++
		}
		if poolRecord != nil {
			pools = append(pools, *poolRecord)
		}
	}

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	// Windows still open are written but may grow, so progress stops
	// before the earliest of them and the next run rebuilds them whole.
	if err := a.saveState(ctx, maxTs); err != nil {
		return err
	}
	a.accumulators = make(map[string]*Accumulator)

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", aggregated),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) accepts(record model.EventRecord) bool {
	if _, ok := poolEvents[record.EventName]; !ok {
		return false
	}
	return a.cfg.Vault == "" || strings.EqualFold(record.Contract, a.cfg.Vault)
}

func (a *Aggregator) observePool(record model.EventRecord, pool string) {
	var reg model.PoolRegisteredData
	if err := decodeAttributes(record, &reg); err != nil {
		a.logger.Warn("decode register_pool", zap.Error(err), zap.String("pool", pool))
		return
	}
	fee, err := strconv.ParseUint(reg.FeeBps, 10, 64)
	if err != nil {
		a.logger.Warn("register_pool fee", zap.Error(err), zap.String("pool", pool))
	}
	if _, ok := a.pools[pool]; ok {
		return
	}
	a.pools[pool] = poolMeta{Token0: reg.Token0, Token1: reg.Token1, FeeBps: fee, FirstSeen: record.Height}
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		start := windowStart(a.cfg.RecomputeFrom, a.cfg.WindowSeconds)
		if start == 0 {
			return 0, nil
		}
		return start - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context, processed uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	safeTs := processed
	if start, ok := minOpenWindowStart(a.accumulators); ok {
		safeTs = 0
		if start > 0 {
			safeTs = start - 1
		}
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.PoolRecord) error {
	if len(pools) > 0 {
		if err := a.sink.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PoolWindowMetrics, *model.PoolRecord, error) {
	if acc == nil {
		return nil, nil, nil
	}

	meta, ok := a.poolMeta(ctx, acc)
	if !ok {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil, nil
	}
	poolRecord := a.registerPool(acc, meta)

	decimals0 := a.tokenDecimals(ctx, meta.Token0)
	decimals1 := a.tokenDecimals(ctx, meta.Token1)

	var tvl0Str, tvl1Str *string
	tvl0, tvl1, tvlMethod, err := a.fetchTVL(ctx, acc)
	if err != nil {
		a.logger.Warn("tvl unavailable", zap.String("pool", acc.PoolAddress), zap.Error(err))
	} else {
		val0 := formatTokenAmount(tvl0, decimals0)
		val1 := formatTokenAmount(tvl1, decimals1)
		tvl0Str, tvl1Str = &val0, &val1
	}

	feeRate0, feeRate1 := computeFeeRates(acc.Fee0, acc.Fee1, tvl0, tvl1)
	metrics := &model.PoolWindowMetrics{
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		MintCount:      acc.MintCount,
		BurnCount:      acc.BurnCount,
		Volume0:        formatTokenAmount(acc.Volume0, decimals0),
		Volume1:        formatTokenAmount(acc.Volume1, decimals1),
		Fee0:           formatTokenAmount(acc.Fee0, decimals0),
		Fee1:           formatTokenAmount(acc.Fee1, decimals1),
		FeeRate0:       feeRate0,
		FeeRate1:       feeRate1,
		TVL0:           tvl0Str,
		TVL1:           tvl1Str,
		APR:            computeAPR(feeRate0, feeRate1, a.cfg.WindowSeconds),
		FeeMethod:      feeMethodVault,
		TVLMethod:      tvlMethod,
	}

	return metrics, poolRecord, nil
}

// poolMeta returns the registration data of a pool, asking the vault when
// the journal did not carry it.
func (a *Aggregator) poolMeta(ctx context.Context, acc *Accumulator) (poolMeta, bool) {
	if meta, ok := a.pools[acc.PoolAddress]; ok {
		return meta, true
	}
	if a.querier == nil {
		return poolMeta{}, false
	}
	data, err := a.fetchPoolData(ctx, acc.Vault, acc.PoolAddress)
	if err != nil {
		a.logger.Warn("pool meta lookup", zap.String("pool", acc.PoolAddress), zap.Error(err))
		return poolMeta{}, false
	}
	meta := poolMeta{
		Token0:    data.Token0.Hex(),
		Token1:    data.Token1.Hex(),
		FirstSeen: acc.FirstHeight,
	}
	a.pools[acc.PoolAddress] = meta
	return meta, true
}

func (a *Aggregator) registerPool(acc *Accumulator, meta poolMeta) *model.PoolRecord {
	if _, ok := a.poolSeen[acc.PoolAddress]; ok {
		return nil
	}
	a.poolSeen[acc.PoolAddress] = struct{}{}
	return &model.PoolRecord{
		Address:        acc.PoolAddress,
		Token0:         poolKey(meta.Token0),
		Token1:         poolKey(meta.Token1),
		FeeBps:         meta.FeeBps,
		FirstSeenBlock: meta.FirstSeen,
	}
}

// tokenDecimals returns 0, leaving amounts in base units, when the token
// cannot be asked.
func (a *Aggregator) tokenDecimals(ctx context.Context, tokenAddr string) uint8 {
	if a.querier == nil || !common.IsHexAddress(tokenAddr) {
		return 0
	}
	addr := common.HexToAddress(tokenAddr)
	if decimals, ok := a.decimals.Get(addr); ok {
		return decimals
	}
	decimals, err := FetchTokenDecimals(ctx, a.querier, addr)
	if err != nil {
		a.logger.Warn("token decimals", zap.String("token", tokenAddr), zap.Error(err))
		return 0
	}
	a.decimals.Set(addr, decimals)
	return decimals
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func minOpenWindowStart(acc map[string]*Accumulator) (uint64, bool) {
	var (
		earliest uint64
		found    bool
	)
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if !found || entry.WindowStart < earliest {
			earliest = entry.WindowStart
			found = true
		}
	}
	return earliest, found
}
