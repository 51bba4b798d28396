package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammVault/internal/host"
)

// ErrUnexpectedOutcome reports an operation whose result differs from what
// the scenario declared.
var ErrUnexpectedOutcome = errors.New("unexpected outcome")

// RunConfig holds runtime settings for the scenario runner.
type RunConfig struct {
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	// Retryable selects store failures worth another attempt. Handled
	// contract failures are never retried.
	Retryable func(error) bool
}

// Summary counts what a run did.
type Summary struct {
	Applied  int    `json:"applied"`
	Expected int    `json:"expected_failures"`
	Skipped  uint64 `json:"skipped"`
	Height   uint64 `json:"height"`
}

// Runner applies scenario operations to a host.
type Runner struct {
	cfg        RunConfig
	host       *host.Host
	resolver   *Resolver
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, h *host.Host, codes map[string]uint64, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		host:       h,
		resolver:   NewResolver(codes),
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

func (r *Runner) Resolver() *Resolver {
	return r.resolver
}

// Run applies ops in batches, resuming after the last checkpoint.
func (r *Runner) Run(ctx context.Context, ops []Op) (Summary, error) {
	var summary Summary
	if r.host == nil {
		return summary, fmt.Errorf("host is nil")
	}
	if r.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}
	if len(ops) == 0 {
		r.logger.Info("scenario is empty")
		return summary, nil
	}

	var from uint64
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return summary, err
	}
	if ok {
		from = cp.NextOp
		for label, addr := range cp.Labels {
			r.resolver.Bind(label, addr)
		}
		summary.Skipped = from
		summary.Height = cp.Height
		r.logger.Info("resume from checkpoint", zap.Uint64("next_op", cp.NextOp), zap.Int("labels", len(cp.Labels)))
	}

	last := uint64(len(ops)) - 1
	if from > last {
		r.logger.Info("nothing to apply", zap.Uint64("next_op", from), zap.Int("ops", len(ops)))
		return summary, nil
	}

	spans, err := SplitRange(from, last, r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	for _, span := range spans {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		expectedBefore := summary.Expected
		for i := span.From; i <= span.To; i++ {
			op := ops[i]
			height, expected, err := r.apply(ctx, op)
			if err != nil {
				return summary, fmt.Errorf("op %d (%s): %w", i, op.Kind, err)
			}
			summary.Applied++
			if expected {
				summary.Expected++
			}
			if height > summary.Height {
				summary.Height = height
			}
		}

		err := r.checkpoint.Save(Checkpoint{
			NextOp: span.To + 1,
			Height: summary.Height,
			Labels: r.resolver.Labels(),
		})
		if err != nil {
			return summary, err
		}

		r.logger.Info("batch complete",
			zap.Uint64("from", span.From),
			zap.Uint64("to", span.To),
			zap.Int("expected_failures", summary.Expected-expectedBefore),
			zap.Uint64("height", summary.Height),
		)
	}

	return summary, nil
}

// apply runs one operation and reports the block height it produced and
// whether it failed the way the scenario declared.
func (r *Runner) apply(ctx context.Context, op Op) (uint64, bool, error) {
	msg, err := r.resolver.Expand(op.Msg)
	if err != nil {
		return 0, false, err
	}

	var (
		sender   common.Address
		contract common.Address
		codeID   uint64
	)
	if op.Sender != "" {
		if sender, err = r.resolver.Address(op.Sender); err != nil {
			return 0, false, err
		}
	}
	if op.Contract != "" {
		if contract, err = r.resolver.Address(op.Contract); err != nil {
			return 0, false, err
		}
	}
	if op.Kind == OpInstantiate {
		if codeID, err = r.resolver.Code(op.Code); err != nil {
			return 0, false, err
		}
	}

	var (
		res    *host.Result
		answer json.RawMessage
	)
	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		res, answer = nil, nil
		switch op.Kind {
		case OpInstantiate:
			res, err = r.host.Instantiate(ctx, sender, codeID, op.Label, msg)
		case OpExecute:
			res, err = r.host.Execute(ctx, sender, contract, msg)
		case OpQuery:
			answer, err = r.host.Query(ctx, contract, msg)
		default:
			err = fmt.Errorf("unknown op kind %q", op.Kind)
		}
		if err == nil {
			return nil
		}
		// a result means the block committed
		if res != nil || r.cfg.Retryable == nil || !r.cfg.Retryable(err) {
			return permanent(err)
		}
		r.logger.Warn("operation failed, retrying", zap.String("kind", string(op.Kind)), zap.Error(err))
		return err
	})

	var height uint64
	if res != nil {
		height = res.Height
	}
	if op.ExpectError != "" {
		if err == nil {
			return height, false, fmt.Errorf("%w: expected error containing %q", ErrUnexpectedOutcome, op.ExpectError)
		}
		if !strings.Contains(err.Error(), op.ExpectError) {
			return height, false, fmt.Errorf("%w: expected error containing %q, got: %w", ErrUnexpectedOutcome, op.ExpectError, err)
		}
		r.logger.Debug("expected failure", zap.String("kind", string(op.Kind)), zap.Error(err))
		return height, true, nil
	}
	if err != nil {
		return height, false, err
	}

	data := answer
	if res != nil {
		data = res.Data
		r.logger.Debug("op applied",
			zap.String("kind", string(op.Kind)),
			zap.Uint64("height", res.Height),
			zap.Int("events", len(res.Events)),
		)
	}
	if op.Kind == OpInstantiate {
		r.resolver.Bind(op.Label, res.Address)
	}
	if err := r.bind(op.Save, data); err != nil {
		return height, false, err
	}
	if err := r.check(op.Expect, data); err != nil {
		return height, false, err
	}
	return height, false, nil
}

func (r *Runner) bind(save map[string]string, data []byte) error {
	if len(save) == 0 {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode result for save: %w", err)
	}
	for label, field := range save {
		value, ok := fields[field].(string)
		if !ok || !common.IsHexAddress(value) {
			return fmt.Errorf("result field %q is not an address", field)
		}
		r.resolver.Bind(label, common.HexToAddress(value))
	}
	return nil
}

func (r *Runner) check(expect json.RawMessage, data []byte) error {
	if len(expect) == 0 {
		return nil
	}
	expanded, err := r.resolver.Expand(expect)
	if err != nil {
		return err
	}
	want, err := decodeJSON(expanded)
	if err != nil {
		return err
	}
	got, err := decodeJSON(data)
	if err != nil {
		return fmt.Errorf("%w: result is not json: %w", ErrUnexpectedOutcome, err)
	}
	if !matches(want, got) {
		return fmt.Errorf("%w: want %s, got %s", ErrUnexpectedOutcome, expanded, data)
	}
	return nil
}
