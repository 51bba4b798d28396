package aggregate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ammVault/internal/model"
)

// Sink receives aggregated rows. *postgres.Store satisfies it.
type Sink interface {
	UpsertPools(ctx context.Context, pools []model.PoolRecord) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// JsonlSink appends rows to a JSONL file, one object per row keyed by its
// kind. Readers keep the last row per key.
type JsonlSink struct {
	Path string
}

type sinkRow struct {
	Pool   *model.PoolRecord        `json:"pool,omitempty"`
	Window *model.PoolWindowMetrics `json:"window,omitempty"`
}

func (s *JsonlSink) UpsertPools(_ context.Context, pools []model.PoolRecord) error {
	rows := make([]sinkRow, 0, len(pools))
	for i := range pools {
		rows = append(rows, sinkRow{Pool: &pools[i]})
	}
	return s.append(rows)
}

func (s *JsonlSink) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	rows := make([]sinkRow, 0, len(metrics))
	for i := range metrics {
		rows = append(rows, sinkRow{Window: &metrics[i]})
	}
	return s.append(rows)
}

func (s *JsonlSink) append(rows []sinkRow) error {
	if len(rows) == 0 {
		return nil
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
