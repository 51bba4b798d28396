package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Sinks accepted by --sink.
const (
	SinkPostgres = "postgres"
	SinkJSONL    = "jsonl"
)

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	Input         string
	WindowSeconds uint64
	Sink          string
	Out           string
	Store         string
	Postgres      Postgres
	BatchSize     int
	StateFile     string
	RecomputeFrom uint64
	Vault         string
	Log           Logging
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"in":         "./data/events.jsonl",
		"window":     "5m",
		"sink":       SinkPostgres,
		"out":        "./data/window_metrics.jsonl",
		"store":      StoreMemory,
		"batch-size": 1000,
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	window, err := ParseWindow(v.GetString("window"))
	if err != nil {
		return AggregateConfig{}, err
	}
	recomputeFrom, err := ParseTimestamp(v.GetString("recompute-from"))
	if err != nil {
		return AggregateConfig{}, fmt.Errorf("parse recompute-from: %w", err)
	}

	cfg := AggregateConfig{
		Input:         v.GetString("in"),
		WindowSeconds: window,
		Sink:          strings.ToLower(v.GetString("sink")),
		Out:           v.GetString("out"),
		Store:         strings.ToLower(v.GetString("store")),
		Postgres:      loadPostgres(v),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: recomputeFrom,
		Vault:         v.GetString("vault"),
		Log:           loadLogging(v),
	}
	if err := cfg.validate(); err != nil {
		return AggregateConfig{}, err
	}
	return cfg, nil
}

func (c AggregateConfig) validate() error {
	if c.Input == "" {
		return fmt.Errorf("input path is required")
	}
	switch c.Sink {
	case SinkPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres sink")
		}
	case SinkJSONL:
		if c.Out == "" {
			return fmt.Errorf("out path is required for the jsonl sink")
		}
		if c.StateFile == "" && c.Postgres.DSN == "" {
			return fmt.Errorf("state-file is required without postgres")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	return checkStore(c.Store, c.Postgres.DSN)
}

// ParseWindow parses an aggregation window such as 1m or 1h into whole seconds.
func ParseWindow(input string) (uint64, error) {
	d, err := time.ParseDuration(strings.TrimSpace(input))
	if err != nil {
		return 0, fmt.Errorf("invalid window: %w", err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("window must be at least 1s")
	}
	return uint64(d / time.Second), nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}

	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	if tm.Unix() < 0 {
		return 0, fmt.Errorf("timestamp %s is before the epoch", input)
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
