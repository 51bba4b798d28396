package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func runFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.String("store", "memory", "")
	fs.String("pg-dsn", "", "")
	fs.String("scenario", "", "")
	fs.Uint64("batch-size", 50, "")
	fs.Int("max-retries", 5, "")
	fs.StringSlice("label", nil, "")
	fs.String("log-level", "info", "")
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", runFlags(t, "--scenario", "ops.jsonl"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreMemory || cfg.BatchSize != 50 || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RetryBackoff != 500*time.Millisecond || !cfg.CheckpointEnabled {
		t.Fatalf("unexpected retry settings: %+v", cfg)
	}
	if cfg.Log.Level != "info" || cfg.Log.MaxSizeMB != 100 {
		t.Fatalf("unexpected log settings: %+v", cfg.Log)
	}
	if len(cfg.Labels) != 0 {
		t.Fatalf("unexpected labels: %v", cfg.Labels)
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("AMMVAULT_BATCH_SIZE", "7")
	t.Setenv("AMMVAULT_LOG_LEVEL", "debug")

	cfg, err := Load("", runFlags(t,
		"--scenario", "ops.jsonl",
		"--log-level", "warn",
		"--label", "vault=0x00000000000000000000000000000000000000a1, pool=0x00000000000000000000000000000000000000b2",
	))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 7 {
		t.Fatalf("env should set batch size, got %d", cfg.BatchSize)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("flag should win over env, got %s", cfg.Log.Level)
	}
	if cfg.Labels["vault"] != "0x00000000000000000000000000000000000000a1" || len(cfg.Labels) != 2 {
		t.Fatalf("unexpected labels: %v", cfg.Labels)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ammvault.yaml")
	body := "store: postgres\npg-dsn: postgres://localhost/ammvault\nscenario: ops.jsonl\nmax-depth: 8\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StorePostgres || cfg.Postgres.DSN == "" || cfg.MaxDepth != 8 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Postgres.Attempts != 5 || cfg.Postgres.AttemptDelay != time.Second {
		t.Fatalf("unexpected postgres defaults: %+v", cfg.Postgres)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "no scenario", args: nil, want: "scenario path"},
		{name: "unknown store", args: []string{"--scenario", "x", "--store", "badger"}, want: "unknown store"},
		{name: "postgres without dsn", args: []string{"--scenario", "x", "--store", "postgres"}, want: "pg-dsn"},
		{name: "zero batch", args: []string{"--scenario", "x", "--batch-size", "0"}, want: "batch-size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load("", runFlags(t, tc.args...))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadAggregate(t *testing.T) {
	fs := pflag.NewFlagSet("aggregate", pflag.ContinueOnError)
	fs.String("sink", "postgres", "")
	fs.String("window", "5m", "")
	fs.String("state-file", "", "")
	fs.String("recompute-from", "", "")
	if err := fs.Parse([]string{"--sink", "jsonl", "--window", "1h", "--state-file", "state.json", "--recompute-from", "2024-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadAggregate("", fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WindowSeconds != 3600 || cfg.Sink != SinkJSONL || cfg.RecomputeFrom != 1704067200 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Input == "" || cfg.Out == "" || cfg.BatchSize != 1000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadAggregateNeedsState(t *testing.T) {
	fs := pflag.NewFlagSet("aggregate", pflag.ContinueOnError)
	fs.String("sink", "postgres", "")
	if err := fs.Parse([]string{"--sink", "jsonl"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := LoadAggregate("", fs); err == nil || !strings.Contains(err.Error(), "state-file") {
		t.Fatalf("expected state-file error, got %v", err)
	}
}

func TestParseWindow(t *testing.T) {
	if got, err := ParseWindow("90s"); err != nil || got != 90 {
		t.Fatalf("unexpected window %d: %v", got, err)
	}
	for _, bad := range []string{"", "soon", "500ms", "-1m"} {
		if _, err := ParseWindow(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]uint64{
		"":                     0,
		"1700000000":           1700000000,
		" 42 ":                 42,
		"1970-01-01T00:01:00Z": 60,
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		if err != nil || got != want {
			t.Fatalf("ParseTimestamp(%q) = %d, %v", in, got, err)
		}
	}
	for _, bad := range []string{"yesterday", "1969-12-31T00:00:00Z"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLoadQuote(t *testing.T) {
	fs := pflag.NewFlagSet("quote", pflag.ContinueOnError)
	fs.String("amount-in", "", "")
	fs.String("amount-out", "", "")
	fs.String("reserve-in", "", "")
	fs.String("reserve-out", "", "")
	if err := fs.Parse([]string{"--amount-in", "100", "--reserve-in", "1000", "--reserve-out", "2000"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := LoadQuote("", fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Offline() || cfg.FeeBps != 30 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	fs = pflag.NewFlagSet("quote", pflag.ContinueOnError)
	fs.String("amount-in", "", "")
	fs.String("amount-out", "", "")
	if err := fs.Parse([]string{"--amount-in", "1", "--amount-out", "1"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := LoadQuote("", fs); err == nil {
		t.Fatalf("expected error when both amounts are set")
	}
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap(" a = 1 ,b=2,broken,=3,c=")
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Fatalf("unexpected map: %v", got)
	}
}
