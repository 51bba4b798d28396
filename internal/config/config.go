package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AMMVAULT"

// Store backends accepted by --store.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Logging holds the log settings every command accepts.
type Logging struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Postgres holds the connection settings for the postgres backend.
type Postgres struct {
	DSN          string
	Attempts     int
	AttemptDelay time.Duration
}

// Config holds configuration for the run command.
type Config struct {
	Store             string
	Postgres          Postgres
	Scenario          string
	Journal           string
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxDepth          int
	MetricsOut        string
	// Labels seeds scenario labels with known addresses, name=0x...
	Labels map[string]string
	Log    Logging
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"store":              StoreMemory,
		"journal":            "./data/events.jsonl",
		"batch-size":         uint64(50),
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Store:             strings.ToLower(v.GetString("store")),
		Postgres:          loadPostgres(v),
		Scenario:          v.GetString("scenario"),
		Journal:           v.GetString("journal"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MaxDepth:          v.GetInt("max-depth"),
		MetricsOut:        v.GetString("metrics-out"),
		Labels:            getStringMap(v, "label"),
		Log:               loadLogging(v),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := checkStore(c.Store, c.Postgres.DSN); err != nil {
		return err
	}
	if c.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch-size must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	return nil
}

func checkStore(store, dsn string) error {
	switch store {
	case StoreMemory:
		return nil
	case StorePostgres:
		if dsn == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
		return nil
	default:
		return fmt.Errorf("unknown store %q", store)
	}
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("log-max-size-mb", 100)
	v.SetDefault("log-max-backups", 3)
	v.SetDefault("pg-attempts", 5)
	v.SetDefault("pg-attempt-delay", time.Second)
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadLogging(v *viper.Viper) Logging {
	return Logging{
		Level:      v.GetString("log-level"),
		File:       v.GetString("log-file"),
		MaxSizeMB:  v.GetInt("log-max-size-mb"),
		MaxBackups: v.GetInt("log-max-backups"),
	}
}

func loadPostgres(v *viper.Viper) Postgres {
	return Postgres{
		DSN:          v.GetString("pg-dsn"),
		Attempts:     v.GetInt("pg-attempts"),
		AttemptDelay: v.GetDuration("pg-attempt-delay"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
