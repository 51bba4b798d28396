package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// PoolConfig holds configuration for the pool command.
type PoolConfig struct {
	Postgres Postgres
	Vault    string
	Pools    []string
	Log      Logging
}

// LoadPool merges config file, environment variables, and flags into PoolConfig.
func LoadPool(cfgFile string, flags *pflag.FlagSet) (PoolConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return PoolConfig{}, err
	}

	cfg := PoolConfig{
		Postgres: loadPostgres(v),
		Vault:    v.GetString("vault"),
		Pools:    getStringSlice(v, "pool"),
		Log:      loadLogging(v),
	}
	if cfg.Postgres.DSN == "" {
		return PoolConfig{}, fmt.Errorf("pg-dsn is required")
	}
	if cfg.Vault == "" {
		return PoolConfig{}, fmt.Errorf("vault address is required")
	}
	return cfg, nil
}

// QuoteConfig holds configuration for the quote command. Reserves are taken
// from the flags when both are set, otherwise read from the vault.
type QuoteConfig struct {
	AmountIn   string
	AmountOut  string
	ReserveIn  string
	ReserveOut string
	FeeBps     uint64
	Postgres   Postgres
	Vault      string
	Pool       string
	TokenIn    string
	Log        Logging
}

// Offline reports whether the quote needs no stored state.
func (c QuoteConfig) Offline() bool {
	return c.ReserveIn != "" && c.ReserveOut != ""
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"fee-bps": uint64(30),
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		AmountIn:   v.GetString("amount-in"),
		AmountOut:  v.GetString("amount-out"),
		ReserveIn:  v.GetString("reserve-in"),
		ReserveOut: v.GetString("reserve-out"),
		FeeBps:     v.GetUint64("fee-bps"),
		Postgres:   loadPostgres(v),
		Vault:      v.GetString("vault"),
		Pool:       v.GetString("pool"),
		TokenIn:    v.GetString("token-in"),
		Log:        loadLogging(v),
	}
	if (cfg.AmountIn == "") == (cfg.AmountOut == "") {
		return QuoteConfig{}, fmt.Errorf("exactly one of amount-in and amount-out is required")
	}
	if cfg.Offline() {
		return cfg, nil
	}
	if cfg.Postgres.DSN == "" || cfg.Vault == "" || cfg.Pool == "" || cfg.TokenIn == "" {
		return QuoteConfig{}, fmt.Errorf("reserve-in and reserve-out, or pg-dsn with vault, pool and token-in, are required")
	}
	return cfg, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	for _, pair := range strings.Split(input, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
