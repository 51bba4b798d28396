package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"ammVault/internal/amm"
	"ammVault/internal/config"
	"ammVault/internal/vault"
)

func newPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Show the vault ledger rows of registered pools",
		RunE:  runPool,
	}

	cmd.Flags().String("vault", "", "vault address")
	cmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated), empty lists every pool")
	return cmd
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against given or stored reserves",
		RunE:  runQuote,
	}

	cmd.Flags().String("amount-in", "", "exact input amount")
	cmd.Flags().String("amount-out", "", "exact output amount")
	cmd.Flags().String("reserve-in", "", "reserve of the input token")
	cmd.Flags().String("reserve-out", "", "reserve of the output token")
	cmd.Flags().Uint64("fee-bps", 30, "swap fee in basis points when reserves are given")
	cmd.Flags().String("vault", "", "vault address")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("token-in", "", "input token address")
	return cmd
}

func runPool(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPool(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	vaultAddr, err := hexAddress("vault", cfg.Vault)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer store.Close()
	h := openHost(store, logger)

	if len(cfg.Pools) == 0 {
		raw, err := h.Query(ctx, vaultAddr, vault.QueryPools())
		if err != nil {
			return err
		}
		return printJSON(cmd, raw)
	}

	rows := make([]json.RawMessage, 0, len(cfg.Pools))
	for _, p := range cfg.Pools {
		poolAddr, err := hexAddress("pool", p)
		if err != nil {
			return err
		}
		raw, err := h.Query(ctx, vaultAddr, vault.QueryPoolData(poolAddr))
		if err != nil {
			return fmt.Errorf("pool %s: %w", p, err)
		}
		rows = append(rows, raw)
	}
	return printJSON(cmd, rows)
}

type quoteResult struct {
	AmountIn   *uint256.Int `json:"amount_in"`
	AmountOut  *uint256.Int `json:"amount_out"`
	ReserveIn  *uint256.Int `json:"reserve_in"`
	ReserveOut *uint256.Int `json:"reserve_out"`
	FeeBps     uint64       `json:"fee_bps"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	res := quoteResult{FeeBps: cfg.FeeBps}
	if cfg.Offline() {
		if res.ReserveIn, err = amm.ParseAmount(cfg.ReserveIn); err != nil {
			return err
		}
		if res.ReserveOut, err = amm.ParseAmount(cfg.ReserveOut); err != nil {
			return err
		}
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		vaultAddr, err := hexAddress("vault", cfg.Vault)
		if err != nil {
			return err
		}
		poolAddr, err := hexAddress("pool", cfg.Pool)
		if err != nil {
			return err
		}
		tokenIn, err := hexAddress("token-in", cfg.TokenIn)
		if err != nil {
			return err
		}

		store, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer store.Close()
		h := openHost(store, logger)

		var vcfg vault.ConfigResponse
		raw, err := h.Query(ctx, vaultAddr, vault.QueryConfig())
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &vcfg); err != nil {
			return err
		}
		var data vault.PoolDataResponse
		if raw, err = h.Query(ctx, vaultAddr, vault.QueryPoolData(poolAddr)); err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return err
		}
		if !data.Registered {
			return fmt.Errorf("pool %s is not registered", poolAddr.Hex())
		}

		res.FeeBps = vcfg.FeeBps
		switch tokenIn {
		case data.Token0:
			res.ReserveIn, res.ReserveOut = data.Reserve0, data.Reserve1
		case data.Token1:
			res.ReserveIn, res.ReserveOut = data.Reserve1, data.Reserve0
		default:
			return fmt.Errorf("token %s is not traded by pool %s", tokenIn.Hex(), poolAddr.Hex())
		}
	}

	if cfg.AmountIn != "" {
		if res.AmountIn, err = amm.ParseAmount(cfg.AmountIn); err != nil {
			return err
		}
		res.AmountOut, err = amm.AmountOut(res.AmountIn, res.ReserveIn, res.ReserveOut, res.FeeBps)
	} else {
		if res.AmountOut, err = amm.ParseAmount(cfg.AmountOut); err != nil {
			return err
		}
		res.AmountIn, err = amm.AmountIn(res.AmountOut, res.ReserveIn, res.ReserveOut, res.FeeBps)
	}
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func hexAddress(name, input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", name, input)
	}
	return common.HexToAddress(input), nil
}
