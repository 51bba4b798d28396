package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"ammVault/internal/model"
)

const bpsScale = 10_000

// Accumulator holds aggregate values for one pool window.
type Accumulator struct {
	Vault       string
	PoolAddress string
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	MintCount   uint64
	BurnCount   uint64
	Volume0     *big.Int
	Volume1     *big.Int
	Fee0        *big.Int
	Fee1        *big.Int
	// Reserve0 and Reserve1 are the last synced reserves in the window, nil
	// when the window saw no commit.
	Reserve0    *big.Int
	Reserve1    *big.Int
	FirstHeight uint64
	LastHeight  uint64
}

func NewAccumulator(record model.EventRecord, pool string, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Vault:       record.Contract,
		PoolAddress: pool,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		FirstHeight: record.Height,
		LastHeight:  record.Height,
	}
}

func (a *Accumulator) AddEvent(record model.EventRecord) error {
	if record.Height > a.LastHeight {
		a.LastHeight = record.Height
	}
	if a.FirstHeight == 0 || record.Height < a.FirstHeight {
		a.FirstHeight = record.Height
	}

	switch record.EventName {
	case "swap":
		var swap model.SwapEventData
		if err := decodeAttributes(record, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case "add_liquidity":
		var mint model.MintEventData
		if err := decodeAttributes(record, &mint); err != nil {
			return fmt.Errorf("decode add_liquidity: %w", err)
		}
		a.MintCount++
	case "remove_liquidity":
		var burn model.BurnEventData
		if err := decodeAttributes(record, &burn); err != nil {
			return fmt.Errorf("decode remove_liquidity: %w", err)
		}
		a.BurnCount++
	case "sync":
		var sync model.SyncEventData
		if err := decodeAttributes(record, &sync); err != nil {
			return fmt.Errorf("decode sync: %w", err)
		}
		reserve0, err := parseBigInt(sync.Reserve0)
		if err != nil {
			return err
		}
		reserve1, err := parseBigInt(sync.Reserve1)
		if err != nil {
			return err
		}
		a.Reserve0, a.Reserve1 = reserve0, reserve1
	}
	return nil
}

// applySwap adds both legs to the volumes and charges the fee on the input
// side.
func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	var amounts [4]*big.Int
	for i, raw := range []string{swap.Amount0In, swap.Amount1In, swap.Amount0Out, swap.Amount1Out} {
		v, err := parseBigInt(raw)
		if err != nil {
			return err
		}
		amounts[i] = v
	}
	in0, in1, out0, out1 := amounts[0], amounts[1], amounts[2], amounts[3]
	feeBps, err := parseBigInt(swap.FeeBps)
	if err != nil {
		return err
	}

	a.Volume0.Add(a.Volume0, in0).Add(a.Volume0, out0)
	a.Volume1.Add(a.Volume1, in1).Add(a.Volume1, out1)
	a.Fee0.Add(a.Fee0, feeFromAmount(in0, feeBps))
	a.Fee1.Add(a.Fee1, feeFromAmount(in1, feeBps))
	a.SwapCount++
	return nil
}

func decodeAttributes(record model.EventRecord, out interface{}) error {
	raw, err := json.Marshal(record.Attributes)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}

func feeFromAmount(amountIn, feeBps *big.Int) *big.Int {
	if amountIn == nil || feeBps == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amountIn, feeBps)
	return fee.Div(fee, big.NewInt(bpsScale))
}
