package aggregate

import (
	"math/big"
	"time"
)

const ratioScale = 18

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(value, denom).FloatString(int(decimals))
}

func computeFeeRates(fee0, fee1, tvl0, tvl1 *big.Int) (*string, *string) {
	var feeRate0, feeRate1 *string
	if rate := computeRateFromInt(fee0, tvl0); rate != "" {
		feeRate0 = &rate
	}
	if rate := computeRateFromInt(fee1, tvl1); rate != "" {
		feeRate1 = &rate
	}
	return feeRate0, feeRate1
}

func computeRateFromInt(fee, tvl *big.Int) string {
	if fee == nil || fee.Sign() == 0 || tvl == nil || tvl.Sign() == 0 {
		return ""
	}
	return new(big.Rat).SetFrac(fee, tvl).FloatString(ratioScale)
}

// computeAPR annualizes the window fee rate. Each side holds half of the
// pool value at the pool price, so the pool rate is (rate0 + rate1) / 2.
func computeAPR(feeRate0, feeRate1 *string, windowSeconds uint64) *string {
	if windowSeconds == 0 {
		return nil
	}
	var rates []*big.Rat
	for _, s := range []*string{feeRate0, feeRate1} {
		if s == nil {
			continue
		}
		rat, ok := new(big.Rat).SetString(*s)
		if !ok {
			return nil
		}
		rates = append(rates, rat)
	}
	if len(rates) == 0 {
		return nil
	}

	rate := new(big.Rat)
	for _, r := range rates {
		rate.Add(rate, r)
	}
	rate.Quo(rate, big.NewRat(2, 1))

	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	apr := new(big.Rat).Mul(rate, yearSeconds)
	apr.Quo(apr, big.NewRat(int64(windowSeconds), 1))
	val := apr.FloatString(ratioScale)
	return &val
}
