package amm

import "errors"

var (
	ErrInsufficientAmount     = errors.New("insufficient amount")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrInsufficientAAmount    = errors.New("insufficient a amount")
	ErrInsufficientBAmount    = errors.New("insufficient b amount")
	ErrCalculationOverflow    = errors.New("calculation overflow")
	ErrCalculationAmountError = errors.New("calculation amount error")
	ErrAddingLiquidityFailed  = errors.New("adding liquidity failed")
	ErrInvalidFee             = errors.New("fee bps must be below 10000")
)

// Kind classifies an error into the taxonomy used by callers for logging.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCalculationOverflow), errors.Is(err, ErrCalculationAmountError):
		return "arithmetic"
	case errors.Is(err, ErrAddingLiquidityFailed):
		return "workflow"
	default:
		return "validation"
	}
}
