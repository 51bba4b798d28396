package vault

import (
	"errors"

	"ammVault/internal/amm"
	"ammVault/internal/codec"
	"ammVault/internal/token"
)

var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrUnauthorizedFactory      = errors.New("unauthorized factory")
	ErrPoolNotExisted           = errors.New("pool not existed")
	ErrFetchPoolData            = errors.New("fetch pool data error")
	ErrPoolAlreadyRegistered    = errors.New("pool already registered")
	ErrInvalidPair              = errors.New("token pair does not match pool")
	ErrInsufficientBalance      = errors.New("Insufficient Balance!")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	ErrExpired                  = errors.New("request expired")
	ErrMintTokenFailed          = errors.New("mint token failed")
	ErrBurnTokenFailed          = errors.New("burn token failed")
	ErrUpdateLiquidityFailed    = errors.New("update liquidity failed")
	ErrSwapFailed               = errors.New("swap failed")
	ErrReplyID                  = errors.New("unknown reply id")
	ErrReplyData                = errors.New("reply data error")
	ErrWorkflowInProgress       = errors.New("workflow in progress")
	ErrReplayedFailure          = errors.New("request already failed")
	ErrRequestIDConflict        = errors.New("request id already used")
)

// Kind classifies err for logs and workflow records.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnauthorizedFactory),
		errors.Is(err, token.ErrUnauthorized):
		return "authorization"
	case errors.Is(err, ErrPoolNotExisted), errors.Is(err, ErrFetchPoolData):
		return "lookup"
	case errors.Is(err, ErrMintTokenFailed), errors.Is(err, ErrBurnTokenFailed),
		errors.Is(err, ErrUpdateLiquidityFailed), errors.Is(err, ErrSwapFailed),
		errors.Is(err, ErrReplyID), errors.Is(err, ErrReplyData), errors.Is(err, ErrRequestIDConflict),
		errors.Is(err, amm.ErrAddingLiquidityFailed), errors.Is(err, codec.ErrMalformed):
		return "workflow"
	default:
		return amm.Kind(err)
	}
}
