package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type WorkflowKind string

const (
	WorkflowAdd    WorkflowKind = "add_liquidity"
	WorkflowRemove WorkflowKind = "remove_liquidity"
	WorkflowSwap   WorkflowKind = "swap"
)

type WorkflowStatus string

const (
	StatusPending     WorkflowStatus = "pending"
	StatusCompleted   WorkflowStatus = "completed"
	StatusCompensated WorkflowStatus = "compensated"
)

// Terminal reports whether no further step will run.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCompensated
}

// Workflow is the persisted state of a multi-step vault operation.
type Workflow struct {
	ID        uint64         `json:"id"`
	RequestID string         `json:"request_id,omitempty"`
	Kind      WorkflowKind   `json:"kind"`
	Step      string         `json:"step"`
	Status    WorkflowStatus `json:"status"`
	Pool      common.Address `json:"pool"`
	Caller    common.Address `json:"caller"`
	To        common.Address `json:"to"`
	// TokenIn and TokenOut are set for swaps.
	TokenIn  common.Address `json:"token_in,omitempty"`
	TokenOut common.Address `json:"token_out,omitempty"`
	// Amount0 and Amount1 are in registered token order. For swaps they hold
	// amount in and amount out.
	Amount0   *uint256.Int `json:"amount0"`
	Amount1   *uint256.Int `json:"amount1"`
	Liquidity *uint256.Int `json:"liquidity,omitempty"`
	// Collected lists the steps whose side effects need compensation on failure.
	Collected []string `json:"collected,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"`
	StartedAt uint64   `json:"started_at"`
	EndedAt   uint64   `json:"ended_at,omitempty"`
}

// HasCollected reports whether step was recorded as executed.
func (w *Workflow) HasCollected(step string) bool {
	for _, s := range w.Collected {
		if s == step {
			return true
		}
	}
	return false
}
