package types

import "errors"

// Error kinds surfaced by manager operations. Callers match them with errors.Is;
// detail is attached with errors.Join so the kind is never lost.
var (
	ErrInvalidExecutor     = errors.New("invalid executor")
	ErrInvalidAccountData  = errors.New("account data is wrong")
	ErrInvalidTickRange    = errors.New("tick is in invalid range")
	ErrCalculationOverflow = errors.New("calculation overflow")
	ErrAccountNotFound     = errors.New("no account found")
	ErrInvalidPoolData     = errors.New("the pool data is invalid")
	ErrNoRebalanceNeeded   = errors.New("current tick is within range - no rebalance needed")

	ErrInvalidPrincipal     = errors.New("invalid principal")
	ErrAccountMismatch      = errors.New("account reference does not match manager record")
	ErrInvalidPositionState = errors.New("operation not allowed in current position state")
	ErrTooManyAuxAccounts   = errors.New("too many auxiliary accounts")
	ErrManagerExists        = errors.New("manager already initialized")
	ErrAwaitingPosition     = errors.New("liquidity withdrawn; waiting for a position covering the current tick")
	ErrOutcomeUnknown       = errors.New("external call outcome unknown")
)
