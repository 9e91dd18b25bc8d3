/*

This file contains the request and receipt types for the operations that move a position
through its withdraw -> swap -> deposit lifecycle.

*/

package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// OperationType names each entry point of the manager.
type OperationType string

const (
	OpInitialize       OperationType = "INITIALIZE"
	OpFundVaults       OperationType = "FUND_VAULTS"
	OpRemoveLiquidity  OperationType = "REMOVE_LIQUIDITY"
	OpSwap             OperationType = "SWAP"
	OpAddLiquidity     OperationType = "ADD_LIQUIDITY"
	OpRegisterPosition OperationType = "REGISTER_POSITION"
)

// Accounts are the external references a caller passes alongside an operation.
// Zero-valued fields are not checked; every non-zero field must match the manager record.
type Accounts struct {
	Pool     solana.PublicKey `json:"pool,omitempty"`
	MintA    solana.PublicKey `json:"mint_a,omitempty"`
	MintB    solana.PublicKey `json:"mint_b,omitempty"`
	VaultA   solana.PublicKey `json:"vault_a,omitempty"`
	VaultB   solana.PublicKey `json:"vault_b,omitempty"`
	Position solana.PublicKey `json:"position,omitempty"`
}

// InitializeRequest creates a manager for a pool.
type InitializeRequest struct {
	Pool      solana.PublicKey
	MintA     solana.PublicKey
	MintB     solana.PublicKey
	Executor  solana.PublicKey
	Custodian solana.PublicKey
	LowerTick int32
	UpperTick int32
}

// FundRequest moves caller balances into the manager vaults.
type FundRequest struct {
	Accounts
	SourceA solana.PublicKey // Caller-owned token account for mint A
	SourceB solana.PublicKey // Caller-owned token account for mint B
	AmountA uint64
	AmountB uint64
}

// WithdrawRequest removes all deployed liquidity.
// Expected amounts are optional; when set they become slippage floors.
type WithdrawRequest struct {
	Accounts
	ExpectedAmountA uint64
	ExpectedAmountB uint64
}

// SwapRequest swaps an exact input amount through the engine.
type SwapRequest struct {
	Accounts
	AmountIn          uint64
	ExpectedAmountOut uint64             // Optional; zero keeps the floor at zero
	AuxAccounts       []solana.PublicKey // Engine routing accounts, forwarded in order
}

// DepositRequest redeploys the cached liquidity.
type DepositRequest struct {
	Accounts
}

// RegisterRequest re-points the manager at an externally minted position.
type RegisterRequest struct {
	Accounts
	PositionMint solana.PublicKey
	LowerTick    int32
	UpperTick    int32
}

// RebalanceRequest composes withdraw, an optional swap and deposit.
type RebalanceRequest struct {
	Accounts
	ExpectedAmountA   uint64
	ExpectedAmountB   uint64
	SwapAmountIn      uint64 // Zero skips the swap step
	ExpectedAmountOut uint64
	AuxAccounts       []solana.PublicKey
}

// OperationReceipt records the outcome of one operation.
type OperationReceipt struct {
	ReceiptID   int64         `json:"receipt_id,omitempty"` // Auto-incremented by DB
	OperationID string        `json:"operation_id"`
	ManagerID   string        `json:"manager_id"`
	Operation   OperationType `json:"operation"`
	Caller      string        `json:"caller"`
	Success     bool          `json:"success"`
	Message     string        `json:"message,omitempty"`
	TxReference string        `json:"tx_reference,omitempty"`
	Liquidity   string        `json:"liquidity,omitempty"`
	AmountA     uint64        `json:"amount_a,omitempty"` // Transfer amount, floor or maximum depending on operation
	AmountB     uint64        `json:"amount_b,omitempty"`
	AuxAccounts int           `json:"aux_accounts,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}
