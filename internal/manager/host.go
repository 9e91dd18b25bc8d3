package manager

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/types"
)

// Host is the environment a manager runs in. Reads are side-effect free; every external call
// that moves funds goes through Atomic.
type Host interface {
	// Atomic runs fn and commits every call it queued as one unit. When fn or the commit
	// fails nothing is applied. The returned reference identifies the committed unit.
	// An error matching types.ErrOutcomeUnknown means the unit may or may not have been
	// applied; the reference, when known, names the unit that was submitted.
	Atomic(ctx context.Context, fn func(Tx) error) (string, error)

	// PositionData returns the raw engine record of the position represented by positionMint.
	// A missing record yields types.ErrAccountNotFound.
	PositionData(ctx context.Context, positionMint solana.PublicKey) ([]byte, error)

	// TokenBalance returns the amount held by a token account.
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Tx queues external calls inside one Atomic unit.
type Tx interface {
	CreateVault(call VaultCall) error
	Transfer(call TransferCall) error
	DecreaseLiquidity(call WithdrawCall) error
	Swap(call SwapCall) error
	IncreaseLiquidity(call DepositCall) error
}

// VaultCall creates the token account Vault for (Owner, Mint).
type VaultCall struct {
	Owner solana.PublicKey
	Mint  solana.PublicKey
	Vault solana.PublicKey
}

// TransferCall moves Amount of Mint from Source to Destination, authorized by Authority.
type TransferCall struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Mint        solana.PublicKey
	Authority   solana.PublicKey
	Amount      uint64
}

// WithdrawCall removes Liquidity from the record's position into its vaults.
type WithdrawCall struct {
	Record     types.Manager
	Liquidity  uint128.Uint128
	MinAmountA uint64
	MinAmountB uint64
}

// SwapCall swaps an exact input between the record's vaults.
type SwapCall struct {
	Record       types.Manager
	AmountIn     uint64
	MinAmountOut uint64
	AToB         bool
	AuxAccounts  []solana.PublicKey
}

// DepositCall adds Liquidity to the record's position from its vaults.
// BaseFlag is always sent, letting the engine size the deposit from vault balances.
type DepositCall struct {
	Record     types.Manager
	Liquidity  uint128.Uint128
	MaxAmountA uint64
	MaxAmountB uint64
	BaseFlag   bool
}

// Store persists manager records and operation receipts.
type Store interface {
	// Create inserts a new record; an existing ID yields types.ErrManagerExists.
	Create(ctx context.Context, rec types.Manager) error
	// Get returns a copy of the record; a missing ID yields types.ErrAccountNotFound.
	Get(ctx context.Context, id solana.PublicKey) (types.Manager, error)
	// Update serializes access to one record and persists the changes made by fn only when fn
	// returns nil.
	Update(ctx context.Context, id solana.PublicKey, fn func(*types.Manager) error) error
	SaveReceipt(ctx context.Context, receipt types.OperationReceipt) error
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	ObserveOperation(op types.OperationType, success bool, elapsed time.Duration)
	SetLiquidity(managerID string, liquidity uint128.Uint128)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(types.OperationType, bool, time.Duration) {}
func (nopRecorder) SetLiquidity(string, uint128.Uint128)                     {}
