package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/codec"
	"github.com/elys-network/lpm/internal/logger"
	"github.com/elys-network/lpm/internal/types"
	"github.com/elys-network/lpm/internal/utils"
)

// ManagerSeed prefixes the program address of every manager record.
const ManagerSeed = "manager-v6"

// Manager coordinates the privileged operations on manager records.
type Manager struct {
	logger    zerolog.Logger
	host      Host
	store     Store
	recorder  Recorder
	programID solana.PublicKey
	params    types.RebalanceParameters
	now       func() time.Time
}

// Config holds the configuration for creating a new Manager instance
type Config struct {
	Host      Host
	Store     Store
	Recorder  Recorder // Optional
	ProgramID solana.PublicKey
	Params    types.RebalanceParameters
	Clock     func() time.Time // Optional, defaults to time.Now
}

// NewManager creates a new Manager with dependency injection
func NewManager(cfg Config) (*Manager, error) {
	if err := validateManagerConfig(cfg); err != nil {
		return nil, fmt.Errorf("manager configuration validation failed: %w", err)
	}

	m := &Manager{
		logger:    logger.GetForComponent("manager"),
		host:      cfg.Host,
		store:     cfg.Store,
		recorder:  cfg.Recorder,
		programID: cfg.ProgramID,
		params:    cfg.Params,
		now:       cfg.Clock,
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.logger.Info().
		Str("programId", m.programID.String()).
		Uint64("headroomPercent", m.params.DepositHeadroomPercent).
		Bool("swapAToB", m.params.SwapAToB).
		Int("maxAuxAccounts", m.params.MaxAuxAccounts).
		Msg("Manager created")

	return m, nil
}

// validateManagerConfig validates the manager configuration
func validateManagerConfig(cfg Config) error {
	if cfg.Host == nil {
		return errors.New("host cannot be nil")
	}
	if cfg.Store == nil {
		return errors.New("store cannot be nil")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program ID cannot be zero")
	}
	if cfg.Params.DepositHeadroomPercent == 0 {
		return errors.New("deposit headroom percent must be positive")
	}
	if cfg.Params.WithdrawSlippageBps > utils.BasisPoints || cfg.Params.SwapSlippageBps > utils.BasisPoints {
		return errors.New("slippage basis points cannot exceed 10000")
	}
	if cfg.Params.MaxAuxAccounts < 0 {
		return errors.New("max aux accounts cannot be negative")
	}
	return nil
}

// DeriveManagerID returns the program address of the manager for pool.
func DeriveManagerID(programID, pool solana.PublicKey) (solana.PublicKey, error) {
	id, _, err := solana.FindProgramAddress([][]byte{[]byte(ManagerSeed), pool.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive manager address: %w", err)
	}
	return id, nil
}

// IDFor returns the manager ID for pool under the configured program.
func (m *Manager) IDFor(pool solana.PublicKey) (solana.PublicKey, error) {
	return DeriveManagerID(m.programID, pool)
}

// Params returns the operating parameters.
func (m *Manager) Params() types.RebalanceParameters {
	return m.params
}

// Get returns the current record.
func (m *Manager) Get(ctx context.Context, id solana.PublicKey) (types.Manager, error) {
	return m.store.Get(ctx, id)
}

// Initialize creates the manager record for req.Pool and both custodial vaults.
// The caller becomes the principal.
func (m *Manager) Initialize(ctx context.Context, caller solana.PublicKey, req types.InitializeRequest) (types.OperationReceipt, error) {
	id, err := m.IDFor(req.Pool)
	if err != nil {
		return m.finish(ctx, m.newReceipt(types.OpInitialize, caller, solana.PublicKey{}), err)
	}
	rcpt := m.newReceipt(types.OpInitialize, caller, id)

	rec, err := m.buildRecord(id, caller, req)
	if err != nil {
		return m.finish(ctx, rcpt, err)
	}

	if _, err := m.store.Get(ctx, id); err == nil {
		return m.finish(ctx, rcpt, errors.Join(types.ErrManagerExists, fmt.Errorf("manager %s", id)))
	} else if !errors.Is(err, types.ErrAccountNotFound) {
		return m.finish(ctx, rcpt, err)
	}

	ref, err := m.host.Atomic(ctx, func(tx Tx) error {
		if err := tx.CreateVault(VaultCall{Owner: rec.Custodian, Mint: rec.MintA, Vault: rec.VaultA}); err != nil {
			return fmt.Errorf("create vault A: %w", err)
		}
		if err := tx.CreateVault(VaultCall{Owner: rec.Custodian, Mint: rec.MintB, Vault: rec.VaultB}); err != nil {
			return fmt.Errorf("create vault B: %w", err)
		}
		return nil
	})
	if err != nil {
		return m.finish(ctx, rcpt, err)
	}
	rcpt.TxReference = ref

	if err := m.store.Create(ctx, rec); err != nil {
		return m.finish(ctx, rcpt, err)
	}
	rcpt.Liquidity = rec.Liquidity.String()
	return m.finish(ctx, rcpt, nil)
}

func (m *Manager) buildRecord(id, caller solana.PublicKey, req types.InitializeRequest) (types.Manager, error) {
	if caller.IsZero() {
		return types.Manager{}, errors.Join(types.ErrInvalidPrincipal, errors.New("caller is required"))
	}
	if req.Executor.IsZero() || req.Executor.Equals(caller) {
		return types.Manager{}, errors.Join(types.ErrInvalidExecutor, errors.New("executor must be set and differ from the principal"))
	}
	if err := types.ValidateRange(req.LowerTick, req.UpperTick); err != nil {
		return types.Manager{}, err
	}
	if req.Pool.IsZero() || req.MintA.IsZero() || req.MintB.IsZero() || req.Custodian.IsZero() {
		return types.Manager{}, errors.Join(types.ErrInvalidAccountData, errors.New("pool, mints and custodian are required"))
	}
	if req.MintA.Equals(req.MintB) {
		return types.Manager{}, errors.Join(types.ErrInvalidAccountData, errors.New("mint A and mint B must differ"))
	}

	vaultA, _, err := solana.FindAssociatedTokenAddress(req.Custodian, req.MintA)
	if err != nil {
		return types.Manager{}, fmt.Errorf("derive vault A: %w", err)
	}
	vaultB, _, err := solana.FindAssociatedTokenAddress(req.Custodian, req.MintB)
	if err != nil {
		return types.Manager{}, fmt.Errorf("derive vault B: %w", err)
	}

	return types.Manager{
		ID:        id,
		Principal: caller,
		Executor:  req.Executor,
		Custodian: req.Custodian,
		Pool:      req.Pool,
		MintA:     req.MintA,
		MintB:     req.MintB,
		VaultA:    vaultA,
		VaultB:    vaultB,
		LowerTick: req.LowerTick,
		UpperTick: req.UpperTick,
		Liquidity: uint128.Zero,
		State:     types.PositionUnregistered,
	}, nil
}

// RegisterPosition re-points the manager at an externally minted position and range.
// Earlier registrations are overwritten. The range must be the one the position was opened
// with. An idle manager stays idle so the cached liquidity can be deposited into the new
// position.
func (m *Manager) RegisterPosition(ctx context.Context, caller, id solana.PublicKey, req types.RegisterRequest) (types.OperationReceipt, error) {
	rcpt := m.newReceipt(types.OpRegisterPosition, caller, id)

	err := m.store.Update(ctx, id, func(rec *types.Manager) error {
		if err := requirePrincipal(rec, caller); err != nil {
			return err
		}
		// The position reference is being replaced, so only the other references are compared.
		acc := req.Accounts
		acc.Position = solana.PublicKey{}
		if err := checkAccounts(rec, acc); err != nil {
			return err
		}
		if err := types.ValidateRange(req.LowerTick, req.UpperTick); err != nil {
			return err
		}
		if req.PositionMint.IsZero() {
			return errors.Join(types.ErrInvalidAccountData, errors.New("position reference is required"))
		}

		data, err := m.host.PositionData(ctx, req.PositionMint)
		if err != nil {
			return fmt.Errorf("read position %s: %w", req.PositionMint, err)
		}
		position, err := codec.DecodePersonalPosition(data)
		if err != nil {
			return err
		}
		if !position.PoolID.Equals(rec.Pool) {
			return errors.Join(types.ErrAccountMismatch,
				fmt.Errorf("position belongs to pool %s, manager targets %s", position.PoolID, rec.Pool))
		}

		if position.TickLower != req.LowerTick || position.TickUpper != req.UpperTick {
			return errors.Join(types.ErrInvalidTickRange,
				fmt.Errorf("position covers [%d, %d], request names [%d, %d]",
					position.TickLower, position.TickUpper, req.LowerTick, req.UpperTick))
		}

		rec.Position = req.PositionMint
		rec.LowerTick = req.LowerTick
		rec.UpperTick = req.UpperTick
		// Withdrawn liquidity stays in the vaults until AddLiquidity moves it into the new position.
		if rec.State != types.PositionIdle {
			rec.State = types.PositionDeployed
		}
		rcpt.Liquidity = rec.Liquidity.String()
		return nil
	})
	return m.finish(ctx, rcpt, err)
}

func (m *Manager) newReceipt(op types.OperationType, caller, id solana.PublicKey) types.OperationReceipt {
	return types.OperationReceipt{
		OperationID: uuid.New().String(),
		ManagerID:   id.String(),
		Operation:   op,
		Caller:      caller.String(),
		Timestamp:   m.now(),
	}
}

// finish logs the outcome, records metrics and persists the receipt. Receipt persistence
// failures are logged and never change err.
func (m *Manager) finish(ctx context.Context, rcpt types.OperationReceipt, err error) (types.OperationReceipt, error) {
	opLogger := m.logger.With().
		Str("operation_id", rcpt.OperationID).
		Str("operation", string(rcpt.Operation)).
		Str("managerId", rcpt.ManagerID).
		Str("caller", rcpt.Caller).
		Logger()

	rcpt.Success = err == nil
	if err != nil {
		rcpt.Message = err.Error()
		opLogger.Error().Err(err).Msg("Operation aborted")
	} else {
		opLogger.Info().
			Str("txReference", rcpt.TxReference).
			Str("liquidity", rcpt.Liquidity).
			Msg("Operation committed")
	}

	m.recorder.ObserveOperation(rcpt.Operation, rcpt.Success, m.now().Sub(rcpt.Timestamp))

	if saveErr := m.store.SaveReceipt(ctx, rcpt); saveErr != nil {
		opLogger.Warn().Err(saveErr).Msg("Failed to save operation receipt")
	}
	return rcpt, err
}
