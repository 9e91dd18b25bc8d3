// Package keeper runs the executor side of the manager: it watches the pool's current tick,
// pulls the liquidity out once the tick leaves the configured range and redeposits it when
// a registered range covers the tick again.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpm/internal/codec"
	"github.com/elys-network/lpm/internal/logger"
	"github.com/elys-network/lpm/internal/manager"
	"github.com/elys-network/lpm/internal/types"
	"github.com/elys-network/lpm/internal/utils"
	"github.com/elys-network/lpm/internal/wallet"
)

// PoolSource reads the engine pool account and vault balances.
type PoolSource interface {
	PoolData(ctx context.Context, pool solana.PublicKey) ([]byte, error)
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Router picks the auxiliary swap accounts for a rebalance.
type Router interface {
	Route(rec types.Manager, pool types.PoolState, aToB bool) ([]solana.PublicKey, error)
}

// Keeper is the rebalance bot for one manager.
type Keeper struct {
	logger    zerolog.Logger
	manager   *manager.Manager
	pools     PoolSource
	router    Router
	managerID solana.PublicKey
	executor  solana.PublicKey

	cycleCount int
}

// Config holds the dependencies of a Keeper. Router is optional; without it swaps carry
// no auxiliary accounts.
type Config struct {
	Manager   *manager.Manager
	Pools     PoolSource
	Router    Router
	ManagerID solana.PublicKey
	Executor  solana.PublicKey
}

func NewKeeper(cfg Config) (*Keeper, error) {
	if err := validateKeeperConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:    logger.GetForComponent("keeper"),
		manager:   cfg.Manager,
		pools:     cfg.Pools,
		router:    cfg.Router,
		managerID: cfg.ManagerID,
		executor:  cfg.Executor,
	}

	k.logger.Info().
		Str("managerId", k.managerID.String()).
		Str("executor", k.executor.String()).
		Msg("Keeper created")

	return k, nil
}

func validateKeeperConfig(cfg Config) error {
	if cfg.Manager == nil {
		return errors.New("manager cannot be nil")
	}
	if cfg.Pools == nil {
		return errors.New("pool source cannot be nil")
	}
	if cfg.ManagerID.IsZero() {
		return errors.New("manager ID cannot be zero")
	}
	if cfg.Executor.IsZero() {
		return errors.New("executor cannot be zero")
	}
	return nil
}

// RunLoop runs a cycle immediately and then once per interval until ctx is done.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.runLogged(ctx)
		}
	}
}

func (k *Keeper) runLogged(ctx context.Context) {
	k.cycleCount++
	k.logger.Info().Int("cycle", k.cycleCount).Msg("Initiating keeper cycle")
	_, err := k.RunCycle(ctx)
	switch {
	case errors.Is(err, types.ErrAwaitingPosition):
		k.logger.Warn().Int("cycle", k.cycleCount).Msg("Keeper cycle idle: register a position covering the current tick")
		return
	case err != nil && !errors.Is(err, types.ErrNoRebalanceNeeded):
		k.logger.Error().Err(err).Int("cycle", k.cycleCount).Msg("Keeper cycle failed")
		return
	}
	k.logger.Info().Int("cycle", k.cycleCount).Msg("Keeper cycle completed")
}

// RunCycle checks the range once. An in-range pool ends the cycle with
// types.ErrNoRebalanceNeeded. Once the tick leaves the range the cycle withdraws, runs the
// optional swap and stops with types.ErrAwaitingPosition: the range never moves on its own,
// so liquidity stays in the vaults until a position covering the current tick is registered.
// An idle manager is redeposited as soon as its range covers the current tick.
func (k *Keeper) RunCycle(ctx context.Context) (manager.RebalanceResult, error) {
	cycleStart := time.Now()
	cycleLogger := k.logger.With().Str("cycle_id", uuid.New().String()).Logger()

	rec, err := k.manager.Get(ctx, k.managerID)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to load manager record")
		return manager.RebalanceResult{}, err
	}
	if !rec.HasPosition() {
		cycleLogger.Warn().Msg("Cycle skipped: no position registered")
		return manager.RebalanceResult{}, errors.Join(types.ErrInvalidPositionState, errors.New("no position registered"))
	}

	data, err := k.pools.PoolData(ctx, rec.Pool)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to fetch pool")
		return manager.RebalanceResult{}, err
	}
	pool, err := codec.DecodePoolState(data)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to decode pool")
		return manager.RebalanceResult{}, err
	}

	rangeLogger := cycleLogger.With().
		Int32("tick", pool.TickCurrent).
		Int32("lower", rec.LowerTick).
		Int32("upper", rec.UpperTick).
		Str("state", string(rec.State)).
		Logger()
	inRange := pool.InRange(rec.LowerTick, rec.UpperTick)

	if rec.State == types.PositionIdle {
		if !inRange {
			rangeLogger.Warn().Msg("Position idle and its range is still out of range, waiting for a new position")
			return manager.RebalanceResult{}, types.ErrAwaitingPosition
		}
		rangeLogger.Info().Msg("Position idle and in range, depositing")
		var result manager.RebalanceResult
		rcpt, err := k.manager.AddLiquidity(ctx, k.executor, k.managerID, types.DepositRequest{Accounts: rec.Accounts()})
		if err := result.Step(types.OpAddLiquidity, rcpt, err); err != nil {
			rangeLogger.Error().Err(err).Msg("Deposit failed")
			return result, err
		}
		rangeLogger.Info().Dur("elapsed", time.Since(cycleStart)).Msg("Position redeployed")
		return result, nil
	}

	if inRange {
		rangeLogger.Info().Msg("Current tick within range, no rebalance needed")
		return manager.RebalanceResult{}, types.ErrNoRebalanceNeeded
	}

	rangeLogger.Info().Msg("Current tick out of range, withdrawing")

	req, err := k.rebalanceRequest(ctx, rec, pool, rec.Accounts())
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to size swap")
		return manager.RebalanceResult{}, err
	}

	var result manager.RebalanceResult
	rcpt, err := k.manager.RemoveLiquidity(ctx, k.executor, k.managerID, types.WithdrawRequest{Accounts: req.Accounts})
	if err := result.Step(types.OpRemoveLiquidity, rcpt, err); err != nil {
		rangeLogger.Error().Err(err).Msg("Withdraw failed")
		return result, err
	}
	if req.SwapAmountIn > 0 {
		rcpt, err = k.manager.Swap(ctx, k.executor, k.managerID, types.SwapRequest{
			Accounts:    req.Accounts,
			AmountIn:    req.SwapAmountIn,
			AuxAccounts: req.AuxAccounts,
		})
		if err := result.Step(types.OpSwap, rcpt, err); err != nil {
			rangeLogger.Error().Err(err).Msg("Swap failed")
			return result, err
		}
	}

	rangeLogger.Warn().
		Int("steps", len(result.Steps)).
		Uint64("swapAmountIn", req.SwapAmountIn).
		Dur("elapsed", time.Since(cycleStart)).
		Msg("Liquidity withdrawn, waiting for a position covering the current tick")
	return result, types.ErrAwaitingPosition
}

func (k *Keeper) rebalanceRequest(ctx context.Context, rec types.Manager, pool types.PoolState, accounts types.Accounts) (types.RebalanceRequest, error) {
	params := k.manager.Params()
	req := types.RebalanceRequest{Accounts: accounts}
	if params.SwapFractionBps == 0 {
		return req, nil
	}

	input := rec.VaultA
	if !params.SwapAToB {
		input = rec.VaultB
	}
	balance, err := k.pools.TokenBalance(ctx, input)
	if err != nil {
		return types.RebalanceRequest{}, err
	}
	amount, err := utils.FractionOf(balance, params.SwapFractionBps)
	if err != nil {
		return types.RebalanceRequest{}, err
	}
	req.SwapAmountIn = amount

	if amount > 0 && k.router != nil {
		aux, err := k.router.Route(rec, pool, params.SwapAToB)
		if err != nil {
			return types.RebalanceRequest{}, err
		}
		req.AuxAccounts = aux
	}
	return req, nil
}

// TickArrayRouter routes swaps through the tick arrays next to the current tick.
type TickArrayRouter struct {
	ProgramID solana.PublicKey
	Count     int
}

func (r TickArrayRouter) Route(rec types.Manager, pool types.PoolState, aToB bool) ([]solana.PublicKey, error) {
	if pool.TickSpacing == 0 {
		return nil, errors.Join(types.ErrInvalidPoolData, errors.New("tick spacing is zero"))
	}
	zeroForOne := pool.TokenMint0.Equals(rec.MintA) == aToB
	return wallet.SwapTickArrays(r.ProgramID, rec.Pool, pool.TickCurrent, pool.TickSpacing, zeroForOne, r.Count)
}
