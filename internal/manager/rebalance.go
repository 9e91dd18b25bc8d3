package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/codec"
	"github.com/elys-network/lpm/internal/types"
	"github.com/elys-network/lpm/internal/utils"
)

// RemoveLiquidity withdraws the full deployed liquidity into the vaults.
// The decoded amount is cached on the record only after the engine call commits.
func (m *Manager) RemoveLiquidity(ctx context.Context, caller, id solana.PublicKey, req types.WithdrawRequest) (types.OperationReceipt, error) {
	rcpt := m.newReceipt(types.OpRemoveLiquidity, caller, id)
	var withdrawn uint128.Uint128

	err := m.store.Update(ctx, id, func(rec *types.Manager) error {
		if err := requireExecutor(rec, caller); err != nil {
			return err
		}
		if err := checkAccounts(rec, req.Accounts); err != nil {
			return err
		}
		if err := requireState(rec, types.PositionDeployed); err != nil {
			return err
		}

		minA, err := utils.SlippageFloor(req.ExpectedAmountA, m.params.WithdrawSlippageBps)
		if err != nil {
			return err
		}
		minB, err := utils.SlippageFloor(req.ExpectedAmountB, m.params.WithdrawSlippageBps)
		if err != nil {
			return err
		}

		liquidity, err := m.positionLiquidity(ctx, rec.Position)
		if err != nil {
			return err
		}

		ref, err := m.host.Atomic(ctx, func(tx Tx) error {
			return tx.DecreaseLiquidity(WithdrawCall{
				Record:     *rec,
				Liquidity:  liquidity,
				MinAmountA: minA,
				MinAmountB: minB,
			})
		})
		if err != nil {
			if err = m.settleUnknown(ctx, rec.Position, uint128.Zero, err); err != nil {
				return err
			}
			rcpt.Message = "confirmation timed out; position shows the withdraw applied"
		}

		rec.Liquidity = liquidity
		rec.State = types.PositionIdle
		withdrawn = liquidity
		rcpt.TxReference = ref
		rcpt.Liquidity = liquidity.String()
		rcpt.AmountA = minA
		rcpt.AmountB = minB
		return nil
	})
	if err == nil {
		m.recorder.SetLiquidity(id.String(), withdrawn)
	}
	return m.finish(ctx, rcpt, err)
}

// Swap swaps an exact input amount between the vaults in the configured orientation.
// Aux accounts are forwarded in order without inspection. The record is not changed.
func (m *Manager) Swap(ctx context.Context, caller, id solana.PublicKey, req types.SwapRequest) (types.OperationReceipt, error) {
	rcpt := m.newReceipt(types.OpSwap, caller, id)
	rcpt.AuxAccounts = len(req.AuxAccounts)

	err := m.store.Update(ctx, id, func(rec *types.Manager) error {
		if err := requireExecutor(rec, caller); err != nil {
			return err
		}
		if err := checkAccounts(rec, req.Accounts); err != nil {
			return err
		}
		if err := requireState(rec, types.PositionIdle); err != nil {
			return err
		}
		if err := checkAuxAccounts(req.AuxAccounts, m.params.MaxAuxAccounts); err != nil {
			return err
		}

		minOut, err := utils.SlippageFloor(req.ExpectedAmountOut, m.params.SwapSlippageBps)
		if err != nil {
			return err
		}

		aux := make([]solana.PublicKey, len(req.AuxAccounts))
		copy(aux, req.AuxAccounts)

		ref, err := m.host.Atomic(ctx, func(tx Tx) error {
			return tx.Swap(SwapCall{
				Record:       *rec,
				AmountIn:     req.AmountIn,
				MinAmountOut: minOut,
				AToB:         m.params.SwapAToB,
				AuxAccounts:  aux,
			})
		})
		if err != nil {
			return err
		}

		rcpt.TxReference = ref
		rcpt.AmountA = req.AmountIn
		rcpt.AmountB = minOut
		return nil
	})
	return m.finish(ctx, rcpt, err)
}

// AddLiquidity redeploys the cached liquidity, allowing the engine to take up to the
// configured headroom of each vault balance.
func (m *Manager) AddLiquidity(ctx context.Context, caller, id solana.PublicKey, req types.DepositRequest) (types.OperationReceipt, error) {
	rcpt := m.newReceipt(types.OpAddLiquidity, caller, id)

	err := m.store.Update(ctx, id, func(rec *types.Manager) error {
		if err := requireExecutor(rec, caller); err != nil {
			return err
		}
		if err := checkAccounts(rec, req.Accounts); err != nil {
			return err
		}
		if err := requireState(rec, types.PositionIdle); err != nil {
			return err
		}

		balanceA, err := m.host.TokenBalance(ctx, rec.VaultA)
		if err != nil {
			return fmt.Errorf("read vault A balance: %w", err)
		}
		balanceB, err := m.host.TokenBalance(ctx, rec.VaultB)
		if err != nil {
			return fmt.Errorf("read vault B balance: %w", err)
		}
		maxA, err := utils.ApplyHeadroom(balanceA, m.params.DepositHeadroomPercent)
		if err != nil {
			return fmt.Errorf("vault A maximum: %w", err)
		}
		maxB, err := utils.ApplyHeadroom(balanceB, m.params.DepositHeadroomPercent)
		if err != nil {
			return fmt.Errorf("vault B maximum: %w", err)
		}

		before, err := m.positionLiquidity(ctx, rec.Position)
		if err != nil {
			return err
		}

		ref, err := m.host.Atomic(ctx, func(tx Tx) error {
			return tx.IncreaseLiquidity(DepositCall{
				Record:     *rec,
				Liquidity:  rec.Liquidity,
				MaxAmountA: maxA,
				MaxAmountB: maxB,
				BaseFlag:   true,
			})
		})
		if err != nil {
			if before.Cmp(uint128.Max.Sub(rec.Liquidity)) > 0 {
				return err
			}
			if err = m.settleUnknown(ctx, rec.Position, before.Add(rec.Liquidity), err); err != nil {
				return err
			}
			rcpt.Message = "confirmation timed out; position shows the deposit applied"
		}

		rec.State = types.PositionDeployed
		rcpt.TxReference = ref
		rcpt.Liquidity = rec.Liquidity.String()
		rcpt.AmountA = maxA
		rcpt.AmountB = maxB
		return nil
	})
	return m.finish(ctx, rcpt, err)
}

func (m *Manager) positionLiquidity(ctx context.Context, position solana.PublicKey) (uint128.Uint128, error) {
	data, err := m.host.PositionData(ctx, position)
	if err != nil {
		return uint128.Zero, fmt.Errorf("read position %s: %w", position, err)
	}
	return codec.DecodeLiquidity(data)
}

// settleUnknown decides a unit whose outcome is unknown by re-reading the position. It
// returns nil when the position already holds want, so the caller can commit the record as
// if the unit had confirmed. Any other error is returned unchanged.
func (m *Manager) settleUnknown(ctx context.Context, position solana.PublicKey, want uint128.Uint128, err error) error {
	if !errors.Is(err, types.ErrOutcomeUnknown) {
		return err
	}
	got, readErr := m.positionLiquidity(ctx, position)
	if readErr != nil {
		return errors.Join(err, readErr)
	}
	if !got.Equals(want) {
		m.logger.Warn().Err(err).
			Str("position", position.String()).
			Str("liquidity", got.String()).
			Msg("Unconfirmed unit did not apply")
		return err
	}
	m.logger.Warn().Err(err).
		Str("position", position.String()).
		Str("liquidity", got.String()).
		Msg("Unconfirmed unit applied, committing record")
	return nil
}

// RebalanceResult lists the receipts of the steps that ran.
type RebalanceResult struct {
	Steps      []types.OperationReceipt `json:"steps"`
	FailedStep types.OperationType      `json:"failed_step,omitempty"`
}

// Step appends the receipt of one step and marks it failed when err is set.
func (r *RebalanceResult) Step(op types.OperationType, rcpt types.OperationReceipt, err error) error {
	r.Steps = append(r.Steps, rcpt)
	if err != nil {
		r.FailedStep = op
		return fmt.Errorf("rebalance step %s: %w", op, err)
	}
	return nil
}

// Rebalance runs withdraw, an optional swap and deposit, each as its own unit, and stops at
// the first failing step.
func (m *Manager) Rebalance(ctx context.Context, caller, id solana.PublicKey, req types.RebalanceRequest) (RebalanceResult, error) {
	var result RebalanceResult

	rcpt, err := m.RemoveLiquidity(ctx, caller, id, types.WithdrawRequest{
		Accounts:        req.Accounts,
		ExpectedAmountA: req.ExpectedAmountA,
		ExpectedAmountB: req.ExpectedAmountB,
	})
	if err := result.Step(types.OpRemoveLiquidity, rcpt, err); err != nil {
		return result, err
	}

	if req.SwapAmountIn > 0 {
		rcpt, err = m.Swap(ctx, caller, id, types.SwapRequest{
			Accounts:          req.Accounts,
			AmountIn:          req.SwapAmountIn,
			ExpectedAmountOut: req.ExpectedAmountOut,
			AuxAccounts:       req.AuxAccounts,
		})
		if err := result.Step(types.OpSwap, rcpt, err); err != nil {
			return result, err
		}
	}

	rcpt, err = m.AddLiquidity(ctx, caller, id, types.DepositRequest{Accounts: req.Accounts})
	if err := result.Step(types.OpAddLiquidity, rcpt, err); err != nil {
		return result, err
	}

	m.logger.Info().
		Str("managerId", id.String()).
		Int("steps", len(result.Steps)).
		Msg("Rebalance completed")
	return result, nil
}
