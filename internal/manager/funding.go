package manager

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/elys-network/lpm/internal/types"
)

// FundVaults moves the principal's balances into vault A and vault B in one unit.
// Zero amounts are skipped; funding with both amounts zero issues no transfer.
func (m *Manager) FundVaults(ctx context.Context, caller, id solana.PublicKey, req types.FundRequest) (types.OperationReceipt, error) {
	rcpt := m.newReceipt(types.OpFundVaults, caller, id)
	rcpt.AmountA = req.AmountA
	rcpt.AmountB = req.AmountB

	err := m.store.Update(ctx, id, func(rec *types.Manager) error {
		if err := requirePrincipal(rec, caller); err != nil {
			return err
		}
		if err := checkAccounts(rec, req.Accounts); err != nil {
			return err
		}

		transfers := make([]TransferCall, 0, 2)
		if req.AmountA > 0 {
			transfers = append(transfers, TransferCall{
				Source: req.SourceA, Destination: rec.VaultA, Mint: rec.MintA, Authority: caller, Amount: req.AmountA,
			})
		}
		if req.AmountB > 0 {
			transfers = append(transfers, TransferCall{
				Source: req.SourceB, Destination: rec.VaultB, Mint: rec.MintB, Authority: caller, Amount: req.AmountB,
			})
		}
		if len(transfers) == 0 {
			return nil
		}

		ref, err := m.host.Atomic(ctx, func(tx Tx) error {
			for _, t := range transfers {
				if err := tx.Transfer(t); err != nil {
					return fmt.Errorf("transfer %d of %s into %s: %w", t.Amount, t.Mint, t.Destination, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		rcpt.TxReference = ref
		return nil
	})
	return m.finish(ctx, rcpt, err)
}
