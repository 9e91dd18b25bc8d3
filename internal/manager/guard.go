package manager

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/elys-network/lpm/internal/types"
)

// requireExecutor gates withdraw, swap and deposit.
func requireExecutor(rec *types.Manager, caller solana.PublicKey) error {
	if caller.IsZero() || !caller.Equals(rec.Executor) {
		return errors.Join(types.ErrInvalidExecutor, fmt.Errorf("caller %s is not the executor", caller))
	}
	return nil
}

// requirePrincipal gates administrative operations.
func requirePrincipal(rec *types.Manager, caller solana.PublicKey) error {
	if caller.IsZero() || !caller.Equals(rec.Principal) {
		return errors.Join(types.ErrInvalidPrincipal, fmt.Errorf("caller %s is not the principal", caller))
	}
	return nil
}

// checkAccounts compares every non-zero reference with the record.
func checkAccounts(rec *types.Manager, acc types.Accounts) error {
	refs := []struct {
		name   string
		got    solana.PublicKey
		stored solana.PublicKey
	}{
		{"pool", acc.Pool, rec.Pool},
		{"mint_a", acc.MintA, rec.MintA},
		{"mint_b", acc.MintB, rec.MintB},
		{"vault_a", acc.VaultA, rec.VaultA},
		{"vault_b", acc.VaultB, rec.VaultB},
		{"position", acc.Position, rec.Position},
	}
	for _, ref := range refs {
		if ref.got.IsZero() {
			continue
		}
		if !ref.got.Equals(ref.stored) {
			return errors.Join(types.ErrAccountMismatch,
				fmt.Errorf("%s %s does not match %s", ref.name, ref.got, ref.stored))
		}
	}
	return nil
}

func requireState(rec *types.Manager, want types.PositionState) error {
	if rec.State != want {
		return errors.Join(types.ErrInvalidPositionState,
			fmt.Errorf("position is %s, need %s", rec.State, want))
	}
	return nil
}

func checkAuxAccounts(aux []solana.PublicKey, max int) error {
	if len(aux) > max {
		return errors.Join(types.ErrTooManyAuxAccounts, fmt.Errorf("got %d, limit %d", len(aux), max))
	}
	return nil
}
