/*

This file contains the persistent manager record: who may act on it, which pool and vaults
it targets, the active range and the cached liquidity figure.

*/

package types

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// PositionState tracks where the managed liquidity currently sits.
type PositionState string

const (
	PositionUnregistered PositionState = "UNREGISTERED" // No position has been registered yet
	PositionDeployed     PositionState = "DEPLOYED"     // Liquidity is committed to the pool
	PositionIdle         PositionState = "IDLE"         // Liquidity was withdrawn into the vaults
)

// Manager is the record for one managed position.
//
// Liquidity is a cache of the engine's deployed liquidity. It is only meaningful between a
// successful withdraw and the next deposit; outside that window the engine's own position
// account is the source of truth.
type Manager struct {
	ID        solana.PublicKey `json:"id"`
	Principal solana.PublicKey `json:"principal"` // Admin wallet
	Executor  solana.PublicKey `json:"executor"`  // Rebalance bot wallet
	Custodian solana.PublicKey `json:"custodian"` // Owner of both vaults
	Pool      solana.PublicKey `json:"pool"`
	MintA     solana.PublicKey `json:"mint_a"`
	MintB     solana.PublicKey `json:"mint_b"`
	VaultA    solana.PublicKey `json:"vault_a"`
	VaultB    solana.PublicKey `json:"vault_b"`

	LowerTick int32 `json:"lower_tick"`
	UpperTick int32 `json:"upper_tick"`

	Liquidity uint128.Uint128 `json:"-"`
	Position  solana.PublicKey `json:"position"` // Zero until a position is registered
	State     PositionState    `json:"state"`
}

// HasPosition reports whether a position reference has been registered.
func (m Manager) HasPosition() bool {
	return !m.Position.IsZero()
}

// ValidateRange checks the lower < upper invariant.
func ValidateRange(lower, upper int32) error {
	if lower >= upper {
		return fmt.Errorf("%w: lower %d must be below upper %d", ErrInvalidTickRange, lower, upper)
	}
	return nil
}

// ManagerView is the JSON shape of a manager record, with liquidity rendered as a decimal string.
type ManagerView struct {
	Manager
	Liquidity string `json:"liquidity"`
}

// View returns the JSON representation of the record.
func (m Manager) View() ManagerView {
	return ManagerView{Manager: m, Liquidity: m.Liquidity.String()}
}

// Accounts returns the reference bundle that matches this record.
func (m Manager) Accounts() Accounts {
	return Accounts{
		Pool:     m.Pool,
		MintA:    m.MintA,
		MintB:    m.MintB,
		VaultA:   m.VaultA,
		VaultB:   m.VaultB,
		Position: m.Position,
	}
}
