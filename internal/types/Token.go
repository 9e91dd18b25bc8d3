/*

This file contains the vault balance snapshot reported by the dashboard and the keeper.

*/

package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// VaultBalance is the balance of one custodial vault at a point in time.
type VaultBalance struct {
	Vault     solana.PublicKey `json:"vault"`
	Mint      solana.PublicKey `json:"mint"`
	Amount    uint64           `json:"amount"` // Base units
	FetchedAt time.Time        `json:"fetched_at"`
}
