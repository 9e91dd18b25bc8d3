/*

This file contains the decoded views of the engine-owned pool and position accounts.
Only the fields the manager and keeper read are kept.

*/

package types

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// PoolState is the subset of the CLMM pool account used for routing and range checks.
type PoolState struct {
	AmmConfig      solana.PublicKey `json:"amm_config"`
	Owner          solana.PublicKey `json:"owner"`
	TokenMint0     solana.PublicKey `json:"token_mint_0"`
	TokenMint1     solana.PublicKey `json:"token_mint_1"`
	TokenVault0    solana.PublicKey `json:"token_vault_0"` // Pool-side vault, not a manager vault
	TokenVault1    solana.PublicKey `json:"token_vault_1"`
	ObservationKey solana.PublicKey `json:"observation_key"`
	MintDecimals0  uint8            `json:"mint_decimals_0"`
	MintDecimals1  uint8            `json:"mint_decimals_1"`
	TickSpacing    uint16           `json:"tick_spacing"`
	Liquidity      uint128.Uint128  `json:"-"`
	SqrtPriceX64   uint128.Uint128  `json:"-"`
	TickCurrent    int32            `json:"tick_current"`
}

// InRange reports whether the pool's current tick lies inside [lower, upper].
func (p PoolState) InRange(lower, upper int32) bool {
	return p.TickCurrent >= lower && p.TickCurrent <= upper
}

// PersonalPosition is the engine's per-position record.
type PersonalPosition struct {
	NftMint   solana.PublicKey `json:"nft_mint"`
	PoolID    solana.PublicKey `json:"pool_id"`
	TickLower int32            `json:"tick_lower"`
	TickUpper int32            `json:"tick_upper"`
	Liquidity uint128.Uint128  `json:"-"`
}
