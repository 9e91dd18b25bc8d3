/*

This file contains the default operating parameters for the position manager.

*/

package config

import (
	"time"

	"github.com/elys-network/lpm/internal/types"
)

// DefaultRebalanceParameters is used for any value not overridden through the environment.
var DefaultRebalanceParameters = types.RebalanceParameters{
	DepositHeadroomPercent: 110, // Deposit maxima are 110% of each vault balance.

	// Floors only apply when the caller passes expected amounts.
	WithdrawSlippageBps: 0,
	SwapSlippageBps:     0,

	SwapAToB: true, // Swaps sell mint A for mint B.

	MaxAuxAccounts: 24, // Fixed swap accounts + 24 keeps a swap inside the transaction account limit.

	SwapFractionBps: 0, // The keeper does not swap unless configured to.

	LoopInterval: 10 * time.Minute,
}
