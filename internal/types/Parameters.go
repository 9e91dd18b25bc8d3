package types

import "time"

// RebalanceParameters tunes how manager state is translated into engine calls.
type RebalanceParameters struct {
	// DepositHeadroomPercent caps each deposit input at balance * percent / 100.
	DepositHeadroomPercent uint64 `json:"deposit_headroom_percent"`

	// WithdrawSlippageBps and SwapSlippageBps turn caller-supplied expected amounts into
	// minimum-received floors. Without an expected amount the floor stays zero.
	WithdrawSlippageBps uint32 `json:"withdraw_slippage_bps"`
	SwapSlippageBps     uint32 `json:"swap_slippage_bps"`

	// SwapAToB fixes the swap orientation: true swaps mint A into mint B.
	SwapAToB bool `json:"swap_a_to_b"`

	// MaxAuxAccounts bounds the opaque routing accounts forwarded with a swap.
	MaxAuxAccounts int `json:"max_aux_accounts"`

	// SwapFractionBps is the share of the input vault the keeper swaps during a rebalance.
	SwapFractionBps uint32 `json:"swap_fraction_bps"`

	// LoopInterval is the keeper cycle period.
	LoopInterval time.Duration `json:"loop_interval"`
}
