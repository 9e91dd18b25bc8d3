package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/config"
	"github.com/elys-network/lpm/internal/types"
)

var (
	initializeFlags struct {
		lower, upper                      int32
		executor, mintA, mintB, custodian string
	}
	fundFlags struct {
		amountA, amountB uint64
		sourceA, sourceB string
	}
	withdrawFlags struct {
		expectedA, expectedB uint64
	}
	swapFlags struct {
		amountIn, expectedOut uint64
		aux                   []string
	}
	registerFlags struct {
		position     string
		lower, upper int32
	}
	rebalanceFlags struct {
		swapAmount, expectedA, expectedB, expectedOut uint64
	}
)

var initializeCmd = &cobra.Command{
	Use:   "initialize",
	Short: "Create the manager and both vaults for LPM_POOL; the caller becomes the principal",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		var executorDefault solana.PublicKey
		if rt.sim != nil {
			executorDefault = rt.executor
		}
		executor, err := parseKey("executor", initializeFlags.executor, executorDefault)
		if err != nil {
			return err
		}
		mintA, err := parseKey("mint-a", initializeFlags.mintA, rt.mintA)
		if err != nil {
			return err
		}
		mintB, err := parseKey("mint-b", initializeFlags.mintB, rt.mintB)
		if err != nil {
			return err
		}
		custodian, err := parseKey("custodian", initializeFlags.custodian, rt.custodian)
		if err != nil {
			return err
		}

		rcpt, err := rt.manager.Initialize(cmd.Context(), rt.principal, types.InitializeRequest{
			Pool:      config.PoolID,
			MintA:     mintA,
			MintB:     mintB,
			Executor:  executor,
			Custodian: custodian,
			LowerTick: initializeFlags.lower,
			UpperTick: initializeFlags.upper,
		})
		return report(cmd, rcpt, err)
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Move admin balances into the manager vaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.record(cmd.Context())
		if err != nil {
			return err
		}
		sourceA, err := rt.fundingSource("source-a", fundFlags.sourceA, rec.MintA, fundFlags.amountA)
		if err != nil {
			return err
		}
		sourceB, err := rt.fundingSource("source-b", fundFlags.sourceB, rec.MintB, fundFlags.amountB)
		if err != nil {
			return err
		}

		rcpt, err := rt.manager.FundVaults(cmd.Context(), rt.principal, rt.managerID, types.FundRequest{
			Accounts: rec.Accounts(),
			SourceA:  sourceA,
			SourceB:  sourceB,
			AmountA:  fundFlags.amountA,
			AmountB:  fundFlags.amountB,
		})
		return report(cmd, rcpt, err)
	},
}

var removeLiquidityCmd = &cobra.Command{
	Use:   "remove-liquidity",
	Short: "Withdraw all deployed liquidity into the vaults (executor)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.record(cmd.Context())
		if err != nil {
			return err
		}
		rcpt, err := rt.manager.RemoveLiquidity(cmd.Context(), rt.executor, rt.managerID, types.WithdrawRequest{
			Accounts:        rec.Accounts(),
			ExpectedAmountA: withdrawFlags.expectedA,
			ExpectedAmountB: withdrawFlags.expectedB,
		})
		return report(cmd, rcpt, err)
	},
}

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap an exact input amount between the vaults (executor)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.record(cmd.Context())
		if err != nil {
			return err
		}

		aux := make([]solana.PublicKey, 0, len(swapFlags.aux))
		for _, s := range swapFlags.aux {
			key, err := parseKey("aux", s, solana.PublicKey{})
			if err != nil {
				return err
			}
			aux = append(aux, key)
		}
		if len(aux) == 0 {
			if aux, err = rt.route(cmd.Context(), rec); err != nil {
				return err
			}
		}

		rcpt, err := rt.manager.Swap(cmd.Context(), rt.executor, rt.managerID, types.SwapRequest{
			Accounts:          rec.Accounts(),
			AmountIn:          swapFlags.amountIn,
			ExpectedAmountOut: swapFlags.expectedOut,
			AuxAccounts:       aux,
		})
		return report(cmd, rcpt, err)
	},
}

var addLiquidityCmd = &cobra.Command{
	Use:   "add-liquidity",
	Short: "Redeploy the cached liquidity from the vaults (executor)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.record(cmd.Context())
		if err != nil {
			return err
		}
		rcpt, err := rt.manager.AddLiquidity(cmd.Context(), rt.executor, rt.managerID, types.DepositRequest{
			Accounts: rec.Accounts(),
		})
		return report(cmd, rcpt, err)
	},
}

var registerPositionCmd = &cobra.Command{
	Use:   "register-position",
	Short: "Point the manager at an externally minted position and range (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		var positionDefault solana.PublicKey
		if rt.sim != nil && registerFlags.position == "" {
			positionDefault = rt.sim.MintPosition(config.PoolID, registerFlags.lower, registerFlags.upper, uint128.From64(simLiquidity))
		}
		position, err := parseKey("position", registerFlags.position, positionDefault)
		if err != nil {
			return err
		}

		rec, err := rt.record(cmd.Context())
		if err != nil {
			return err
		}
		rcpt, err := rt.manager.RegisterPosition(cmd.Context(), rt.principal, rt.managerID, types.RegisterRequest{
			Accounts:     rec.Accounts(),
			PositionMint: position,
			LowerTick:    registerFlags.lower,
			UpperTick:    registerFlags.upper,
		})
		return report(cmd, rcpt, err)
	},
}

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Run withdraw, an optional swap and deposit in sequence (executor)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.record(cmd.Context())
		if err != nil {
			return err
		}
		req := types.RebalanceRequest{
			Accounts:          rec.Accounts(),
			ExpectedAmountA:   rebalanceFlags.expectedA,
			ExpectedAmountB:   rebalanceFlags.expectedB,
			SwapAmountIn:      rebalanceFlags.swapAmount,
			ExpectedAmountOut: rebalanceFlags.expectedOut,
		}
		if req.SwapAmountIn > 0 {
			if req.AuxAccounts, err = rt.route(cmd.Context(), rec); err != nil {
				return err
			}
		}

		result, err := rt.manager.Rebalance(cmd.Context(), rt.executor, rt.managerID, req)
		if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
			return printErr
		}
		return err
	},
}

func init() {
	f := initializeCmd.Flags()
	f.Int32Var(&initializeFlags.lower, "lower", 0, "lower tick of the initial range")
	f.Int32Var(&initializeFlags.upper, "upper", 0, "upper tick of the initial range")
	f.StringVar(&initializeFlags.executor, "executor", "", "executor public key")
	f.StringVar(&initializeFlags.mintA, "mint-a", "", "mint of asset A")
	f.StringVar(&initializeFlags.mintB, "mint-b", "", "mint of asset B")
	f.StringVar(&initializeFlags.custodian, "custodian", "", "vault owner (defaults to the custody keypair)")

	f = fundCmd.Flags()
	f.Uint64Var(&fundFlags.amountA, "amount-a", 0, "amount of asset A in base units")
	f.Uint64Var(&fundFlags.amountB, "amount-b", 0, "amount of asset B in base units")
	f.StringVar(&fundFlags.sourceA, "source-a", "", "source token account for A (defaults to the caller's ATA)")
	f.StringVar(&fundFlags.sourceB, "source-b", "", "source token account for B (defaults to the caller's ATA)")

	f = removeLiquidityCmd.Flags()
	f.Uint64Var(&withdrawFlags.expectedA, "expected-a", 0, "expected amount of A; enables the slippage floor")
	f.Uint64Var(&withdrawFlags.expectedB, "expected-b", 0, "expected amount of B; enables the slippage floor")

	f = swapCmd.Flags()
	f.Uint64Var(&swapFlags.amountIn, "amount-in", 0, "exact input amount")
	f.Uint64Var(&swapFlags.expectedOut, "expected-out", 0, "expected output; enables the slippage floor")
	f.StringSliceVar(&swapFlags.aux, "aux", nil, "auxiliary engine accounts in order (routed automatically when empty)")

	f = registerPositionCmd.Flags()
	f.StringVar(&registerFlags.position, "position", "", "position NFT mint")
	f.Int32Var(&registerFlags.lower, "lower", 0, "lower tick of the position")
	f.Int32Var(&registerFlags.upper, "upper", 0, "upper tick of the position")

	f = rebalanceCmd.Flags()
	f.Uint64Var(&rebalanceFlags.swapAmount, "swap-amount", 0, "swap input amount; zero skips the swap")
	f.Uint64Var(&rebalanceFlags.expectedA, "expected-a", 0, "expected withdraw amount of A")
	f.Uint64Var(&rebalanceFlags.expectedB, "expected-b", 0, "expected withdraw amount of B")
	f.Uint64Var(&rebalanceFlags.expectedOut, "expected-out", 0, "expected swap output")

	rootCmd.AddCommand(initializeCmd, fundCmd, removeLiquidityCmd, swapCmd, addLiquidityCmd, registerPositionCmd, rebalanceCmd)
}

// fundingSource resolves a funding source account. Simulated runs open a funded account
// for the principal when none is given.
func (rt *runtime) fundingSource(flag, value string, mint solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	if value != "" {
		return parseKey(flag, value, solana.PublicKey{})
	}
	if amount == 0 {
		return solana.PublicKey{}, nil
	}
	if rt.sim != nil {
		return rt.sim.OpenTokenAccount(rt.principal, mint, amount), nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(rt.principal, mint)
	return ata, err
}

func parseKey(flag, value string, fallback solana.PublicKey) (solana.PublicKey, error) {
	if value == "" {
		return fallback, nil
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return key, nil
}

func report(cmd *cobra.Command, rcpt types.OperationReceipt, err error) error {
	if printErr := printJSON(cmd.OutOrStdout(), rcpt); printErr != nil {
		return printErr
	}
	return err
}
