package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/lpm/internal/config"
	"github.com/elys-network/lpm/internal/logger"
)

// rootCmd is the base command; every subcommand shares its environment setup.
var rootCmd = &cobra.Command{
	Use:   "lpm",
	Short: "LPM - concentrated liquidity position manager",
	Long: `lpm keeps one concentrated-liquidity position per pool in range. An admin key
creates the manager and funds its vaults; an executor key withdraws, swaps and
redeposits the position.

Set LPM_MODE=live to broadcast transactions, or LPM_MODE=simulate to run every
command against an in-memory engine.

Live keys: KEYPAIR_PATH is the executor and fee payer. PRINCIPAL_KEYPAIR_PATH is the
admin key used by initialize, fund and register-position; when unset the executor key
holds both roles. CUSTODY_KEYPAIR_PATH owns the vaults and NFT_OWNER_KEYPAIR_PATH
(defaults to the custody key) holds the position NFT.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
		}
		logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

		if err := config.LoadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
