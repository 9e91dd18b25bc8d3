package config

import (
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// SolanaRPC is the JSON-RPC endpoint of the cluster.
	SolanaRPC string
	// Commitment is used for reads and confirmations.
	Commitment rpc.CommitmentType
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	SolanaRPC, err = getEnv("SOLANA_RPC")
	if err != nil {
		return err
	}

	Commitment = rpc.CommitmentType(getEnvOr("COMMITMENT", string(rpc.CommitmentConfirmed)))

	log.Debug().
		Str("SolanaRPC", SolanaRPC).
		Str("Commitment", string(Commitment)).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
