package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/lpm/internal/types"
)

const (
	ModeLive     = "live"
	ModeSimulate = "simulate"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode selects the host: "live" talks to the cluster, "simulate" runs in memory.
	Mode string

	// PoolID is the CLMM pool this instance manages.
	PoolID solana.PublicKey
	// ManagerProgramID namespaces manager IDs (seeds ["manager-v6", pool]).
	ManagerProgramID solana.PublicKey
	// ClmmProgramID is the CLMM engine program.
	ClmmProgramID solana.PublicKey

	// KeypairPath is the executor key. It also pays every transaction fee.
	KeypairPath string
	// PrincipalKeypairPath is the admin key. Defaults to KeypairPath, in which case one key
	// holds both roles.
	PrincipalKeypairPath string
	// CustodyKeypairPath is the key that owns the manager vaults.
	CustodyKeypairPath string
	// NftOwnerKeypairPath is the key holding the position NFT. Defaults to the custody key.
	NftOwnerKeypairPath string

	// ComputeUnitLimit and ComputeUnitPrice are prepended to every transaction when non-zero.
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	// TxTimeout bounds send + confirmation of one transaction.
	TxTimeout time.Duration

	// Params holds the operating parameters after environment overrides.
	Params types.RebalanceParameters
)

// Defaults for the program IDs; both may be overridden.
var (
	defaultManagerProgramID = solana.MustPublicKeyFromBase58("FB2bC1eV24WNFyJUziFHgfvCNFeReDtuvqpkuY457tAW")
	defaultClmmProgramID    = solana.MustPublicKeyFromBase58("devi51mZmdwUJGU9hjN27vEz64Gps7uUefqxg27EAtH")
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Keys and endpoints are only required in live mode.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("LPM_MODE")
	if err != nil {
		return err
	}
	if Mode != ModeLive && Mode != ModeSimulate {
		return errors.New("LPM_MODE must be 'live' or 'simulate', got: " + Mode)
	}

	PoolID, err = getEnvAsPublicKey("LPM_POOL")
	if err != nil {
		return err
	}

	ManagerProgramID, err = getEnvAsPublicKeyOr("LPM_PROGRAM_ID", defaultManagerProgramID)
	if err != nil {
		return err
	}

	ClmmProgramID, err = getEnvAsPublicKeyOr("LPM_CLMM_PROGRAM_ID", defaultClmmProgramID)
	if err != nil {
		return err
	}

	if err := loadParameters(); err != nil {
		return err
	}

	if Mode == ModeLive {
		if err := loadLiveConfig(); err != nil {
			return err
		}
	}

	log.Debug().
		Str("Mode", Mode).
		Str("PoolID", PoolID.String()).
		Str("ClmmProgramID", ClmmProgramID.String()).
		Msg("Configuration loaded successfully.")

	return nil
}

// loadLiveConfig loads signer paths, compute budget and endpoints.
func loadLiveConfig() error {
	var err error

	KeypairPath, err = getEnvAsPath("KEYPAIR_PATH")
	if err != nil {
		return err
	}

	PrincipalKeypairPath = KeypairPath
	if _, exists := os.LookupEnv("PRINCIPAL_KEYPAIR_PATH"); exists {
		PrincipalKeypairPath, err = getEnvAsPath("PRINCIPAL_KEYPAIR_PATH")
		if err != nil {
			return err
		}
	}

	CustodyKeypairPath, err = getEnvAsPath("CUSTODY_KEYPAIR_PATH")
	if err != nil {
		return err
	}

	NftOwnerKeypairPath = CustodyKeypairPath
	if _, exists := os.LookupEnv("NFT_OWNER_KEYPAIR_PATH"); exists {
		NftOwnerKeypairPath, err = getEnvAsPath("NFT_OWNER_KEYPAIR_PATH")
		if err != nil {
			return err
		}
	}

	limit, err := getEnvAsUint64Or("COMPUTE_UNIT_LIMIT", 800_000)
	if err != nil {
		return err
	}
	ComputeUnitLimit = uint32(limit)

	ComputeUnitPrice, err = getEnvAsUint64Or("COMPUTE_UNIT_PRICE", 10_000)
	if err != nil {
		return err
	}

	timeoutSeconds, err := getEnvAsUint64Or("TX_TIMEOUT_SECONDS", 60)
	if err != nil {
		return err
	}
	TxTimeout = time.Duration(timeoutSeconds) * time.Second

	return loadEndpointConfig()
}

// loadParameters applies environment overrides on top of DefaultRebalanceParameters.
func loadParameters() error {
	Params = DefaultRebalanceParameters

	headroom, err := getEnvAsUint64Or("DEPOSIT_HEADROOM_PERCENT", Params.DepositHeadroomPercent)
	if err != nil {
		return err
	}
	Params.DepositHeadroomPercent = headroom

	withdrawBps, err := getEnvAsUint64Or("WITHDRAW_SLIPPAGE_BPS", uint64(Params.WithdrawSlippageBps))
	if err != nil {
		return err
	}
	swapBps, err := getEnvAsUint64Or("SWAP_SLIPPAGE_BPS", uint64(Params.SwapSlippageBps))
	if err != nil {
		return err
	}
	fractionBps, err := getEnvAsUint64Or("SWAP_FRACTION_BPS", uint64(Params.SwapFractionBps))
	if err != nil {
		return err
	}
	if withdrawBps > 10_000 || swapBps > 10_000 || fractionBps > 10_000 {
		return errors.New("basis point parameters must not exceed 10000")
	}
	Params.WithdrawSlippageBps = uint32(withdrawBps)
	Params.SwapSlippageBps = uint32(swapBps)
	Params.SwapFractionBps = uint32(fractionBps)

	maxAux, err := getEnvAsUint64Or("MAX_AUX_ACCOUNTS", uint64(Params.MaxAuxAccounts))
	if err != nil {
		return err
	}
	Params.MaxAuxAccounts = int(maxAux)

	if value, ok := os.LookupEnv("SWAP_A_TO_B"); ok {
		aToB, err := strconv.ParseBool(value)
		if err != nil {
			return errors.New("environment variable SWAP_A_TO_B must be a valid bool, got: " + value)
		}
		Params.SwapAToB = aToB
	}

	intervalSeconds, err := getEnvAsUint64Or("LOOP_INTERVAL_SECONDS", uint64(Params.LoopInterval/time.Second))
	if err != nil {
		return err
	}
	Params.LoopInterval = time.Duration(intervalSeconds) * time.Second

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable or a default.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64Or retrieves an environment variable as a uint64, or a default if unset.
func getEnvAsUint64Or(key string, fallback uint64) (uint64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsPublicKey retrieves a required base58 public key.
func getEnvAsPublicKey(key string) (solana.PublicKey, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return solana.PublicKey{}, err
	}
	value, err := solana.PublicKeyFromBase58(valueStr)
	if err != nil {
		return solana.PublicKey{}, errors.New("environment variable " + key + " must be a base58 public key, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsPublicKeyOr retrieves an optional base58 public key.
func getEnvAsPublicKeyOr(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	if _, exists := os.LookupEnv(key); !exists {
		return fallback, nil
	}
	return getEnvAsPublicKey(key)
}

// getEnvAsPath retrieves a required file path, expanding a leading "~/".
func getEnvAsPath(key string) (string, error) {
	path, err := getEnv(key)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", errors.New("environment variable " + key + " must not be empty")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return path, nil
}
