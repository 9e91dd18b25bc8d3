package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpm/internal/logger"
)

var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrKeyNotFound       = errors.New("signing key not found")
	ErrTxBuildFailed     = errors.New("transaction build failed")
	ErrTxSignFailed      = errors.New("transaction signing failed")
	ErrTxBroadcastFailed = errors.New("transaction broadcast failed")
	ErrTxFailed          = errors.New("transaction failed on chain")
	ErrTxNotConfirmed    = errors.New("transaction was not confirmed in time")
)

const confirmationPollInterval = 700 * time.Millisecond

// ClientConfig holds everything a SigningClient needs to submit transactions.
type ClientConfig struct {
	RPCURL           string
	Payer            solana.PrivateKey
	Signers          []solana.PrivateKey // Additional keys that may be asked to sign
	Commitment       rpc.CommitmentType
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64 // Micro-lamports per compute unit
	TxTimeout        time.Duration
	SkipPreflight    bool
}

// SigningClient signs, submits and confirms transactions against one RPC endpoint.
type SigningClient struct {
	logger     zerolog.Logger
	rpc        *rpc.Client
	payer      solana.PrivateKey
	keys       map[solana.PublicKey]solana.PrivateKey
	commitment rpc.CommitmentType
	cuLimit    uint32
	cuPrice    uint64
	timeout    time.Duration
	skipPre    bool
}

// NewSigningClient validates the configuration and opens the RPC client.
func NewSigningClient(cfg ClientConfig) (*SigningClient, error) {
	if err := validateClientConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	keys := make(map[solana.PublicKey]solana.PrivateKey, len(cfg.Signers)+1)
	keys[cfg.Payer.PublicKey()] = cfg.Payer
	for _, k := range cfg.Signers {
		keys[k.PublicKey()] = k
	}

	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}

	client := &SigningClient{
		logger:     logger.GetForComponent("wallet_client"),
		rpc:        rpc.New(cfg.RPCURL),
		payer:      cfg.Payer,
		keys:       keys,
		commitment: commitment,
		cuLimit:    cfg.ComputeUnitLimit,
		cuPrice:    cfg.ComputeUnitPrice,
		timeout:    cfg.TxTimeout,
		skipPre:    cfg.SkipPreflight,
	}

	client.logger.Info().
		Str("payer", cfg.Payer.PublicKey().String()).
		Int("signers", len(keys)).
		Str("commitment", string(commitment)).
		Msg("Signing client initialized")

	return client, nil
}

func validateClientConfig(cfg ClientConfig) error {
	if cfg.RPCURL == "" {
		return errors.New("RPC URL cannot be empty")
	}
	if len(cfg.Payer) == 0 {
		return errors.New("payer key is required")
	}
	for i, k := range cfg.Signers {
		if len(k) == 0 {
			return fmt.Errorf("signer %d is empty", i)
		}
	}
	if cfg.TxTimeout < 0 {
		return fmt.Errorf("transaction timeout cannot be negative: %s", cfg.TxTimeout)
	}
	return nil
}

// LoadKeypair reads a solana-keygen JSON keypair file.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errors.Join(ErrKeyNotFound, fmt.Errorf("load keypair %s: %w", path, err))
	}
	return key, nil
}

// RPC exposes the underlying client for read paths.
func (s *SigningClient) RPC() *rpc.Client {
	return s.rpc
}

// Payer returns the fee payer address.
func (s *SigningClient) Payer() solana.PublicKey {
	return s.payer.PublicKey()
}

// Commitment is the commitment level used for reads and confirmation.
func (s *SigningClient) Commitment() rpc.CommitmentType {
	return s.commitment
}

// CanSign reports whether the client holds the key for addr.
func (s *SigningClient) CanSign(addr solana.PublicKey) bool {
	_, ok := s.keys[addr]
	return ok
}

// SignAndSend prepends the compute budget instructions, submits one transaction holding
// every instruction and waits for it to reach the configured commitment.
func (s *SigningClient) SignAndSend(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	if len(instructions) == 0 {
		return solana.Signature{}, errors.Join(ErrTxBuildFailed, errors.New("no instructions to send"))
	}

	ixs, err := s.withComputeBudget(instructions)
	if err != nil {
		return solana.Signature{}, errors.Join(ErrTxBuildFailed, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	recent, err := s.rpc.GetLatestBlockhash(ctx, s.commitment)
	if err != nil {
		return solana.Signature{}, errors.Join(ErrTxBuildFailed, fmt.Errorf("get latest blockhash: %w", err))
	}

	tx, err := solana.NewTransaction(ixs, recent.Value.Blockhash, solana.TransactionPayer(s.payer.PublicKey()))
	if err != nil {
		return solana.Signature{}, errors.Join(ErrTxBuildFailed, fmt.Errorf("build transaction: %w", err))
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := s.keys[key]; ok {
			return &k
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, errors.Join(ErrTxSignFailed, err)
	}

	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       s.skipPre,
		PreflightCommitment: s.commitment,
	})
	if err != nil {
		s.logger.Error().Err(err).Int("instructions", len(ixs)).Msg("Transaction broadcast failed")
		return solana.Signature{}, errors.Join(ErrTxBroadcastFailed, err)
	}

	s.logger.Info().Str("signature", sig.String()).Int("instructions", len(ixs)).Msg("Transaction submitted")

	if err := s.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}

	s.logger.Info().Str("signature", sig.String()).Msg("Transaction confirmed")
	return sig, nil
}

func (s *SigningClient) withComputeBudget(instructions []solana.Instruction) ([]solana.Instruction, error) {
	ixs := make([]solana.Instruction, 0, len(instructions)+2)
	if s.cuLimit > 0 {
		limitIx, err := computebudget.NewSetComputeUnitLimitInstruction(s.cuLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("compute unit limit instruction: %w", err)
		}
		ixs = append(ixs, limitIx)
	}
	if s.cuPrice > 0 {
		priceIx, err := computebudget.NewSetComputeUnitPriceInstruction(s.cuPrice).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("compute unit price instruction: %w", err)
		}
		ixs = append(ixs, priceIx)
	}
	return append(ixs, instructions...), nil
}

func (s *SigningClient) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// One last look with a fresh deadline; the transaction may have landed while polling.
			lastCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*confirmationPollInterval)
			done, err := s.signatureStatus(lastCtx, sig)
			cancel()
			if done {
				return err
			}
			return errors.Join(ErrTxNotConfirmed, fmt.Errorf("signature %s: %w", sig, ctx.Err()))
		case <-ticker.C:
			if done, err := s.signatureStatus(ctx, sig); done {
				return err
			}
		}
	}
}

// signatureStatus reports whether sig reached a final outcome: confirmed (nil) or failed.
func (s *SigningClient) signatureStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	result, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		s.logger.Debug().Err(err).Str("signature", sig.String()).Msg("Signature status not available yet")
		return false, nil
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return true, errors.Join(ErrTxFailed, fmt.Errorf("signature %s: %v", sig, status.Err))
	}
	if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		return true, nil
	}
	return false, nil
}
