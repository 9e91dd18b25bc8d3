package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpm/internal/codec"
	"github.com/elys-network/lpm/internal/logger"
	"github.com/elys-network/lpm/internal/types"
	"github.com/elys-network/lpm/internal/wallet"
)

var ErrInvalidTokenAccount = errors.New("token account data is invalid")

// PoolRetriever reads engine and token accounts over RPC.
type PoolRetriever struct {
	logger     zerolog.Logger
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	programID  solana.PublicKey
}

// NewPoolRetriever reads accounts owned by the CLMM program programID.
func NewPoolRetriever(client *rpc.Client, commitment rpc.CommitmentType, programID solana.PublicKey) (*PoolRetriever, error) {
	if client == nil {
		return nil, errors.New("RPC client cannot be nil")
	}
	if programID.IsZero() {
		return nil, errors.New("CLMM program ID cannot be zero")
	}
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &PoolRetriever{
		logger:     logger.GetForComponent("pool_retriever"),
		rpc:        client,
		commitment: commitment,
		programID:  programID,
	}, nil
}

// AccountData returns the raw data of key, or ErrAccountNotFound.
func (r *PoolRetriever) AccountData(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	resp, err := r.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{Commitment: r.commitment})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, errors.Join(types.ErrAccountNotFound, fmt.Errorf("account %s", key))
		}
		return nil, fmt.Errorf("get account %s: %w", key, err)
	}
	if resp == nil || resp.Value == nil || resp.Value.Data == nil {
		return nil, errors.Join(types.ErrAccountNotFound, fmt.Errorf("account %s", key))
	}
	return resp.Value.Data.GetBinary(), nil
}

// AccountExists reports whether key holds an account.
func (r *PoolRetriever) AccountExists(ctx context.Context, key solana.PublicKey) (bool, error) {
	_, err := r.AccountData(ctx, key)
	if errors.Is(err, types.ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

// PoolData returns the raw pool account.
func (r *PoolRetriever) PoolData(ctx context.Context, pool solana.PublicKey) ([]byte, error) {
	return r.AccountData(ctx, pool)
}

// PoolState reads and decodes a pool account.
func (r *PoolRetriever) PoolState(ctx context.Context, pool solana.PublicKey) (types.PoolState, error) {
	data, err := r.PoolData(ctx, pool)
	if err != nil {
		return types.PoolState{}, err
	}
	state, err := codec.DecodePoolState(data)
	if err != nil {
		r.logger.Error().Err(err).Str("pool", pool.String()).Msg("Failed to decode pool account")
		return types.PoolState{}, err
	}

	r.logger.Debug().
		Str("pool", pool.String()).
		Int32("tickCurrent", state.TickCurrent).
		Uint16("tickSpacing", state.TickSpacing).
		Msg("Fetched pool state")

	return state, nil
}

// PositionData returns the raw personal position account of an NFT mint.
func (r *PoolRetriever) PositionData(ctx context.Context, nftMint solana.PublicKey) ([]byte, error) {
	addr, err := wallet.PersonalPositionAddress(r.programID, nftMint)
	if err != nil {
		return nil, err
	}
	return r.AccountData(ctx, addr)
}

// TokenBalance returns the raw amount held by a token account.
func (r *PoolRetriever) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	resp, err := r.rpc.GetTokenAccountBalance(ctx, account, r.commitment)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, errors.Join(types.ErrAccountNotFound, fmt.Errorf("token account %s", account))
		}
		return 0, fmt.Errorf("get token balance %s: %w", account, err)
	}
	if resp == nil || resp.Value == nil {
		return 0, errors.Join(types.ErrAccountNotFound, fmt.Errorf("token account %s", account))
	}
	amount, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
	if err != nil {
		return 0, errors.Join(ErrInvalidTokenAccount, fmt.Errorf("amount %q: %w", resp.Value.Amount, err))
	}
	return amount, nil
}

// VaultBalances reads several token accounts in one round trip. Accounts that do not exist
// yet are left out of the result.
func (r *PoolRetriever) VaultBalances(ctx context.Context, vaults ...solana.PublicKey) ([]types.VaultBalance, error) {
	if len(vaults) == 0 {
		return nil, nil
	}
	resp, err := r.rpc.GetMultipleAccountsWithOpts(ctx, vaults, &rpc.GetMultipleAccountsOpts{
		Commitment: r.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, fmt.Errorf("get vault accounts: %w", err)
	}
	if resp == nil || len(resp.Value) != len(vaults) {
		return nil, fmt.Errorf("expected %d vault accounts in response", len(vaults))
	}

	now := time.Now().UTC()
	out := make([]types.VaultBalance, 0, len(vaults))
	for i, acc := range resp.Value {
		if acc == nil || acc.Data == nil {
			r.logger.Debug().Str("vault", vaults[i].String()).Msg("Vault account does not exist")
			continue
		}
		bal, err := DecodeTokenAccount(acc.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", vaults[i], err)
		}
		bal.Vault = vaults[i]
		bal.FetchedAt = now
		out = append(out, bal)
	}
	return out, nil
}

// DecodeTokenAccount decodes an SPL token account into a balance snapshot.
func DecodeTokenAccount(data []byte) (types.VaultBalance, error) {
	var acc token.Account
	if err := acc.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return types.VaultBalance{}, errors.Join(ErrInvalidTokenAccount, err)
	}
	return types.VaultBalance{Mint: acc.Mint, Amount: acc.Amount}, nil
}
