package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/logger"
	"github.com/elys-network/lpm/internal/manager"
	"github.com/elys-network/lpm/internal/types"
	"github.com/elys-network/lpm/internal/wallet"
)

var (
	ErrMissingSigner   = errors.New("no signing key for required signer")
	ErrCustodyMismatch = errors.New("vault custodian must own the position NFT")
)

// Reader is the account read side of a live host.
type Reader interface {
	PoolState(ctx context.Context, pool solana.PublicKey) (types.PoolState, error)
	PoolData(ctx context.Context, pool solana.PublicKey) ([]byte, error)
	PositionData(ctx context.Context, nftMint solana.PublicKey) ([]byte, error)
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	VaultBalances(ctx context.Context, vaults ...solana.PublicKey) ([]types.VaultBalance, error)
	AccountExists(ctx context.Context, key solana.PublicKey) (bool, error)
}

// Sender submits one signed transaction and waits for confirmation.
type Sender interface {
	SignAndSend(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error)
	CanSign(addr solana.PublicKey) bool
	Payer() solana.PublicKey
}

// LiveConfig wires a live host to the chain.
type LiveConfig struct {
	Reader   Reader
	Sender   Sender
	Builder  *wallet.CLMMBuilder
	NftOwner solana.PublicKey // Holder of every managed position NFT
}

// LiveHost runs manager calls against the CLMM engine. Every Atomic unit becomes one
// transaction, so the chain provides the all-or-nothing guarantee.
type LiveHost struct {
	logger   zerolog.Logger
	reader   Reader
	sender   Sender
	builder  *wallet.CLMMBuilder
	nftOwner solana.PublicKey
}

var _ manager.Host = (*LiveHost)(nil)

func NewLiveHost(cfg LiveConfig) (*LiveHost, error) {
	if cfg.Reader == nil {
		return nil, errors.New("reader cannot be nil")
	}
	if cfg.Sender == nil {
		return nil, errors.New("sender cannot be nil")
	}
	if cfg.Builder == nil {
		return nil, errors.New("instruction builder cannot be nil")
	}
	if cfg.NftOwner.IsZero() {
		return nil, errors.New("NFT owner cannot be zero")
	}
	if !cfg.Sender.CanSign(cfg.NftOwner) {
		return nil, errors.Join(ErrMissingSigner, fmt.Errorf("NFT owner %s", cfg.NftOwner))
	}
	return &LiveHost{
		logger:   logger.GetForComponent("live_host"),
		reader:   cfg.Reader,
		sender:   cfg.Sender,
		builder:  cfg.Builder,
		nftOwner: cfg.NftOwner,
	}, nil
}

// Atomic collects the instructions queued by fn and sends them as one transaction.
// A unit that queues nothing commits without touching the chain.
func (h *LiveHost) Atomic(ctx context.Context, fn func(manager.Tx) error) (string, error) {
	tx := &liveTx{ctx: ctx, host: h}
	if err := fn(tx); err != nil {
		return "", err
	}
	if len(tx.ixs) == 0 {
		h.logger.Debug().Msg("Atomic unit queued no instructions")
		return "", nil
	}

	sig, err := h.sender.SignAndSend(ctx, tx.ixs)
	if errors.Is(err, wallet.ErrTxNotConfirmed) {
		// The transaction was broadcast and may still land.
		h.logger.Warn().Err(err).Str("signature", sig.String()).Strs("calls", tx.kinds).Msg("Transaction outcome unknown")
		return sig.String(), errors.Join(types.ErrOutcomeUnknown, err)
	}
	if err != nil {
		h.logger.Error().Err(err).Strs("calls", tx.kinds).Msg("Transaction failed")
		return "", err
	}

	h.logger.Info().Str("signature", sig.String()).Strs("calls", tx.kinds).Msg("Transaction committed")
	return sig.String(), nil
}

func (h *LiveHost) PositionData(ctx context.Context, positionMint solana.PublicKey) ([]byte, error) {
	return h.reader.PositionData(ctx, positionMint)
}

func (h *LiveHost) PoolData(ctx context.Context, pool solana.PublicKey) ([]byte, error) {
	return h.reader.PoolData(ctx, pool)
}

func (h *LiveHost) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return h.reader.TokenBalance(ctx, account)
}

func (h *LiveHost) VaultBalances(ctx context.Context, vaults ...solana.PublicKey) ([]types.VaultBalance, error) {
	return h.reader.VaultBalances(ctx, vaults...)
}

type liveTx struct {
	ctx   context.Context
	host  *LiveHost
	ixs   []solana.Instruction
	kinds []string
}

func (t *liveTx) queue(kind CallKind, ix solana.Instruction) {
	t.ixs = append(t.ixs, ix)
	t.kinds = append(t.kinds, string(kind))
}

func (t *liveTx) requireSigner(addr solana.PublicKey, role string) error {
	if !t.host.sender.CanSign(addr) {
		return errors.Join(ErrMissingSigner, fmt.Errorf("%s %s", role, addr))
	}
	return nil
}

func (t *liveTx) CreateVault(call manager.VaultCall) error {
	ata, _, err := solana.FindAssociatedTokenAddress(call.Owner, call.Mint)
	if err != nil {
		return fmt.Errorf("derive vault: %w", err)
	}
	if !ata.Equals(call.Vault) {
		return errors.Join(ErrTokenAccount, fmt.Errorf("vault %s is not the associated account of %s", call.Vault, call.Owner))
	}
	exists, err := t.host.reader.AccountExists(t.ctx, call.Vault)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	ix, err := wallet.CreateTokenAccount(t.host.sender.Payer(), call.Owner, call.Mint)
	if err != nil {
		return err
	}
	t.queue(CallCreateVault, ix)
	return nil
}

func (t *liveTx) Transfer(call manager.TransferCall) error {
	if err := t.requireSigner(call.Authority, "transfer authority"); err != nil {
		return err
	}
	ix, err := wallet.TransferTokens(call.Source, call.Destination, call.Authority, call.Amount)
	if err != nil {
		return err
	}
	t.queue(CallTransfer, ix)
	return nil
}

// liquidityAccounts maps the record's A/B vaults onto the pool's 0/1 ordering.
func (t *liveTx) liquidityAccounts(rec types.Manager) (wallet.LiquidityAccounts, bool, error) {
	pool, err := t.host.reader.PoolState(t.ctx, rec.Pool)
	if err != nil {
		return wallet.LiquidityAccounts{}, false, err
	}
	aIsZero, err := mintOrder(rec, pool)
	if err != nil {
		return wallet.LiquidityAccounts{}, false, err
	}
	acc := wallet.LiquidityAccounts{
		NftOwner:      t.host.nftOwner,
		NftMint:       rec.Position,
		PoolID:        rec.Pool,
		Pool:          pool,
		TickLower:     rec.LowerTick,
		TickUpper:     rec.UpperTick,
		TokenAccount0: rec.VaultA,
		TokenAccount1: rec.VaultB,
	}
	if !aIsZero {
		acc.TokenAccount0, acc.TokenAccount1 = rec.VaultB, rec.VaultA
	}
	return acc, aIsZero, nil
}

func mintOrder(rec types.Manager, pool types.PoolState) (bool, error) {
	switch {
	case pool.TokenMint0.Equals(rec.MintA) && pool.TokenMint1.Equals(rec.MintB):
		return true, nil
	case pool.TokenMint0.Equals(rec.MintB) && pool.TokenMint1.Equals(rec.MintA):
		return false, nil
	default:
		return false, errors.Join(types.ErrAccountMismatch, fmt.Errorf("pool %s does not trade %s/%s", rec.Pool, rec.MintA, rec.MintB))
	}
}

func ordered(aIsZero bool, a, b uint64) (uint64, uint64) {
	if aIsZero {
		return a, b
	}
	return b, a
}

func (t *liveTx) DecreaseLiquidity(call manager.WithdrawCall) error {
	acc, aIsZero, err := t.liquidityAccounts(call.Record)
	if err != nil {
		return err
	}
	min0, min1 := ordered(aIsZero, call.MinAmountA, call.MinAmountB)
	ix, err := t.host.builder.DecreaseLiquidityV2(acc, call.Liquidity, min0, min1)
	if err != nil {
		return err
	}
	t.queue(CallDecreaseLiquidity, ix)
	return nil
}

func (t *liveTx) Swap(call manager.SwapCall) error {
	rec := call.Record
	if err := t.requireSigner(rec.Custodian, "custodian"); err != nil {
		return err
	}
	pool, err := t.host.reader.PoolState(t.ctx, rec.Pool)
	if err != nil {
		return err
	}
	aIsZero, err := mintOrder(rec, pool)
	if err != nil {
		return err
	}

	input, output := rec.VaultA, rec.VaultB
	if !call.AToB {
		input, output = output, input
	}
	acc := wallet.SwapAccounts{
		Payer:              rec.Custodian,
		PoolID:             rec.Pool,
		Pool:               pool,
		InputTokenAccount:  input,
		OutputTokenAccount: output,
		ZeroForOne:         call.AToB == aIsZero,
	}
	ix, err := t.host.builder.SwapV2(acc, call.AmountIn, call.MinAmountOut, uint128.Zero, true, call.AuxAccounts)
	if err != nil {
		return err
	}
	t.queue(CallSwap, ix)
	return nil
}

func (t *liveTx) IncreaseLiquidity(call manager.DepositCall) error {
	if !call.Record.Custodian.Equals(t.host.nftOwner) {
		return errors.Join(ErrCustodyMismatch, fmt.Errorf("custodian %s, NFT owner %s", call.Record.Custodian, t.host.nftOwner))
	}
	acc, aIsZero, err := t.liquidityAccounts(call.Record)
	if err != nil {
		return err
	}
	max0, max1 := ordered(aIsZero, call.MaxAmountA, call.MaxAmountB)
	ix, err := t.host.builder.IncreaseLiquidityV2(acc, call.Liquidity, max0, max1, call.BaseFlag)
	if err != nil {
		return err
	}
	t.queue(CallIncreaseLiquidity, ix)
	return nil
}
