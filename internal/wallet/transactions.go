package wallet

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/types"
)

var ErrInvalidInstruction = errors.New("instruction arguments are invalid")

// Anchor instruction discriminators of the CLMM engine.
var (
	decreaseLiquidityV2Discriminator = anchorInstructionDiscriminator("decrease_liquidity_v2")
	increaseLiquidityV2Discriminator = anchorInstructionDiscriminator("increase_liquidity_v2")
	swapV2Discriminator              = anchorInstructionDiscriminator("swap_v2")
)

func anchorInstructionDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// LiquidityAccounts are the accounts a liquidity change touches. TokenAccount0 and
// TokenAccount1 are the caller-side accounts for the pool's mint 0 and mint 1.
type LiquidityAccounts struct {
	NftOwner      solana.PublicKey
	NftMint       solana.PublicKey
	PoolID        solana.PublicKey
	Pool          types.PoolState
	TickLower     int32
	TickUpper     int32
	TokenAccount0 solana.PublicKey
	TokenAccount1 solana.PublicKey
}

// SwapAccounts are the accounts of a single-pool exact-input swap.
type SwapAccounts struct {
	Payer              solana.PublicKey
	PoolID             solana.PublicKey
	Pool               types.PoolState
	InputTokenAccount  solana.PublicKey
	OutputTokenAccount solana.PublicKey
	ZeroForOne         bool // Input is the pool's mint 0
}

// CLMMBuilder builds engine instructions for one program deployment.
type CLMMBuilder struct {
	programID solana.PublicKey
}

func NewCLMMBuilder(programID solana.PublicKey) *CLMMBuilder {
	return &CLMMBuilder{programID: programID}
}

type positionKeys struct {
	nftAccount     solana.PublicKey
	personal       solana.PublicKey
	protocol       solana.PublicKey
	tickArrayLower solana.PublicKey
	tickArrayUpper solana.PublicKey
}

func (b *CLMMBuilder) positionKeys(acc LiquidityAccounts) (positionKeys, error) {
	if acc.Pool.TickSpacing == 0 {
		return positionKeys{}, errors.Join(ErrInvalidInstruction, errors.New("pool tick spacing is zero"))
	}
	var keys positionKeys
	var err error
	if keys.nftAccount, err = NftTokenAccount(acc.NftOwner, acc.NftMint); err != nil {
		return positionKeys{}, err
	}
	if keys.personal, err = PersonalPositionAddress(b.programID, acc.NftMint); err != nil {
		return positionKeys{}, err
	}
	if keys.protocol, err = ProtocolPositionAddress(b.programID, acc.PoolID, acc.TickLower, acc.TickUpper); err != nil {
		return positionKeys{}, err
	}
	lowerStart := TickArrayStartIndex(acc.TickLower, acc.Pool.TickSpacing)
	if keys.tickArrayLower, err = TickArrayAddress(b.programID, acc.PoolID, lowerStart); err != nil {
		return positionKeys{}, err
	}
	upperStart := TickArrayStartIndex(acc.TickUpper, acc.Pool.TickSpacing)
	if keys.tickArrayUpper, err = TickArrayAddress(b.programID, acc.PoolID, upperStart); err != nil {
		return positionKeys{}, err
	}
	return keys, nil
}

// DecreaseLiquidityV2 withdraws liquidity from a position into TokenAccount0/1.
func (b *CLMMBuilder) DecreaseLiquidityV2(acc LiquidityAccounts, liquidity uint128.Uint128, min0, min1 uint64) (solana.Instruction, error) {
	keys, err := b.positionKeys(acc)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(decreaseLiquidityV2Discriminator[:], false); err != nil {
		return nil, fmt.Errorf("encode discriminator: %w", err)
	}
	if err := encodeU128(enc, liquidity); err != nil {
		return nil, err
	}
	if err := enc.Encode(min0); err != nil {
		return nil, fmt.Errorf("encode amount_0_min: %w", err)
	}
	if err := enc.Encode(min1); err != nil {
		return nil, fmt.Errorf("encode amount_1_min: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(acc.NftOwner, false, true),
		solana.NewAccountMeta(keys.nftAccount, false, false),
		solana.NewAccountMeta(keys.personal, true, false),
		solana.NewAccountMeta(acc.PoolID, true, false),
		solana.NewAccountMeta(keys.protocol, true, false),
		solana.NewAccountMeta(acc.Pool.TokenVault0, true, false),
		solana.NewAccountMeta(acc.Pool.TokenVault1, true, false),
		solana.NewAccountMeta(keys.tickArrayLower, true, false),
		solana.NewAccountMeta(keys.tickArrayUpper, true, false),
		solana.NewAccountMeta(acc.TokenAccount0, true, false),
		solana.NewAccountMeta(acc.TokenAccount1, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.Token2022ProgramID, false, false),
		solana.NewAccountMeta(solana.MemoProgramID, false, false),
		solana.NewAccountMeta(acc.Pool.TokenMint0, false, false),
		solana.NewAccountMeta(acc.Pool.TokenMint1, false, false),
	}

	return solana.NewInstruction(b.programID, accounts, buf.Bytes()), nil
}

// IncreaseLiquidityV2 deposits liquidity from TokenAccount0/1, spending at most max0/max1.
// TokenAccount0/1 must be owned by the NFT owner.
func (b *CLMMBuilder) IncreaseLiquidityV2(acc LiquidityAccounts, liquidity uint128.Uint128, max0, max1 uint64, baseFlag bool) (solana.Instruction, error) {
	keys, err := b.positionKeys(acc)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(increaseLiquidityV2Discriminator[:], false); err != nil {
		return nil, fmt.Errorf("encode discriminator: %w", err)
	}
	if err := encodeU128(enc, liquidity); err != nil {
		return nil, err
	}
	if err := enc.Encode(max0); err != nil {
		return nil, fmt.Errorf("encode amount_0_max: %w", err)
	}
	if err := enc.Encode(max1); err != nil {
		return nil, fmt.Errorf("encode amount_1_max: %w", err)
	}
	if err := enc.WriteOption(true); err != nil {
		return nil, fmt.Errorf("encode base_flag: %w", err)
	}
	if err := enc.Encode(baseFlag); err != nil {
		return nil, fmt.Errorf("encode base_flag: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(acc.NftOwner, false, true),
		solana.NewAccountMeta(keys.nftAccount, false, false),
		solana.NewAccountMeta(acc.PoolID, true, false),
		solana.NewAccountMeta(keys.protocol, true, false),
		solana.NewAccountMeta(keys.personal, true, false),
		solana.NewAccountMeta(keys.tickArrayLower, true, false),
		solana.NewAccountMeta(keys.tickArrayUpper, true, false),
		solana.NewAccountMeta(acc.TokenAccount0, true, false),
		solana.NewAccountMeta(acc.TokenAccount1, true, false),
		solana.NewAccountMeta(acc.Pool.TokenVault0, true, false),
		solana.NewAccountMeta(acc.Pool.TokenVault1, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.Token2022ProgramID, false, false),
		solana.NewAccountMeta(acc.Pool.TokenMint0, false, false),
		solana.NewAccountMeta(acc.Pool.TokenMint1, false, false),
	}

	return solana.NewInstruction(b.programID, accounts, buf.Bytes()), nil
}

// SwapV2 swaps an exact input amount through one pool. Remaining accounts (tick arrays and
// the bitmap extension) are appended in the order given.
func (b *CLMMBuilder) SwapV2(acc SwapAccounts, amount, threshold uint64, sqrtPriceLimit uint128.Uint128, isBaseInput bool, remaining []solana.PublicKey) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(swapV2Discriminator[:], false); err != nil {
		return nil, fmt.Errorf("encode discriminator: %w", err)
	}
	if err := enc.Encode(amount); err != nil {
		return nil, fmt.Errorf("encode amount: %w", err)
	}
	if err := enc.Encode(threshold); err != nil {
		return nil, fmt.Errorf("encode other_amount_threshold: %w", err)
	}
	if err := encodeU128(enc, sqrtPriceLimit); err != nil {
		return nil, err
	}
	if err := enc.Encode(isBaseInput); err != nil {
		return nil, fmt.Errorf("encode is_base_input: %w", err)
	}

	inputVault, outputVault := acc.Pool.TokenVault0, acc.Pool.TokenVault1
	inputMint, outputMint := acc.Pool.TokenMint0, acc.Pool.TokenMint1
	if !acc.ZeroForOne {
		inputVault, outputVault = outputVault, inputVault
		inputMint, outputMint = outputMint, inputMint
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(acc.Payer, false, true),
		solana.NewAccountMeta(acc.Pool.AmmConfig, false, false),
		solana.NewAccountMeta(acc.PoolID, true, false),
		solana.NewAccountMeta(acc.InputTokenAccount, true, false),
		solana.NewAccountMeta(acc.OutputTokenAccount, true, false),
		solana.NewAccountMeta(inputVault, true, false),
		solana.NewAccountMeta(outputVault, true, false),
		solana.NewAccountMeta(acc.Pool.ObservationKey, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.Token2022ProgramID, false, false),
		solana.NewAccountMeta(solana.MemoProgramID, false, false),
		solana.NewAccountMeta(inputMint, false, false),
		solana.NewAccountMeta(outputMint, false, false),
	}
	for _, k := range remaining {
		accounts.Append(solana.NewAccountMeta(k, true, false))
	}

	return solana.NewInstruction(b.programID, accounts, buf.Bytes()), nil
}

func encodeU128(enc *bin.Encoder, v uint128.Uint128) error {
	if err := enc.Encode(v.Lo); err != nil {
		return fmt.Errorf("encode u128 lo: %w", err)
	}
	if err := enc.Encode(v.Hi); err != nil {
		return fmt.Errorf("encode u128 hi: %w", err)
	}
	return nil
}

// CreateTokenAccount builds the associated token account creation for owner/mint.
func CreateTokenAccount(payer, owner, mint solana.PublicKey) (solana.Instruction, error) {
	ix, err := associatedtokenaccount.NewCreateInstruction(payer, owner, mint).ValidateAndBuild()
	if err != nil {
		return nil, errors.Join(ErrInvalidInstruction, fmt.Errorf("create token account: %w", err))
	}
	return ix, nil
}

// TransferTokens builds an SPL token transfer signed by authority.
func TransferTokens(source, destination, authority solana.PublicKey, amount uint64) (solana.Instruction, error) {
	if amount == 0 {
		return nil, errors.Join(ErrInvalidInstruction, errors.New("transfer amount cannot be zero"))
	}
	ix, err := token.NewTransferInstruction(amount, source, destination, authority, nil).ValidateAndBuild()
	if err != nil {
		return nil, errors.Join(ErrInvalidInstruction, fmt.Errorf("transfer: %w", err))
	}
	return ix, nil
}
