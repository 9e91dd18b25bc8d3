package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/types"
)

// Pool state layout, relative to the end of the discriminator:
// bump(1) amm_config(32) owner(32) token_mint_0(32) token_mint_1(32) token_vault_0(32)
// token_vault_1(32) observation_key(32) mint_decimals_0(1) mint_decimals_1(1)
// tick_spacing(2) liquidity(16) sqrt_price_x64(16) tick_current(4)
const (
	poolAmmConfigOffset      = 1
	poolOwnerOffset          = 33
	poolTokenMint0Offset     = 65
	poolTokenMint1Offset     = 97
	poolTokenVault0Offset    = 129
	poolTokenVault1Offset    = 161
	poolObservationKeyOffset = 193
	poolMintDecimals0Offset  = 225
	poolMintDecimals1Offset  = 226
	poolTickSpacingOffset    = 227
	poolLiquidityOffset      = 229
	poolSqrtPriceOffset      = 245
	poolTickCurrentOffset    = 261

	// MinPoolLen is the shortest pool account DecodePoolState accepts.
	MinPoolLen = DiscriminatorLen + poolTickCurrentOffset + 4
)

// DecodePoolState decodes the pool fields the manager needs for routing and range checks.
func DecodePoolState(data []byte) (types.PoolState, error) {
	if len(data) < MinPoolLen {
		return types.PoolState{}, errors.Join(types.ErrInvalidPoolData,
			fmt.Errorf("pool account is %d bytes, need at least %d", len(data), MinPoolLen))
	}
	body := data[DiscriminatorLen:]

	key := func(offset int) solana.PublicKey {
		return solana.PublicKeyFromBytes(body[offset : offset+32])
	}

	return types.PoolState{
		AmmConfig:      key(poolAmmConfigOffset),
		Owner:          key(poolOwnerOffset),
		TokenMint0:     key(poolTokenMint0Offset),
		TokenMint1:     key(poolTokenMint1Offset),
		TokenVault0:    key(poolTokenVault0Offset),
		TokenVault1:    key(poolTokenVault1Offset),
		ObservationKey: key(poolObservationKeyOffset),
		MintDecimals0:  body[poolMintDecimals0Offset],
		MintDecimals1:  body[poolMintDecimals1Offset],
		TickSpacing:    binary.LittleEndian.Uint16(body[poolTickSpacingOffset : poolTickSpacingOffset+2]),
		Liquidity:      uint128.FromBytes(body[poolLiquidityOffset : poolLiquidityOffset+16]),
		SqrtPriceX64:   uint128.FromBytes(body[poolSqrtPriceOffset : poolSqrtPriceOffset+16]),
		TickCurrent:    int32(binary.LittleEndian.Uint32(body[poolTickCurrentOffset : poolTickCurrentOffset+4])),
	}, nil
}
