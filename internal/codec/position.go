// Package codec decodes the engine-owned CLMM accounts the manager reads.
//
// The layouts are pinned by byte offset instead of importing the engine's own type
// definitions. A layout change in the engine is a change to the constants below and to the
// fixtures in codec_test.go, nothing else.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/types"
)

const (
	// DiscriminatorLen is the record-type prefix every engine account starts with.
	DiscriminatorLen = 8

	// LiquidityWidth is the width of a little-endian u128.
	LiquidityWidth = 16

	// Personal position layout, relative to the end of the discriminator:
	// bump(1) nft_mint(32) pool_id(32) tick_lower(4) tick_upper(4) liquidity(16)
	positionNftMintOffset   = 1
	positionPoolIDOffset    = 33
	positionTickLowerOffset = 65
	positionTickUpperOffset = 69
	positionLiquidityOffset = 73

	// PositionLiquidityOffset is the absolute offset of the liquidity field.
	PositionLiquidityOffset = DiscriminatorLen + positionLiquidityOffset

	// MinPositionLen is the shortest buffer DecodeLiquidity accepts.
	MinPositionLen = PositionLiquidityOffset + LiquidityWidth
)

// DecodeLiquidity reads the deployed liquidity out of a raw personal position account.
// It performs no validation beyond the buffer length.
func DecodeLiquidity(data []byte) (uint128.Uint128, error) {
	if len(data) < MinPositionLen {
		return uint128.Zero, errors.Join(types.ErrInvalidAccountData,
			fmt.Errorf("position account is %d bytes, need at least %d", len(data), MinPositionLen))
	}
	return uint128.FromBytes(data[PositionLiquidityOffset:MinPositionLen]), nil
}

// DecodePersonalPosition decodes the identity, range and liquidity of a personal position.
func DecodePersonalPosition(data []byte) (types.PersonalPosition, error) {
	liquidity, err := DecodeLiquidity(data)
	if err != nil {
		return types.PersonalPosition{}, err
	}
	body := data[DiscriminatorLen:]

	return types.PersonalPosition{
		NftMint:   solana.PublicKeyFromBytes(body[positionNftMintOffset : positionNftMintOffset+32]),
		PoolID:    solana.PublicKeyFromBytes(body[positionPoolIDOffset : positionPoolIDOffset+32]),
		TickLower: int32(binary.LittleEndian.Uint32(body[positionTickLowerOffset : positionTickLowerOffset+4])),
		TickUpper: int32(binary.LittleEndian.Uint32(body[positionTickUpperOffset : positionTickUpperOffset+4])),
		Liquidity: liquidity,
	}, nil
}
