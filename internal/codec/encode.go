package codec

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/elys-network/lpm/internal/types"
)

// Anchor account discriminators of the engine records.
var (
	PersonalPositionDiscriminator = accountDiscriminator("PersonalPositionState")
	PoolStateDiscriminator        = accountDiscriminator("PoolState")
)

func accountDiscriminator(name string) [DiscriminatorLen]byte {
	var out [DiscriminatorLen]byte
	sum := sha256.Sum256([]byte("account:" + name))
	copy(out[:], sum[:DiscriminatorLen])
	return out
}

// EncodePersonalPosition writes a personal position in the engine layout. The simulated host
// uses it so reads go through the same decode path as live accounts.
func EncodePersonalPosition(p types.PersonalPosition) []byte {
	buf := make([]byte, MinPositionLen)
	copy(buf, PersonalPositionDiscriminator[:])
	body := buf[DiscriminatorLen:]

	copy(body[positionNftMintOffset:], p.NftMint[:])
	copy(body[positionPoolIDOffset:], p.PoolID[:])
	binary.LittleEndian.PutUint32(body[positionTickLowerOffset:], uint32(p.TickLower))
	binary.LittleEndian.PutUint32(body[positionTickUpperOffset:], uint32(p.TickUpper))
	p.Liquidity.PutBytes(body[positionLiquidityOffset:])
	return buf
}

// EncodePoolState writes a pool state in the engine layout.
func EncodePoolState(p types.PoolState) []byte {
	buf := make([]byte, MinPoolLen)
	copy(buf, PoolStateDiscriminator[:])
	body := buf[DiscriminatorLen:]

	copy(body[poolAmmConfigOffset:], p.AmmConfig[:])
	copy(body[poolOwnerOffset:], p.Owner[:])
	copy(body[poolTokenMint0Offset:], p.TokenMint0[:])
	copy(body[poolTokenMint1Offset:], p.TokenMint1[:])
	copy(body[poolTokenVault0Offset:], p.TokenVault0[:])
	copy(body[poolTokenVault1Offset:], p.TokenVault1[:])
	copy(body[poolObservationKeyOffset:], p.ObservationKey[:])
	body[poolMintDecimals0Offset] = p.MintDecimals0
	body[poolMintDecimals1Offset] = p.MintDecimals1
	binary.LittleEndian.PutUint16(body[poolTickSpacingOffset:], p.TickSpacing)
	p.Liquidity.PutBytes(body[poolLiquidityOffset:])
	p.SqrtPriceX64.PutBytes(body[poolSqrtPriceOffset:])
	binary.LittleEndian.PutUint32(body[poolTickCurrentOffset:], uint32(p.TickCurrent))
	return buf
}
