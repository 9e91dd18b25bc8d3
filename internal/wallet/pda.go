package wallet

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// TickArraySize is the number of initializable ticks held by one tick array account.
const TickArraySize = 60

var (
	positionSeed  = []byte("position")
	tickArraySeed = []byte("tick_array")
)

// PersonalPositionAddress derives the engine's per-position record for an NFT mint.
func PersonalPositionAddress(programID, nftMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{positionSeed, nftMint[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive personal position: %w", err)
	}
	return addr, nil
}

// ProtocolPositionAddress derives the pool-level position record for a tick range.
func ProtocolPositionAddress(programID, pool solana.PublicKey, lower, upper int32) (solana.PublicKey, error) {
	seeds := [][]byte{positionSeed, pool[:], beInt32(lower), beInt32(upper)}
	addr, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive protocol position: %w", err)
	}
	return addr, nil
}

// TickArrayStartIndex returns the first tick of the array holding tick.
func TickArrayStartIndex(tick int32, tickSpacing uint16) int32 {
	span := int32(tickSpacing) * TickArraySize
	start := tick / span
	if tick < 0 && tick%span != 0 {
		start--
	}
	return start * span
}

// TickArrayAddress derives the tick array account starting at startIndex.
func TickArrayAddress(programID, pool solana.PublicKey, startIndex int32) (solana.PublicKey, error) {
	seeds := [][]byte{tickArraySeed, pool[:], beInt32(startIndex)}
	addr, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive tick array %d: %w", startIndex, err)
	}
	return addr, nil
}

// SwapTickArrays returns the tick array holding the current tick followed by the next
// count-1 arrays in the swap direction. Selling mint 0 moves the price down.
func SwapTickArrays(programID, pool solana.PublicKey, currentTick int32, tickSpacing uint16, zeroForOne bool, count int) ([]solana.PublicKey, error) {
	span := int32(tickSpacing) * TickArraySize
	start := TickArrayStartIndex(currentTick, tickSpacing)
	out := make([]solana.PublicKey, 0, count)
	for i := 0; i < count; i++ {
		addr, err := TickArrayAddress(programID, pool, start)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
		if zeroForOne {
			start -= span
		} else {
			start += span
		}
	}
	return out, nil
}

// NftTokenAccount is the position NFT's token account, created under Token-2022.
func NftTokenAccount(owner, nftMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], solana.Token2022ProgramID[:], nftMint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive nft token account: %w", err)
	}
	return addr, nil
}

func beInt32(v int32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(v))
	return out
}
