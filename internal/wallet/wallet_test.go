package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/types"
)

var testProgram = solana.MustPublicKeyFromBase58("devi51mZmdwUJGU9hjN27vEz64Gps7uUefqxg27EAtH")

func testPool() types.PoolState {
	return types.PoolState{
		AmmConfig:      solana.NewWallet().PublicKey(),
		TokenMint0:     solana.NewWallet().PublicKey(),
		TokenMint1:     solana.NewWallet().PublicKey(),
		TokenVault0:    solana.NewWallet().PublicKey(),
		TokenVault1:    solana.NewWallet().PublicKey(),
		ObservationKey: solana.NewWallet().PublicKey(),
		TickSpacing:    10,
		TickCurrent:    -25,
	}
}

func testLiquidityAccounts() LiquidityAccounts {
	return LiquidityAccounts{
		NftOwner:      solana.NewWallet().PublicKey(),
		NftMint:       solana.NewWallet().PublicKey(),
		PoolID:        solana.NewWallet().PublicKey(),
		Pool:          testPool(),
		TickLower:     -600,
		TickUpper:     1200,
		TokenAccount0: solana.NewWallet().PublicKey(),
		TokenAccount1: solana.NewWallet().PublicKey(),
	}
}

func instructionData(t *testing.T, ix solana.Instruction) []byte {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	return data
}

func TestAnchorInstructionDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("global:swap_v2"))
	assert.Equal(t, sum[:8], swapV2Discriminator[:])
	assert.NotEqual(t, decreaseLiquidityV2Discriminator, increaseLiquidityV2Discriminator)
}

func TestTickArrayStartIndex(t *testing.T) {
	cases := []struct {
		tick    int32
		spacing uint16
		want    int32
	}{
		{0, 10, 0},
		{599, 10, 0},
		{600, 10, 600},
		{-1, 10, -600},
		{-600, 10, -600},
		{-601, 10, -1200},
		{1, 1, 0},
		{-25, 60, -3600},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TickArrayStartIndex(tc.tick, tc.spacing), "tick %d spacing %d", tc.tick, tc.spacing)
	}
}

func TestSwapTickArraysFollowDirection(t *testing.T) {
	pool := solana.NewWallet().PublicKey()

	down, err := SwapTickArrays(testProgram, pool, 5, 10, true, 3)
	require.NoError(t, err)
	require.Len(t, down, 3)
	for i, start := range []int32{0, -600, -1200} {
		want, err := TickArrayAddress(testProgram, pool, start)
		require.NoError(t, err)
		assert.Equal(t, want, down[i])
	}

	up, err := SwapTickArrays(testProgram, pool, 5, 10, false, 2)
	require.NoError(t, err)
	want, err := TickArrayAddress(testProgram, pool, 600)
	require.NoError(t, err)
	assert.Equal(t, want, up[1])
}

func TestProtocolPositionDependsOnRange(t *testing.T) {
	pool := solana.NewWallet().PublicKey()
	a, err := ProtocolPositionAddress(testProgram, pool, -600, 1200)
	require.NoError(t, err)
	b, err := ProtocolPositionAddress(testProgram, pool, -600, 1210)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNftTokenAccountUsesToken2022(t *testing.T) {
	assert.Equal(t, "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb", solana.Token2022ProgramID.String())

	owner := solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	mint := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	addr, err := NftTokenAccount(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, "GdjpegrtGwU3pgtzPivYVViSA8rmGL248qBVKzsrU3DD", addr.String())

	// The legacy token program derives a different account for the same pair.
	legacy, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, "FGETo8T8wMcN2wCjav8VK6eh3dLk63evNDPxzLSJra8B", legacy.String())
	assert.NotEqual(t, legacy, addr)
}

func TestDecreaseLiquidityV2Layout(t *testing.T) {
	acc := testLiquidityAccounts()
	b := NewCLMMBuilder(testProgram)

	ix, err := b.DecreaseLiquidityV2(acc, uint128.New(7, 1), 100, 200)
	require.NoError(t, err)
	assert.Equal(t, testProgram, ix.ProgramID())

	data := instructionData(t, ix)
	require.Len(t, data, 40)
	assert.Equal(t, decreaseLiquidityV2Discriminator[:], data[:8])
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, uint64(100), binary.LittleEndian.Uint64(data[24:32]))
	assert.Equal(t, uint64(200), binary.LittleEndian.Uint64(data[32:40]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 16)
	assert.Equal(t, acc.NftOwner, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsSigner)

	personal, err := PersonalPositionAddress(testProgram, acc.NftMint)
	require.NoError(t, err)
	assert.Equal(t, personal, accounts[2].PublicKey)
	assert.Equal(t, acc.PoolID, accounts[3].PublicKey)

	lower, err := TickArrayAddress(testProgram, acc.PoolID, -600)
	require.NoError(t, err)
	assert.Equal(t, lower, accounts[7].PublicKey)
	assert.Equal(t, acc.TokenAccount0, accounts[9].PublicKey)
	assert.Equal(t, solana.Token2022ProgramID, accounts[12].PublicKey)
	assert.Equal(t, solana.MemoProgramID, accounts[13].PublicKey)
}

func TestIncreaseLiquidityV2Layout(t *testing.T) {
	acc := testLiquidityAccounts()
	b := NewCLMMBuilder(testProgram)

	ix, err := b.IncreaseLiquidityV2(acc, uint128.From64(1_000_000), 1_100_000, 55, true)
	require.NoError(t, err)

	data := instructionData(t, ix)
	require.Len(t, data, 42)
	assert.Equal(t, increaseLiquidityV2Discriminator[:], data[:8])
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, uint64(1_100_000), binary.LittleEndian.Uint64(data[24:32]))
	assert.Equal(t, uint64(55), binary.LittleEndian.Uint64(data[32:40]))
	assert.Equal(t, []byte{1, 1}, data[40:42])

	accounts := ix.Accounts()
	require.Len(t, accounts, 15)
	assert.Equal(t, acc.TokenAccount1, accounts[8].PublicKey)
	assert.Equal(t, acc.Pool.TokenVault0, accounts[9].PublicKey)
}

func TestLiquidityInstructionsNeedTickSpacing(t *testing.T) {
	acc := testLiquidityAccounts()
	acc.Pool.TickSpacing = 0

	_, err := NewCLMMBuilder(testProgram).DecreaseLiquidityV2(acc, uint128.From64(1), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestSwapV2Layout(t *testing.T) {
	pool := testPool()
	acc := SwapAccounts{
		Payer:              solana.NewWallet().PublicKey(),
		PoolID:             solana.NewWallet().PublicKey(),
		Pool:               pool,
		InputTokenAccount:  solana.NewWallet().PublicKey(),
		OutputTokenAccount: solana.NewWallet().PublicKey(),
		ZeroForOne:         false,
	}
	aux := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}

	ix, err := NewCLMMBuilder(testProgram).SwapV2(acc, 5000, 4900, uint128.Zero, true, aux)
	require.NoError(t, err)

	data := instructionData(t, ix)
	require.Len(t, data, 41)
	assert.Equal(t, swapV2Discriminator[:], data[:8])
	assert.Equal(t, uint64(5000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(4900), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, make([]byte, 16), data[24:40])
	assert.Equal(t, byte(1), data[40])

	accounts := ix.Accounts()
	require.Len(t, accounts, 13+len(aux))
	assert.Equal(t, pool.TokenVault1, accounts[5].PublicKey)
	assert.Equal(t, pool.TokenVault0, accounts[6].PublicKey)
	assert.Equal(t, pool.TokenMint1, accounts[11].PublicKey)
	assert.Equal(t, aux[0], accounts[13].PublicKey)
	assert.Equal(t, aux[1], accounts[14].PublicKey)
	assert.True(t, accounts[14].IsWritable)
}

func TestTransferTokensRejectsZero(t *testing.T) {
	_, err := TransferTokens(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 0)
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	ix, err := TransferTokens(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 10)
	require.NoError(t, err)
	assert.Equal(t, solana.TokenProgramID, ix.ProgramID())
}

func TestNewSigningClientValidatesConfig(t *testing.T) {
	_, err := NewSigningClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSigningClient(ClientConfig{RPCURL: "http://localhost:8899"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	payer := solana.NewWallet().PrivateKey
	extra := solana.NewWallet().PrivateKey
	client, err := NewSigningClient(ClientConfig{RPCURL: "http://localhost:8899", Payer: payer, Signers: []solana.PrivateKey{extra}})
	require.NoError(t, err)
	assert.Equal(t, payer.PublicKey(), client.Payer())
	assert.True(t, client.CanSign(extra.PublicKey()))
	assert.False(t, client.CanSign(solana.NewWallet().PublicKey()))
}

// statusServer answers getSignatureStatuses with a single status. An empty status reports
// the signature as unknown to the node.
func statusServer(status, txErr string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value := "null"
		if status != "" {
			if txErr == "" {
				txErr = "null"
			}
			value = fmt.Sprintf(`{"slot":1,"confirmations":null,"err":%s,"confirmationStatus":%q}`, txErr, status)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":{"context":{"slot":1},"value":[%s]}}`, req.ID, value)
	}))
}

func TestConfirmationTimeoutRechecksStatus(t *testing.T) {
	cases := []struct {
		name   string
		status string
		txErr  string
		want   error
	}{
		{"landed after the wait", "confirmed", "", nil},
		{"failed after the wait", "confirmed", `{"InstructionError":[0,{"Custom":6000}]}`, ErrTxFailed},
		{"still processing", "processed", "", ErrTxNotConfirmed},
		{"unknown to the node", "", "", ErrTxNotConfirmed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := statusServer(tc.status, tc.txErr)
			defer srv.Close()
			client, err := NewSigningClient(ClientConfig{RPCURL: srv.URL, Payer: solana.NewWallet().PrivateKey})
			require.NoError(t, err)

			// An expired context means the polling loop never ran.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err = client.waitForConfirmation(ctx, solana.Signature{1})
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
