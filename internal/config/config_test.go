package config

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigSimulate(t *testing.T) {
	pool := solana.NewWallet().PublicKey()
	t.Setenv("LPM_MODE", ModeSimulate)
	t.Setenv("LPM_POOL", pool.String())
	t.Setenv("SWAP_SLIPPAGE_BPS", "50")
	t.Setenv("SWAP_A_TO_B", "false")
	t.Setenv("LOOP_INTERVAL_SECONDS", "30")

	require.NoError(t, LoadConfig())
	assert.Equal(t, ModeSimulate, Mode)
	assert.Equal(t, pool, PoolID)
	assert.Equal(t, defaultClmmProgramID, ClmmProgramID)
	assert.Equal(t, uint64(110), Params.DepositHeadroomPercent)
	assert.Equal(t, uint32(50), Params.SwapSlippageBps)
	assert.Equal(t, uint32(0), Params.WithdrawSlippageBps)
	assert.False(t, Params.SwapAToB)
	assert.Equal(t, 30*time.Second, Params.LoopInterval)
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("LPM_MODE", "paper")
	t.Setenv("LPM_POOL", solana.NewWallet().PublicKey().String())
	assert.Error(t, LoadConfig())
}

func TestLoadConfigLiveRequiresKeys(t *testing.T) {
	t.Setenv("LPM_MODE", ModeLive)
	t.Setenv("LPM_POOL", solana.NewWallet().PublicKey().String())
	t.Setenv("KEYPAIR_PATH", "")
	assert.Error(t, LoadConfig())
}

func TestLoadConfigRejectsBadBps(t *testing.T) {
	t.Setenv("LPM_MODE", ModeSimulate)
	t.Setenv("LPM_POOL", solana.NewWallet().PublicKey().String())
	t.Setenv("WITHDRAW_SLIPPAGE_BPS", "10001")
	assert.Error(t, LoadConfig())
}

func TestLoadConfigLiveDefaults(t *testing.T) {
	t.Setenv("LPM_MODE", ModeLive)
	t.Setenv("LPM_POOL", solana.NewWallet().PublicKey().String())
	t.Setenv("KEYPAIR_PATH", "/keys/executor.json")
	t.Setenv("CUSTODY_KEYPAIR_PATH", "/keys/custody.json")
	t.Setenv("SOLANA_RPC", "http://127.0.0.1:8899")
	t.Setenv("TX_TIMEOUT_SECONDS", "20")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "/keys/executor.json", PrincipalKeypairPath, "one key holds both roles by default")
	assert.Equal(t, "/keys/custody.json", NftOwnerKeypairPath)
	assert.Equal(t, uint32(800_000), ComputeUnitLimit)
	assert.Equal(t, 20*time.Second, TxTimeout)
	assert.Equal(t, "confirmed", string(Commitment))

	t.Setenv("NFT_OWNER_KEYPAIR_PATH", "/keys/nft.json")
	require.NoError(t, LoadConfig())
	assert.Equal(t, "/keys/nft.json", NftOwnerKeypairPath)
}

func TestLoadConfigSeparatePrincipalKey(t *testing.T) {
	t.Setenv("LPM_MODE", ModeLive)
	t.Setenv("LPM_POOL", solana.NewWallet().PublicKey().String())
	t.Setenv("KEYPAIR_PATH", "/keys/executor.json")
	t.Setenv("CUSTODY_KEYPAIR_PATH", "/keys/custody.json")
	t.Setenv("PRINCIPAL_KEYPAIR_PATH", "/keys/admin.json")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "/keys/executor.json", KeypairPath)
	assert.Equal(t, "/keys/admin.json", PrincipalKeypairPath)

	t.Setenv("PRINCIPAL_KEYPAIR_PATH", "")
	assert.Error(t, LoadConfig(), "an empty override is rejected rather than silently collapsed")
}
