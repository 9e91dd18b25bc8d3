package keeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/config"
	"github.com/elys-network/lpm/internal/keeper"
	"github.com/elys-network/lpm/internal/manager"
	"github.com/elys-network/lpm/internal/state"
	"github.com/elys-network/lpm/internal/types"
	"github.com/elys-network/lpm/internal/vault"
	"github.com/elys-network/lpm/internal/wallet"
)

type fixture struct {
	ctx       context.Context
	host      *vault.SimulatedHost
	store     *state.MemoryStore
	mgr       *manager.Manager
	principal solana.PublicKey
	executor  solana.PublicKey
	pool      solana.PublicKey
	mintA     solana.PublicKey
	mintB     solana.PublicKey
	id        solana.PublicKey
}

func newFixture(t *testing.T, swapFractionBps uint32) *fixture {
	t.Helper()
	params := config.DefaultRebalanceParameters
	params.SwapFractionBps = swapFractionBps

	f := &fixture{
		ctx:       context.Background(),
		host:      vault.NewSimulatedHost(),
		store:     state.NewMemoryStore(),
		principal: solana.NewWallet().PublicKey(),
		executor:  solana.NewWallet().PublicKey(),
		pool:      solana.NewWallet().PublicKey(),
		mintA:     solana.NewWallet().PublicKey(),
		mintB:     solana.NewWallet().PublicKey(),
	}
	f.host.AddPool(f.pool, types.PoolState{TokenMint0: f.mintA, TokenMint1: f.mintB, TickSpacing: 10})

	mgr, err := manager.NewManager(manager.Config{
		Host:      f.host,
		Store:     f.store,
		ProgramID: solana.NewWallet().PublicKey(),
		Params:    params,
	})
	require.NoError(t, err)
	f.mgr = mgr

	_, err = mgr.Initialize(f.ctx, f.principal, types.InitializeRequest{
		Pool:      f.pool,
		MintA:     f.mintA,
		MintB:     f.mintB,
		Executor:  f.executor,
		Custodian: solana.NewWallet().PublicKey(),
		LowerTick: -100,
		UpperTick: 100,
	})
	require.NoError(t, err)
	f.id, err = mgr.IDFor(f.pool)
	require.NoError(t, err)
	return f
}

func (f *fixture) deploy(t *testing.T) {
	t.Helper()
	position := f.host.MintPosition(f.pool, -100, 100, uint128.From64(10_000))
	_, err := f.mgr.RegisterPosition(f.ctx, f.principal, f.id, types.RegisterRequest{
		PositionMint: position,
		LowerTick:    -100,
		UpperTick:    100,
	})
	require.NoError(t, err)
}

func (f *fixture) fundA(t *testing.T, amount uint64) {
	t.Helper()
	src := f.host.OpenTokenAccount(f.principal, f.mintA, amount)
	_, err := f.mgr.FundVaults(f.ctx, f.principal, f.id, types.FundRequest{SourceA: src, AmountA: amount})
	require.NoError(t, err)
}

func (f *fixture) keeper(t *testing.T, router keeper.Router) *keeper.Keeper {
	t.Helper()
	k, err := keeper.NewKeeper(keeper.Config{
		Manager:   f.mgr,
		Pools:     f.host,
		Router:    router,
		ManagerID: f.id,
		Executor:  f.executor,
	})
	require.NoError(t, err)
	return k
}

type staticRouter struct {
	aux   []solana.PublicKey
	calls int
}

func (r *staticRouter) Route(types.Manager, types.PoolState, bool) ([]solana.PublicKey, error) {
	r.calls++
	return r.aux, nil
}

func TestNewKeeperValidatesConfig(t *testing.T) {
	f := newFixture(t, 0)
	_, err := keeper.NewKeeper(keeper.Config{Pools: f.host, ManagerID: f.id, Executor: f.executor})
	assert.Error(t, err)
	_, err = keeper.NewKeeper(keeper.Config{Manager: f.mgr, Pools: f.host, Executor: f.executor})
	assert.Error(t, err)
	_, err = keeper.NewKeeper(keeper.Config{Manager: f.mgr, ManagerID: f.id, Executor: f.executor})
	assert.Error(t, err)
}

func TestCycleInRangeDoesNothing(t *testing.T) {
	f := newFixture(t, 0)
	f.deploy(t)

	for _, tick := range []int32{-100, 0, 100} {
		require.NoError(t, f.host.SetTick(f.pool, tick))
		result, err := f.keeper(t, nil).RunCycle(f.ctx)
		assert.ErrorIs(t, err, types.ErrNoRebalanceNeeded, "tick %d", tick)
		assert.Empty(t, result.Steps)
	}
	assert.Len(t, f.host.Calls(), 2, "only the vault creation reached the host")
}

func (f *fixture) record(t *testing.T) types.Manager {
	t.Helper()
	rec, err := f.mgr.Get(f.ctx, f.id)
	require.NoError(t, err)
	return rec
}

func (f *fixture) count(kind vault.CallKind) int {
	n := 0
	for _, c := range f.host.Calls() {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func TestCycleOutOfRangeWithdrawsAndWaits(t *testing.T) {
	f := newFixture(t, 5_000)
	f.deploy(t)
	f.fundA(t, 1_000)
	require.NoError(t, f.host.SetTick(f.pool, 101))

	router := &staticRouter{aux: []solana.PublicKey{solana.NewWallet().PublicKey()}}
	result, err := f.keeper(t, router).RunCycle(f.ctx)
	require.ErrorIs(t, err, types.ErrAwaitingPosition)
	require.Len(t, result.Steps, 2)
	assert.Empty(t, result.FailedStep)
	assert.Equal(t, types.OpRemoveLiquidity, result.Steps[0].Operation)
	assert.Equal(t, types.OpSwap, result.Steps[1].Operation)
	assert.Equal(t, uint64(500), result.Steps[1].AmountA)
	assert.Equal(t, 1, result.Steps[1].AuxAccounts)
	assert.Equal(t, 1, router.calls)

	rec := f.record(t)
	assert.Equal(t, types.PositionIdle, rec.State)
	assert.Equal(t, uint128.From64(10_000), rec.Liquidity)
	assert.Zero(t, f.count(vault.CallIncreaseLiquidity), "nothing is redeployed into the stale range")
}

func TestCycleWithoutSwapFraction(t *testing.T) {
	f := newFixture(t, 0)
	f.deploy(t)
	require.NoError(t, f.host.SetTick(f.pool, -101))

	router := &staticRouter{}
	result, err := f.keeper(t, router).RunCycle(f.ctx)
	require.ErrorIs(t, err, types.ErrAwaitingPosition)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, types.OpRemoveLiquidity, result.Steps[0].Operation)
	assert.Zero(t, router.calls)
}

func TestCycleOutOfRangeDoesNotRepeat(t *testing.T) {
	f := newFixture(t, 5_000)
	f.deploy(t)
	f.fundA(t, 1_000)
	require.NoError(t, f.host.SetTick(f.pool, 500))
	k := f.keeper(t, nil)

	_, err := k.RunCycle(f.ctx)
	require.ErrorIs(t, err, types.ErrAwaitingPosition)
	attempts := f.host.Attempts()

	for i := 0; i < 3; i++ {
		result, err := k.RunCycle(f.ctx)
		assert.ErrorIs(t, err, types.ErrAwaitingPosition, "cycle %d", i)
		assert.Empty(t, result.Steps, "cycle %d", i)
	}
	assert.Equal(t, attempts, f.host.Attempts(), "waiting cycles send nothing")
	assert.Equal(t, 1, f.count(vault.CallDecreaseLiquidity))
	assert.Equal(t, 1, f.count(vault.CallSwap))
	assert.Zero(t, f.count(vault.CallIncreaseLiquidity))

	// A position covering the current tick ends the wait.
	next := f.host.MintPosition(f.pool, 400, 600, uint128.Zero)
	_, err = f.mgr.RegisterPosition(f.ctx, f.principal, f.id, types.RegisterRequest{PositionMint: next, LowerTick: 400, UpperTick: 600})
	require.NoError(t, err)
	require.Equal(t, types.PositionIdle, f.record(t).State)

	result, err := k.RunCycle(f.ctx)
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, types.OpAddLiquidity, result.Steps[0].Operation)
	assert.Equal(t, types.PositionDeployed, f.record(t).State)

	pos, ok := f.host.Position(next)
	require.True(t, ok)
	assert.Equal(t, uint128.From64(10_000), pos.Liquidity)

	_, err = k.RunCycle(f.ctx)
	assert.ErrorIs(t, err, types.ErrNoRebalanceNeeded)
}

func TestCycleRequiresRegisteredPosition(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.host.SetTick(f.pool, 500))

	_, err := f.keeper(t, nil).RunCycle(f.ctx)
	assert.ErrorIs(t, err, types.ErrInvalidPositionState)
}

func TestCycleResumesIdlePosition(t *testing.T) {
	f := newFixture(t, 0)
	f.deploy(t)
	require.NoError(t, f.host.SetTick(f.pool, 500))
	k := f.keeper(t, nil)

	_, err := k.RunCycle(f.ctx)
	require.ErrorIs(t, err, types.ErrAwaitingPosition)

	// The price comes back into the range while the deposit engine is unavailable.
	require.NoError(t, f.host.SetTick(f.pool, 0))
	f.host.FailOn(vault.CallIncreaseLiquidity, errors.New("engine paused"))

	result, err := k.RunCycle(f.ctx)
	require.Error(t, err)
	assert.Equal(t, types.OpAddLiquidity, result.FailedStep)
	require.Equal(t, types.PositionIdle, f.record(t).State)

	f.host.FailOn(vault.CallIncreaseLiquidity, nil)
	result, err = k.RunCycle(f.ctx)
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, types.OpAddLiquidity, result.Steps[0].Operation)
	assert.Equal(t, types.PositionDeployed, f.record(t).State)
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	f := newFixture(t, 0)
	f.deploy(t)

	k := f.keeper(t, nil)
	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan struct{})
	go func() {
		k.RunLoop(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunLoop did not return after cancellation")
	}
}

func TestTickArrayRouterDirection(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	mintA, mintB := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	rec := types.Manager{Pool: solana.NewWallet().PublicKey(), MintA: mintA, MintB: mintB}
	pool := types.PoolState{TokenMint0: mintB, TokenMint1: mintA, TickSpacing: 10, TickCurrent: 5}

	// Selling A sells the pool's mint 1, which walks the tick arrays upwards.
	aux, err := keeper.TickArrayRouter{ProgramID: program, Count: 2}.Route(rec, pool, true)
	require.NoError(t, err)
	next, err := wallet.TickArrayAddress(program, rec.Pool, 600)
	require.NoError(t, err)
	assert.Equal(t, next, aux[1])

	_, err = keeper.TickArrayRouter{ProgramID: program, Count: 2}.Route(rec, types.PoolState{}, true)
	assert.ErrorIs(t, err, types.ErrInvalidPoolData)
}
