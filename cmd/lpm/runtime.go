package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/codec"
	"github.com/elys-network/lpm/internal/config"
	"github.com/elys-network/lpm/internal/datafetcher"
	"github.com/elys-network/lpm/internal/keeper"
	"github.com/elys-network/lpm/internal/manager"
	"github.com/elys-network/lpm/internal/metrics"
	"github.com/elys-network/lpm/internal/state"
	"github.com/elys-network/lpm/internal/types"
	"github.com/elys-network/lpm/internal/vault"
	"github.com/elys-network/lpm/internal/wallet"
	"github.com/elys-network/lpm/internal/web"
)

const (
	swapTickArrays = 3

	simTickSpacing = 10
	simLowerTick   = -100
	simUpperTick   = 100
	simLiquidity   = 1_000_000
	simFunding     = 1_000_000
)

// poolReader is what the keeper and dashboard read from a host.
type poolReader interface {
	PoolData(ctx context.Context, pool solana.PublicKey) ([]byte, error)
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	VaultBalances(ctx context.Context, vaults ...solana.PublicKey) ([]types.VaultBalance, error)
}

type store interface {
	manager.Store
	web.Store
}

// runtime is the wired set of components for one process.
type runtime struct {
	manager   *manager.Manager
	store     store
	pools     poolReader
	router    keeper.Router
	metrics   *metrics.Metrics
	managerID solana.PublicKey

	// principal and executor are the callers used for admin and executor commands.
	// In live mode they are PRINCIPAL_KEYPAIR_PATH and KEYPAIR_PATH.
	principal solana.PublicKey
	executor  solana.PublicKey
	custodian solana.PublicKey

	sim   *vault.SimulatedHost
	mintA solana.PublicKey
	mintB solana.PublicKey

	closers []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// record loads the manager record this process operates on.
func (rt *runtime) record(ctx context.Context) (types.Manager, error) {
	return rt.manager.Get(ctx, rt.managerID)
}

// route picks swap aux accounts when a router is configured.
func (rt *runtime) route(ctx context.Context, rec types.Manager) ([]solana.PublicKey, error) {
	if rt.router == nil {
		return nil, nil
	}
	data, err := rt.pools.PoolData(ctx, rec.Pool)
	if err != nil {
		return nil, err
	}
	pool, err := codec.DecodePoolState(data)
	if err != nil {
		return nil, err
	}
	return rt.router.Route(rec, pool, rt.manager.Params().SwapAToB)
}

// openRuntime wires the components for the configured mode. In simulate mode seed deploys
// a funded position so that every command has a manager to act on.
func openRuntime(ctx context.Context, seed bool) (*runtime, error) {
	m := metrics.NewMetrics()
	if config.Mode == config.ModeLive {
		return openLiveRuntime(m)
	}
	return openSimulatedRuntime(ctx, m, seed)
}

func openLiveRuntime(m *metrics.Metrics) (*runtime, error) {
	log.Warn().Msg("Initializing LPM in LIVE mode. Real transactions will be broadcast.")

	caller, err := wallet.LoadKeypair(config.KeypairPath)
	if err != nil {
		return nil, err
	}
	principal := caller
	if config.PrincipalKeypairPath != config.KeypairPath {
		if principal, err = wallet.LoadKeypair(config.PrincipalKeypairPath); err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("PRINCIPAL_KEYPAIR_PATH not set: the executor key also acts as principal")
	}
	custody, err := wallet.LoadKeypair(config.CustodyKeypairPath)
	if err != nil {
		return nil, err
	}
	nftOwner, err := wallet.LoadKeypair(config.NftOwnerKeypairPath)
	if err != nil {
		return nil, err
	}

	rt := &runtime{metrics: m}

	dbCfg := state.DBConfig{
		Host: getenvOr("DB_HOST", "localhost"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: getenvOr("DB_SSLMODE", "disable"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	rt.closers = append(rt.closers, state.CloseDB)
	if err := state.EnsureSchema(); err != nil {
		rt.Close()
		return nil, err
	}
	pg, err := state.NewPostgresStore(state.DB)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = pg

	client, err := wallet.NewSigningClient(wallet.ClientConfig{
		RPCURL:           config.SolanaRPC,
		Payer:            caller,
		Signers:          []solana.PrivateKey{principal, custody, nftOwner},
		Commitment:       config.Commitment,
		ComputeUnitLimit: config.ComputeUnitLimit,
		ComputeUnitPrice: config.ComputeUnitPrice,
		TxTimeout:        config.TxTimeout,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	retriever, err := datafetcher.NewPoolRetriever(client.RPC(), client.Commitment(), config.ClmmProgramID)
	if err != nil {
		rt.Close()
		return nil, err
	}

	host, err := vault.NewLiveHost(vault.LiveConfig{
		Reader:   retriever,
		Sender:   client,
		Builder:  wallet.NewCLMMBuilder(config.ClmmProgramID),
		NftOwner: nftOwner.PublicKey(),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.pools = host
	rt.router = keeper.TickArrayRouter{ProgramID: config.ClmmProgramID, Count: swapTickArrays}

	rt.principal = principal.PublicKey()
	rt.executor = caller.PublicKey()
	rt.custodian = custody.PublicKey()

	if err := rt.buildManager(host); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func openSimulatedRuntime(ctx context.Context, m *metrics.Metrics, seed bool) (*runtime, error) {
	log.Info().Msg("Initializing LPM in SIMULATE mode against an in-memory engine.")

	host := vault.NewSimulatedHost()
	rt := &runtime{
		metrics:   m,
		store:     state.NewMemoryStore(),
		pools:     host,
		sim:       host,
		principal: solana.NewWallet().PublicKey(),
		executor:  solana.NewWallet().PublicKey(),
		custodian: solana.NewWallet().PublicKey(),
		mintA:     solana.NewWallet().PublicKey(),
		mintB:     solana.NewWallet().PublicKey(),
	}
	host.AddPool(config.PoolID, types.PoolState{
		TokenMint0:  rt.mintA,
		TokenMint1:  rt.mintB,
		TickSpacing: simTickSpacing,
	})

	if err := rt.buildManager(host); err != nil {
		return nil, err
	}
	if seed {
		if err := rt.seedSimulation(ctx); err != nil {
			return nil, fmt.Errorf("seed simulation: %w", err)
		}
	}
	return rt, nil
}

func (rt *runtime) buildManager(host manager.Host) error {
	mgr, err := manager.NewManager(manager.Config{
		Host:      host,
		Store:     rt.store,
		Recorder:  rt.metrics,
		ProgramID: config.ManagerProgramID,
		Params:    config.Params,
	})
	if err != nil {
		return err
	}
	rt.manager = mgr
	rt.managerID, err = mgr.IDFor(config.PoolID)
	return err
}

// seedSimulation initializes the manager, registers a position and funds both vaults.
func (rt *runtime) seedSimulation(ctx context.Context) error {
	if _, err := rt.manager.Initialize(ctx, rt.principal, types.InitializeRequest{
		Pool:      config.PoolID,
		MintA:     rt.mintA,
		MintB:     rt.mintB,
		Executor:  rt.executor,
		Custodian: rt.custodian,
		LowerTick: simLowerTick,
		UpperTick: simUpperTick,
	}); err != nil {
		return err
	}

	position := rt.sim.MintPosition(config.PoolID, simLowerTick, simUpperTick, uint128.From64(simLiquidity))
	if _, err := rt.manager.RegisterPosition(ctx, rt.principal, rt.managerID, types.RegisterRequest{
		PositionMint: position,
		LowerTick:    simLowerTick,
		UpperTick:    simUpperTick,
	}); err != nil {
		return err
	}

	_, err := rt.manager.FundVaults(ctx, rt.principal, rt.managerID, types.FundRequest{
		SourceA: rt.sim.OpenTokenAccount(rt.principal, rt.mintA, simFunding),
		SourceB: rt.sim.OpenTokenAccount(rt.principal, rt.mintB, simFunding),
		AmountA: simFunding,
		AmountB: simFunding,
	})
	return err
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
