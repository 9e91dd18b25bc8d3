package state

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/types"
)

type testStore interface {
	Create(ctx context.Context, rec types.Manager) error
	Get(ctx context.Context, id solana.PublicKey) (types.Manager, error)
	Update(ctx context.Context, id solana.PublicKey, fn func(*types.Manager) error) error
	SaveReceipt(ctx context.Context, r types.OperationReceipt) error
	RecentReceipts(ctx context.Context, managerID string, limit int, ops ...types.OperationType) ([]types.OperationReceipt, error)
	Summary(ctx context.Context) (Summary, error)
}

func newRecord() types.Manager {
	return types.Manager{
		ID:        solana.NewWallet().PublicKey(),
		Principal: solana.NewWallet().PublicKey(),
		Executor:  solana.NewWallet().PublicKey(),
		Custodian: solana.NewWallet().PublicKey(),
		Pool:      solana.NewWallet().PublicKey(),
		MintA:     solana.NewWallet().PublicKey(),
		MintB:     solana.NewWallet().PublicKey(),
		VaultA:    solana.NewWallet().PublicKey(),
		VaultB:    solana.NewWallet().PublicKey(),
		LowerTick: -120,
		UpperTick: 240,
		Liquidity: uint128.Zero,
		State:     types.PositionUnregistered,
	}
}

func runStoreSuite(t *testing.T, s testStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		rec := newRecord()
		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec, got)

		err = s.Create(ctx, rec)
		assert.True(t, errors.Is(err, types.ErrManagerExists))
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := s.Get(ctx, solana.NewWallet().PublicKey())
		assert.True(t, errors.Is(err, types.ErrAccountNotFound))

		err = s.Update(ctx, solana.NewWallet().PublicKey(), func(*types.Manager) error { return nil })
		assert.True(t, errors.Is(err, types.ErrAccountNotFound))
	})

	t.Run("update commits only on success", func(t *testing.T) {
		rec := newRecord()
		require.NoError(t, s.Create(ctx, rec))

		boom := errors.New("boom")
		err := s.Update(ctx, rec.ID, func(m *types.Manager) error {
			m.Liquidity = uint128.From64(99)
			m.State = types.PositionIdle
			return boom
		})
		assert.ErrorIs(t, err, boom)
		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec, got)

		position := solana.NewWallet().PublicKey()
		big := uint128.New(0, 1) // 2^64
		require.NoError(t, s.Update(ctx, rec.ID, func(m *types.Manager) error {
			m.Liquidity = big
			m.Position = position
			m.State = types.PositionDeployed
			return nil
		}))
		got, err = s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, big, got.Liquidity)
		assert.Equal(t, position, got.Position)
		assert.Equal(t, types.PositionDeployed, got.State)
	})

	t.Run("receipts newest first with filter", func(t *testing.T) {
		managerID := solana.NewWallet().PublicKey().String()
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		ops := []types.OperationType{types.OpRemoveLiquidity, types.OpSwap, types.OpAddLiquidity}
		for i, op := range ops {
			require.NoError(t, s.SaveReceipt(ctx, types.OperationReceipt{
				OperationID: uuid.New().String(),
				ManagerID:   managerID,
				Operation:   op,
				Caller:      solana.NewWallet().PublicKey().String(),
				Success:     i != 1,
				AmountA:     ^uint64(0),
				Timestamp:   base.Add(time.Duration(i) * time.Minute),
			}))
		}

		all, err := s.RecentReceipts(ctx, managerID, 10)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, types.OpAddLiquidity, all[0].Operation)
		assert.Equal(t, types.OpRemoveLiquidity, all[2].Operation)
		assert.Equal(t, ^uint64(0), all[0].AmountA)

		swaps, err := s.RecentReceipts(ctx, managerID, 10, types.OpSwap)
		require.NoError(t, err)
		require.Len(t, swaps, 1)
		assert.False(t, swaps[0].Success)

		limited, err := s.RecentReceipts(ctx, managerID, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("summary", func(t *testing.T) {
		sum, err := s.Summary(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sum.Managers, 2)
		assert.Equal(t, sum.Managers, sum.Deployed+sum.Idle+sum.Unregistered)
		assert.GreaterOrEqual(t, sum.FailedOperations, 1)
		assert.NotNil(t, sum.LastOperation)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

// TestPostgresStore runs against a scratch database named by LPM_TEST_DATABASE_URL.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("LPM_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LPM_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(DropSchemaSQL + SchemaSQL)
	require.NoError(t, err)

	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	runStoreSuite(t, s)
}

func TestMemoryStoreListManagersKeepsOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first, second := newRecord(), newRecord()
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))

	list, err := s.ListManagers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}
