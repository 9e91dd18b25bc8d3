package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/types"
)

// pqUniqueViolation is the PostgreSQL error code for a unique constraint violation.
const pqUniqueViolation = "23505"

// PostgresStore persists manager records and receipts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool, usually DB.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &PostgresStore{db: db}, nil
}

const managerColumns = `
	manager_id, principal, executor, custodian, pool, mint_a, mint_b, vault_a, vault_b,
	lower_tick, upper_tick, liquidity, position, position_state`

// Create inserts a new manager record.
func (s *PostgresStore) Create(ctx context.Context, rec types.Manager) error {
	query := `INSERT INTO managers (` + managerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID.String(), rec.Principal.String(), rec.Executor.String(), rec.Custodian.String(),
		rec.Pool.String(), rec.MintA.String(), rec.MintB.String(), rec.VaultA.String(), rec.VaultB.String(),
		rec.LowerTick, rec.UpperTick, rec.Liquidity.String(), positionColumn(rec.Position), string(rec.State),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return errors.Join(types.ErrManagerExists, fmt.Errorf("manager %s", rec.ID))
		}
		return fmt.Errorf("failed to insert manager: %w", err)
	}

	log.Info().Str("manager_id", rec.ID.String()).Str("pool", rec.Pool.String()).Msg("Manager record saved to database")
	return nil
}

// Get loads a manager record.
func (s *PostgresStore) Get(ctx context.Context, id solana.PublicKey) (types.Manager, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+managerColumns+` FROM managers WHERE manager_id = $1`, id.String())
	return scanManager(row)
}

// Update locks the record row for the duration of fn and writes it back only when fn succeeds.
func (s *PostgresStore) Update(ctx context.Context, id solana.PublicKey, fn func(*types.Manager) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Error().Err(rbErr).Str("manager_id", id.String()).Msg("Failed to roll back manager update")
			}
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+managerColumns+` FROM managers WHERE manager_id = $1 FOR UPDATE`, id.String())
	rec, err := scanManager(row)
	if err != nil {
		return err
	}

	if err = fn(&rec); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE managers
		SET lower_tick = $2, upper_tick = $3, liquidity = $4, position = $5, position_state = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE manager_id = $1`,
		id.String(), rec.LowerTick, rec.UpperTick, rec.Liquidity.String(), positionColumn(rec.Position), string(rec.State),
	)
	if err != nil {
		err = fmt.Errorf("failed to update manager: %w", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit manager update: %w", err)
		return err
	}
	return nil
}

// ListManagers returns every manager record ordered by creation.
func (s *PostgresStore) ListManagers(ctx context.Context) ([]types.Manager, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+managerColumns+` FROM managers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query managers: %w", err)
	}
	defer rows.Close()

	var out []types.Manager
	for rows.Next() {
		rec, err := scanManager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanManager(row rowScanner) (types.Manager, error) {
	var (
		id, principal, executor, custodian, pool string
		mintA, mintB, vaultA, vaultB, position   string
		liquidity, positionState                 string
		rec                                      types.Manager
	)
	err := row.Scan(&id, &principal, &executor, &custodian, &pool, &mintA, &mintB, &vaultA, &vaultB,
		&rec.LowerTick, &rec.UpperTick, &liquidity, &position, &positionState)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Manager{}, errors.Join(types.ErrAccountNotFound, errors.New("manager record not found"))
	}
	if err != nil {
		return types.Manager{}, fmt.Errorf("failed to scan manager row: %w", err)
	}

	keys := []struct {
		dst *solana.PublicKey
		src string
	}{
		{&rec.ID, id}, {&rec.Principal, principal}, {&rec.Executor, executor}, {&rec.Custodian, custodian},
		{&rec.Pool, pool}, {&rec.MintA, mintA}, {&rec.MintB, mintB}, {&rec.VaultA, vaultA}, {&rec.VaultB, vaultB},
	}
	for _, k := range keys {
		if *k.dst, err = solana.PublicKeyFromBase58(k.src); err != nil {
			return types.Manager{}, errors.Join(types.ErrInvalidAccountData, fmt.Errorf("stored key %q: %w", k.src, err))
		}
	}
	if position != "" {
		if rec.Position, err = solana.PublicKeyFromBase58(position); err != nil {
			return types.Manager{}, errors.Join(types.ErrInvalidAccountData, fmt.Errorf("stored position %q: %w", position, err))
		}
	}
	if rec.Liquidity, err = uint128.FromString(liquidity); err != nil {
		return types.Manager{}, errors.Join(types.ErrInvalidAccountData, fmt.Errorf("stored liquidity %q: %w", liquidity, err))
	}
	rec.State = types.PositionState(positionState)
	return rec, nil
}

func positionColumn(position solana.PublicKey) string {
	if position.IsZero() {
		return ""
	}
	return position.String()
}
