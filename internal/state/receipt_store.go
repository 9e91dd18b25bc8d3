package state

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/lpm/internal/types"
)

// SaveReceipt saves an operation receipt to the database.
func (s *PostgresStore) SaveReceipt(ctx context.Context, r types.OperationReceipt) error {
	query := `
		INSERT INTO operation_receipts (
			operation_id, manager_id, operation, caller, success, message, tx_reference,
			liquidity, amount_a, amount_b, aux_accounts, receipt_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING receipt_id;
	`

	var liquidity sql.NullString
	if r.Liquidity != "" {
		liquidity = sql.NullString{String: r.Liquidity, Valid: true}
	}

	var receiptID int64
	err := s.db.QueryRowContext(ctx, query,
		r.OperationID, r.ManagerID, string(r.Operation), r.Caller, r.Success, r.Message, r.TxReference,
		liquidity, strconv.FormatUint(r.AmountA, 10), strconv.FormatUint(r.AmountB, 10), r.AuxAccounts, r.Timestamp,
	).Scan(&receiptID)
	if err != nil {
		return fmt.Errorf("failed to save operation receipt: %w", err)
	}

	log.Debug().
		Int64("receipt_id", receiptID).
		Str("operation", string(r.Operation)).
		Bool("success", r.Success).
		Msg("Operation receipt saved to database")
	return nil
}

// RecentReceipts returns the latest receipts of a manager, newest first. When ops is not
// empty only those operations are returned.
func (s *PostgresStore) RecentReceipts(ctx context.Context, managerID string, limit int, ops ...types.OperationType) ([]types.OperationReceipt, error) {
	limit = clampLimit(limit)

	filter := make([]string, len(ops))
	for i, op := range ops {
		filter[i] = string(op)
	}

	query := `
		SELECT receipt_id, operation_id, manager_id, operation, caller, success,
			COALESCE(message, ''), COALESCE(tx_reference, ''), COALESCE(liquidity::TEXT, ''),
			amount_a::TEXT, amount_b::TEXT, aux_accounts, receipt_timestamp
		FROM operation_receipts
		WHERE manager_id = $1 AND (cardinality($2::TEXT[]) = 0 OR operation = ANY($2))
		ORDER BY receipt_timestamp DESC, receipt_id DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, managerID, pq.Array(filter), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]types.OperationReceipt, 0, limit)
	for rows.Next() {
		var (
			r                types.OperationReceipt
			op               string
			amountA, amountB string
		)
		if err := rows.Scan(&r.ReceiptID, &r.OperationID, &r.ManagerID, &op, &r.Caller, &r.Success,
			&r.Message, &r.TxReference, &r.Liquidity, &amountA, &amountB, &r.AuxAccounts, &r.Timestamp); err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue // Skip this row and continue with others
		}
		r.Operation = types.OperationType(op)
		if r.AmountA, err = strconv.ParseUint(amountA, 10, 64); err != nil {
			return nil, fmt.Errorf("stored amount_a %q: %w", amountA, err)
		}
		if r.AmountB, err = strconv.ParseUint(amountB, 10, 64); err != nil {
			return nil, fmt.Errorf("stored amount_b %q: %w", amountB, err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// Summary aggregates manager states and operation outcomes.
func (s *PostgresStore) Summary(ctx context.Context) (Summary, error) {
	var sum Summary

	rows, err := s.db.QueryContext(ctx, `SELECT position_state, COUNT(*) FROM managers GROUP BY position_state`)
	if err != nil {
		return sum, fmt.Errorf("failed to count managers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var positionState string
		var count int
		if err := rows.Scan(&positionState, &count); err != nil {
			return sum, fmt.Errorf("failed to scan manager counts: %w", err)
		}
		sum.add(types.PositionState(positionState), count)
	}
	if err := rows.Err(); err != nil {
		return sum, err
	}

	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT success), MAX(receipt_timestamp)
		FROM operation_receipts`).Scan(&sum.Operations, &sum.FailedOperations, &last)
	if err != nil {
		return sum, fmt.Errorf("failed to aggregate receipts: %w", err)
	}
	if last.Valid {
		t := last.Time
		sum.LastOperation = &t
	}
	return sum, nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Summary is the dashboard overview.
type Summary struct {
	Managers         int        `json:"managers"`
	Deployed         int        `json:"deployed"`
	Idle             int        `json:"idle"`
	Unregistered     int        `json:"unregistered"`
	Operations       int        `json:"operations"`
	FailedOperations int        `json:"failed_operations"`
	LastOperation    *time.Time `json:"last_operation,omitempty"`
}

func (s *Summary) add(state types.PositionState, count int) {
	s.Managers += count
	switch state {
	case types.PositionDeployed:
		s.Deployed += count
	case types.PositionIdle:
		s.Idle += count
	case types.PositionUnregistered:
		s.Unregistered += count
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10 // Default limit
	}
	return limit
}
