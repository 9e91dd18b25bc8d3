package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/elys-network/lpm/internal/types"
)

// MemoryStore keeps manager records and receipts in process memory. A single mutex
// serializes Update calls, matching the row lock of PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[solana.PublicKey]types.Manager
	order    []solana.PublicKey
	receipts []types.OperationReceipt
	nextID   int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[solana.PublicKey]types.Manager)}
}

func (s *MemoryStore) Create(ctx context.Context, rec types.Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return errors.Join(types.ErrManagerExists, fmt.Errorf("manager %s", rec.ID))
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id solana.PublicKey) (types.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return types.Manager{}, errors.Join(types.ErrAccountNotFound, fmt.Errorf("manager %s", id))
	}
	return rec, nil
}

// Update runs fn on a copy and stores it only when fn returns nil.
func (s *MemoryStore) Update(ctx context.Context, id solana.PublicKey, fn func(*types.Manager) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return errors.Join(types.ErrAccountNotFound, fmt.Errorf("manager %s", id))
	}
	if err := fn(&rec); err != nil {
		return err
	}
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) ListManagers(ctx context.Context) ([]types.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Manager, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}

func (s *MemoryStore) SaveReceipt(ctx context.Context, r types.OperationReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ReceiptID = s.nextID
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *MemoryStore) RecentReceipts(ctx context.Context, managerID string, limit int, ops ...types.OperationType) ([]types.OperationReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = clampLimit(limit)

	out := make([]types.OperationReceipt, 0, limit)
	for i := len(s.receipts) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.receipts[i]
		if r.ManagerID != managerID {
			continue
		}
		if len(ops) > 0 && !slices.Contains(ops, r.Operation) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) Summary(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum Summary
	for _, rec := range s.records {
		sum.add(rec.State, 1)
	}
	for _, r := range s.receipts {
		sum.Operations++
		if !r.Success {
			sum.FailedOperations++
		}
		if sum.LastOperation == nil || r.Timestamp.After(*sum.LastOperation) {
			t := r.Timestamp
			sum.LastOperation = &t
		}
	}
	return sum, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
