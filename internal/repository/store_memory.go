package repository

import (
	"context"
	"sync"
)

// MemoryStore is a RecordStore held entirely in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[Table][]Row
}

var _ RecordStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[Table][]Row)}
}

func (s *MemoryStore) ReadAll(ctx context.Context, table Table) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.tables[table]
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = copyRow(row)
	}
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, table Table, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[table] = append(s.tables[table], copyRow(row))
	return nil
}

func (s *MemoryStore) Rewrite(ctx context.Context, table Table, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = copyRow(row)
	}
	s.tables[table] = out
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
