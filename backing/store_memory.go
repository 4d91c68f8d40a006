package backing

import (
	"context"
	"slices"
	"sync"
)

/* Keep records in process memory. Used for tests and local experiments. */
type StoreMemory struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *StoreMemory {
	return &StoreMemory{records: map[string][]byte{}}
}

func (s *StoreMemory) Backend() string { return "memory" }

func (s *StoreMemory) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.records[id]
	if !ok {
		return nil, &NotFoundError{}
	}
	return slices.Clone(data), nil
}

func (s *StoreMemory) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *StoreMemory) Put(ctx context.Context, id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = slices.Clone(data)
	return nil
}

func (s *StoreMemory) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, &NotFoundError{}
	}
	delete(s.records, id)
	return true, nil
}

// List visits ids in sorted order.
func (s *StoreMemory) List(ctx context.Context, fn func(id string) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}
