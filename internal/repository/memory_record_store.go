package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/parcelaid/backend/internal/model"
)

// MemoryRecordStore is an in-memory RecordStore for tests and throwaway runs.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[model.Collection][]json.RawMessage
}

// NewMemoryRecordStore returns an empty MemoryRecordStore.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[model.Collection][]json.RawMessage)}
}

var _ RecordStore = (*MemoryRecordStore)(nil)

func (s *MemoryRecordStore) Ping(context.Context) error { return nil }

func (s *MemoryRecordStore) Append(ctx context.Context, c model.Collection, rec json.RawMessage) (int, error) {
	n, _, err := s.AppendUnique(ctx, c, rec, nil)
	return n, err
}

func (s *MemoryRecordStore) AppendUnique(_ context.Context, c model.Collection, rec json.RawMessage, exists func(json.RawMessage) bool) (int, bool, error) {
	if !c.Valid() {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.records[c]
	if exists != nil {
		for _, r := range existing {
			if exists(r) {
				return len(existing), false, nil
			}
		}
	}
	s.records[c] = append(existing, append(json.RawMessage(nil), rec...))
	return len(s.records[c]), true, nil
}

func (s *MemoryRecordStore) ReadAll(_ context.Context, c model.Collection) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, len(s.records[c]))
	copy(out, s.records[c])
	return out
}

func (s *MemoryRecordStore) Count(_ context.Context, c model.Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[c])
}
