package syncjob

import (
	"context"
	"sync"

	"github.com/parcelaid/backend/internal/model"
)

// MemoryTarget keeps synced documents in memory.
type MemoryTarget struct {
	mu   sync.Mutex
	docs map[model.Collection][]map[string]any
	keys map[model.Collection]map[string]bool
}

func NewMemoryTarget() *MemoryTarget {
	return &MemoryTarget{
		docs: make(map[model.Collection][]map[string]any),
		keys: make(map[model.Collection]map[string]bool),
	}
}

var _ Target = (*MemoryTarget)(nil)

func (t *MemoryTarget) Exists(_ context.Context, c model.Collection, key model.Key) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.keys[c][key.String()], nil
}

func (t *MemoryTarget) Insert(_ context.Context, c model.Collection, key model.Key, doc map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.keys[c] == nil {
		t.keys[c] = make(map[string]bool)
	}
	if t.keys[c][key.String()] {
		return nil
	}
	t.keys[c][key.String()] = true
	t.docs[c] = append(t.docs[c], doc)
	return nil
}

func (t *MemoryTarget) Close(context.Context) error { return nil }

// Docs は c に挿入されたドキュメントを挿入順で返す
func (t *MemoryTarget) Docs(c model.Collection) []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, len(t.docs[c]))
	copy(out, t.docs[c])
	return out
}
