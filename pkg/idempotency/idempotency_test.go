package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]struct{}{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestCheckAndMarkProcessed(t *testing.T) {
	store := newMemoryStore()
	mgr, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	eventID := uuid.New()

	already, err := mgr.CheckAndMarkProcessed(ctx, "loyalty-notifications", eventID)
	require.NoError(t, err)
	require.False(t, already)

	already, err = mgr.CheckAndMarkProcessed(ctx, "loyalty-notifications", eventID)
	require.NoError(t, err)
	require.True(t, already)

	require.NoError(t, mgr.Delete(ctx, "loyalty-notifications", eventID))
	already, err = mgr.CheckAndMarkProcessed(ctx, "loyalty-notifications", eventID)
	require.NoError(t, err)
	require.False(t, already, "deleted marker should allow reprocessing")
}

func TestManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	require.Error(t, err)

	mgr, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	_, err = mgr.CheckAndMarkProcessed(context.Background(), "", uuid.New())
	require.Error(t, err)
	_, err = mgr.CheckAndMarkProcessed(context.Background(), "consumer", uuid.Nil)
	require.Error(t, err)
}
