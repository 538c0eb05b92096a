package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	redislib "github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu      sync.Mutex
	data    map[string]string
	failGet error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

// put stands in for the identity service writing a session key.
func (m *mockStore) put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *mockStore) drop(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", m.failGet
	}
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func newTestManager(store *mockStore) *Manager {
	return &Manager{store: store, keyer: store}
}

func TestHasSessionFollowsExternalKeys(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	mgr := newTestManager(store)

	ok, err := mgr.HasSession(ctx, "access-1")
	if err != nil || ok {
		t.Fatalf("expected no session before the key exists, ok=%v err=%v", ok, err)
	}

	store.put("sess:access-1", "user-1")
	ok, err = mgr.HasSession(ctx, "access-1")
	if err != nil || !ok {
		t.Fatalf("expected live session, ok=%v err=%v", ok, err)
	}

	store.drop("sess:access-1")
	ok, err = mgr.HasSession(ctx, "access-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected revoked session to be gone")
	}
}

func TestHasSessionPropagatesStoreErrors(t *testing.T) {
	store := newMockStore()
	store.failGet = errors.New("connection refused")
	mgr := newTestManager(store)

	if _, err := mgr.HasSession(context.Background(), "access-1"); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestBlankAccessIDRejected(t *testing.T) {
	mgr := newTestManager(newMockStore())
	if _, err := mgr.HasSession(context.Background(), " "); err == nil {
		t.Fatal("expected blank access id to fail")
	}
}

func TestNewManagerRequiresClient(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected nil client to fail")
	}
}
