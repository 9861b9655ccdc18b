package subscriptions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
)

// trackingStore counts open streams and can be told to fail subscriptions.
type trackingStore struct {
	storage.Store

	mu   sync.Mutex
	open int
	fail map[string]bool
}

func newTrackingStore() *trackingStore {
	return &trackingStore{Store: memory.New(), fail: make(map[string]bool)}
}

func (s *trackingStore) Subscribe(ctx context.Context, collection string, filter *storage.Filter) (storage.Stream, error) {
	s.mu.Lock()
	failing := s.fail[collection]
	s.mu.Unlock()
	if failing {
		return nil, errors.New("permission denied")
	}

	stream, err := s.Store.Subscribe(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.open++
	s.mu.Unlock()
	return &trackedStream{Stream: stream, store: s}, nil
}

func (s *trackingStore) setFailing(collection string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[collection] = failing
}

func (s *trackingStore) openStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

type trackedStream struct {
	storage.Stream
	store *trackingStore
	once  sync.Once
}

func (s *trackedStream) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		s.store.open--
		s.store.mu.Unlock()
	})
	return s.Stream.Close()
}

func nextEvent(t *testing.T, m *Manager, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-m.Events():
			require.True(t, ok, "events closed")
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func ofKind(kind Kind) func(Event) bool {
	return func(ev Event) bool { return ev.Kind == kind }
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	store := newTrackingStore()
	require.NoError(t, store.Set(ctx, "users/alice", map[string]any{"name": "Alice"}))
	require.NoError(t, store.Set(ctx, "groups/g1", map[string]any{"name": "Trip", "memberIds": []any{"alice"}}))
	require.NoError(t, store.Set(ctx, "groups/g2", map[string]any{"name": "Other", "memberIds": []any{"bob"}}))

	m := NewManager(store, "alice", 8)
	defer m.Close()
	require.NoError(t, m.Open(ctx))

	// Streams deliver independently, so take the first event of each kind in any order.
	first := make(map[Kind]Event)
	for len(first) < 2 {
		ev := nextEvent(t, m, func(ev Event) bool { return ev.Kind == KindUsers || ev.Kind == KindGroups })
		if _, seen := first[ev.Kind]; !seen {
			first[ev.Kind] = ev
		}
	}
	assert.Len(t, first[KindUsers].Snapshot.Docs, 1)

	groups := first[KindGroups]
	require.Len(t, groups.Snapshot.Docs, 1)
	assert.Equal(t, "g1", groups.Snapshot.Docs[0].ID)

	assert.Error(t, m.Open(ctx), "second Open must fail")
}

func TestOpenFailureLeavesNothingOpen(t *testing.T) {
	store := newTrackingStore()
	store.setFailing(storage.GroupsCollection, true)

	m := NewManager(store, "alice", 8)
	err := m.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, store.openStreams())
	require.NoError(t, m.Close())
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		store := newTrackingStore()
		m := NewManager(store, "alice", 8)
		defer m.Close()

		changes, err := m.Reconcile(ctx, []string{"g2", "g1"})
		require.NoError(t, err)
		require.Len(t, changes.Acquired, 2)
		assert.Equal(t, "g1", changes.Acquired[0].GroupID)

		changes, err = m.Reconcile(ctx, []string{"g1", "g2", "g1"})
		require.NoError(t, err)
		assert.True(t, changes.Empty())
		assert.Equal(t, []string{"g1", "g2"}, m.Subscribed())
		assert.Equal(t, 2, store.openStreams())
	})

	t.Run("releases groups no longer relevant", func(t *testing.T) {
		store := newTrackingStore()
		m := NewManager(store, "alice", 8)
		defer m.Close()

		changes, err := m.Reconcile(ctx, []string{"g1", "g2"})
		require.NoError(t, err)
		genG1 := changes.Acquired[0].Generation

		changes, err = m.Reconcile(ctx, []string{"g2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"g1"}, changes.Released)
		assert.Empty(t, changes.Acquired)
		assert.False(t, m.IsCurrent("g1", genG1))
		assert.Equal(t, 1, store.openStreams())
	})

	t.Run("reacquire gets a new generation", func(t *testing.T) {
		store := newTrackingStore()
		m := NewManager(store, "alice", 8)
		defer m.Close()

		first, err := m.Reconcile(ctx, []string{"g1"})
		require.NoError(t, err)
		_, err = m.Reconcile(ctx, nil)
		require.NoError(t, err)
		second, err := m.Reconcile(ctx, []string{"g1"})
		require.NoError(t, err)

		oldGen, newGen := first.Acquired[0].Generation, second.Acquired[0].Generation
		assert.Greater(t, newGen, oldGen)
		assert.False(t, m.IsCurrent("g1", oldGen))
		assert.True(t, m.IsCurrent("g1", newGen))
	})

	t.Run("transaction events carry group and generation", func(t *testing.T) {
		store := newTrackingStore()
		require.NoError(t, store.Set(ctx, "groups/g1/transactions/t1", map[string]any{"amount": 5.0}))
		m := NewManager(store, "alice", 8)
		defer m.Close()

		changes, err := m.Reconcile(ctx, []string{"g1"})
		require.NoError(t, err)

		ev := nextEvent(t, m, ofKind(KindTransactions))
		assert.Equal(t, "g1", ev.GroupID)
		assert.Equal(t, changes.Acquired[0].Generation, ev.Generation)
		assert.Len(t, ev.Snapshot.Docs, 1)
	})

	t.Run("failed acquisition is retried next pass", func(t *testing.T) {
		store := newTrackingStore()
		store.setFailing(storage.TransactionsCollection("g2"), true)
		m := NewManager(store, "alice", 8)
		defer m.Close()

		changes, err := m.Reconcile(ctx, []string{"g1", "g2"})
		require.Error(t, err)
		require.Len(t, changes.Acquired, 1)
		assert.Equal(t, "g1", changes.Acquired[0].GroupID)
		assert.Equal(t, []string{"g1"}, m.Subscribed())

		store.setFailing(storage.TransactionsCollection("g2"), false)
		changes, err = m.Reconcile(ctx, []string{"g1", "g2"})
		require.NoError(t, err)
		require.Len(t, changes.Acquired, 1)
		assert.Equal(t, "g2", changes.Acquired[0].GroupID)
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("releases everything and closes events", func(t *testing.T) {
		store := newTrackingStore()
		m := NewManager(store, "alice", 0)
		require.NoError(t, m.Open(ctx))
		_, err := m.Reconcile(ctx, []string{"g1", "g2"})
		require.NoError(t, err)
		assert.Equal(t, 4, store.openStreams())

		// Nobody reads events, so every forwarder is blocked on send.
		done := make(chan struct{})
		go func() {
			m.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Close did not return")
		}

		assert.Equal(t, 0, store.openStreams())
		for range m.Events() {
		}
		assert.Empty(t, m.Subscribed())
	})

	t.Run("idempotent", func(t *testing.T) {
		m := NewManager(newTrackingStore(), "alice", 1)
		require.NoError(t, m.Close())
		require.NoError(t, m.Close())

		_, err := m.Reconcile(ctx, []string{"g1"})
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, m.Open(ctx), ErrClosed)
	})
}
