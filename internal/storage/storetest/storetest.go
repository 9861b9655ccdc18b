// Package storetest holds the behavior every storage.Store implementation must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/storage"
)

// Wait is how long the helpers wait for a snapshot before failing.
const Wait = 2 * time.Second

// Run exercises a store created by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		store := newStore(t)
		email := gofakeit.Email()

		id, err := store.Create(ctx, storage.UsersCollection, map[string]any{"email": email})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := store.Get(ctx, storage.DocPath(storage.UsersCollection, id))
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, id, doc.ID)
		assert.Equal(t, email, doc.Fields.GetFields()["email"].GetStringValue())
		assert.False(t, doc.CreateTime.IsZero())
	})

	t.Run("Get missing returns nil", func(t *testing.T) {
		store := newStore(t)
		doc, err := store.Get(ctx, "users/nobody")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("Set replaces and keeps creation order", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "groups/a", map[string]any{"name": "first"}))
		require.NoError(t, store.Set(ctx, "groups/b", map[string]any{"name": "second"}))
		require.NoError(t, store.Set(ctx, "groups/a", map[string]any{"name": "renamed"}))

		docs, err := store.List(ctx, storage.GroupsCollection)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "a", docs[0].ID)
		assert.Equal(t, "renamed", docs[0].Fields.GetFields()["name"].GetStringValue())
		assert.Equal(t, "b", docs[1].ID)
	})

	t.Run("Update merges fields", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "users/u1", map[string]any{"name": "Alice", "email": "a@x.io"}))
		require.NoError(t, store.Update(ctx, "users/u1", map[string]any{"monthlyLimit": 250.0}))

		doc, err := store.Get(ctx, "users/u1")
		require.NoError(t, err)
		fields := doc.Fields.GetFields()
		assert.Equal(t, "Alice", fields["name"].GetStringValue())
		assert.Equal(t, 250.0, fields["monthlyLimit"].GetNumberValue())
	})

	t.Run("Update missing fails", func(t *testing.T) {
		store := newStore(t)
		err := store.Update(ctx, "users/ghost", map[string]any{"name": "x"})
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "users/u1", map[string]any{"name": "Alice"}))
		require.NoError(t, store.Delete(ctx, "users/u1"))

		doc, err := store.Get(ctx, "users/u1")
		require.NoError(t, err)
		assert.Nil(t, doc)

		err = store.Delete(ctx, "users/u1")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("BatchDelete removes across collections and ignores missing", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "groups/g1", map[string]any{"name": "Trip"}))
		require.NoError(t, store.Set(ctx, "groups/g1/transactions/t1", map[string]any{"amount": 10.0}))
		require.NoError(t, store.Set(ctx, "groups/g1/transactions/t2", map[string]any{"amount": 20.0}))

		err := store.BatchDelete(ctx, []string{
			"groups/g1/transactions/t1",
			"groups/g1/transactions/t2",
			"groups/g1/transactions/missing",
			"groups/g1",
		})
		require.NoError(t, err)

		txs, err := store.List(ctx, storage.TransactionsCollection("g1"))
		require.NoError(t, err)
		assert.Empty(t, txs)
		group, err := store.Get(ctx, "groups/g1")
		require.NoError(t, err)
		assert.Nil(t, group)
	})

	t.Run("BatchDelete removes subcollections of a deleted document", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "groups/g1", map[string]any{"name": "Trip"}))
		require.NoError(t, store.Set(ctx, "groups/g1/transactions/t1", map[string]any{"amount": 10.0}))
		require.NoError(t, store.Set(ctx, "groups/g10", map[string]any{"name": "Other"}))
		require.NoError(t, store.Set(ctx, "groups/g10/transactions/t2", map[string]any{"amount": 20.0}))

		stream, err := store.Subscribe(ctx, storage.TransactionsCollection("g1"), nil)
		require.NoError(t, err)
		defer stream.Close()
		require.Len(t, Next(t, stream).Docs, 1)

		require.NoError(t, store.BatchDelete(ctx, []string{"groups/g1"}))

		txs, err := store.List(ctx, storage.TransactionsCollection("g1"))
		require.NoError(t, err)
		assert.Empty(t, txs)
		Await(t, stream, func(s storage.Snapshot) bool { return len(s.Docs) == 0 })

		others, err := store.List(ctx, storage.TransactionsCollection("g10"))
		require.NoError(t, err)
		assert.Len(t, others, 1, "sibling with a shared prefix survives")
	})

	t.Run("BatchDelete rejects malformed paths without deleting", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "groups/g1", map[string]any{"name": "Trip"}))

		err := store.BatchDelete(ctx, []string{"groups/g1", "groups"})
		require.Error(t, err)

		group, err := store.Get(ctx, "groups/g1")
		require.NoError(t, err)
		assert.NotNil(t, group)
	})

	t.Run("QueryOnce", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "users/u1", map[string]any{"email": "alice@example.com"}))
		require.NoError(t, store.Set(ctx, "users/u2", map[string]any{"email": "bob@example.com"}))

		doc, err := store.QueryOnce(ctx, storage.UsersCollection, "email", "bob@example.com")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "u2", doc.ID)

		doc, err = store.QueryOnce(ctx, storage.UsersCollection, "email", "carol@example.com")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("Subcollections are isolated", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "groups/g1/transactions/t1", map[string]any{"amount": 1.0}))
		require.NoError(t, store.Set(ctx, "groups/g2/transactions/t1", map[string]any{"amount": 2.0}))

		docs, err := store.List(ctx, storage.TransactionsCollection("g2"))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, 2.0, docs[0].Fields.GetFields()["amount"].GetNumberValue())
	})

	t.Run("Subscribe delivers initial snapshot", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "users/u1", map[string]any{"name": "Alice"}))

		stream, err := store.Subscribe(ctx, storage.UsersCollection, nil)
		require.NoError(t, err)
		defer stream.Close()

		snap := Next(t, stream)
		assert.Equal(t, storage.UsersCollection, snap.Collection)
		require.Len(t, snap.Docs, 1)
		assert.Equal(t, "u1", snap.Docs[0].ID)
	})

	t.Run("Subscribe follows writes", func(t *testing.T) {
		store := newStore(t)
		stream, err := store.Subscribe(ctx, storage.UsersCollection, nil)
		require.NoError(t, err)
		defer stream.Close()
		assert.Empty(t, Next(t, stream).Docs)

		require.NoError(t, store.Set(ctx, "users/u1", map[string]any{"name": "Alice"}))
		require.NoError(t, store.Set(ctx, "users/u2", map[string]any{"name": "Bob"}))
		Await(t, stream, func(s storage.Snapshot) bool { return len(s.Docs) == 2 })

		require.NoError(t, store.Delete(ctx, "users/u1"))
		snap := Await(t, stream, func(s storage.Snapshot) bool { return len(s.Docs) == 1 })
		assert.Equal(t, "u2", snap.Docs[0].ID)
	})

	t.Run("Subscribe applies membership filter", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "groups/g1", map[string]any{"name": "Trip", "memberIds": []any{"alice", "bob"}}))
		require.NoError(t, store.Set(ctx, "groups/g2", map[string]any{"name": "Flat", "memberIds": []any{"bob"}}))

		stream, err := store.Subscribe(ctx, storage.GroupsCollection, storage.ArrayContains("memberIds", "alice"))
		require.NoError(t, err)
		defer stream.Close()

		snap := Next(t, stream)
		require.Len(t, snap.Docs, 1)
		assert.Equal(t, "g1", snap.Docs[0].ID)

		require.NoError(t, store.Update(ctx, "groups/g2", map[string]any{"memberIds": []any{"bob", "alice"}}))
		Await(t, stream, func(s storage.Snapshot) bool { return len(s.Docs) == 2 })
	})

	t.Run("Subscribe rejects bad input", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Subscribe(ctx, "groups/g1", nil)
		assert.Error(t, err)
		_, err = store.Subscribe(ctx, storage.GroupsCollection, storage.Equal("bad field", "x"))
		assert.Error(t, err)
	})

	t.Run("Stream Close is idempotent", func(t *testing.T) {
		store := newStore(t)
		stream, err := store.Subscribe(ctx, storage.UsersCollection, nil)
		require.NoError(t, err)
		Next(t, stream)

		require.NoError(t, stream.Close())
		require.NoError(t, stream.Close())
		_, ok := <-stream.Snapshots()
		assert.False(t, ok)

		// Writes after close must not panic.
		require.NoError(t, store.Set(ctx, "users/u1", map[string]any{"name": "Alice"}))
	})

	t.Run("Store Close ends streams", func(t *testing.T) {
		store := newStore(t)
		stream, err := store.Subscribe(ctx, storage.UsersCollection, nil)
		require.NoError(t, err)
		Next(t, stream)

		require.NoError(t, store.Close())
		select {
		case _, ok := <-stream.Snapshots():
			assert.False(t, ok)
		case <-time.After(Wait):
			t.Fatal("stream not closed")
		}

		_, err = store.Subscribe(ctx, storage.UsersCollection, nil)
		assert.ErrorIs(t, err, storage.ErrClosed)
	})
}

// Next waits for the next snapshot on stream.
func Next(t *testing.T, stream storage.Stream) storage.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-stream.Snapshots():
		require.True(t, ok, "stream closed")
		return snap
	case <-time.After(Wait):
		t.Fatal("timed out waiting for snapshot")
		return storage.Snapshot{}
	}
}

// Await reads snapshots until one satisfies cond. Snapshots may coalesce, so
// intermediate states are not guaranteed to be observed.
func Await(t *testing.T, stream storage.Stream, cond func(storage.Snapshot) bool) storage.Snapshot {
	t.Helper()
	deadline := time.After(Wait)
	for {
		select {
		case snap, ok := <-stream.Snapshots():
			require.True(t, ok, "stream closed")
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return storage.Snapshot{}
		}
	}
}
