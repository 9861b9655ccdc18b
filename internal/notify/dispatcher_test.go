package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/coordinator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
)

func putExpense(t *testing.T, store storage.Store, id, payer string, participants ...string) {
	t.Helper()
	tx := models.NewExpense(id, "g1", time.Now(), models.Expense{
		Description:  "Fuel",
		Amount:       30,
		PayerID:      payer,
		SplitMethod:  models.SplitEqual,
		Participants: participants,
	})
	fields, err := storage.TransactionFields(tx)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), storage.DocPath(storage.TransactionsCollection("g1"), id), fields))
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	alice := models.User{ID: "alice", Name: "Alice", Email: "alice@example.com"}
	bob := models.User{ID: "bob", Name: "Bob"}
	require.NoError(t, store.Set(ctx, "users/alice", storage.UserFields(alice)))
	require.NoError(t, store.Set(ctx, "users/bob", storage.UserFields(bob)))
	require.NoError(t, store.Set(ctx, "groups/g1", storage.GroupFields("Road Trip", []string{"alice", "bob"}, time.Now())))
	putExpense(t, store, "history", "bob", "alice", "bob")

	coord := coordinator.New(store, "alice", coordinator.Options{})
	require.NoError(t, coord.Start(ctx))
	defer coord.Stop()

	broadcaster := NewBroadcaster(4)
	notifications, cancel := broadcaster.Watch("alice")
	defer cancel()

	d := NewDispatcher("alice", MultiEmitter{LogEmitter{}, broadcaster})
	go d.Run(ctx, coord.Fresh())

	// Wait until the historical transaction has been loaded.
	deadline := time.After(2 * time.Second)
	for {
		changed := coord.Changed()
		if g, ok := coord.State().Group("g1"); ok && len(g.Transactions) == 1 {
			break
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatal("group never loaded")
		}
	}

	putExpense(t, store, "mine", "alice", "alice", "bob")
	putExpense(t, store, "theirs", "bob", "alice", "bob")

	select {
	case n := <-notifications:
		assert.Equal(t, "theirs", n.TransactionID)
		assert.Equal(t, "New expense in Road Trip", n.Title)
		assert.Equal(t, `Bob added "Fuel" · 30.00`, n.Body)
		assert.Equal(t, "/group/g1", n.Link)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	select {
	case n := <-notifications:
		t.Fatalf("unexpected notification for %s", n.TransactionID)
	case <-time.After(100 * time.Millisecond):
	}
}
