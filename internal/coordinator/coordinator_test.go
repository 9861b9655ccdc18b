package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
)

const wait = 2 * time.Second

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
}

func newFixture(t *testing.T) *fixture {
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	return &fixture{t: t, ctx: context.Background(), store: store}
}

func (f *fixture) user(id string) {
	f.t.Helper()
	u := models.User{ID: id, Name: gofakeit.Name(), Email: gofakeit.Email()}
	require.NoError(f.t, f.store.Set(f.ctx, storage.DocPath(storage.UsersCollection, id), storage.UserFields(u)))
}

func (f *fixture) group(id, name string, memberIDs ...string) {
	f.t.Helper()
	fields := storage.GroupFields(name, memberIDs, time.Now())
	require.NoError(f.t, f.store.Set(f.ctx, storage.DocPath(storage.GroupsCollection, id), fields))
}

func (f *fixture) expense(groupID, id string, amount float64, date time.Time, payer string, participants ...string) {
	f.t.Helper()
	tx := models.NewExpense(id, groupID, date, models.Expense{
		Description:  gofakeit.Word(),
		Amount:       amount,
		PayerID:      payer,
		SplitMethod:  models.SplitEqual,
		Participants: participants,
		Category:     models.CategoryFood,
	})
	fields, err := storage.TransactionFields(tx)
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.Set(f.ctx, storage.DocPath(storage.TransactionsCollection(groupID), id), fields))
}

func (f *fixture) start(userID string) *Coordinator {
	f.t.Helper()
	c := New(f.store, userID, Options{})
	require.NoError(f.t, c.Start(f.ctx))
	f.t.Cleanup(c.Stop)
	return c
}

// waitFor blocks until the published state satisfies cond.
func waitFor(t *testing.T, c *Coordinator, cond func(*State) bool) *State {
	t.Helper()
	deadline := time.After(wait)
	for {
		changed := c.Changed()
		s := c.State()
		if cond(s) {
			return s
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("timed out waiting for state; last version %d", s.Version)
			return nil
		}
	}
}

func groupTxCount(groupID string, n int) func(*State) bool {
	return func(s *State) bool {
		g, ok := s.Group(groupID)
		return ok && len(g.Transactions) == n
	}
}

func nextFresh(t *testing.T, c *Coordinator) FreshTransaction {
	t.Helper()
	select {
	case ft, ok := <-c.Fresh():
		require.True(t, ok, "fresh channel closed")
		return ft
	case <-time.After(wait):
		t.Fatal("timed out waiting for fresh transaction")
		return FreshTransaction{}
	}
}

func assertNoFresh(t *testing.T, c *Coordinator) {
	t.Helper()
	select {
	case ft := <-c.Fresh():
		t.Fatalf("unexpected fresh transaction %s", ft.Transaction.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoadingAndMemberResolution(t *testing.T) {
	f := newFixture(t)
	f.user("alice")
	f.user("bob")
	f.group("g1", "Trip", "alice", "bob", "ghost")
	f.group("g2", "Not mine", "bob")

	c := New(f.store, "alice", Options{})
	assert.True(t, c.State().Loading)
	require.NoError(t, c.Start(f.ctx))
	defer c.Stop()

	s := waitFor(t, c, func(s *State) bool {
		g, ok := s.Group("g1")
		return !s.Loading && ok && len(g.Members) == 2
	})

	require.Len(t, s.Groups, 1)
	g, _ := s.Group("g1")
	assert.Equal(t, []string{"alice", "bob", "ghost"}, g.MemberIDs)
	assert.Equal(t, "alice", g.Members[0].ID)
	assert.Equal(t, "bob", g.Members[1].ID)
	_, ok := s.Group("g2")
	assert.False(t, ok)
	require.NotNil(t, s.CurrentUser)
	assert.Equal(t, "alice", s.CurrentUser.ID)
}

func TestMembersFollowDirectory(t *testing.T) {
	f := newFixture(t)
	f.user("alice")
	f.group("g1", "Trip", "alice", "carol")
	c := f.start("alice")

	waitFor(t, c, func(s *State) bool {
		g, ok := s.Group("g1")
		return ok && len(g.Members) == 1
	})

	f.user("carol")
	waitFor(t, c, func(s *State) bool {
		g, ok := s.Group("g1")
		return ok && len(g.Members) == 2
	})
}

func TestFreshClassification(t *testing.T) {
	f := newFixture(t)
	f.user("alice")
	f.user("bob")
	f.group("g1", "Trip", "alice", "bob")
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.expense("g1", "t1", 30, base, "bob", "alice", "bob")

	c := f.start("alice")
	waitFor(t, c, groupTxCount("g1", 1))
	assertNoFresh(t, c)

	f.expense("g1", "t2", 60, base.Add(time.Hour), "bob", "alice", "bob")
	ft := nextFresh(t, c)
	assert.Equal(t, "t2", ft.Transaction.ID)
	assert.Equal(t, "g1", ft.Transaction.GroupID)
	g, ok := ft.State.Group("g1")
	require.True(t, ok)
	assert.Len(t, g.Transactions, 2)
	assertNoFresh(t, c)

	t.Run("edits are not fresh", func(t *testing.T) {
		require.NoError(t, f.store.Update(f.ctx, "groups/g1/transactions/t1", map[string]any{"amount": 45.0}))
		waitFor(t, c, func(s *State) bool {
			g, _ := s.Group("g1")
			for _, tx := range g.Transactions {
				if tx.ID == "t1" {
					return tx.Amount() == 45
				}
			}
			return false
		})
		assertNoFresh(t, c)
	})

	t.Run("deletes are not fresh", func(t *testing.T) {
		require.NoError(t, f.store.Delete(f.ctx, "groups/g1/transactions/t1"))
		waitFor(t, c, groupTxCount("g1", 1))
		assertNoFresh(t, c)
	})
}

func TestFreshnessResetsOnResubscribe(t *testing.T) {
	f := newFixture(t)
	f.user("alice")
	f.user("bob")
	f.group("g1", "Trip", "alice", "bob")
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.expense("g1", "t1", 30, base, "bob", "alice", "bob")

	c := f.start("alice")
	waitFor(t, c, groupTxCount("g1", 1))

	// Alice leaves; the group and its transactions drop out of the model.
	require.NoError(t, f.store.Update(f.ctx, "groups/g1", map[string]any{"memberIds": []any{"bob"}}))
	waitFor(t, c, func(s *State) bool {
		_, ok := s.Group("g1")
		return !ok
	})

	f.expense("g1", "t2", 10, base.Add(time.Hour), "bob", "alice", "bob")

	// On rejoin everything already there is history again.
	require.NoError(t, f.store.Update(f.ctx, "groups/g1", map[string]any{"memberIds": []any{"bob", "alice"}}))
	waitFor(t, c, groupTxCount("g1", 2))
	assertNoFresh(t, c)

	f.expense("g1", "t3", 20, base.Add(2*time.Hour), "bob", "alice", "bob")
	assert.Equal(t, "t3", nextFresh(t, c).Transaction.ID)
}

func TestTransactionsNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.user("alice")
	f.group("g1", "Solo", "alice")
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.expense("g1", "older", 10, base, "alice", "alice")
	f.expense("g1", "newer", 10, base.Add(24*time.Hour), "alice", "alice")
	f.expense("g1", "middle", 10, base.Add(time.Hour), "alice", "alice")

	c := f.start("alice")
	s := waitFor(t, c, groupTxCount("g1", 3))
	g, _ := s.Group("g1")
	assert.Equal(t, "newer", g.Transactions[0].ID)
	assert.Equal(t, "middle", g.Transactions[1].ID)
	assert.Equal(t, "older", g.Transactions[2].ID)
}

func TestUndecodableTransactionsAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.user("alice")
	f.group("g1", "Solo", "alice")
	require.NoError(t, f.store.Set(f.ctx, "groups/g1/transactions/bad", map[string]any{"kind": "refund", "amount": 5.0}))
	f.expense("g1", "good", 10, time.Now(), "alice", "alice")

	c := f.start("alice")
	s := waitFor(t, c, groupTxCount("g1", 1))
	g, _ := s.Group("g1")
	assert.Equal(t, "good", g.Transactions[0].ID)
}

func TestStateBalances(t *testing.T) {
	f := newFixture(t)
	f.user("alice")
	f.user("bob")
	f.user("carol")
	f.group("g1", "Trip", "alice", "bob", "carol")
	f.group("g2", "Flat", "alice", "bob")
	f.expense("g1", "t1", 90, time.Now(), "alice", "alice", "bob", "carol")
	f.expense("g2", "t2", 100, time.Now(), "bob", "alice", "bob")

	c := f.start("alice")
	s := waitFor(t, c, func(s *State) bool {
		return groupTxCount("g1", 1)(s) && groupTxCount("g2", 1)(s)
	})

	balances, ok := s.GroupBalances("g1")
	require.True(t, ok)
	require.Len(t, balances, 3)
	assert.InDelta(t, 60, balances[0].Amount, 1e-9)

	_, ok = s.GroupBalances("missing")
	assert.False(t, ok)

	global := s.GlobalBalances()
	require.Len(t, global, 2)
	assert.Equal(t, "carol", global[0].User.ID)
	assert.InDelta(t, 30, global[0].Amount, 1e-9)
	assert.Equal(t, "bob", global[1].User.ID)
	assert.InDelta(t, -20, global[1].Amount, 1e-9)
}

func TestStop(t *testing.T) {
	f := newFixture(t)
	f.user("alice")

	t.Run("closes fresh and is idempotent", func(t *testing.T) {
		c := New(f.store, "alice", Options{})
		require.NoError(t, c.Start(f.ctx))
		c.Stop()
		c.Stop()
		_, ok := <-c.Fresh()
		assert.False(t, ok)
	})

	t.Run("before start", func(t *testing.T) {
		c := New(f.store, "alice", Options{})
		c.Stop()
		_, ok := <-c.Fresh()
		assert.False(t, ok)
		assert.Error(t, c.Start(f.ctx))
	})
}

func TestFreshnessClassify(t *testing.T) {
	tx := func(id string) models.Transaction { return models.Transaction{ID: id} }
	f := &freshness{generation: 1}

	assert.Empty(t, f.classify([]models.Transaction{tx("a"), tx("b")}))
	fresh := f.classify([]models.Transaction{tx("a"), tx("b"), tx("c")})
	require.Len(t, fresh, 1)
	assert.Equal(t, "c", fresh[0].ID)

	// An ID that disappears and comes back counts as new again.
	assert.Empty(t, f.classify([]models.Transaction{tx("a")}))
	fresh = f.classify([]models.Transaction{tx("a"), tx("b")})
	require.Len(t, fresh, 1)
	assert.Equal(t, "b", fresh[0].ID)
}
