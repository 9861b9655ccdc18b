package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/coordinator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type env struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	session *Session
	users   map[string]models.User
}

func seedUser(t *testing.T, store storage.Store, id string) models.User {
	t.Helper()
	u := models.User{
		ID:        id,
		Name:      gofakeit.Name(),
		Email:     id + "@example.com",
		AvatarURL: models.DefaultAvatarURL(id),
	}
	require.NoError(t, store.Set(context.Background(), storage.DocPath(storage.UsersCollection, id), storage.UserFields(u)))
	return u
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	t.Cleanup(func() { store.Close() })

	users := make(map[string]models.User)
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		users[id] = seedUser(t, store, id)
	}

	s := New(store, "alice", Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Close)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitLoaded(waitCtx))

	e := &env{t: t, ctx: ctx, store: store, session: s, users: users}
	// Users and groups arrive on separate streams; wait for both.
	e.await(func(st *coordinator.State) bool { return st.CurrentUser != nil && len(st.Users) == len(users) })
	return e
}

// await blocks until the session state satisfies cond.
func (e *env) await(cond func(*coordinator.State) bool) *coordinator.State {
	e.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		changed := e.session.Changed()
		st := e.session.State()
		if cond(st) {
			return st
		}
		select {
		case <-changed:
		case <-deadline:
			e.t.Fatal("timed out waiting for state")
			return nil
		}
	}
}

// group creates a group with alice and members and waits until it is synced.
func (e *env) group(name string, members ...string) string {
	e.t.Helper()
	id, err := e.session.AddGroup(e.ctx, GroupInput{Name: name, MemberIDs: members})
	require.NoError(e.t, err)
	e.await(func(st *coordinator.State) bool {
		g, ok := st.Group(id)
		return ok && g.Transactions != nil
	})
	return id
}

func (e *env) txCount(groupID string, n int) func(*coordinator.State) bool {
	return func(st *coordinator.State) bool {
		g, ok := st.Group(groupID)
		return ok && len(g.Transactions) == n
	}
}

func (e *env) storedTransaction(groupID, id string) models.Transaction {
	e.t.Helper()
	doc, err := e.store.Get(e.ctx, storage.DocPath(storage.TransactionsCollection(groupID), id))
	require.NoError(e.t, err)
	require.NotNil(e.t, doc)
	tx, err := storage.DecodeTransaction(groupID, *doc)
	require.NoError(e.t, err)
	return tx
}

func TestAccessors(t *testing.T) {
	e := setup(t)

	assert.False(t, e.session.Loading())
	require.NotNil(t, e.session.CurrentUser())
	assert.Equal(t, e.users["alice"].Name, e.session.CurrentUser().Name)
	assert.Len(t, e.session.Users(), 4)
	assert.Empty(t, e.session.Groups())

	_, err := e.session.Group("nope")
	assert.ErrorIs(t, err, ErrUnknownGroup)
	_, err = e.session.GroupBalances("nope")
	assert.ErrorIs(t, err, ErrUnknownGroup)
	_, err = e.session.SimplifiedDebts("nope")
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestAddGroup(t *testing.T) {
	e := setup(t)

	id := e.group("  Goa Trip ", "bob", "alice", "bob")
	g, err := e.session.Group(id)
	require.NoError(t, err)
	assert.Equal(t, "Goa Trip", g.Name)
	assert.Equal(t, []string{"alice", "bob"}, g.MemberIDs)
	require.Len(t, g.Members, 2)
	assert.Equal(t, "alice", g.Members[0].ID)

	for _, in := range []GroupInput{
		{Name: ""},
		{Name: "   "},
		{Name: "Trip", MemberIDs: []string{""}},
	} {
		_, err := e.session.AddGroup(e.ctx, in)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %+v", in)
	}
}

func TestAddExpense(t *testing.T) {
	e := setup(t)
	groupID := e.group("Flat", "bob", "carol")

	valid := ExpenseInput{
		GroupID:      groupID,
		Description:  "Groceries",
		Amount:       90,
		PayerID:      "alice",
		SplitMethod:  models.SplitEqual,
		Participants: []string{"alice", "bob", "carol"},
	}

	t.Run("stores with defaults", func(t *testing.T) {
		id, err := e.session.AddExpense(e.ctx, valid)
		require.NoError(t, err)

		tx := e.storedTransaction(groupID, id)
		assert.Equal(t, models.KindExpense, tx.Kind)
		assert.Equal(t, models.CategoryOther, tx.Expense.Category)
		assert.True(t, fixedNow.Equal(tx.Date))

		st := e.await(e.txCount(groupID, 1))
		balances, ok := st.GroupBalances(groupID)
		require.True(t, ok)
		assert.InDelta(t, 60, balances[0].Amount, 1e-9)
	})

	t.Run("shares drop non-participant weights", func(t *testing.T) {
		in := valid
		in.SplitMethod = models.SplitShares
		in.Participants = []string{"alice", "bob"}
		in.Shares = map[string]float64{"alice": 1, "bob": 2, "carol": 5}
		in.Category = models.CategoryFood

		id, err := e.session.AddExpense(e.ctx, in)
		require.NoError(t, err)
		tx := e.storedTransaction(groupID, id)
		assert.Equal(t, map[string]float64{"alice": 1, "bob": 2}, tx.Expense.Shares)
		assert.Equal(t, models.CategoryFood, tx.Expense.Category)
	})

	invalidCases := []struct {
		name   string
		mutate func(*ExpenseInput)
	}{
		{"zero amount", func(in *ExpenseInput) { in.Amount = 0 }},
		{"negative amount", func(in *ExpenseInput) { in.Amount = -5 }},
		{"missing description", func(in *ExpenseInput) { in.Description = " " }},
		{"no participants", func(in *ExpenseInput) { in.Participants = nil }},
		{"payer not a member", func(in *ExpenseInput) { in.PayerID = "dave" }},
		{"participant not a member", func(in *ExpenseInput) { in.Participants = []string{"alice", "dave"} }},
		{"unknown split method", func(in *ExpenseInput) { in.SplitMethod = "percent" }},
		{"unknown category", func(in *ExpenseInput) { in.Category = "Gadgets" }},
		{"zero total weight", func(in *ExpenseInput) {
			in.SplitMethod = models.SplitShares
			in.Shares = map[string]float64{"alice": 0, "bob": 0}
		}},
		{"weights only for non-participants", func(in *ExpenseInput) {
			in.SplitMethod = models.SplitShares
			in.Participants = []string{"alice"}
			in.Shares = map[string]float64{"bob": 3}
		}},
		{"negative weight", func(in *ExpenseInput) {
			in.SplitMethod = models.SplitShares
			in.Shares = map[string]float64{"alice": 2, "bob": -1}
		}},
	}
	for _, tc := range invalidCases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := e.session.AddExpense(e.ctx, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	t.Run("unknown group", func(t *testing.T) {
		in := valid
		in.GroupID = "elsewhere"
		_, err := e.session.AddExpense(e.ctx, in)
		assert.ErrorIs(t, err, ErrUnknownGroup)
	})
}

func TestSettleUp(t *testing.T) {
	e := setup(t)
	groupID := e.group("Trip", "bob")

	_, err := e.session.AddExpense(e.ctx, ExpenseInput{
		GroupID: groupID, Description: "Cab", Amount: 60, PayerID: "alice",
		SplitMethod: models.SplitEqual, Participants: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	_, err = e.session.SettleUp(e.ctx, SettlementInput{GroupID: groupID, FromUserID: "bob", ToUserID: "alice", Amount: 30})
	require.NoError(t, err)

	st := e.await(e.txCount(groupID, 2))
	balances, _ := st.GroupBalances(groupID)
	for _, b := range balances {
		assert.InDelta(t, 0, b.Amount, 1e-9, "balance of %s", b.User.ID)
	}
	assert.Empty(t, e.session.GlobalBalances())

	for _, in := range []SettlementInput{
		{GroupID: groupID, FromUserID: "bob", ToUserID: "bob", Amount: 5},
		{GroupID: groupID, FromUserID: "bob", ToUserID: "alice", Amount: 0},
		{GroupID: groupID, FromUserID: "carol", ToUserID: "alice", Amount: 5},
		{GroupID: groupID, ToUserID: "alice", Amount: 5},
	} {
		_, err := e.session.SettleUp(e.ctx, in)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %+v", in)
	}
}

func TestEditTransaction(t *testing.T) {
	e := setup(t)
	groupID := e.group("Trip", "bob")

	id, err := e.session.AddExpense(e.ctx, ExpenseInput{
		GroupID: groupID, Description: "Hotel", Amount: 200, PayerID: "alice",
		SplitMethod: models.SplitShares, Participants: []string{"alice", "bob"},
		Shares: map[string]float64{"alice": 1, "bob": 1},
	})
	require.NoError(t, err)

	edited := e.storedTransaction(groupID, id)
	edited.Date = time.Time{}
	edited.Expense.Amount = 250
	edited.Expense.SplitMethod = models.SplitEqual
	edited.Expense.Shares = nil
	require.NoError(t, e.session.EditTransaction(e.ctx, edited))

	got := e.storedTransaction(groupID, id)
	assert.Equal(t, 250.0, got.Expense.Amount)
	assert.Equal(t, models.SplitEqual, got.Expense.SplitMethod)
	assert.Nil(t, got.Expense.Shares)
	assert.True(t, fixedNow.Equal(got.Date), "date kept")

	t.Run("kind cannot change", func(t *testing.T) {
		tx := models.NewSettlement(id, groupID, time.Time{}, models.Settlement{FromUserID: "bob", ToUserID: "alice", Amount: 10})
		assert.ErrorIs(t, e.session.EditTransaction(e.ctx, tx), ErrInvalidInput)
	})

	t.Run("missing transaction", func(t *testing.T) {
		tx := edited
		tx.ID = "gone"
		assert.ErrorIs(t, e.session.EditTransaction(e.ctx, tx), storage.ErrNotFound)
	})

	t.Run("invalid edit", func(t *testing.T) {
		tx := e.storedTransaction(groupID, id)
		tx.Expense.Amount = -1
		assert.ErrorIs(t, e.session.EditTransaction(e.ctx, tx), ErrInvalidInput)
	})
}

func TestDeleteTransaction(t *testing.T) {
	e := setup(t)
	groupID := e.group("Trip", "bob")

	id, err := e.session.SettleUp(e.ctx, SettlementInput{GroupID: groupID, FromUserID: "bob", ToUserID: "alice", Amount: 10})
	require.NoError(t, err)
	e.await(e.txCount(groupID, 1))

	require.NoError(t, e.session.DeleteTransaction(e.ctx, groupID, id))
	e.await(e.txCount(groupID, 0))

	err = e.session.DeleteTransaction(e.ctx, groupID, id)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func TestDeleteGroup(t *testing.T) {
	e := setup(t)
	groupID := e.group("Trip", "bob")
	for i := 0; i < 3; i++ {
		_, err := e.session.SettleUp(e.ctx, SettlementInput{GroupID: groupID, FromUserID: "bob", ToUserID: "alice", Amount: 10})
		require.NoError(t, err)
	}
	e.await(e.txCount(groupID, 3))

	require.NoError(t, e.session.DeleteGroup(e.ctx, groupID))
	e.await(func(st *coordinator.State) bool {
		_, ok := st.Group(groupID)
		return !ok
	})

	txs, err := e.store.List(e.ctx, storage.TransactionsCollection(groupID))
	require.NoError(t, err)
	assert.Empty(t, txs)

	assert.ErrorIs(t, e.session.DeleteGroup(e.ctx, groupID), ErrUnknownGroup)
}

func TestProfileUpdates(t *testing.T) {
	e := setup(t)

	require.NoError(t, e.session.UpdateUserLimit(e.ctx, 500))
	e.await(func(st *coordinator.State) bool {
		return st.CurrentUser != nil && st.CurrentUser.MonthlyLimit != nil && *st.CurrentUser.MonthlyLimit == 500
	})
	assert.ErrorIs(t, e.session.UpdateUserLimit(e.ctx, -1), ErrInvalidInput)

	prefs := models.NotificationPreferences{OnAddedToTransaction: false, OnGroupExpenseAdded: true, OnSettlement: false}
	require.NoError(t, e.session.UpdateNotificationPreferences(e.ctx, prefs))
	st := e.await(func(st *coordinator.State) bool {
		return st.CurrentUser != nil && st.CurrentUser.NotificationPreferences != nil
	})
	assert.Equal(t, prefs, st.CurrentUser.Preferences())
}

func TestFindUserByEmail(t *testing.T) {
	e := setup(t)

	u, err := e.session.FindUserByEmail(e.ctx, "  BOB@Example.com ")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "bob", u.ID)

	u, err = e.session.FindUserByEmail(e.ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)

	_, err = e.session.FindUserByEmail(e.ctx, "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInsights(t *testing.T) {
	e := setup(t)
	groupID := e.group("Flat", "bob")
	_, err := e.session.AddExpense(e.ctx, ExpenseInput{
		GroupID: groupID, Description: "Rent", Amount: 1000, PayerID: "bob",
		SplitMethod: models.SplitEqual, Participants: []string{"alice", "bob"},
		Category: models.CategoryRent,
	})
	require.NoError(t, err)
	require.NoError(t, e.session.UpdateUserLimit(e.ctx, 400))
	e.await(func(st *coordinator.State) bool {
		return e.txCount(groupID, 1)(st) && st.CurrentUser != nil && st.CurrentUser.MonthlyLimit != nil
	})

	summary := e.session.Insights(fixedNow)
	assert.InDelta(t, 500, summary.Spent, 1e-9)
	assert.True(t, summary.OverLimit())
	require.Len(t, summary.ByCategory, 1)
	assert.Equal(t, models.CategoryRent, summary.ByCategory[0].Category)

	debts, err := e.session.SimplifiedDebts(groupID)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, "alice", debts[0].From.ID)
	assert.Equal(t, "bob", debts[0].To.ID)
	assert.InDelta(t, 500, debts[0].Amount, 1e-9)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()
	seedUser(t, store, "alice")
	seedUser(t, store, "bob")

	r := NewRegistry(store, Options{})
	defer r.Close()

	first, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	again, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Same(t, first, again)

	replaced, err := r.Start(ctx, "alice")
	require.NoError(t, err)
	assert.NotSame(t, first, replaced)
	assert.Equal(t, 1, r.Active())
	assertClosed(t, first.Done())

	_, err = r.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Active())

	r.End("alice")
	r.End("alice")
	assert.Equal(t, 1, r.Active())
	assertClosed(t, replaced.Done())

	r.Close()
	assert.Equal(t, 0, r.Active())
}

func assertClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	default:
		t.Error("session not closed")
	}
}
