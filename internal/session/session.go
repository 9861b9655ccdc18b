// Package session is the surface the presentation layer talks to: read
// accessors over the synchronized ledger and the write operations that
// change it.
//
// Mutators validate their input, send one request to the store and return
// once the store has acknowledged it. They never touch the in-memory model;
// their effect shows up in State after the next snapshot arrives.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/coordinator"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage"
)

// Options configures a session.
type Options struct {
	// Emitter receives the session's notifications. Defaults to a LogEmitter.
	Emitter notify.Emitter

	Coordinator coordinator.Options

	// Now returns the time stamped on new transactions. Defaults to time.Now.
	Now func() time.Time
}

// Session is one signed-in user's view of the ledger.
type Session struct {
	userID     string
	store      storage.Store
	coord      *coordinator.Coordinator
	dispatcher *notify.Dispatcher
	validate   *validator.Validate
	now        func() time.Time

	started      atomic.Bool
	closeOnce    sync.Once
	dispatchDone chan struct{}
	done         chan struct{}
}

// New creates a session for userID. Call Start to begin syncing.
func New(store storage.Store, userID string, opts Options) *Session {
	if opts.Emitter == nil {
		opts.Emitter = notify.LogEmitter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		userID:       userID,
		store:        store,
		coord:        coordinator.New(store, userID, opts.Coordinator),
		dispatcher:   notify.NewDispatcher(userID, opts.Emitter),
		validate:     newValidator(),
		now:          opts.Now,
		dispatchDone: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start opens the session's subscriptions and starts notification dispatch.
func (s *Session) Start(ctx context.Context) error {
	if err := s.coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session for %s: %w", s.userID, err)
	}
	s.started.Store(true)
	go func() {
		defer close(s.dispatchDone)
		s.dispatcher.Run(context.WithoutCancel(ctx), s.coord.Fresh())
	}()
	slog.Info("Session started", "user_id", s.userID)
	return nil
}

// Close ends the session. Every subscription is closed before it returns.
// Calling it again is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.coord.Stop()
		if s.started.Load() {
			<-s.dispatchDone
		}
		close(s.done)
		slog.Info("Session ended", "user_id", s.userID)
	})
}

// Done returns a channel closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// UserID returns the ID of the session's user.
func (s *Session) UserID() string {
	return s.userID
}

// State returns the latest synchronized state.
func (s *Session) State() *coordinator.State {
	return s.coord.State()
}

// Changed returns a channel closed on the next state change.
func (s *Session) Changed() <-chan struct{} {
	return s.coord.Changed()
}

// WaitLoaded blocks until the first groups snapshot has been merged.
func (s *Session) WaitLoaded(ctx context.Context) error {
	for {
		changed := s.coord.Changed()
		if !s.coord.State().Loading {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Loading reports whether the initial group load is still pending.
func (s *Session) Loading() bool {
	return s.State().Loading
}

// CurrentUser returns the session's user, or nil until the directory has it.
func (s *Session) CurrentUser() *models.User {
	return s.State().CurrentUser
}

// Users returns the user directory.
func (s *Session) Users() []models.User {
	return s.State().Users
}

// Groups returns the user's groups with members and transactions resolved.
func (s *Session) Groups() []models.Group {
	return s.State().Groups
}

// Group returns one of the user's groups.
func (s *Session) Group(groupID string) (models.Group, error) {
	g, ok := s.State().Group(groupID)
	if !ok {
		return models.Group{}, fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	return g, nil
}

// GroupBalances returns each member's balance in a group.
func (s *Session) GroupBalances(groupID string) ([]models.Balance, error) {
	balances, ok := s.State().GroupBalances(groupID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	return balances, nil
}

// GlobalBalances returns the user's net balance with every counterparty.
func (s *Session) GlobalBalances() []models.Balance {
	return s.State().GlobalBalances()
}

// SimplifiedDebts returns the payments that would settle a group.
func (s *Session) SimplifiedDebts(groupID string) ([]calculator.DebtEdge, error) {
	balances, err := s.GroupBalances(groupID)
	if err != nil {
		return nil, err
	}
	return calculator.SimplifyDebts(balances), nil
}

// Insights summarizes the user's spending in the month containing month.
func (s *Session) Insights(month time.Time) calculator.MonthlySummary {
	state := s.State()
	user := models.User{ID: s.userID}
	if state.CurrentUser != nil {
		user = *state.CurrentUser
	}
	return calculator.SummarizeMonth(state.Groups, user, month)
}

// AddGroup creates a group containing the current user and memberIDs.
func (s *Session) AddGroup(ctx context.Context, in GroupInput) (string, error) {
	if err := checkStruct(s.validate, in); err != nil {
		return "", err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", invalid("Name is required")
	}
	members := dedupe(append([]string{s.userID}, in.MemberIDs...))

	id, err := s.store.Create(ctx, storage.GroupsCollection, storage.GroupFields(name, members, s.now()))
	metrics.ObserveWrite("add_group", err)
	if err != nil {
		return "", fmt.Errorf("failed to create group: %w", err)
	}
	slog.Info("Group created", "user_id", s.userID, "group_id", id, "members", len(members))
	return id, nil
}

// AddExpense records a new expense dated now.
func (s *Session) AddExpense(ctx context.Context, in ExpenseInput) (string, error) {
	group, err := s.Group(in.GroupID)
	if err != nil {
		return "", err
	}
	e, err := normalizeExpense(s.validate, in, group)
	if err != nil {
		return "", err
	}
	return s.createTransaction(ctx, "add_expense", models.NewExpense("", group.ID, s.now(), e))
}

// SettleUp records a payment between two members, dated now.
func (s *Session) SettleUp(ctx context.Context, in SettlementInput) (string, error) {
	group, err := s.Group(in.GroupID)
	if err != nil {
		return "", err
	}
	st, err := normalizeSettlement(s.validate, in, group)
	if err != nil {
		return "", err
	}
	return s.createTransaction(ctx, "settle_up", models.NewSettlement("", group.ID, s.now(), st))
}

func (s *Session) createTransaction(ctx context.Context, op string, tx models.Transaction) (string, error) {
	fields, err := storage.TransactionFields(tx)
	if err != nil {
		return "", err
	}
	id, err := s.store.Create(ctx, storage.TransactionsCollection(tx.GroupID), fields)
	metrics.ObserveWrite(op, err)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}
	slog.Debug("Transaction created", "user_id", s.userID, "group_id", tx.GroupID, "transaction_id", id, "kind", tx.Kind)
	return id, nil
}

// EditTransaction replaces the contents of an existing transaction. The kind
// cannot change. The stored date is kept unless tx carries one.
func (s *Session) EditTransaction(ctx context.Context, tx models.Transaction) error {
	group, err := s.Group(tx.GroupID)
	if err != nil {
		return err
	}
	if tx.ID == "" {
		return invalid("transaction ID is required")
	}

	switch tx.Kind {
	case models.KindExpense:
		if tx.Expense == nil {
			return invalid("expense details are required")
		}
		e, err := normalizeExpense(s.validate, ExpenseInput{
			GroupID:      group.ID,
			Description:  tx.Expense.Description,
			Amount:       tx.Expense.Amount,
			PayerID:      tx.Expense.PayerID,
			SplitMethod:  tx.Expense.SplitMethod,
			Participants: tx.Expense.Participants,
			Shares:       tx.Expense.Shares,
			Category:     tx.Expense.Category,
		}, group)
		if err != nil {
			return err
		}
		tx = models.NewExpense(tx.ID, group.ID, tx.Date, e)
	case models.KindSettlement:
		if tx.Settlement == nil {
			return invalid("settlement details are required")
		}
		st, err := normalizeSettlement(s.validate, SettlementInput{
			GroupID:    group.ID,
			FromUserID: tx.Settlement.FromUserID,
			ToUserID:   tx.Settlement.ToUserID,
			Amount:     tx.Settlement.Amount,
		}, group)
		if err != nil {
			return err
		}
		tx = models.NewSettlement(tx.ID, group.ID, tx.Date, st)
	default:
		return invalid("unknown transaction kind %q", tx.Kind)
	}

	docPath := storage.DocPath(storage.TransactionsCollection(group.ID), tx.ID)
	current, err := s.store.Get(ctx, docPath)
	if err != nil {
		return fmt.Errorf("failed to read transaction: %w", err)
	}
	if current == nil {
		return fmt.Errorf("transaction %s: %w", tx.ID, storage.ErrNotFound)
	}
	if kind := current.Fields.GetFields()["kind"].GetStringValue(); kind != string(tx.Kind) {
		return invalid("cannot change a %s into a %s", kind, tx.Kind)
	}

	fields, err := storage.TransactionFields(tx)
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, docPath, fields)
	metrics.ObserveWrite("edit_transaction", err)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

// DeleteTransaction removes one transaction from a group.
func (s *Session) DeleteTransaction(ctx context.Context, groupID, transactionID string) error {
	if _, err := s.Group(groupID); err != nil {
		return err
	}
	if transactionID == "" {
		return invalid("transaction ID is required")
	}
	err := s.store.Delete(ctx, storage.DocPath(storage.TransactionsCollection(groupID), transactionID))
	metrics.ObserveWrite("delete_transaction", err)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// DeleteGroup removes a group and all of its transactions in one batch.
// The store deletes the transactions collection inside the same batch, so a
// transaction written while the group is being deleted does not outlive it.
func (s *Session) DeleteGroup(ctx context.Context, groupID string) error {
	group, err := s.Group(groupID)
	if err != nil {
		return err
	}

	err = s.store.BatchDelete(ctx, []string{storage.DocPath(storage.GroupsCollection, groupID)})
	metrics.ObserveWrite("delete_group", err)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	slog.Info("Group deleted", "user_id", s.userID, "group_id", groupID, "transactions", len(group.Transactions))
	return nil
}

// UpdateUserLimit sets the current user's monthly spending limit.
func (s *Session) UpdateUserLimit(ctx context.Context, limit float64) error {
	if !finite(limit) || limit < 0 {
		return invalid("monthly limit must be a non-negative number")
	}
	err := s.store.Update(ctx, storage.DocPath(storage.UsersCollection, s.userID), storage.MonthlyLimitFields(limit))
	metrics.ObserveWrite("update_limit", err)
	if err != nil {
		return fmt.Errorf("failed to update monthly limit: %w", err)
	}
	return nil
}

// UpdateNotificationPreferences replaces the current user's notification switches.
func (s *Session) UpdateNotificationPreferences(ctx context.Context, prefs models.NotificationPreferences) error {
	err := s.store.Update(ctx, storage.DocPath(storage.UsersCollection, s.userID), storage.NotificationPreferencesUpdate(prefs))
	metrics.ObserveWrite("update_preferences", err)
	if err != nil {
		return fmt.Errorf("failed to update notification preferences: %w", err)
	}
	return nil
}

// FindUserByEmail looks a user up by email address. A miss is nil, nil.
func (s *Session) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, invalid("email address is malformed")
	}
	doc, err := s.store.QueryOnce(ctx, storage.UsersCollection, storage.EmailField, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	u := storage.DecodeUser(*doc)
	return &u, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
