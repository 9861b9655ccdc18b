// Package subscriptions owns the live store streams of one user session.
//
// A Manager holds three kinds of stream: the user directory, the groups the
// user belongs to, and one transaction stream per relevant group. Snapshots
// from all of them are forwarded, tagged, onto a single event channel.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/storage"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("subscription manager closed")

// Kind identifies which stream an event came from.
type Kind string

const (
	KindUsers        Kind = metrics.KindUsers
	KindGroups       Kind = metrics.KindGroups
	KindTransactions Kind = metrics.KindTransactions
)

// Event is one snapshot forwarded from a stream.
type Event struct {
	Kind Kind

	// GroupID and Generation are set for transaction events only. Generation
	// identifies the acquisition that produced the event.
	GroupID    string
	Generation uint64

	Snapshot storage.Snapshot
}

// Acquired names a newly opened transaction stream.
type Acquired struct {
	GroupID    string
	Generation uint64
}

// Changes is the outcome of one reconciliation pass.
type Changes struct {
	Acquired []Acquired
	Released []string
}

// Empty reports whether the pass changed nothing.
func (c Changes) Empty() bool {
	return len(c.Acquired) == 0 && len(c.Released) == 0
}

type handle struct {
	stream     storage.Stream
	generation uint64
	stop       chan struct{}
}

func (h *handle) release() {
	close(h.stop)
	h.stream.Close()
}

// Manager owns every stream of one session. Handles never leave it.
type Manager struct {
	store  storage.Store
	userID string
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	users   *handle
	groups  *handle
	txs     map[string]*handle
	nextGen uint64
	opened  bool
	closed  bool
}

// NewManager creates a manager for userID. buffer sizes the event channel.
func NewManager(store storage.Store, userID string, buffer int) *Manager {
	return &Manager{
		store:  store,
		userID: userID,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		txs:    make(map[string]*handle),
	}
}

// Events returns the channel every snapshot is forwarded to. It is closed
// once Close has released every stream and every forwarder has exited.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Open subscribes to the user directory and to the groups containing the
// current user. If either fails, nothing stays open.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.opened {
		return errors.New("subscriptions already open")
	}

	users, err := m.store.Subscribe(ctx, storage.UsersCollection, nil)
	if err != nil {
		metrics.SubscribeFailures.WithLabelValues(metrics.KindUsers).Inc()
		return fmt.Errorf("failed to subscribe to users: %w", err)
	}
	groups, err := m.store.Subscribe(ctx, storage.GroupsCollection, storage.ArrayContains(storage.MemberIDsField, m.userID))
	if err != nil {
		users.Close()
		metrics.SubscribeFailures.WithLabelValues(metrics.KindGroups).Inc()
		return fmt.Errorf("failed to subscribe to groups: %w", err)
	}

	m.opened = true
	m.users = m.startLocked(users, KindUsers, "", 0)
	m.groups = m.startLocked(groups, KindGroups, "", 0)
	slog.Info("Subscriptions opened", "user_id", m.userID)
	return nil
}

// Reconcile makes the set of transaction streams equal to groupIDs. Running
// it again with the same IDs changes nothing. A group whose stream cannot be
// opened stays unsubscribed and is retried on the next pass; its error is
// returned joined with the others after the pass completes.
func (m *Manager) Reconcile(ctx context.Context, groupIDs []string) (Changes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Changes{}, ErrClosed
	}

	wanted := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = true
	}

	var changes Changes
	for _, id := range sortedKeys(m.txs) {
		if !wanted[id] {
			m.releaseLocked(id)
			changes.Released = append(changes.Released, id)
		}
	}

	var errs []error
	for _, id := range sortedKeys(wanted) {
		if _, ok := m.txs[id]; ok {
			continue
		}
		gen, err := m.acquireLocked(ctx, id)
		if err != nil {
			slog.Error("Failed to subscribe to transactions", "group_id", id, "error", err)
			errs = append(errs, fmt.Errorf("group %s: %w", id, err))
			continue
		}
		changes.Acquired = append(changes.Acquired, Acquired{GroupID: id, Generation: gen})
	}

	return changes, errors.Join(errs...)
}

// IsCurrent reports whether gen is the live acquisition for groupID.
func (m *Manager) IsCurrent(groupID string, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.txs[groupID]
	return ok && h.generation == gen
}

// Subscribed returns the IDs of groups with an open transaction stream, sorted.
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.txs)
}

// Close releases every stream, waits for the forwarders to exit and closes
// the event channel. Calling it again is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)

	for _, id := range sortedKeys(m.txs) {
		m.releaseLocked(id)
	}
	if m.users != nil {
		m.users.release()
		metrics.OpenSubscriptions.WithLabelValues(metrics.KindUsers).Dec()
	}
	if m.groups != nil {
		m.groups.release()
		metrics.OpenSubscriptions.WithLabelValues(metrics.KindGroups).Dec()
	}
	m.mu.Unlock()

	m.wg.Wait()
	close(m.events)
	slog.Info("Subscriptions closed", "user_id", m.userID)
	return nil
}

func (m *Manager) acquireLocked(ctx context.Context, groupID string) (uint64, error) {
	stream, err := m.store.Subscribe(ctx, storage.TransactionsCollection(groupID), nil)
	if err != nil {
		metrics.SubscribeFailures.WithLabelValues(metrics.KindTransactions).Inc()
		return 0, err
	}
	m.nextGen++
	gen := m.nextGen
	m.txs[groupID] = m.startLocked(stream, KindTransactions, groupID, gen)
	slog.Debug("Subscribed to transactions", "group_id", groupID, "generation", gen)
	return gen, nil
}

func (m *Manager) releaseLocked(groupID string) {
	h, ok := m.txs[groupID]
	if !ok {
		return
	}
	delete(m.txs, groupID)
	h.release()
	metrics.OpenSubscriptions.WithLabelValues(metrics.KindTransactions).Dec()
	slog.Debug("Released transactions", "group_id", groupID, "generation", h.generation)
}

func (m *Manager) startLocked(stream storage.Stream, kind Kind, groupID string, gen uint64) *handle {
	h := &handle{stream: stream, generation: gen, stop: make(chan struct{})}
	metrics.OpenSubscriptions.WithLabelValues(string(kind)).Inc()
	m.wg.Add(1)
	go m.forward(h, kind, groupID)
	return h
}

// forward copies snapshots from one stream to the event channel until the
// stream ends, the handle is released, or the manager closes.
func (m *Manager) forward(h *handle, kind Kind, groupID string) {
	defer m.wg.Done()
	for {
		select {
		case snap, ok := <-h.stream.Snapshots():
			if !ok {
				return
			}
			ev := Event{Kind: kind, GroupID: groupID, Generation: h.generation, Snapshot: snap}
			select {
			case m.events <- ev:
			case <-h.stop:
				return
			case <-m.done:
				return
			}
		case <-h.stop:
			return
		case <-m.done:
			return
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
