// Package coordinator merges store snapshots into the canonical ledger model
// of one session and separates freshly added transactions from history.
//
// All merging happens on a single goroutine that consumes the subscription
// manager's events. After every event the coordinator rebuilds an immutable
// State from the latest snapshot of each stream and publishes it atomically,
// so readers never observe a half-merged model and merge order across streams
// does not matter.
package coordinator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/subscriptions"
)

// FreshTransaction is a transaction added after its group finished loading,
// together with the State it was first observed in.
type FreshTransaction struct {
	Transaction models.Transaction
	State       *State
}

// Options tunes channel sizes. Zero values pick defaults.
type Options struct {
	EventBuffer int
	FreshBuffer int
}

const (
	defaultEventBuffer = 16
	defaultFreshBuffer = 64
)

// freshness tracks one acquisition of a group's transaction stream.
type freshness struct {
	generation uint64
	loaded     bool
	seen       map[string]bool
}

// classify records the IDs of a new snapshot and returns the transactions
// that were not in the previous one. Nothing is fresh until the first
// snapshot has been recorded.
func (f *freshness) classify(txs []models.Transaction) []models.Transaction {
	var fresh []models.Transaction
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		seen[tx.ID] = true
		if f.loaded && !f.seen[tx.ID] {
			fresh = append(fresh, tx)
		}
	}
	if !f.loaded {
		metrics.TransactionsClassified.WithLabelValues("historical").Add(float64(len(txs)))
	}
	metrics.TransactionsClassified.WithLabelValues("fresh").Add(float64(len(fresh)))
	f.seen = seen
	f.loaded = true
	return fresh
}

// Coordinator keeps one session's ledger model in sync with the store.
type Coordinator struct {
	userID  string
	manager *subscriptions.Manager
	fresh   chan FreshTransaction

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Pointer[State]

	mu      sync.Mutex
	changed chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	loopDone  chan struct{}

	// Owned by the loop goroutine.
	users        []models.User
	groups       []models.Group
	groupsLoaded bool
	txs          map[string][]models.Transaction
	freshness    map[string]*freshness
	version      uint64
}

// New creates a coordinator for userID. Nothing is subscribed until Start.
func New(store storage.Store, userID string, opts Options) *Coordinator {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.FreshBuffer <= 0 {
		opts.FreshBuffer = defaultFreshBuffer
	}

	c := &Coordinator{
		userID:    userID,
		manager:   subscriptions.NewManager(store, userID, opts.EventBuffer),
		fresh:     make(chan FreshTransaction, opts.FreshBuffer),
		changed:   make(chan struct{}),
		loopDone:  make(chan struct{}),
		txs:       make(map[string][]models.Transaction),
		freshness: make(map[string]*freshness),
	}
	c.state.Store(newState(0, userID, nil, nil, true))
	return c
}

// Start opens the session's subscriptions and starts merging. It returns
// without waiting for any snapshot. Start must be called at most once.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.manager.Open(ctx); err != nil {
		return err
	}
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.startOnce.Do(func() {
		go c.loop()
	})
	return nil
}

// State returns the latest published state.
func (c *Coordinator) State() *State {
	return c.state.Load()
}

// Changed returns a channel that is closed on the next publish.
func (c *Coordinator) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Fresh delivers transactions added after their group finished loading.
// It is closed by Stop.
func (c *Coordinator) Fresh() <-chan FreshTransaction {
	return c.fresh
}

// Stop closes every subscription, then waits for the merge loop to exit and
// closes Fresh. It is safe to call more than once, and before Start.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.manager.Close()

		started := true
		c.startOnce.Do(func() { started = false })
		if started {
			<-c.loopDone
		}
		close(c.fresh)
	})
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)

	for ev := range c.manager.Events() {
		metrics.SnapshotsReceived.WithLabelValues(string(ev.Kind)).Inc()

		var fresh []models.Transaction
		switch ev.Kind {
		case subscriptions.KindUsers:
			c.users = decodeUsers(ev.Snapshot)
		case subscriptions.KindGroups:
			c.groups = decodeGroups(ev.Snapshot)
			c.groupsLoaded = true
			c.reconcile()
		case subscriptions.KindTransactions:
			f, ok := c.freshness[ev.GroupID]
			if !ok || f.generation != ev.Generation {
				metrics.StaleEventsDropped.Inc()
				slog.Warn("Dropping snapshot from released subscription", "group_id", ev.GroupID, "generation", ev.Generation)
				continue
			}
			txs := decodeTransactions(ev.GroupID, ev.Snapshot)
			fresh = f.classify(txs)
			c.txs[ev.GroupID] = txs
		}

		state := c.publish()
		for _, tx := range fresh {
			select {
			case c.fresh <- FreshTransaction{Transaction: tx, State: state}:
			case <-c.ctx.Done():
				return
			}
		}
	}
}

// reconcile aligns the per-group transaction streams with the current groups
// snapshot. Released groups lose their transactions and freshness memory;
// acquired groups start unloaded.
func (c *Coordinator) reconcile() {
	ids := make([]string, len(c.groups))
	for i, g := range c.groups {
		ids[i] = g.ID
	}

	changes, err := c.manager.Reconcile(c.ctx, ids)
	if err != nil {
		slog.Error("Transaction subscriptions incomplete", "user_id", c.userID, "error", err)
	}
	for _, id := range changes.Released {
		delete(c.txs, id)
		delete(c.freshness, id)
	}
	for _, a := range changes.Acquired {
		delete(c.txs, a.GroupID)
		c.freshness[a.GroupID] = &freshness{generation: a.Generation}
	}
}

// publish rebuilds the derived model from the latest snapshots and swaps it in.
func (c *Coordinator) publish() *State {
	directory := make(map[string]models.User, len(c.users))
	for _, u := range c.users {
		directory[u.ID] = u
	}

	groups := make([]models.Group, len(c.groups))
	for i, g := range c.groups {
		g.Members = resolveMembers(g, directory)
		g.Transactions = c.txs[g.ID]
		groups[i] = g
	}

	c.version++
	state := newState(c.version, c.userID, c.users, groups, !c.groupsLoaded)
	c.state.Store(state)

	c.mu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
	return state
}

// resolveMembers maps member IDs through the directory, dropping IDs that
// resolve to no known user.
func resolveMembers(g models.Group, directory map[string]models.User) []models.User {
	members := make([]models.User, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		u, ok := directory[id]
		if !ok {
			slog.Debug("Dropping unknown member", "group_id", g.ID, "user_id", id)
			continue
		}
		members = append(members, u)
	}
	return members
}

func decodeUsers(snap storage.Snapshot) []models.User {
	users := make([]models.User, len(snap.Docs))
	for i, doc := range snap.Docs {
		users[i] = storage.DecodeUser(doc)
	}
	return users
}

func decodeGroups(snap storage.Snapshot) []models.Group {
	groups := make([]models.Group, len(snap.Docs))
	for i, doc := range snap.Docs {
		groups[i] = storage.DecodeGroup(doc)
	}
	return groups
}

// decodeTransactions decodes a transaction snapshot newest first, skipping
// documents that do not decode.
func decodeTransactions(groupID string, snap storage.Snapshot) []models.Transaction {
	txs := make([]models.Transaction, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		tx, err := storage.DecodeTransaction(groupID, doc)
		if err != nil {
			slog.Warn("Skipping undecodable transaction", "group_id", groupID, "error", err)
			continue
		}
		txs = append(txs, tx)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
	return txs
}
