package session

import (
	"context"
	"sync"

	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/storage"
)

// Registry holds at most one live session per user.
type Registry struct {
	store storage.Store
	opts  Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose sessions share store and opts.
func NewRegistry(store storage.Store, opts Options) *Registry {
	return &Registry{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's live session, starting one if there is none.
func (r *Registry) Get(ctx context.Context, userID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s, nil
	}
	return r.startLocked(ctx, userID)
}

// Start begins a new session for userID. Any previous session of the user
// is closed, with all of its subscriptions, before the new one subscribes.
func (r *Registry) Start(ctx context.Context, userID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLocked(userID)
	return r.startLocked(ctx, userID)
}

// End closes the user's session, if any.
func (r *Registry) End(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLocked(userID)
}

// Active returns the number of live sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close ends every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID := range r.sessions {
		r.endLocked(userID)
	}
}

func (r *Registry) startLocked(ctx context.Context, userID string) (*Session, error) {
	s := New(r.store, userID, r.opts)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	r.sessions[userID] = s
	metrics.ActiveSessions.Inc()
	return s, nil
}

func (r *Registry) endLocked(userID string) {
	s, ok := r.sessions[userID]
	if !ok {
		return
	}
	delete(r.sessions, userID)
	s.Close()
	metrics.ActiveSessions.Dec()
}
